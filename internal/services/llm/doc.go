// Package llm is a small OpenRouter chat client. The generate stage uses it
// as the non-Anthropic provider and preflight uses HealthCheck.
//
// Requests are retried on 408, 429, 5xx, transport errors and empty
// completions with exponential back-off (2s doubling to 30s, four attempts).
// A Retry-After header replaces the back-off for that wait. Errors carry
// services markers so the orchestrator can classify them.
package llm
