// Package cms talks to a Webflow-style v2 collection API.
//
// Records are created (optionally as drafts), updated in place and published
// in batches. Every request passes through a Limiter that combines a local
// token bucket with the budget the server advertises in X-RateLimit-Remaining
// and X-RateLimit-Reset. A 429 response is retried after Retry-After (60s when
// absent) up to the configured retry count.
package cms
