// Package notifications delivers run outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Enumerated event
// types cover the outcomes the orchestrator and scheduler report, so callers
// emit consistent messages without duplicating HTTP glue.
//
// All workflow code depends only on the Service interface.
package notifications
