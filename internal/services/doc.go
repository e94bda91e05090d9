// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp work item IDs, stage names, slugs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so the orchestrator can
//     classify failures (timeouts, external outages, invariant violations)
//     without string matching.
//
// The subpackages hold the HTTP clients for the external collaborators the
// pipeline talks to (text generation, research, image generation, the
// destination CMS, and search-index announcement).
package services
