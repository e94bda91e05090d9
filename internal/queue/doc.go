// Package queue persists Work Items, the Scheduler Log and the post tracker in
// SQLite and exposes helpers for driving item lifecycles.
//
// The Store manages database connections, schema initialization, stats
// queries and status transitions. Every item carries a version that is
// compared and incremented on each write, so two workers racing on the same
// item see ErrVersionConflict instead of silently overwriting each other.
// ClaimNext selects and moves the next eligible item to generating inside a
// single transaction; NextEligible is a pure read.
//
// Status transitions are monotonic. Nothing returns to queued except through
// RetryFailed, and published and skipped are terminal.
//
// The Scheduler Log is bounded (see config schedule.event_log_limit). Daily
// publish counts live in a separate per-day table that is bumped in the same
// transaction as the log append, so quota checks stay exact regardless of the
// log cap.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
