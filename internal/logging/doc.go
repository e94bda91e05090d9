// Package logging assembles structured slog loggers and formatting helpers used
// across quill.
//
// It owns the console and JSON handlers, the console+file fan-out used by the
// continuous runner, per-stage level overrides, and log retention. Context
// helpers tag records with work item IDs, stages, slugs, and correlation IDs so
// one run can be followed end to end. NewNop serves tests and wiring code that
// cannot fail.
package logging
