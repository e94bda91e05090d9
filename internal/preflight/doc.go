// Package preflight provides readiness checks for the external services and
// filesystem paths quill depends on.
//
// `quill config validate --check` runs RunAll and prints one line per check.
// Each service check is gated by its config section: a disabled or
// unconfigured collaborator is reported, not probed.
package preflight
