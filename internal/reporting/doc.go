// Package reporting builds the weekly summary of the pipeline: what was
// published or failed in the last seven days, tracker totals, and how long
// the approved backlog lasts at the configured daily quota. Summaries render
// to HTML and plain text and are delivered through a Sender (Resend by
// default).
package reporting
