// Package main implements the quill command line.
//
// Commands load configuration once per invocation through commandContext and
// open the queue store and content library on demand. Commands that execute
// runs (run, resume, publish-approved, serve) hold the run lock for their
// whole duration so two processes never drive the pipeline at once.
package main
