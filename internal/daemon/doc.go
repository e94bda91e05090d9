// Package daemon coordinates the long-running quill process.
//
// It wires configuration, queue storage, the orchestrator and the scheduler
// into a single lifecycle with flock-based locking so `quill run` and
// `quill serve` never drive the pipeline at the same time.
//
// Keep orchestration logic out of here: stage behaviour lives in the stage
// packages and run sequencing in workflow. The daemon focuses on startup,
// shutdown and status.
package daemon
