package workflow

import (
	"time"

	"quill/internal/document"
	"quill/internal/queue"
	"quill/internal/stage"
)

// StageSet bundles the handlers the orchestrator drives.
type StageSet struct {
	Generate   stage.Handler
	Illustrate stage.Handler
	Gate       stage.Handler
	Publish    stage.Handler
	Announce   stage.Handler
}

func (s StageSet) handler(name stage.Name) stage.Handler {
	switch name {
	case stage.Generate:
		return s.Generate
	case stage.Illustrate:
		return s.Illustrate
	case stage.Gate:
		return s.Gate
	case stage.Publish:
		return s.Publish
	case stage.Announce:
		return s.Announce
	}
	return nil
}

// RunOptions adjusts a single run.
type RunOptions struct {
	// From is the first stage to run. Empty means generate.
	From stage.Name
	// Staged stops before publish and leaves the item staged.
	Staged bool
	// DryRun executes publish without touching the destination; the item
	// ends staged.
	DryRun bool
}

// BulkOptions adjusts PublishApproved.
type BulkOptions struct {
	Limit  int
	DryRun bool
}

// StepStatus is the result of one stage within a run.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult records one stage execution.
type StepResult struct {
	Stage    stage.Name
	Status   StepStatus
	Fatal    bool
	Duration time.Duration
	Err      error
	Detail   string
}

// Outcome summarises a run for the CLI step trace.
type Outcome struct {
	RequestID     string
	Item          *queue.Item
	Status        queue.Status
	Slug          string
	Location      document.Stage
	Score         int
	HasScore      bool
	URL           string
	DestinationID string
	Steps         []StepResult
	Err           error
	Duration      time.Duration
}

// Failed reports whether the run ended in the failed status.
func (o *Outcome) Failed() bool {
	return o != nil && o.Status == queue.StatusFailed
}
