package stage

import (
	"context"
	"log/slog"

	"quill/internal/document"
	"quill/internal/quality"
	"quill/internal/queue"
)

// Handler describes the contract the orchestrator needs from each stage.
type Handler interface {
	Execute(ctx context.Context, run *Run) error
	HealthCheck(ctx context.Context) Health
}

// Run carries the state one item accumulates while moving through the stages.
// Handlers read and extend it; the orchestrator owns persistence of the item
// and the lifecycle location of the document.
type Run struct {
	Item   *queue.Item
	Logger *slog.Logger

	// Doc is the working document. Handlers that change it also save it
	// through the library so an interrupted run can resume.
	Doc  document.Document
	Slug string

	Report    *quality.Report
	Score     int
	HasScore  bool
	Published bool

	DestinationID string
	URL           string

	DryRun bool
	Staged bool
}

// HasDocument reports whether a document has been produced or loaded.
func (r *Run) HasDocument() bool {
	return r != nil && r.Doc.Header != nil && r.Slug != ""
}
