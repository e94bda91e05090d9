package publishing

import (
	"context"

	"quill/internal/logging"
	"quill/internal/services/indexing"
	"quill/internal/stage"
)

// Announcer notifies search engines about a new URL.
type Announcer interface {
	Submit(ctx context.Context, url string) error
}

// AnnounceHandler submits published URLs for indexing.
type AnnounceHandler struct {
	announcer Announcer
}

// NewAnnounceHandler wires the announce stage. A nil announcer disables it.
func NewAnnounceHandler(announcer Announcer) *AnnounceHandler {
	return &AnnounceHandler{announcer: announcer}
}

// Execute submits run.URL when the run published something.
func (a *AnnounceHandler) Execute(ctx context.Context, run *stage.Run) error {
	if a.disabled() || run == nil || !run.Published || run.URL == "" {
		return nil
	}
	if err := a.announcer.Submit(ctx, run.URL); err != nil {
		return err
	}
	if run.Logger != nil {
		run.Logger.Info("url submitted for indexing",
			logging.String(logging.FieldSlug, run.Slug),
			logging.String("url", run.URL),
		)
	}
	return nil
}

func (a *AnnounceHandler) disabled() bool {
	if a == nil || a.announcer == nil {
		return true
	}
	svc, ok := a.announcer.(indexing.Service)
	return ok && indexing.IsNoop(svc)
}

// HealthCheck reports the announce stage as disabled when indexing is off.
func (a *AnnounceHandler) HealthCheck(context.Context) stage.Health {
	if a.disabled() {
		return stage.Off(stage.Announce, "search indexing off")
	}
	return stage.Up(stage.Announce)
}

var _ stage.Handler = (*AnnounceHandler)(nil)
