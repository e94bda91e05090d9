package publishing

import (
	"context"
	"fmt"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/services/cms"
	"quill/internal/stage"
)

// Destination is the CMS the publish stage writes to.
type Destination interface {
	CreateRecord(ctx context.Context, record cms.Record) (string, error)
	UpdateRecord(ctx context.Context, id string, record cms.Record) error
	PublishRecords(ctx context.Context, ids ...string) error
}

// PublishHandler sends approved documents to the destination.
type PublishHandler struct {
	cfg         *config.Config
	library     *document.Library
	destination Destination
	tracker     Tracker
	now         func() time.Time
}

// NewPublishHandler wires the publish stage. tracker may be nil.
func NewPublishHandler(cfg *config.Config, library *document.Library, destination Destination, tracker Tracker) *PublishHandler {
	if client, ok := destination.(*cms.Client); ok && !client.Configured() {
		destination = nil
	}
	return &PublishHandler{cfg: cfg, library: library, destination: destination, tracker: tracker, now: time.Now}
}

// SetClock overrides the time source used for header timestamps.
func (p *PublishHandler) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Execute writes the payload file and, unless the run is a dry run, creates
// or updates the destination record. A document that already carries a
// destination id is updated in place.
func (p *PublishHandler) Execute(ctx context.Context, run *stage.Run) error {
	if run == nil || !run.HasDocument() {
		return services.Wrap(services.ErrInvariant, "publish", "execute", "no document to publish", nil)
	}
	logger := run.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	live := p.cfg.CMS.PublishLive
	record := cms.Record{FieldData: FieldData(run.Doc), IsDraft: !live}
	payloadPath, err := WritePayload(p.cfg.Paths.OutputDir, run.Slug, record)
	if err != nil {
		return err
	}
	if run.DryRun {
		logger.Info("dry run: payload written, destination skipped",
			logging.String(logging.FieldSlug, run.Slug),
			logging.String("payload", payloadPath),
		)
		return nil
	}
	if p.destination == nil {
		return services.Wrap(services.ErrConfiguration, "publish", "execute", "destination CMS is not configured", nil)
	}

	id := run.Doc.DestinationID()
	updated := id != ""
	if updated {
		err = p.destination.UpdateRecord(ctx, id, record)
	} else {
		id, err = p.destination.CreateRecord(ctx, record)
	}
	if err != nil {
		return err
	}
	if live {
		if err := p.destination.PublishRecords(ctx, id); err != nil {
			return err
		}
	}

	now := p.now()
	url := p.cfg.PostURL(run.Slug)
	doc, _, err := p.library.Update(run.Slug, document.HeaderFrom(
		document.KeyDestinationID, id,
		document.KeyDestinationPublished, live,
		document.KeyPublishedAt, document.Timestamp(now),
		document.KeyUpdatedAt, document.Timestamp(now),
	))
	if err != nil {
		return services.Wrap(services.ErrInvariant, "publish", "record destination",
			fmt.Sprintf("record %s created for %s but header write failed", id, run.Slug), err)
	}
	run.Doc = doc
	run.DestinationID = id
	run.URL = url
	run.Published = true

	if p.tracker != nil {
		if _, err := p.tracker.UpsertTracked(ctx, run.Slug, queue.TrackerPatch{
			Status:        queue.StringPtr(string(document.StagePublished)),
			DestinationID: queue.StringPtr(id),
			URL:           queue.StringPtr(url),
			PublishedAt:   queue.TimePtr(now),
		}); err != nil {
			logging.WarnWithContext(logger, "tracker update failed", "tracker_update_failed",
				logging.String(logging.FieldSlug, run.Slug),
				logging.Error(err),
				logging.String(logging.FieldImpact, "status overview may lag"),
			)
		}
	}
	logger.Info("document published",
		logging.String(logging.FieldSlug, run.Slug),
		logging.String("destination_id", id),
		logging.Bool("updated", updated),
		logging.Bool("live", live),
		logging.String("url", url),
	)
	return nil
}

// HealthCheck reports whether a destination is configured.
func (p *PublishHandler) HealthCheck(ctx context.Context) stage.Health {
	if p.destination == nil {
		return stage.Down(stage.Publish, "destination CMS is not configured")
	}
	if checker, ok := p.destination.(interface{ HealthCheck(context.Context) error }); ok {
		if err := checker.HealthCheck(ctx); err != nil {
			return stage.Down(stage.Publish, err.Error())
		}
	}
	return stage.Up(stage.Publish)
}

var _ stage.Handler = (*PublishHandler)(nil)
