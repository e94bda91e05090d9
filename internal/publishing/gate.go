package publishing

import (
	"context"
	"fmt"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/logging"
	"quill/internal/quality"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// Tracker is the tracker subset the publishing stages write.
type Tracker interface {
	UpsertTracked(ctx context.Context, slug string, patch queue.TrackerPatch) (queue.TrackedPost, error)
}

// GateHandler scores documents.
type GateHandler struct {
	cfg     *config.Config
	library *document.Library
	tracker Tracker
	now     func() time.Time
}

// NewGateHandler wires the gate stage. tracker may be nil.
func NewGateHandler(cfg *config.Config, library *document.Library, tracker Tracker) *GateHandler {
	return &GateHandler{cfg: cfg, library: library, tracker: tracker, now: time.Now}
}

// Execute evaluates run.Doc and records the score on the run, the document
// header and the tracker.
func (g *GateHandler) Execute(ctx context.Context, run *stage.Run) error {
	if run == nil || !run.HasDocument() {
		return services.Wrap(services.ErrInvariant, "gate", "execute", "no document to score", nil)
	}
	logger := run.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	report := quality.Evaluate(run.Doc, quality.RulesFromConfig(g.cfg))
	run.Report = &report
	run.Score = report.Score
	run.HasScore = true

	doc, _, err := g.library.Update(run.Slug, document.HeaderFrom(
		document.KeySEOScore, report.Score,
		document.KeyUpdatedAt, document.Timestamp(g.now()),
	))
	if err != nil {
		return fmt.Errorf("record score for %s: %w", run.Slug, err)
	}
	run.Doc = doc
	if g.tracker != nil {
		if _, err := g.tracker.UpsertTracked(ctx, run.Slug, queue.TrackerPatch{Score: queue.IntPtr(report.Score)}); err != nil {
			logging.WarnWithContext(logger, "tracker update failed", "tracker_update_failed",
				logging.String(logging.FieldSlug, run.Slug),
				logging.Error(err),
				logging.String(logging.FieldImpact, "status overview may lag"),
			)
		}
	}

	errs, warnings, _ := report.Counts()
	attrs := []logging.Attr{
		logging.String(logging.FieldSlug, run.Slug),
		logging.Int("score", report.Score),
		logging.Int("threshold", g.cfg.Quality.PublishThreshold),
		logging.Int("errors", errs),
		logging.Int("warnings", warnings),
		logging.Int("words", report.Stats.WordCount),
	}
	if quality.Passes(report, g.cfg.Quality.PublishThreshold) {
		logger.Info("quality gate passed", logging.Args(attrs...)...)
	} else {
		logging.WarnWithContext(logger, "quality gate below threshold", "gate_below_threshold", attrs...)
	}
	return nil
}

// HealthCheck always reports ready; scoring has no collaborator.
func (g *GateHandler) HealthCheck(context.Context) stage.Health {
	return stage.Up(stage.Gate)
}

var _ stage.Handler = (*GateHandler)(nil)
