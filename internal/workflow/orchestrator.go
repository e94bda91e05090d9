package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/logging"
	"quill/internal/notifications"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// Orchestrator runs work items through the stage sequence.
type Orchestrator struct {
	cfg      *config.Config
	store    *queue.Store
	library  *document.Library
	stages   StageSet
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time

	// runMu keeps runs in one process sequential.
	runMu sync.Mutex

	mu          sync.RWMutex
	lastErr     error
	lastOutcome *Outcome
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithNotifier replaces the ntfy notifier derived from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithClock overrides the time source for claims, durations and events.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator constructs an orchestrator over store and library.
func NewOrchestrator(cfg *config.Config, store *queue.Store, library *document.Library, stages StageSet, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		library:  library,
		stages:   stages,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifications.NewService(cfg),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunNext claims the next eligible item and runs it. It returns (nil, nil)
// when nothing is eligible.
func (o *Orchestrator) RunNext(ctx context.Context, opts RunOptions) (*Outcome, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	item, err := o.store.ClaimNext(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("claim next item: %w", err)
	}
	if item == nil {
		o.logger.Debug("no eligible item")
		return nil, nil
	}
	return o.execute(ctx, item, opts)
}

// Run executes the stage sequence for an item already claimed into the
// generating status.
func (o *Orchestrator) Run(ctx context.Context, item *queue.Item, opts RunOptions) (*Outcome, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if item == nil {
		return nil, services.Wrap(services.ErrInvariant, "workflow", "run", "item is nil", nil)
	}
	if item.Status != queue.StatusGenerating {
		return nil, services.Wrap(services.ErrInvariant, "workflow", "run",
			fmt.Sprintf("item %s is %s, not claimed", item.ID, item.Status), nil)
	}
	return o.execute(ctx, item, opts)
}

// Resume re-enters the sequence at from for a staged or failed item. Stages
// after generate work on the document already on disk, so publish can be
// retried without regenerating.
func (o *Orchestrator) Resume(ctx context.Context, itemID string, from stage.Name, opts RunOptions) (*Outcome, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.resume(ctx, itemID, from, opts)
}

func (o *Orchestrator) resume(ctx context.Context, itemID string, from stage.Name, opts RunOptions) (*Outcome, error) {
	if from == "" {
		from = stage.Publish
	}
	if from.Index() < 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "resume", fmt.Sprintf("unknown stage %q", from), nil)
	}
	item, err := o.store.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "resume", "item "+itemID, nil)
	}
	if item.Status != queue.StatusStaged && item.Status != queue.StatusFailed {
		return nil, services.Wrap(services.ErrValidation, "workflow", "resume",
			fmt.Sprintf("item %s is %s; only staged or failed items resume", item.ID, item.Status), nil)
	}
	now := o.now()
	claimed, err := o.store.Update(ctx, item.ID, queue.Patch{
		ExpectVersion:   item.Version,
		Status:          queue.StatusPtr(queue.StatusGenerating),
		StartedAt:       queue.TimePtr(now),
		FinishedAt:      queue.TimePtr(time.Time{}),
		ErrorMessage:    queue.StringPtr(""),
		DurationSeconds: queue.FloatPtr(0),
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s for resume: %w", item.ID, err)
	}
	opts.From = from
	return o.execute(ctx, claimed, opts)
}

// PublishApproved replays publish and announce for staged items, in
// selection order, whose document sits in the approved directory. Failures
// are collected and do not stop the pass.
func (o *Orchestrator) PublishApproved(ctx context.Context, opts BulkOptions) ([]*Outcome, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	staged, err := o.store.List(ctx, queue.StatusStaged)
	if err != nil {
		return nil, err
	}
	var (
		outcomes []*Outcome
		errs     []error
	)
	for _, item := range staged {
		if opts.Limit > 0 && len(outcomes) >= opts.Limit {
			break
		}
		if strings.TrimSpace(item.Slug) == "" {
			continue
		}
		entry, err := o.library.Locate(item.Slug)
		if err != nil || entry.Stage != document.StageApproved {
			continue
		}
		outcome, err := o.resume(ctx, item.ID, stage.Publish, RunOptions{DryRun: opts.DryRun})
		if outcome != nil {
			outcomes = append(outcomes, outcome)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.Slug, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return outcomes, errors.Join(errs...)
}

func (o *Orchestrator) setLast(outcome *Outcome, err error) {
	o.mu.Lock()
	o.lastOutcome = outcome
	o.lastErr = err
	o.mu.Unlock()
}
