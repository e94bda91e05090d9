package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quill/internal/document"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
)

// execute runs the sequence starting at opts.From for a generating item and
// settles its final status.
func (o *Orchestrator) execute(ctx context.Context, item *queue.Item, opts RunOptions) (*Outcome, error) {
	from := opts.From
	if from == "" {
		from = stage.Generate
	}
	requestID := uuid.NewString()
	ctx = services.WithRequestID(services.WithItemID(ctx, item.ID), requestID)
	logger := logging.WithContext(ctx, o.logger)

	run := &stage.Run{Item: item, Logger: logger, DryRun: opts.DryRun, Staged: opts.Staged}
	outcome := &Outcome{RequestID: requestID, Item: item}
	started := item.StartedAt
	if started.IsZero() {
		started = o.now()
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("keyword", item.Keyword),
		logging.String("from", string(from)),
		logging.Bool("staged", opts.Staged),
		logging.Bool("dry_run", opts.DryRun),
	)

	if from != stage.Generate {
		if err := o.loadDocument(run); err != nil {
			return o.fail(ctx, run, outcome, from, err)
		}
	}

	sequence := stage.From(from)
	held := false
	for i, name := range sequence {
		if name == stage.Publish {
			var err error
			held, err = o.promote(run)
			if err != nil {
				return o.fail(ctx, run, outcome, name, err)
			}
			if held || (run.Staged && !run.DryRun) {
				outcome.Steps = append(outcome.Steps, skipped(sequence[i:], "staged")...)
				break
			}
		}

		step := o.runStage(ctx, name, run)
		outcome.Steps = append(outcome.Steps, step)
		if step.Err != nil && step.Fatal {
			return o.fail(ctx, run, outcome, name, step.Err)
		}

		switch name {
		case stage.Generate:
			if err := o.recordSlug(ctx, run); err != nil {
				return o.fail(ctx, run, outcome, name, err)
			}
		case stage.Gate:
			if held, err := o.promote(run); err != nil {
				return o.fail(ctx, run, outcome, name, err)
			} else if held {
				outcome.Steps = append(outcome.Steps, skipped(sequence[i+1:], "held for review")...)
				return o.settle(ctx, run, outcome, started, queue.StatusStaged)
			}
		case stage.Publish:
			if !run.Published {
				outcome.Steps = append(outcome.Steps, skipped(sequence[i+1:], "dry run")...)
				return o.settle(ctx, run, outcome, started, queue.StatusStaged)
			}
			if err := o.moveToPublished(run); err != nil {
				return o.fail(ctx, run, outcome, name, err)
			}
		}
	}

	status := queue.StatusStaged
	if run.Published {
		status = queue.StatusPublished
	}
	return o.settle(ctx, run, outcome, started, status)
}

// runStage executes one handler under context.WithoutCancel plus the stage
// timeout. Panics are converted into invariant failures.
func (o *Orchestrator) runStage(parent context.Context, name stage.Name, run *stage.Run) (step StepResult) {
	step = StepResult{Stage: name, Fatal: stage.PolicyFor(name) == stage.Fatal}
	handler := o.stages.handler(name)
	if handler == nil {
		if step.Fatal {
			step.Status = StepFailed
			step.Err = services.Wrap(services.ErrConfiguration, string(name), "execute", "no handler registered", nil)
			return step
		}
		step.Status = StepSkipped
		step.Detail = "no handler"
		return step
	}

	ctx := services.WithStage(context.WithoutCancel(parent), string(name))
	if run.Slug != "" {
		ctx = services.WithSlug(ctx, run.Slug)
	}
	cancel := func() {}
	if timeout := o.cfg.StageTimeout(string(name)); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	baseLogger := run.Logger
	stageLogger := logging.WithContext(ctx, logging.StageLogger(o.logger, o.cfg.Logging.StageOverrides, string(name)))
	run.Logger = stageLogger
	defer func() { run.Logger = baseLogger }()

	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	start := time.Now()
	err := invoke(ctx, handler, run)
	step.Duration = time.Since(start)
	if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, string(name), "execute",
			fmt.Sprintf("exceeded %s", o.cfg.StageTimeout(string(name))), err)
	}
	if err != nil {
		step.Status = StepFailed
		step.Err = err
		// Invariant violations abort the run whatever the stage policy.
		if errors.Is(err, services.ErrInvariant) {
			step.Fatal = true
		}
		step.Detail = services.Truncate(err.Error(), o.cfg.Workflow.ErrorMessageLimit)
		attrs := append([]logging.Attr{
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("policy", stage.PolicyFor(name).String()),
			logging.Duration("stage_duration", step.Duration),
		}, logging.ErrorAttrs(err)...)
		if step.Fatal {
			stageLogger.Error("stage failed", logging.Args(attrs...)...)
		} else {
			logging.WarnWithContext(stageLogger, "stage failed; continuing", "stage_failure", append(attrs[1:],
				logging.String(logging.FieldImpact, "run continues without this stage"))...)
		}
		return step
	}
	step.Status = StepSucceeded
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", step.Duration),
	)
	return step
}

func invoke(ctx context.Context, handler stage.Handler, run *stage.Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrInvariant, "", "execute", fmt.Sprintf("stage panicked: %v", r), nil)
		}
	}()
	return handler.Execute(ctx, run)
}

// loadDocument attaches the existing document for a resumed item.
func (o *Orchestrator) loadDocument(run *stage.Run) error {
	slug := strings.TrimSpace(run.Item.Slug)
	if slug == "" {
		return services.Wrap(services.ErrInvariant, "workflow", "load document",
			fmt.Sprintf("item %s has no slug; it was never generated", run.Item.ID), nil)
	}
	doc, _, err := o.library.Load(slug)
	if err != nil {
		return services.Wrap(services.ErrInvariant, "workflow", "load document",
			fmt.Sprintf("document %q for item %s is missing", slug, run.Item.ID), err)
	}
	run.Doc = doc
	run.Slug = slug
	if score, ok := doc.Score(); ok {
		run.Score, run.HasScore = score, true
	}
	return nil
}

// recordSlug persists the generated slug so a later resume finds the document.
func (o *Orchestrator) recordSlug(ctx context.Context, run *stage.Run) error {
	if !run.HasDocument() {
		return services.Wrap(services.ErrInvariant, "generate", "record slug", "generate produced no document", nil)
	}
	if run.Item.Slug == run.Slug {
		return nil
	}
	updated, err := o.store.Update(context.WithoutCancel(ctx), run.Item.ID, queue.Patch{
		ExpectVersion: run.Item.Version,
		Slug:          queue.StringPtr(run.Slug),
	})
	if err != nil {
		return fmt.Errorf("record slug: %w", err)
	}
	run.Item = updated
	return nil
}

// promote moves a draft into approved, or into review when holding is
// enabled and the score is below threshold. held is true when the document
// now waits in review.
func (o *Orchestrator) promote(run *stage.Run) (held bool, err error) {
	if !run.HasDocument() {
		return false, services.Wrap(services.ErrInvariant, "workflow", "promote", "no document loaded", nil)
	}
	entry, err := o.library.Locate(run.Slug)
	if err != nil {
		return false, services.Wrap(services.ErrInvariant, "workflow", "promote",
			fmt.Sprintf("document %q disappeared", run.Slug), err)
	}
	switch entry.Stage {
	case document.StageApproved, document.StagePublished:
		return false, nil
	case document.StageReview:
		return true, nil
	}
	target := document.StageApproved
	if o.cfg.Workflow.HoldBelowThreshold && run.HasScore && run.Score < o.cfg.Quality.PublishThreshold {
		target = document.StageReview
	}
	doc, _, err := o.library.Move(run.Slug, target, document.HeaderFrom(
		document.KeyUpdatedAt, document.Timestamp(o.now()),
	))
	if err != nil {
		return false, fmt.Errorf("move %s to %s: %w", run.Slug, target, err)
	}
	run.Doc = doc
	run.Logger.Info("document promoted",
		logging.String(logging.FieldSlug, run.Slug),
		logging.String("location", string(target)),
		logging.Int("score", run.Score),
	)
	return target == document.StageReview, nil
}

func (o *Orchestrator) moveToPublished(run *stage.Run) error {
	doc, _, err := o.library.Move(run.Slug, document.StagePublished, nil)
	if err != nil {
		return services.Wrap(services.ErrInvariant, "publish", "move document",
			fmt.Sprintf("%q published at the destination but could not be moved", run.Slug), err)
	}
	run.Doc = doc
	return nil
}

// settle writes the final status, the Scheduler Log event and the
// notification for a run that did not fail.
func (o *Orchestrator) settle(ctx context.Context, run *stage.Run, outcome *Outcome, started time.Time, status queue.Status) (*Outcome, error) {
	if err := o.finish(ctx, run, status, "", started, ""); err != nil {
		outcome.Err = err
		o.fillOutcome(outcome, run, status, started)
		o.setLast(outcome, err)
		return outcome, err
	}
	o.fillOutcome(outcome, run, status, started)
	run.Logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(status)),
		logging.String(logging.FieldSlug, run.Slug),
		logging.String("url", run.URL),
		logging.Duration("duration", outcome.Duration),
	)
	o.setLast(outcome, nil)
	return outcome, nil
}

// fail marks the item failed after a fatal stage error or invariant
// violation and returns the stage error.
func (o *Orchestrator) fail(ctx context.Context, run *stage.Run, outcome *Outcome, name stage.Name, stageErr error) (*Outcome, error) {
	started := run.Item.StartedAt
	if started.IsZero() {
		started = o.now()
	}
	details := services.Details(stageErr)
	message := services.Truncate(fmt.Sprintf("%s: %s", name, details.Message), o.cfg.Workflow.ErrorMessageLimit)
	err := fmt.Errorf("%s stage: %w", name, stageErr)

	logging.ErrorWithContext(run.Logger, "run failed", "run_failed", append([]logging.Attr{
		logging.String(logging.FieldStage, string(name)),
		logging.String("error_message", message),
	}, logging.ErrorAttrs(stageErr)...)...)

	if finishErr := o.finish(ctx, run, queue.StatusFailed, name, started, message); finishErr != nil {
		err = errors.Join(err, finishErr)
	}
	o.fillOutcome(outcome, run, queue.StatusFailed, started)
	outcome.Err = err
	o.setLast(outcome, err)
	return outcome, err
}

func (o *Orchestrator) finish(ctx context.Context, run *stage.Run, status queue.Status, failed stage.Name, started time.Time, message string) error {
	ctx = context.WithoutCancel(ctx)
	now := o.now()
	duration := now.Sub(started).Seconds()
	if duration < 0 {
		duration = 0
	}
	patch := queue.Patch{
		ExpectVersion:   run.Item.Version,
		Status:          queue.StatusPtr(status),
		FinishedAt:      queue.TimePtr(now),
		DurationSeconds: queue.FloatPtr(duration),
		ErrorMessage:    queue.StringPtr(message),
	}
	if run.Slug != "" {
		patch.Slug = queue.StringPtr(run.Slug)
	}
	updated, err := o.store.Update(ctx, run.Item.ID, patch)
	if err != nil {
		return fmt.Errorf("persist %s status: %w", status, err)
	}
	run.Item = updated

	event := queue.Event{
		Type:            eventFor(status),
		ItemID:          updated.ID,
		Keyword:         updated.Keyword,
		Slug:            run.Slug,
		OccurredAt:      now,
		DurationSeconds: duration,
		Error:           message,
	}
	if _, err := o.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append %s event: %w", event.Type, err)
	}
	o.notify(ctx, run, status, failed, message)
	return nil
}

func eventFor(status queue.Status) queue.EventType {
	switch status {
	case queue.StatusPublished:
		return queue.EventPublished
	case queue.StatusFailed:
		return queue.EventFailed
	default:
		return queue.EventStaged
	}
}

func (o *Orchestrator) fillOutcome(outcome *Outcome, run *stage.Run, status queue.Status, started time.Time) {
	outcome.Item = run.Item
	outcome.Status = status
	outcome.Slug = run.Slug
	outcome.Score = run.Score
	outcome.HasScore = run.HasScore
	outcome.URL = run.URL
	outcome.DestinationID = run.DestinationID
	outcome.Duration = o.now().Sub(started)
	if run.Slug != "" {
		if entry, err := o.library.Locate(run.Slug); err == nil {
			outcome.Location = entry.Stage
		}
	}
}

func skipped(names []stage.Name, reason string) []StepResult {
	out := make([]StepResult, 0, len(names))
	for _, name := range names {
		out = append(out, StepResult{Stage: name, Status: StepSkipped, Detail: reason})
	}
	return out
}
