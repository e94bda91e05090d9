package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/generation"
	"quill/internal/illustration"
	"quill/internal/logging"
	"quill/internal/notifications"
	"quill/internal/publishing"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/services/cms"
	"quill/internal/stage"
	"quill/internal/testsupport"
	"quill/internal/workflow"
)

type funcHandler struct {
	calls int
	fn    func(ctx context.Context, run *stage.Run) error
}

func (h *funcHandler) Execute(ctx context.Context, run *stage.Run) error {
	h.calls++
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, run)
}

func (h *funcHandler) HealthCheck(context.Context) stage.Health { return stage.Up("") }

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

type fakeDestination struct {
	created []cms.Record
}

func (f *fakeDestination) CreateRecord(_ context.Context, record cms.Record) (string, error) {
	f.created = append(f.created, record)
	return "rec-42", nil
}

func (f *fakeDestination) UpdateRecord(context.Context, string, cms.Record) error { return nil }

func (f *fakeDestination) PublishRecords(context.Context, ...string) error { return nil }

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	library  *document.Library
	notifier *recordingNotifier
	stages   workflow.StageSet
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	lib := document.NewLibrary(cfg.Paths.ContentDir)
	if err := lib.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return &harness{cfg: cfg, store: store, library: lib, notifier: &recordingNotifier{}}
}

// fakeStages writes a draft, scores it and marks it published without any
// external collaborators.
func (h *harness) fakeStages(t *testing.T, score int) *workflow.StageSet {
	t.Helper()
	h.stages = workflow.StageSet{
		Generate: &funcHandler{fn: func(_ context.Context, run *stage.Run) error {
			slug := strings.ReplaceAll(run.Item.Keyword, " ", "-")
			doc := document.New("# " + run.Item.Title + "\n\nBody text.\n")
			doc.Header = document.HeaderFrom(document.KeyTitle, run.Item.Title, document.KeySlug, slug)
			testsupport.WriteDocument(t, h.library, document.StageDraft, doc)
			loaded, _, err := h.library.Load(slug)
			if err != nil {
				return err
			}
			run.Doc, run.Slug = loaded, slug
			return nil
		}},
		Illustrate: &funcHandler{},
		Gate: &funcHandler{fn: func(_ context.Context, run *stage.Run) error {
			run.Score, run.HasScore = score, true
			return nil
		}},
		Publish: &funcHandler{fn: func(_ context.Context, run *stage.Run) error {
			if run.DryRun {
				return nil
			}
			run.Published = true
			run.DestinationID = "rec-1"
			run.URL = h.cfg.PostURL(run.Slug)
			return nil
		}},
		Announce: &funcHandler{},
	}
	return &h.stages
}

func (h *harness) orchestrator() *workflow.Orchestrator {
	return workflow.NewOrchestrator(h.cfg, h.store, h.library, h.stages, logging.NewNop(), workflow.WithNotifier(h.notifier))
}

func TestRunNextReturnsNilWhenQueueEmpty(t *testing.T) {
	h := newHarness(t)
	h.fakeStages(t, 90)
	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{})
	if err != nil || outcome != nil {
		t.Fatalf("expected no run, got %#v err=%v", outcome, err)
	}
}

func TestRunNextPublishesThroughAllStages(t *testing.T) {
	h := newHarness(t)
	stages := h.fakeStages(t, 90)
	item := testsupport.NewItem(t, h.store, "gold price", 1)
	ctx := context.Background()

	outcome, err := h.orchestrator().RunNext(ctx, workflow.RunOptions{})
	if err != nil {
		t.Fatalf("RunNext: %v", err)
	}
	if outcome.Status != queue.StatusPublished || outcome.Location != document.StagePublished {
		t.Fatalf("unexpected outcome %s in %s", outcome.Status, outcome.Location)
	}
	if outcome.URL != "https://example.com/blog/gold-price" || outcome.Score != 90 {
		t.Fatalf("unexpected url %q score %d", outcome.URL, outcome.Score)
	}
	if len(outcome.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(outcome.Steps))
	}
	for _, step := range outcome.Steps {
		if step.Status != workflow.StepSucceeded {
			t.Fatalf("step %s: %s", step.Stage, step.Status)
		}
	}
	if stages.Announce.(*funcHandler).calls != 1 {
		t.Fatal("expected announce to run after publish")
	}

	stored, err := h.store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != queue.StatusPublished || stored.Slug != "gold-price" || stored.FinishedAt.IsZero() {
		t.Fatalf("unexpected stored item %#v", stored)
	}
	events, err := h.store.Events(ctx, time.Time{})
	if err != nil || len(events) != 1 || events[0].Type != queue.EventPublished || events[0].Slug != "gold-price" {
		t.Fatalf("unexpected events %#v (err %v)", events, err)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0] != notifications.EventPublished {
		t.Fatalf("unexpected notifications %v", h.notifier.events)
	}
}

func TestStagedRunThenResumePublishes(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Workflow.HoldBelowThreshold = false
		cfg.Generation.ResearchEnabled = false
	}))
	provider := &testsupport.StaticProvider{Text: testsupport.ArticleReply("Forex Trading Basics", "forex trading", 8)}
	dest := &fakeDestination{}
	h.stages = workflow.StageSet{
		Generate:   generation.NewHandler(h.cfg, h.library, h.store, provider, nil),
		Illustrate: illustration.NewHandler(h.cfg, h.library, nil),
		Gate:       publishing.NewGateHandler(h.cfg, h.library, h.store),
		Publish:    publishing.NewPublishHandler(h.cfg, h.library, dest, h.store),
		Announce:   publishing.NewAnnounceHandler(nil),
	}
	orch := h.orchestrator()
	ctx := context.Background()

	item := testsupport.NewItem(t, h.store, "forex trading", 1)
	if _, err := h.store.Update(ctx, item.ID, queue.Patch{
		ExpectVersion: item.Version,
		Title:         queue.StringPtr("Forex Trading Basics"),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	staged, err := orch.RunNext(ctx, workflow.RunOptions{Staged: true})
	if err != nil {
		t.Fatalf("RunNext: %v", err)
	}
	if staged.Status != queue.StatusStaged || staged.Slug != "forex-trading-basics" {
		t.Fatalf("expected staged forex-trading-basics, got %s %q", staged.Status, staged.Slug)
	}
	if entry, err := h.library.Locate("forex-trading-basics"); err != nil || entry.Stage != document.StageApproved {
		t.Fatalf("expected approved document, got %#v err=%v", entry, err)
	}
	if len(dest.created) != 0 {
		t.Fatal("staged run must not touch the destination")
	}
	if !staged.HasScore {
		t.Fatal("expected a gate score on the staged outcome")
	}

	published, err := orch.Resume(ctx, item.ID, stage.Publish, workflow.RunOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if published.Status != queue.StatusPublished || published.DestinationID != "rec-42" {
		t.Fatalf("unexpected resume outcome %s %q", published.Status, published.DestinationID)
	}
	if provider.Calls() != 1 {
		t.Fatalf("resume must not regenerate, provider called %d times", provider.Calls())
	}
	doc, entry, err := h.library.Load("forex-trading-basics")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entry.Stage != document.StagePublished || doc.DestinationID() != "rec-42" {
		t.Fatalf("expected published document with destination id, got %s %q", entry.Stage, doc.DestinationID())
	}
	if len(dest.created) != 1 {
		t.Fatalf("expected one created record, got %d", len(dest.created))
	}

	counts, err := h.store.DailyCounts(ctx, h.store.Day(time.Now()))
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	if counts.Staged != 1 || counts.Published != 1 {
		t.Fatalf("unexpected counts %#v", counts)
	}
	post, ok, err := h.store.Tracked(ctx, "forex-trading-basics")
	if err != nil || !ok || post.Status != "published" || post.URL != "https://example.com/blog/forex-trading-basics" {
		t.Fatalf("unexpected tracked post %#v ok=%v err=%v", post, ok, err)
	}
}

func TestHoldBelowThresholdLeavesDocumentInReview(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Workflow.HoldBelowThreshold = true
		cfg.Quality.PublishThreshold = 80
	}))
	stages := h.fakeStages(t, 55)
	item := testsupport.NewItem(t, h.store, "silver price", 1)

	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{})
	if err != nil {
		t.Fatalf("RunNext: %v", err)
	}
	if outcome.Status != queue.StatusStaged || outcome.Location != document.StageReview {
		t.Fatalf("expected staged in review, got %s in %s", outcome.Status, outcome.Location)
	}
	if stages.Publish.(*funcHandler).calls != 0 {
		t.Fatal("held document must not be published")
	}
	last := outcome.Steps[len(outcome.Steps)-1]
	if last.Stage != stage.Announce || last.Status != workflow.StepSkipped {
		t.Fatalf("expected remaining stages skipped, got %#v", last)
	}

	// A held document stays held on resume until someone approves it.
	again, err := h.orchestrator().Resume(context.Background(), item.ID, stage.Publish, workflow.RunOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if again.Status != queue.StatusStaged || stages.Publish.(*funcHandler).calls != 0 {
		t.Fatalf("expected resume to stay staged, got %s", again.Status)
	}
}

func TestFatalFailureMarksItemFailed(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Workflow.ErrorMessageLimit = 40
	}))
	stages := h.fakeStages(t, 90)
	stages.Generate = &funcHandler{fn: func(context.Context, *stage.Run) error {
		return services.Wrap(services.ErrExternalTool, "generate", "call model", strings.Repeat("upstream refused ", 10), nil)
	}}
	item := testsupport.NewItem(t, h.store, "oil price", 1)
	ctx := context.Background()

	outcome, err := h.orchestrator().RunNext(ctx, workflow.RunOptions{})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !outcome.Failed() {
		t.Fatalf("expected failed outcome, got %s", outcome.Status)
	}
	stored, err := h.store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if n := len([]rune(stored.ErrorMessage)); n == 0 || n > 40 || !strings.HasPrefix(stored.ErrorMessage, "generate: ") {
		t.Fatalf("unexpected error message %q", stored.ErrorMessage)
	}
	if stages.Gate.(*funcHandler).calls != 0 {
		t.Fatal("stages after a fatal failure must not run")
	}
	counts, _ := h.store.DailyCounts(ctx, h.store.Day(time.Now()))
	if counts.Failed != 1 {
		t.Fatalf("expected failed event, got %#v", counts)
	}
	if len(h.notifier.payloads) != 1 || h.notifier.payloads[0]["stage"] != "generate" {
		t.Fatalf("unexpected notifications %#v", h.notifier.payloads)
	}
}

func TestNonFatalFailureContinues(t *testing.T) {
	h := newHarness(t)
	stages := h.fakeStages(t, 90)
	stages.Illustrate = &funcHandler{fn: func(context.Context, *stage.Run) error {
		return services.Wrap(services.ErrExternalTool, "illustrate", "render", "image service down", nil)
	}}
	testsupport.NewItem(t, h.store, "copper price", 1)

	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{})
	if err != nil {
		t.Fatalf("RunNext: %v", err)
	}
	if outcome.Status != queue.StatusPublished {
		t.Fatalf("expected published despite illustrate failure, got %s", outcome.Status)
	}
	if outcome.Steps[1].Status != workflow.StepFailed || outcome.Steps[1].Fatal {
		t.Fatalf("expected non-fatal illustrate failure, got %#v", outcome.Steps[1])
	}
}

func TestStageIgnoresParentCancellation(t *testing.T) {
	h := newHarness(t)
	stages := h.fakeStages(t, 90)
	inner := stages.Generate.(*funcHandler).fn
	stages.Generate = &funcHandler{fn: func(ctx context.Context, run *stage.Run) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return inner(ctx, run)
	}}
	testsupport.NewItem(t, h.store, "wheat price", 1)
	claimed, err := h.store.ClaimNext(context.Background(), time.Now())
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := h.orchestrator().Run(ctx, claimed, workflow.RunOptions{Staged: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != queue.StatusStaged {
		t.Fatalf("expected staged, got %s", outcome.Status)
	}
}

func TestStageTimeoutFailsRun(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Workflow.GenerateTimeout = 1
	}))
	stages := h.fakeStages(t, 90)
	stages.Generate = &funcHandler{fn: func(ctx context.Context, _ *stage.Run) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	testsupport.NewItem(t, h.store, "corn price", 1)

	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !outcome.Failed() {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
}

func TestPanicBecomesInvariantFailure(t *testing.T) {
	h := newHarness(t)
	stages := h.fakeStages(t, 90)
	stages.Gate = &funcHandler{fn: func(context.Context, *stage.Run) error { panic("boom") }}
	testsupport.NewItem(t, h.store, "cocoa price", 1)

	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{})
	if !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	if !outcome.Failed() {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
}

func TestInvariantInNonFatalStageStopsRun(t *testing.T) {
	h := newHarness(t)
	stages := h.fakeStages(t, 90)
	stages.Illustrate = &funcHandler{fn: func(context.Context, *stage.Run) error {
		return services.Wrap(services.ErrInvariant, "illustrate", "execute", "document vanished", nil)
	}}
	publish := stages.Publish.(*funcHandler)
	testsupport.NewItem(t, h.store, "rye price", 1)

	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{})
	if !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	if !outcome.Failed() {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
	if publish.calls != 0 {
		t.Fatalf("publish must not run after an invariant failure, ran %d times", publish.calls)
	}
	last := outcome.Steps[len(outcome.Steps)-1]
	if last.Stage != stage.Illustrate || !last.Fatal {
		t.Fatalf("expected illustrate recorded as fatal, got %#v", last)
	}
}

func TestResumeRejectsQueuedItem(t *testing.T) {
	h := newHarness(t)
	h.fakeStages(t, 90)
	item := testsupport.NewItem(t, h.store, "sugar price", 1)

	if _, err := h.orchestrator().Resume(context.Background(), item.ID, stage.Publish, workflow.RunOptions{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.orchestrator().Resume(context.Background(), "missing", stage.Publish, workflow.RunOptions{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPublishApprovedSkipsReviewDocuments(t *testing.T) {
	h := newHarness(t)
	h.fakeStages(t, 90)
	orch := h.orchestrator()
	ctx := context.Background()

	testsupport.NewItem(t, h.store, "gold bars", 1)
	testsupport.NewItem(t, h.store, "gold coins", 2)
	for i := 0; i < 2; i++ {
		if _, err := orch.RunNext(ctx, workflow.RunOptions{Staged: true}); err != nil {
			t.Fatalf("RunNext %d: %v", i, err)
		}
	}
	if _, _, err := h.library.Move("gold-coins", document.StageReview, nil); err != nil {
		t.Fatalf("Move: %v", err)
	}

	outcomes, err := orch.PublishApproved(ctx, workflow.BulkOptions{})
	if err != nil {
		t.Fatalf("PublishApproved: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Slug != "gold-bars" || outcomes[0].Status != queue.StatusPublished {
		t.Fatalf("unexpected outcomes %#v", outcomes)
	}
	coins, err := h.store.FindBySlug(ctx, "gold-coins")
	if err != nil || coins == nil || coins.Status != queue.StatusStaged {
		t.Fatalf("expected gold-coins to stay staged, got %#v err=%v", coins, err)
	}
}

func TestDryRunLeavesItemStaged(t *testing.T) {
	h := newHarness(t)
	stages := h.fakeStages(t, 90)
	testsupport.NewItem(t, h.store, "platinum price", 1)

	outcome, err := h.orchestrator().RunNext(context.Background(), workflow.RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("RunNext: %v", err)
	}
	if outcome.Status != queue.StatusStaged || outcome.Location != document.StageApproved {
		t.Fatalf("expected staged approved document, got %s in %s", outcome.Status, outcome.Location)
	}
	if stages.Publish.(*funcHandler).calls != 1 || stages.Announce.(*funcHandler).calls != 0 {
		t.Fatal("dry run executes publish and skips announce")
	}
}

func TestStatusReportsStageHealth(t *testing.T) {
	h := newHarness(t)
	h.fakeStages(t, 90)
	h.stages.Announce = nil
	testsupport.NewItem(t, h.store, "nickel price", 1)

	summary, err := h.orchestrator().Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if summary.QueueStats[queue.StatusQueued] != 1 || summary.Eligible != 1 {
		t.Fatalf("unexpected stats %#v", summary)
	}
	if summary.StageHealth[stage.Announce].Ready() || !summary.StageHealth[stage.Generate].Ready() {
		t.Fatalf("unexpected stage health %#v", summary.StageHealth)
	}
	if got := summary.StageHealth[stage.Gate].Stage; got != stage.Gate {
		t.Fatalf("expected health stamped with its stage, got %q", got)
	}
}
