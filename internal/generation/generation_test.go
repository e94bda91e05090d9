package generation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quill/internal/document"
	"quill/internal/generation"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/services/research"
	"quill/internal/stage"
	"quill/internal/testsupport"
)

type fakeResearcher struct {
	results []research.Result
	pages   map[string]research.Page
	fetched []string
}

func (f *fakeResearcher) Search(context.Context, string) []research.Result { return f.results }

func (f *fakeResearcher) FetchPage(_ context.Context, url string) research.Page {
	f.fetched = append(f.fetched, url)
	return f.pages[url]
}

func TestHandlerWritesDraftWithGenerationMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Site.Author = "Desk"
	cfg.Site.CTAText = "Join"
	cfg.Site.CTAURL = "https://example.com/join"
	cfg.Generation.ResearchPages = 1
	store := testsupport.MustOpenStore(t, cfg)
	lib := document.NewLibrary(cfg.Paths.ContentDir)
	ctx := context.Background()

	published := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if _, err := store.UpsertTracked(ctx, "forex-risk-management", queue.TrackerPatch{
		Title:       queue.StringPtr("Forex Risk Management"),
		Keyword:     queue.StringPtr("forex risk"),
		Status:      queue.StringPtr("published"),
		PublishedAt: queue.TimePtr(published),
	}); err != nil {
		t.Fatalf("UpsertTracked: %v", err)
	}

	provider := &testsupport.StaticProvider{Text: testsupport.ArticleReply("Forex Trading Basics", "forex trading", 8)}
	researcher := &fakeResearcher{
		results: []research.Result{{URL: "https://b.example/2", Title: "B"}, {URL: "https://a.example/1", Title: "A"}},
		pages: map[string]research.Page{
			"https://a.example/1": {URL: "https://a.example/1", Text: "competitor text", Headings: []string{"Intro"}},
		},
	}
	handler := generation.NewHandler(cfg, lib, store, provider, researcher)
	handler.SetClock(func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) })

	item := testsupport.NewItem(t, store, "forex trading", 1)
	item.Title = "Forex Trading Basics"
	run := &stage.Run{Item: item}
	if err := handler.Execute(ctx, run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if run.Slug != "forex-trading-basics" {
		t.Fatalf("unexpected slug %q", run.Slug)
	}
	doc, entry, err := lib.Load(run.Slug)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entry.Stage != document.StageDraft || doc.Stage() != document.StageDraft {
		t.Fatalf("expected draft, got %s / %s", entry.Stage, doc.Stage())
	}
	if doc.PrimaryKeyword() != "forex trading" || len(doc.SecondaryKeywords()) != 2 {
		t.Fatalf("unexpected keywords %q %v", doc.PrimaryKeyword(), doc.SecondaryKeywords())
	}
	if doc.SchemaType() != "HowTo" || doc.Header.String(document.KeyAuthor) != "Desk" {
		t.Fatalf("unexpected header %s", doc.Header.Keys())
	}
	if text, url := doc.CTA(); text != "Join" || url == "" {
		t.Fatalf("expected cta, got %q %q", text, url)
	}
	gen := doc.Header.Map(document.KeyGeneration)
	if gen == nil || gen.String("provider") != "static" {
		t.Fatalf("expected generation map, got %v", gen)
	}
	if tokens, _ := gen.Int("output_tokens"); tokens != 2000 {
		t.Fatalf("expected output tokens recorded, got %d", tokens)
	}
	if cost, _ := gen.Float("cost_usd"); cost != 0.0123 {
		t.Fatalf("expected cost recorded, got %v", cost)
	}
	if !strings.Contains(doc.Body, "## Frequently Asked Questions") {
		t.Fatal("expected FAQ section appended from structured output")
	}

	prompt := provider.LastRequest.Prompt
	if !strings.Contains(prompt, "https://example.com/blog/forex-risk-management") {
		t.Fatalf("expected internal link candidate in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "competitor text") {
		t.Fatal("expected research excerpt in prompt")
	}
	if len(researcher.fetched) != 2 {
		t.Fatalf("empty pages should not count toward the page limit, fetched %v", researcher.fetched)
	}

	tracked, ok, err := store.Tracked(ctx, run.Slug)
	if err != nil || !ok || tracked.Status != "draft" {
		t.Fatalf("expected draft tracker row, got %#v ok=%v err=%v", tracked, ok, err)
	}
}

func TestHandlerRefusesPublishedSlug(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	lib := document.NewLibrary(cfg.Paths.ContentDir)

	existing := document.New("# Old\n")
	existing.Header.Set(document.KeySlug, "forex-trading")
	testsupport.WriteDocument(t, lib, document.StagePublished, existing)

	provider := &testsupport.StaticProvider{Text: "# Forex Trading\n\nBody text."}
	handler := generation.NewHandler(cfg, lib, store, provider, nil)
	item := testsupport.NewItem(t, store, "forex trading", 1)
	err := handler.Execute(context.Background(), &stage.Run{Item: item})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if provider.Calls() != 0 {
		t.Fatal("provider must not be called for a published slug")
	}
}

func TestParseOutputFallsBackToMarkdown(t *testing.T) {
	draft := generation.ParseOutput("```markdown\n# Swing Trading\n\nSwing trading holds **positions** for days. See [guide](https://x.example).\n\n## More\n```", "swing trading")
	if draft.Structured {
		t.Fatal("plain markdown must not be treated as structured")
	}
	if !strings.HasPrefix(draft.Content, "# Swing Trading") {
		t.Fatalf("unexpected content %q", draft.Content)
	}
	if draft.Description != "Swing trading holds positions for days. See guide." {
		t.Fatalf("unexpected description %q", draft.Description)
	}
}

func TestParseOutputStructured(t *testing.T) {
	reply := `Here you go: {"description":"d","secondary_keywords":["A","a","swing trading",""],"faq":[{"question":"q","answer":""}],"content":"# T\n\nbody"}`
	draft := generation.ParseOutput(reply, "swing trading")
	if !draft.Structured || draft.Description != "d" {
		t.Fatalf("unexpected draft %#v", draft)
	}
	if len(draft.SecondaryKeywords) != 1 || draft.SecondaryKeywords[0] != "A" {
		t.Fatalf("expected deduplicated keywords, got %v", draft.SecondaryKeywords)
	}
	if len(draft.FAQ) != 0 {
		t.Fatalf("incomplete FAQ entries should be dropped, got %v", draft.FAQ)
	}
}

func TestComposeBodyAddsMissingH1(t *testing.T) {
	body := generation.ComposeBody(generation.Draft{Content: "Intro paragraph."}, "My Title")
	if !strings.HasPrefix(body, "# My Title\n\nIntro paragraph.") {
		t.Fatalf("unexpected body %q", body)
	}
}

type failingProvider struct{ name string }

func (f failingProvider) Name() string { return f.name }

func (f failingProvider) Generate(context.Context, generation.Request) (generation.Result, error) {
	return generation.Result{}, services.Wrap(services.ErrTransient, "generate", f.name, "down", nil)
}

func TestFallbackUsesSecondProvider(t *testing.T) {
	second := &testsupport.StaticProvider{Text: "ok"}
	chain := generation.NewFallback(nil, failingProvider{name: "first"}, second)
	result, err := chain.Generate(context.Background(), generation.Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "ok" || second.Calls() != 1 {
		t.Fatalf("unexpected result %#v", result)
	}
	if chain.Name() != "first+static" {
		t.Fatalf("unexpected chain name %q", chain.Name())
	}

	allFail := generation.NewFallback(nil, failingProvider{name: "a"}, failingProvider{name: "b"})
	_, err = allFail.Generate(context.Background(), generation.Request{Prompt: "p"})
	if !errors.Is(err, services.ErrExternalTool) || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected joined provider errors, got %v", err)
	}
}

func TestNewProviderRequiresCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := generation.NewProvider(cfg, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without keys, got %v", err)
	}
	cfg.Anthropic.APIKey = "a"
	provider, err := generation.NewProvider(cfg, nil)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.Name() != generation.ProviderAnthropic {
		t.Fatalf("expected anthropic alone without an openrouter key, got %s", provider.Name())
	}
	cfg.LLM.APIKey = "b"
	provider, err = generation.NewProvider(cfg, nil)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.Name() != "anthropic+openrouter" {
		t.Fatalf("expected chained providers, got %s", provider.Name())
	}
}
