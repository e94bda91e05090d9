package illustration_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"quill/internal/document"
	"quill/internal/illustration"
	"quill/internal/services"
	"quill/internal/services/imagegen"
	"quill/internal/stage"
	"quill/internal/testsupport"
)

type fakeRenderer struct {
	prompts []string
	err     error
}

func (f *fakeRenderer) Render(_ context.Context, prompt, dst string) (imagegen.Asset, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return imagegen.Asset{}, f.err
	}
	if err := os.WriteFile(dst, []byte("png"), 0o644); err != nil {
		return imagegen.Asset{}, err
	}
	return imagegen.Asset{Path: dst, SourceURL: "https://cdn.example/img.png", Bytes: 3}, nil
}

func draftRun(t *testing.T, lib *document.Library) *stage.Run {
	t.Helper()
	doc := document.New("# Best Brokers 2026\n\nBody.\n")
	doc.Header.Set(document.KeyTitle, "Best Brokers 2026: Full Review")
	doc.Header.Set(document.KeySlug, "best-brokers")
	testsupport.WriteDocument(t, lib, document.StageDraft, doc)
	loaded, _, err := lib.Load("best-brokers")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &stage.Run{Doc: loaded, Slug: "best-brokers"}
}

func TestExecuteRecordsFeaturedImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Images.Enabled = true
	cfg.Site.Brand = "Desk"
	lib := document.NewLibrary(cfg.Paths.ContentDir)
	renderer := &fakeRenderer{}
	handler := illustration.NewHandler(cfg, lib, renderer)

	run := draftRun(t, lib)
	if err := handler.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	url, path, alt := run.Doc.FeaturedImage()
	if url != "https://cdn.example/img.png" || path != handler.AssetPath("best-brokers") {
		t.Fatalf("unexpected image %q %q", url, path)
	}
	if alt != "Best Brokers 2026: Full Review - Desk" {
		t.Fatalf("unexpected alt %q", alt)
	}
	if len(renderer.prompts) != 1 || !strings.Contains(renderer.prompts[0], `"Best Brokers Full Review"`) {
		t.Fatalf("unexpected prompt %v", renderer.prompts)
	}
	stored, _, err := lib.Load("best-brokers")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, p, _ := stored.FeaturedImage(); p == "" {
		t.Fatal("expected featured image persisted to the draft")
	}

	if err := handler.Execute(context.Background(), run); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if len(renderer.prompts) != 1 {
		t.Fatal("documents with an image must not be re-rendered")
	}
}

func TestExecuteDisabledIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lib := document.NewLibrary(cfg.Paths.ContentDir)
	renderer := &fakeRenderer{}
	handler := illustration.NewHandler(cfg, lib, renderer)

	run := draftRun(t, lib)
	if err := handler.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(renderer.prompts) != 0 {
		t.Fatal("disabled stage must not render")
	}
	health := handler.HealthCheck(context.Background())
	if !health.Ready() || health.State != stage.ReadinessOff {
		t.Fatalf("unexpected health %#v", health)
	}

	unconfigured := illustration.NewHandler(cfg, lib, imagegen.NewClient(cfg.Images, nil))
	if unconfigured.Enabled() {
		t.Fatal("client without an api key must disable the stage")
	}
}

func TestExecutePropagatesRenderError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Images.Enabled = true
	lib := document.NewLibrary(cfg.Paths.ContentDir)
	handler := illustration.NewHandler(cfg, lib, &fakeRenderer{err: services.Wrap(services.ErrExternalTool, "illustrate", "render", "boom", nil)})

	err := handler.Execute(context.Background(), draftRun(t, lib))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestDetectTheme(t *testing.T) {
	cases := []struct {
		title, template, category string
		want                      illustration.Theme
	}{
		{"MT4 vs MT5", "", "", illustration.ThemeComparison},
		{"Top 10 Brokers", "", "", illustration.ThemeList},
		{"How to Trade Gold", "", "", illustration.ThemeGuide},
		{"What Is Leverage", "", "", illustration.ThemeEducation},
		{"Trading in Canada", "", "", illustration.ThemeCountry},
		{"Plain", "", "", illustration.ThemeGuide},
	}
	for _, tc := range cases {
		if got := illustration.DetectTheme(tc.title, tc.template, tc.category); got != tc.want {
			t.Fatalf("DetectTheme(%q) = %s, want %s", tc.title, got, tc.want)
		}
	}
}
