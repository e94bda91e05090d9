package keywords_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/keywords"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/testsupport"
)

func TestParseYAMLForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain list", "- gold price\n- silver price\n", []string{"gold price", "silver price"}},
		{"entries", "- keyword: gold price\n  priority: 2\n- keyword: oil\n", []string{"gold price", "oil"}},
		{"wrapped", "keywords:\n  - gold price\n  - keyword: oil\n    verdict: approve\n", []string{"gold price", "oil"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := keywords.ParseYAML(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ParseYAML: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(entries))
			}
			for i, want := range tt.want {
				if entries[i].Keyword != want {
					t.Fatalf("entry %d: got %q want %q", i, entries[i].Keyword, want)
				}
			}
		})
	}
}

func TestParseYAMLRejectsScalarDocument(t *testing.T) {
	if _, err := keywords.ParseYAML(strings.NewReader("just text")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseCSV(t *testing.T) {
	input := "Keyword,Priority,Template,Verdict,Volume\n" +
		"gold price,3,,approve,120\n" +
		"\"best brokers, 2026\",,listicle,,40\n"
	entries, err := keywords.ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Priority != 3 || entries[0].Verdict != "approve" || entries[0].Line != 2 {
		t.Fatalf("unexpected first entry %#v", entries[0])
	}
	if entries[1].Keyword != "best brokers, 2026" || entries[1].Template != "listicle" {
		t.Fatalf("unexpected second entry %#v", entries[1])
	}

	if _, err := keywords.ParseCSV(strings.NewReader("term\nx\n")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestImportDeduplicatesAgainstFileAndQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewItem(t, store, "Gold Price", 1)

	entries := []keywords.Entry{
		{Keyword: "gold price", Line: 1},
		{Keyword: "how to trade oil", Verdict: "approve", Line: 2},
		{Keyword: "How  to trade OIL", Line: 3},
		{Keyword: "  ", Line: 4},
		{Keyword: "best forex brokers", Priority: 7, Line: 5},
	}
	result, err := keywords.Import(ctx, store, entries, keywords.Options{StartPriority: 10})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Added) != 2 || len(result.Skipped) != 3 {
		t.Fatalf("expected 2 added and 3 skipped, got %d / %d", len(result.Added), len(result.Skipped))
	}

	oil, err := store.FindByKeyword(ctx, "how to trade oil")
	if err != nil || oil == nil {
		t.Fatalf("FindByKeyword: %v", err)
	}
	if oil.Verdict != queue.VerdictApprove || !oil.Validated || oil.Template != "how-to" || oil.Priority != 10 {
		t.Fatalf("unexpected imported item %#v", oil)
	}
	if oil.Title != "How To Trade Oil" {
		t.Fatalf("unexpected title %q", oil.Title)
	}
	brokers, _ := store.FindByKeyword(ctx, "best forex brokers")
	if brokers == nil || brokers.Priority != 7 || brokers.Template != "listicle" || brokers.Eligible() {
		t.Fatalf("expected unvalidated listicle at priority 7, got %#v", brokers)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	result, err := keywords.Import(ctx, store, []keywords.Entry{{Keyword: "copper"}}, keywords.Options{DryRun: true})
	if err != nil || len(result.Added) != 1 {
		t.Fatalf("unexpected dry run result %#v err=%v", result, err)
	}
	if item, _ := store.FindByKeyword(ctx, "copper"); item != nil {
		t.Fatal("dry run must not insert")
	}
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "backlog.yaml")
	testsupport.WriteFile(t, yamlPath, "- gold\n")
	if entries, err := keywords.LoadFile(yamlPath); err != nil || len(entries) != 1 {
		t.Fatalf("LoadFile yaml: %v (%d)", err, len(entries))
	}
	txtPath := filepath.Join(dir, "backlog.txt")
	testsupport.WriteFile(t, txtPath, "gold\n")
	if _, err := keywords.LoadFile(txtPath); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for .txt, got %v", err)
	}
	if _, err := keywords.LoadFile(filepath.Join(dir, "missing.csv")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignTemplate(t *testing.T) {
	tests := map[string]string{
		"how to read charts": "how-to",
		"mt4 vs mt5":         "comparison",
		"best prop firms":    "listicle",
		"what is a pip":      "guide",
		"forex signals":      "how-to",
	}
	for keyword, want := range tests {
		if got := keywords.AssignTemplate(keyword, ""); got != want {
			t.Fatalf("AssignTemplate(%q) = %q, want %q", keyword, got, want)
		}
	}
	if got := keywords.AssignTemplate("prop firm pricing", "Commercial"); got != "listicle" {
		t.Fatalf("expected commercial intent to map to listicle, got %q", got)
	}
}
