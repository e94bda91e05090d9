package keywords

import (
	"context"
	"fmt"
	"strings"

	"quill/internal/queue"
	"quill/internal/textutil"
)

// Store is the queue surface an import needs.
type Store interface {
	FindByKeyword(ctx context.Context, keyword string) (*queue.Item, error)
	Insert(ctx context.Context, item *queue.Item) (*queue.Item, error)
}

// Options adjusts an import.
type Options struct {
	DryRun bool
	// StartPriority numbers rows without a priority in file order.
	StartPriority int
}

// Skip records a row that was not imported.
type Skip struct {
	Line    int
	Keyword string
	Reason  string
}

// Result summarises an import.
type Result struct {
	Added   []*queue.Item
	Skipped []Skip
}

// Import inserts entries as queued items. Rows without a keyword or whose
// keyword already exists (in the file or the queue) are skipped.
func Import(ctx context.Context, store Store, entries []Entry, opts Options) (Result, error) {
	var result Result
	seen := make(map[string]bool, len(entries))
	next := opts.StartPriority
	if next <= 0 {
		next = 1
	}
	for _, entry := range entries {
		keyword := strings.Join(strings.Fields(entry.Keyword), " ")
		if keyword == "" {
			result.Skipped = append(result.Skipped, Skip{Line: entry.Line, Reason: "empty keyword"})
			continue
		}
		key := strings.ToLower(keyword)
		if seen[key] {
			result.Skipped = append(result.Skipped, Skip{Line: entry.Line, Keyword: keyword, Reason: "duplicate in file"})
			continue
		}
		seen[key] = true

		existing, err := store.FindByKeyword(ctx, keyword)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Skipped = append(result.Skipped, Skip{
				Line: entry.Line, Keyword: keyword,
				Reason: fmt.Sprintf("already queued as %s (%s)", existing.ID, existing.Status),
			})
			continue
		}

		priority := entry.Priority
		if priority <= 0 {
			priority = next
			next++
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = textutil.TitleCase(keyword)
		}
		template := strings.TrimSpace(entry.Template)
		if template == "" {
			template = AssignTemplate(keyword, entry.Intent)
		}
		verdict, validated := entry.verdict()
		item := &queue.Item{
			Keyword:   keyword,
			Title:     title,
			Template:  template,
			Category:  strings.TrimSpace(entry.Category),
			Priority:  priority,
			Validated: validated,
			Verdict:   verdict,
			Rationale: strings.TrimSpace(entry.Rationale),
			Status:    queue.StatusQueued,
		}
		if opts.DryRun {
			result.Added = append(result.Added, item)
			continue
		}
		inserted, err := store.Insert(ctx, item)
		if err != nil {
			return result, fmt.Errorf("line %d (%s): %w", entry.Line, keyword, err)
		}
		result.Added = append(result.Added, inserted)
	}
	return result, nil
}

// AssignTemplate picks a content template from the keyword's phrasing and
// search intent.
func AssignTemplate(keyword, intent string) string {
	kw := strings.ToLower(keyword)
	switch {
	case strings.HasPrefix(kw, "how to"), strings.HasPrefix(kw, "how do"), strings.HasPrefix(kw, "how can"):
		return "how-to"
	case strings.Contains(kw, " vs "), strings.Contains(kw, "compare"), strings.Contains(kw, "comparison"):
		return "comparison"
	case strings.HasPrefix(kw, "best "), strings.HasPrefix(kw, "top "), strings.Contains(kw, "best "):
		return "listicle"
	case strings.HasPrefix(kw, "what is"), strings.HasPrefix(kw, "what are"):
		return "guide"
	}
	switch strings.ToLower(strings.TrimSpace(intent)) {
	case "commercial", "transactional":
		return "listicle"
	}
	return "how-to"
}
