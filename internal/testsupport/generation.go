package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"quill/internal/generation"
)

// StaticProvider is a generation.Provider that always returns Text.
type StaticProvider struct {
	Text  string
	Err   error
	calls atomic.Int32
	// LastRequest holds the most recent request.
	LastRequest generation.Request
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Generate(_ context.Context, req generation.Request) (generation.Result, error) {
	p.calls.Add(1)
	p.LastRequest = req
	if p.Err != nil {
		return generation.Result{}, p.Err
	}
	return generation.Result{
		Text:         p.Text,
		Provider:     "static",
		Model:        "static-model",
		InputTokens:  100,
		OutputTokens: 2000,
		Cost:         0.0123,
	}, nil
}

// Calls reports how many times Generate ran.
func (p *StaticProvider) Calls() int { return int(p.calls.Load()) }

// ArticleReply builds a structured model reply for keyword with roughly
// paragraphs*40 words of body.
func ArticleReply(title, keyword string, paragraphs int) string {
	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", title)
	fmt.Fprintf(&body, "Learning %s takes patience and a plan. This guide explains each step clearly.\n", keyword)
	for i := 0; i < paragraphs; i++ {
		if i%4 == 0 {
			fmt.Fprintf(&body, "\n## %s step %d\n", keyword, i/4+1)
		}
		fmt.Fprintf(&body, "\nParagraph %d covers practical detail about %s for new readers. "+
			"It keeps sentences short and useful so the reader can act on them today without confusion or delay. "+
			"Each idea builds on the previous section and points to the next decision worth making.\n", i+1, keyword)
	}
	reply := map[string]any{
		"description":        fmt.Sprintf("A practical guide to %s covering the steps, mistakes to avoid and how to start today with confidence and a clear plan.", keyword),
		"secondary_keywords": []string{keyword + " tips", keyword + " basics"},
		"faq": []map[string]string{
			{"question": "How long does it take?", "answer": "Most readers need a few weeks."},
		},
		"content": body.String(),
	}
	data, _ := json.Marshal(reply)
	return "```json\n" + string(data) + "\n```"
}
