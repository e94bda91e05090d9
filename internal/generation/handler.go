package generation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/logging"
	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/services/research"
	"quill/internal/stage"
	"quill/internal/textutil"
)

// Researcher supplies competitor context. Implementations return empty
// values on failure instead of errors.
type Researcher interface {
	Search(ctx context.Context, phrase string) []research.Result
	FetchPage(ctx context.Context, pageURL string) research.Page
}

// Tracker is the subset of the queue store the generator reads and writes.
type Tracker interface {
	ListTracked(ctx context.Context) ([]queue.TrackedPost, error)
	UpsertTracked(ctx context.Context, slug string, patch queue.TrackerPatch) (queue.TrackedPost, error)
}

// Handler implements the generate stage.
type Handler struct {
	cfg        *config.Config
	library    *document.Library
	tracker    Tracker
	provider   Provider
	researcher Researcher
	now        func() time.Time
}

// NewHandler wires the generate stage. researcher may be nil.
func NewHandler(cfg *config.Config, library *document.Library, tracker Tracker, provider Provider, researcher Researcher) *Handler {
	return &Handler{
		cfg:        cfg,
		library:    library,
		tracker:    tracker,
		provider:   provider,
		researcher: researcher,
		now:        time.Now,
	}
}

// SetClock overrides the time source used for header timestamps.
func (h *Handler) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// Execute generates the article for run.Item and writes it as a draft.
func (h *Handler) Execute(ctx context.Context, run *stage.Run) error {
	if run == nil || run.Item == nil {
		return services.Wrap(services.ErrInvariant, "generate", "execute", "run has no work item", nil)
	}
	if h.provider == nil {
		return services.Wrap(services.ErrConfiguration, "generate", "execute", "no generation provider configured", nil)
	}
	logger := run.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	item := run.Item

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = textutil.TitleCase(item.Keyword)
	}
	slug := strings.TrimSpace(item.Slug)
	if slug == "" {
		slug = textutil.Slugify(title, h.cfg.Quality.SlugMaxLength)
	}
	if slug == "" {
		return services.Wrap(services.ErrValidation, "generate", "slug", fmt.Sprintf("cannot derive a slug from %q", title), nil)
	}
	if entry, err := h.library.Locate(slug); err == nil && entry.Stage == document.StagePublished {
		return services.Wrap(services.ErrValidation, "generate", "slug", fmt.Sprintf("%q is already published", slug), nil)
	}

	template := strings.ToLower(strings.TrimSpace(item.Template))
	if template == "" {
		template = document.DefaultTemplate
	}
	minWords := h.cfg.TemplateMinWords(template)
	if minWords == 0 {
		minWords = h.cfg.Quality.MinWordCount
	}

	results, pages := h.research(ctx, item.Keyword, logger)
	links := h.linkCandidates(ctx, item.Keyword, slug, logger)
	brief := Brief{
		Keyword:          item.Keyword,
		Title:            title,
		Template:         template,
		Category:         item.Category,
		Brand:            h.cfg.Site.Brand,
		MinWords:         minWords,
		MinInternalLinks: h.cfg.Quality.MinInternalLinks,
		MaxSentences:     h.cfg.Quality.MaxParagraphSentences,
		AuthorityDomains: limitStrings(h.cfg.Quality.AuthorityDomains, 6),
		Sources:          SourcesFrom(results, pages),
		Links:            links,
	}

	started := h.now()
	result, err := h.provider.Generate(ctx, Request{
		System:    SystemPrompt(h.cfg.Site.Brand),
		Prompt:    BuildPrompt(brief),
		MaxTokens: h.cfg.Generation.MaxOutputTokens,
	})
	if err != nil {
		return err
	}
	draft := ParseOutput(result.Text, item.Keyword)
	body := ComposeBody(draft, title)
	if document.WordCount(body) == 0 {
		return services.Wrap(services.ErrExternalTool, "generate", "parse output", "model returned an empty article", nil)
	}

	doc := document.Document{Header: h.header(item, title, slug, template, draft, result, brief.Sources), Body: body}
	if _, err := h.library.Save(doc); err != nil {
		return fmt.Errorf("save draft %s: %w", slug, err)
	}

	run.Doc = doc
	run.Slug = slug
	if h.tracker != nil {
		if _, err := h.tracker.UpsertTracked(ctx, slug, queue.TrackerPatch{
			Title:   queue.StringPtr(title),
			Keyword: queue.StringPtr(item.Keyword),
			Status:  queue.StringPtr(string(document.StageDraft)),
		}); err != nil {
			logging.WarnWithContext(logger, "tracker update failed", "tracker_update_failed",
				logging.String(logging.FieldSlug, slug),
				logging.Error(err),
				logging.String(logging.FieldImpact, "status overview may lag"),
			)
		}
	}

	logger.Info("article generated",
		logging.String(logging.FieldSlug, slug),
		logging.String("provider", result.Provider),
		logging.String("model", result.Model),
		logging.Int("words", document.WordCount(body)),
		logging.Int("input_tokens", result.InputTokens),
		logging.Int("output_tokens", result.OutputTokens),
		logging.Float64("cost_usd", roundCost(result.Cost)),
		logging.Int("research_sources", len(brief.Sources)),
		logging.Int("link_candidates", len(links)),
		logging.Bool("structured_output", draft.Structured),
		logging.Duration("elapsed", h.now().Sub(started)),
	)
	return nil
}

func (h *Handler) header(item *queue.Item, title, slug, template string, draft Draft, result Result, sources []Source) *document.Header {
	now := h.now()
	keywords := document.HeaderFrom(
		document.KeyPrimary, item.Keyword,
		document.KeySecondary, draft.SecondaryKeywords,
	)
	header := document.HeaderFrom(
		document.KeyTitle, title,
		document.KeySlug, slug,
		document.KeyDescription, draft.Description,
		document.KeyKeywords, keywords,
		document.KeyTemplate, template,
		document.KeySchemaType, schemaType(template, len(draft.FAQ) > 0),
		document.KeyStage, string(document.StageDraft),
		document.KeyCreatedAt, document.Timestamp(now),
		document.KeyUpdatedAt, document.Timestamp(now),
	)
	if item.Category != "" {
		header.Set(document.KeyCategory, item.Category)
	}
	if author := strings.TrimSpace(h.cfg.Site.Author); author != "" {
		header.Set(document.KeyAuthor, author)
	}
	if text, url := strings.TrimSpace(h.cfg.Site.CTAText), strings.TrimSpace(h.cfg.Site.CTAURL); text != "" && url != "" {
		header.Set(document.KeyCTA, document.HeaderFrom("text", text, "url", url))
	}
	sourceURLs := make([]string, 0, len(sources))
	for _, src := range sources {
		sourceURLs = append(sourceURLs, src.URL)
	}
	header.Set(document.KeyGeneration, document.HeaderFrom(
		"provider", result.Provider,
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"cost_usd", roundCost(result.Cost),
		"generated_at", document.Timestamp(now),
		"item_id", item.ID,
		"research_sources", sourceURLs,
	))
	return header
}

func (h *Handler) research(ctx context.Context, keyword string, logger *slog.Logger) ([]research.Result, []research.Page) {
	if h.researcher == nil || !h.cfg.Generation.ResearchEnabled {
		return nil, nil
	}
	results := h.researcher.Search(ctx, keyword)
	limit := h.cfg.Generation.ResearchPages
	var pages []research.Page
	for _, r := range results {
		if len(pages) >= limit {
			break
		}
		page := h.researcher.FetchPage(ctx, r.URL)
		if page.Empty() && strings.TrimSpace(r.Markdown) != "" {
			page = research.Page{URL: r.URL, Title: r.Title, Text: excerpt(r.Markdown)}
		}
		if !page.Empty() {
			pages = append(pages, page)
		}
	}
	logger.Debug("research complete",
		logging.Int("results", len(results)),
		logging.Int("pages", len(pages)),
	)
	return results, pages
}

// linkCandidates ranks published posts by similarity to the keyword and
// returns up to generation.internal_links of them.
func (h *Handler) linkCandidates(ctx context.Context, keyword, slug string, logger *slog.Logger) []LinkCandidate {
	limit := h.cfg.Generation.InternalLinks
	if h.tracker == nil || limit <= 0 {
		return nil
	}
	posts, err := h.tracker.ListTracked(ctx)
	if err != nil {
		logger.Debug("link candidates unavailable", logging.Error(err))
		return nil
	}
	var published []queue.TrackedPost
	for _, post := range posts {
		if post.Status == string(document.StagePublished) && post.Slug != slug {
			published = append(published, post)
		}
	}
	texts := make([]string, len(published))
	for i, post := range published {
		texts[i] = post.Title + " " + post.Keyword + " " + strings.ReplaceAll(post.Slug, "-", " ")
	}
	ordered := make([]queue.TrackedPost, 0, len(published))
	used := make(map[int]bool, len(published))
	for _, ranked := range textutil.RankBySimilarity(keyword, texts) {
		ordered = append(ordered, published[ranked.Index])
		used[ranked.Index] = true
	}
	for i, post := range published {
		if !used[i] {
			ordered = append(ordered, post)
		}
	}
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	links := make([]LinkCandidate, 0, len(ordered))
	for _, post := range ordered {
		url := post.URL
		if url == "" {
			url = h.cfg.PostURL(post.Slug)
		}
		links = append(links, LinkCandidate{Title: firstNonEmpty(post.Title, post.Slug), URL: url})
	}
	return links
}

// HealthCheck reports whether a provider is configured.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	if h.provider == nil {
		return stage.Down(stage.Generate, "no generation provider configured")
	}
	return stage.Up(stage.Generate)
}

func schemaType(template string, hasFAQ bool) string {
	switch template {
	case "how-to":
		return "HowTo"
	case "review", "comparison":
		return "Review"
	}
	if hasFAQ {
		return "FAQPage"
	}
	return "BlogPosting"
}

func roundCost(cost float64) float64 {
	return math.Round(cost*10000) / 10000
}

func excerpt(markdown string) string {
	text := strings.Join(strings.Fields(markdown), " ")
	if runes := []rune(text); len(runes) > research.MaxExcerptRunes {
		return string(runes[:research.MaxExcerptRunes])
	}
	return text
}

var _ stage.Handler = (*Handler)(nil)

