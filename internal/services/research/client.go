package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"quill/internal/config"
	"quill/internal/logging"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultSearchLimit = 5
	maxPageBytes       = 4 << 20
	// MaxExcerptRunes bounds the page text handed to the prompt builder.
	MaxExcerptRunes = 3000
)

// Result is a single search hit.
type Result struct {
	URL         string
	Title       string
	Description string
	Markdown    string
}

// Page is the extracted main content of a fetched URL.
type Page struct {
	URL       string
	Title     string
	Text      string
	Headings  []string
	WordCount int
}

// Empty reports whether nothing usable was extracted.
func (p Page) Empty() bool {
	return strings.TrimSpace(p.Text) == ""
}

// HTTPDoer describes the HTTP client used by the research client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the search API and fetches result pages.
type Client struct {
	apiKey      string
	baseURL     string
	searchLimit int
	userAgent   string
	http        HTTPDoer
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger attaches a logger for soft failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLimiter replaces the request limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// NewClient builds a research client from configuration.
func NewClient(cfg config.Research, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		searchLimit: cfg.SearchLimit,
		userAgent:   strings.TrimSpace(cfg.UserAgent),
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logging.NewNop(),
	}
	if c.searchLimit <= 0 {
		c.searchLimit = defaultSearchLimit
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether search credentials are configured. Page fetches
// work without them.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != "" && c.baseURL != ""
}

type searchRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	Lang    string `json:"lang"`
	Country string `json:"country"`
}

type searchResponse struct {
	Data []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
		Metadata    struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"data"`
}

// Search returns the top results for phrase. Any failure yields an empty slice.
func (c *Client) Search(ctx context.Context, phrase string) []Result {
	phrase = strings.TrimSpace(phrase)
	if !c.Enabled() || phrase == "" {
		return nil
	}
	results, err := c.search(ctx, phrase)
	if err != nil {
		c.logger.Warn("research search failed; continuing without results",
			logging.String("phrase", phrase),
			logging.Error(err),
			logging.String(logging.FieldEventType, "research_search_failed"),
			logging.String(logging.FieldImpact, "article generated without competitor context"),
		)
		return nil
	}
	return results
}

func (c *Client) search(ctx context.Context, phrase string) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(searchRequest{Query: phrase, Limit: c.searchLimit, Lang: "en", Country: "us"})
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("search returned %d: %s", resp.StatusCode, snippet(string(payload)))
	}
	var decoded searchResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := make([]Result, 0, len(decoded.Data))
	for _, hit := range decoded.Data {
		if strings.TrimSpace(hit.URL) == "" {
			continue
		}
		results = append(results, Result{
			URL:         strings.TrimSpace(hit.URL),
			Title:       firstNonEmpty(hit.Title, hit.Metadata.Title),
			Description: firstNonEmpty(hit.Description, hit.Metadata.Description),
			Markdown:    hit.Markdown,
		})
	}
	return results, nil
}

// FetchPage downloads pageURL and extracts its main content. Any failure
// yields an empty Page carrying only the URL.
func (c *Client) FetchPage(ctx context.Context, pageURL string) Page {
	page, err := c.fetch(ctx, pageURL)
	if err != nil {
		c.logger.Warn("research page fetch failed",
			logging.String("url", pageURL),
			logging.Error(err),
			logging.String(logging.FieldEventType, "research_fetch_failed"),
		)
		return Page{URL: pageURL}
	}
	return page
}

func (c *Client) fetch(ctx context.Context, pageURL string) (Page, error) {
	parsed, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Page{}, fmt.Errorf("invalid url %q", pageURL)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build page request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("page request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Page{}, fmt.Errorf("page returned %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read page: %w", err)
	}
	return Extract(string(raw), parsed), nil
}

// Extract pulls the title, main text and section headings out of an HTML
// document. Readability runs first; the selector fallback covers pages it
// cannot parse.
func Extract(html string, pageURL *url.URL) Page {
	if pageURL == nil {
		pageURL = &url.URL{}
	}
	page := Page{URL: pageURL.String()}
	contentHTML := ""
	if article, err := readability.FromReader(strings.NewReader(html), pageURL); err == nil {
		page.Title = strings.TrimSpace(article.Title)
		page.Text = collapseSpace(article.TextContent)
		contentHTML = article.Content
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		if page.Title == "" {
			page.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		if page.Text == "" {
			page.Text = collapseSpace(doc.Find("article, main, [role=main], body").First().Text())
		}
	}

	headingSource := doc
	if contentHTML != "" {
		if parsed, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML)); err == nil {
			headingSource = parsed
		}
	}
	if headingSource != nil {
		headingSource.Find("h2, h3").Each(func(_ int, s *goquery.Selection) {
			if text := collapseSpace(s.Text()); text != "" {
				page.Headings = append(page.Headings, text)
			}
		})
	}

	page.WordCount = len(strings.Fields(page.Text))
	page.Text = truncateRunes(page.Text, MaxExcerptRunes)
	return page
}

func collapseSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func snippet(body string) string {
	body = collapseSpace(body)
	if len(body) > 200 {
		return body[:200]
	}
	return body
}
