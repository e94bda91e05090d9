package generation

import (
	"fmt"
	"strings"

	"quill/internal/services/research"
)

// Source is one research excerpt offered to the model.
type Source struct {
	URL      string
	Title    string
	Headings []string
	Excerpt  string
}

// LinkCandidate is a published post the article may link to.
type LinkCandidate struct {
	Title string
	URL   string
}

// Brief collects everything the prompt builder needs for one article.
type Brief struct {
	Keyword          string
	Title            string
	Template         string
	Category         string
	Brand            string
	MinWords         int
	MinInternalLinks int
	MaxSentences     int
	AuthorityDomains []string
	Sources          []Source
	Links            []LinkCandidate
}

const outputContract = `Respond with a single JSON object and nothing else:
{
  "description": "meta description, 120-160 characters, containing the primary keyword",
  "secondary_keywords": ["3 to 6 related phrases"],
  "faq": [{"question": "...", "answer": "..."}],
  "content": "the full article in Markdown, starting with a single H1"
}`

// SystemPrompt returns the writer persona for brand.
func SystemPrompt(brand string) string {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		brand = "the publication"
	}
	return fmt.Sprintf("You are a senior editor writing search-optimized articles for %s. "+
		"Write accurate, specific, practical content for a knowledgeable reader. "+
		"Never invent statistics or quotes.", brand)
}

// BuildPrompt renders the user prompt for brief.
func BuildPrompt(b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s article titled %q.\n", b.Template, b.Title)
	fmt.Fprintf(&sb, "Primary keyword: %s\n", b.Keyword)
	if b.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", b.Category)
	}

	sb.WriteString("\nRequirements:\n")
	if b.MinWords > 0 {
		fmt.Fprintf(&sb, "- At least %d words of body text.\n", b.MinWords)
	}
	sb.WriteString("- Exactly one H1 containing the primary keyword.\n")
	sb.WriteString("- Use the primary keyword within the first 100 words.\n")
	sb.WriteString("- Use the primary keyword or a close variant in several H2 headings.\n")
	if b.MaxSentences > 0 {
		fmt.Fprintf(&sb, "- Keep paragraphs to %d sentences or fewer.\n", b.MaxSentences)
	}
	sb.WriteString("- Finish with a \"Frequently Asked Questions\" section built from the faq entries.\n")
	sb.WriteString("- Give every image descriptive alt text.\n")

	if len(b.Links) > 0 {
		minLinks := b.MinInternalLinks
		if minLinks <= 0 || minLinks > len(b.Links) {
			minLinks = len(b.Links)
		}
		fmt.Fprintf(&sb, "\nLink naturally to at least %d of these existing articles:\n", minLinks)
		for _, link := range b.Links {
			fmt.Fprintf(&sb, "- [%s](%s)\n", link.Title, link.URL)
		}
	}
	if len(b.AuthorityDomains) > 0 {
		fmt.Fprintf(&sb, "\nCite at least one authoritative external source, preferably from: %s.\n",
			strings.Join(b.AuthorityDomains, ", "))
	}

	if len(b.Sources) > 0 {
		sb.WriteString("\nCompetitor research (cover what they cover, then go further):\n")
		for i, src := range b.Sources {
			fmt.Fprintf(&sb, "\n### Source %d: %s\n%s\n", i+1, firstNonEmpty(src.Title, src.URL), src.URL)
			if len(src.Headings) > 0 {
				fmt.Fprintf(&sb, "Sections: %s\n", strings.Join(limitStrings(src.Headings, 12), " | "))
			}
			if src.Excerpt != "" {
				fmt.Fprintf(&sb, "Excerpt: %s\n", src.Excerpt)
			}
		}
	}

	sb.WriteString("\n")
	sb.WriteString(outputContract)
	sb.WriteString("\n")
	return sb.String()
}

// SourcesFrom converts fetched pages into prompt sources, skipping empty pages.
func SourcesFrom(results []research.Result, pages []research.Page) []Source {
	titles := make(map[string]string, len(results))
	for _, r := range results {
		titles[r.URL] = r.Title
	}
	sources := make([]Source, 0, len(pages))
	for _, page := range pages {
		if page.Empty() {
			continue
		}
		sources = append(sources, Source{
			URL:      page.URL,
			Title:    firstNonEmpty(page.Title, titles[page.URL]),
			Headings: page.Headings,
			Excerpt:  page.Text,
		})
	}
	return sources
}

func limitStrings(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
