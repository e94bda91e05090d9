package generation

import (
	"regexp"
	"strings"

	"quill/internal/document"
	"quill/internal/services/llm"
)

// FAQ is one question/answer pair proposed by the model.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Draft is the parsed model output.
type Draft struct {
	Description       string   `json:"description"`
	SecondaryKeywords []string `json:"secondary_keywords"`
	FAQ               []FAQ    `json:"faq"`
	Content           string   `json:"content"`
	// Structured is false when the reply was plain Markdown.
	Structured bool `json:"-"`
}

const maxDescription = 160

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	emphasis     = regexp.MustCompile(`\*{1,2}|_{2}`)
)

// ParseOutput decodes a model reply. JSON (optionally fenced) is preferred;
// anything else is taken as the Markdown article itself. A missing
// description is derived from the first paragraph.
func ParseOutput(text, keyword string) Draft {
	var draft Draft
	if err := llm.DecodeJSON(text, &draft); err == nil && strings.TrimSpace(draft.Content) != "" {
		draft.Structured = true
	} else {
		draft = Draft{Content: stripOuterFence(text)}
	}
	draft.Content = strings.TrimSpace(draft.Content)
	if strings.HasPrefix(draft.Content, "---") {
		draft.Content = strings.TrimSpace(document.Parse(draft.Content).Body)
	}
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Description == "" {
		draft.Description = describe(draft.Content, keyword)
	}
	draft.SecondaryKeywords = cleanKeywords(draft.SecondaryKeywords, keyword)
	faqs := draft.FAQ[:0]
	for _, f := range draft.FAQ {
		f.Question = strings.TrimSpace(f.Question)
		f.Answer = strings.TrimSpace(f.Answer)
		if f.Question != "" && f.Answer != "" {
			faqs = append(faqs, f)
		}
	}
	draft.FAQ = faqs
	return draft
}

func stripOuterFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if last := strings.TrimSpace(lines[len(lines)-1]); last == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// describe takes the first paragraph after the H1, strips inline markup and
// bounds it to a meta description.
func describe(body, keyword string) string {
	var first string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "# ") {
			continue
		}
		if strings.HasPrefix(line, "#") {
			break
		}
		first = line
		break
	}
	desc := markdownLink.ReplaceAllString(first, "$1")
	desc = strings.TrimSpace(emphasis.ReplaceAllString(desc, ""))
	if keyword != "" && desc != "" && !strings.Contains(strings.ToLower(desc), strings.ToLower(keyword)) {
		desc = keyword + ": " + desc
	}
	if runes := []rune(desc); len(runes) > maxDescription {
		desc = strings.TrimSpace(string(runes[:maxDescription-3])) + "..."
	}
	if desc == "" && keyword != "" {
		desc = "Learn everything about " + keyword + ". Practical guidance and expert tips."
	}
	return desc
}

func cleanKeywords(values []string, primary string) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(primary)): true}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// ComposeBody makes sure the article has an H1 and, when the model supplied
// FAQ entries but no FAQ heading, appends the section.
func ComposeBody(draft Draft, title string) string {
	body := strings.TrimSpace(draft.Content)
	hasH1 := false
	hasFAQ := false
	for _, h := range document.Headings(body) {
		if h.Level == 1 {
			hasH1 = true
		}
		lower := strings.ToLower(h.Text)
		if strings.Contains(lower, "faq") || strings.Contains(lower, "frequently asked") {
			hasFAQ = true
		}
	}
	if !hasH1 && title != "" {
		body = "# " + title + "\n\n" + body
	}
	if len(draft.FAQ) > 0 && !hasFAQ {
		var sb strings.Builder
		sb.WriteString(body)
		sb.WriteString("\n\n## Frequently Asked Questions\n")
		for _, f := range draft.FAQ {
			sb.WriteString("\n### ")
			sb.WriteString(f.Question)
			sb.WriteString("\n\n")
			sb.WriteString(f.Answer)
			sb.WriteString("\n")
		}
		body = sb.String()
	}
	return strings.TrimSpace(body) + "\n"
}
