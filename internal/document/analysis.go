package document

import (
	"net/url"
	"regexp"
	"strings"
)

// Heading is one Markdown heading.
type Heading struct {
	Level int
	Text  string
}

// Link is one Markdown link. Internal links are relative or point at the
// site domain (or a subdomain of it).
type Link struct {
	Text     string
	URL      string
	Internal bool
}

// Image is one Markdown image.
type Image struct {
	Alt string
	URL string
}

var (
	linkPattern      = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	fencePattern     = regexp.MustCompile("(?s)```.*?```")
	imageStrip       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkStrip        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingStrip     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	tableRowStrip    = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	ruleStrip        = regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	emphasisStrip    = regexp.MustCompile("[*_~`]")
	paragraphSplit   = regexp.MustCompile(`\n\s*\n`)
	sentenceBoundary = regexp.MustCompile(`[.!?]+`)
)

// Headings lists headings in body order, skipping fenced code.
func Headings(body string) []Heading {
	var out []Heading
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingLine.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
		if m == nil {
			continue
		}
		text := strings.TrimSpace(strings.TrimRight(m[2], "#"))
		if text == "" {
			continue
		}
		out = append(out, Heading{Level: len(m[1]), Text: text})
	}
	return out
}

// Links lists non-image links in body, classifying each against domain.
func Links(body, domain string) []Link {
	var out []Link
	for _, m := range linkPattern.FindAllStringSubmatch(stripFences(body), -1) {
		if m[1] == "!" {
			continue
		}
		out = append(out, Link{Text: strings.TrimSpace(m[2]), URL: m[3], Internal: IsInternalURL(m[3], domain)})
	}
	return out
}

// Images lists Markdown images in body.
func Images(body string) []Image {
	var out []Image
	for _, m := range linkPattern.FindAllStringSubmatch(stripFences(body), -1) {
		if m[1] != "!" {
			continue
		}
		out = append(out, Image{Alt: strings.TrimSpace(m[2]), URL: m[3]})
	}
	return out
}

// IsInternalURL reports whether target stays on the site: relative paths and
// fragments, or absolute URLs whose host is domain or one of its subdomains.
func IsInternalURL(target, domain string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	if strings.HasPrefix(target, "#") || (strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")) {
		return true
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		return true
	}
	if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// StripMarkup removes code blocks, images, link targets, heading markers,
// table rows, rules and emphasis characters, leaving countable prose.
func StripMarkup(body string) string {
	text := fencePattern.ReplaceAllString(body, "")
	text = imageStrip.ReplaceAllString(text, "")
	text = linkStrip.ReplaceAllString(text, "$1")
	text = headingStrip.ReplaceAllString(text, "")
	text = tableRowStrip.ReplaceAllString(text, "")
	text = ruleStrip.ReplaceAllString(text, "")
	return emphasisStrip.ReplaceAllString(text, "")
}

// WordCount counts words after StripMarkup.
func WordCount(body string) int {
	return len(strings.Fields(StripMarkup(body)))
}

// Paragraphs returns the prose paragraphs of body: blank-line separated
// blocks that are not headings, lists, tables, quotes or code.
func Paragraphs(body string) []string {
	var out []string
	for _, block := range paragraphSplit.Split(stripFences(body), -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		switch block[0] {
		case '#', '|', '>':
			continue
		}
		first, _, _ := strings.Cut(block, "\n")
		if bulletLine.MatchString(first) || numberedLine.MatchString(first) || strings.HasPrefix(first, "![") {
			continue
		}
		out = append(out, block)
	}
	return out
}

// SentenceCount counts sentences in a paragraph by terminal punctuation.
func SentenceCount(paragraph string) int {
	n := 0
	for _, part := range sentenceBoundary.Split(paragraph, -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

// FirstWords returns the first n whitespace-separated words of body.
func FirstWords(body string, n int) string {
	words := strings.Fields(body)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func stripFences(body string) string {
	return fencePattern.ReplaceAllString(body, "")
}
