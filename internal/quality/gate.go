package quality

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"quill/internal/document"
	"quill/internal/textutil"
)

// Severity ranks an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// Check names, stable across releases; reports and logs refer to them.
const (
	CheckTitle          = "title"
	CheckDescription    = "description"
	CheckSlug           = "slug"
	CheckH1             = "h1-keyword"
	CheckKeywordIntro   = "keyword-intro"
	CheckH2Keywords     = "h2-keywords"
	CheckWordCount      = "word-count"
	CheckInternalLinks  = "internal-links"
	CheckImageAlt       = "image-alt"
	CheckSchema         = "schema"
	CheckFAQ            = "faq"
	CheckCTA            = "cta"
	CheckParagraphs     = "paragraphs"
	CheckAuthorityLinks = "authority-links"
)

// MaxPoints is the sum of every check's weight.
const MaxPoints = 105

const introWords = 100

// Issue is one failed or partially met check.
type Issue struct {
	Check    string
	Severity Severity
	Message  string
	Lost     int
}

// Stats summarises the body.
type Stats struct {
	WordCount         int
	HeadingCount      int
	H2Count           int
	InternalLinkCount int
	ExternalLinkCount int
	AuthorityLinks    int
	ImageCount        int
	ParagraphCount    int
}

// Report is the outcome of one gate evaluation. Only Score is persisted.
type Report struct {
	Score  int
	Earned int
	Total  int
	Issues []Issue
	Passed []string
	Stats  Stats
}

// Passes reports whether the score meets threshold.
func Passes(r Report, threshold int) bool {
	return r.Score >= threshold
}

type scorer struct {
	report Report
}

func (s *scorer) pass(weight int, message string) {
	s.report.Total += weight
	s.report.Earned += weight
	s.report.Passed = append(s.report.Passed, message)
}

func (s *scorer) fail(weight, earned int, check string, severity Severity, format string, args ...any) {
	s.report.Total += weight
	s.report.Earned += earned
	s.report.Issues = append(s.report.Issues, Issue{
		Check:    check,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
		Lost:     weight - earned,
	})
}

// Evaluate scores doc against rules. It has no side effects and returns the
// same report for the same input. A missing structural element scores zero
// for its check rather than being skipped.
func Evaluate(doc document.Document, rules Rules) Report {
	s := &scorer{}
	body := doc.Body
	headings := document.Headings(body)
	links := document.Links(body, rules.Domain)
	images := document.Images(body)
	paragraphs := document.Paragraphs(body)
	words := document.WordCount(body)
	primary := strings.ToLower(doc.PrimaryKeyword())
	secondary := doc.SecondaryKeywords()
	template := doc.Template()

	checkTitle(s, doc.Title(), primary, rules)
	checkDescription(s, doc.Description(), rules)
	checkSlug(s, doc.Slug(), rules)
	checkH1(s, headings, primary)
	checkIntro(s, body, primary)
	checkH2(s, headings, secondary)
	checkWords(s, words, template, rules)
	internal, external, authority := classifyLinks(links, rules.AuthorityDomains)
	checkInternalLinks(s, internal, rules)
	checkImages(s, images)
	checkSchema(s, doc)
	checkFAQ(s, headings, template, rules)
	checkCTA(s, doc)
	checkParagraphs(s, paragraphs, rules)
	checkAuthority(s, external, authority)

	h2 := 0
	for _, h := range headings {
		if h.Level == 2 {
			h2++
		}
	}
	s.report.Stats = Stats{
		WordCount:         words,
		HeadingCount:      len(headings),
		H2Count:           h2,
		InternalLinkCount: internal,
		ExternalLinkCount: external,
		AuthorityLinks:    authority,
		ImageCount:        len(images),
		ParagraphCount:    len(paragraphs),
	}
	if s.report.Total > 0 {
		s.report.Score = int(math.Round(100 * float64(s.report.Earned) / float64(s.report.Total)))
	}
	sort.SliceStable(s.report.Issues, func(i, j int) bool {
		return s.report.Issues[i].Severity.rank() < s.report.Issues[j].Severity.rank()
	})
	return s.report
}

func checkTitle(s *scorer, title, primary string, rules Rules) {
	const weight = 10
	switch {
	case title == "":
		s.fail(weight, 0, CheckTitle, SeverityError, "Title is missing")
	case len([]rune(title)) > rules.TitleMaxLength:
		s.fail(weight, 5, CheckTitle, SeverityWarning, "Title is %d chars (max %d)", len([]rune(title)), rules.TitleMaxLength)
	case primary != "" && !strings.Contains(strings.ToLower(title), primary):
		s.fail(weight, 5, CheckTitle, SeverityWarning, "Title doesn't contain primary keyword %q", primary)
	default:
		s.pass(weight, "Title: good length and contains keyword")
	}
}

func checkDescription(s *scorer, desc string, rules Rules) {
	const weight = 10
	n := len([]rune(desc))
	switch {
	case desc == "":
		s.fail(weight, 0, CheckDescription, SeverityError, "Meta description is missing")
	case n < rules.DescriptionMinLength:
		s.fail(weight, 5, CheckDescription, SeverityWarning, "Meta description is %d chars (min %d)", n, rules.DescriptionMinLength)
	case n > rules.DescriptionMaxLength:
		s.fail(weight, 7, CheckDescription, SeverityWarning, "Meta description is %d chars (max %d)", n, rules.DescriptionMaxLength)
	default:
		s.pass(weight, "Meta description: good length")
	}
}

func checkSlug(s *scorer, slug string, rules Rules) {
	const weight = 5
	switch {
	case slug == "":
		s.fail(weight, 0, CheckSlug, SeverityError, "Slug is missing")
	case len(slug) > rules.SlugMaxLength:
		s.fail(weight, 2, CheckSlug, SeverityWarning, "Slug is %d chars (max %d)", len(slug), rules.SlugMaxLength)
	case !textutil.IsSlug(slug):
		s.fail(weight, 3, CheckSlug, SeverityWarning, "Slug %q is not lowercase-hyphenated", slug)
	default:
		s.pass(weight, "Slug: clean and short")
	}
}

func checkH1(s *scorer, headings []document.Heading, primary string) {
	const weight = 10
	var h1 *document.Heading
	for i := range headings {
		if headings[i].Level == 1 {
			h1 = &headings[i]
			break
		}
	}
	switch {
	case h1 == nil:
		s.fail(weight, 0, CheckH1, SeverityWarning, "No H1 heading found")
	case primary != "" && !strings.Contains(strings.ToLower(h1.Text), primary):
		s.fail(weight, 5, CheckH1, SeverityWarning, "H1 doesn't contain primary keyword %q", primary)
	default:
		s.pass(weight, "H1: contains primary keyword")
	}
}

func checkIntro(s *scorer, body, primary string) {
	const weight = 10
	if primary == "" {
		s.fail(weight, 5, CheckKeywordIntro, SeverityInfo, "No primary keyword defined")
		return
	}
	if strings.Contains(strings.ToLower(document.FirstWords(body, introWords)), primary) {
		s.pass(weight, "Keyword in first 100 words")
		return
	}
	s.fail(weight, 0, CheckKeywordIntro, SeverityWarning, "Primary keyword not found in first 100 words")
}

func checkH2(s *scorer, headings []document.Heading, secondary []string) {
	const weight = 10
	var h2 []string
	for _, h := range headings {
		if h.Level == 2 {
			h2 = append(h2, strings.ToLower(h.Text))
		}
	}
	if len(h2) == 0 {
		s.fail(weight, 0, CheckH2Keywords, SeverityWarning, "No H2 headings found")
		return
	}
	if len(secondary) == 0 {
		s.fail(weight, 5, CheckH2Keywords, SeverityInfo, "No secondary keywords defined to check H2s against")
		return
	}
	matched := 0
	for _, kw := range secondary {
		kw = strings.ToLower(kw)
		for _, text := range h2 {
			if strings.Contains(text, kw) {
				matched++
				break
			}
		}
	}
	ratio := float64(matched) / float64(len(secondary))
	switch {
	case ratio >= 0.5:
		s.pass(weight, fmt.Sprintf("H2s: %d/%d secondary keywords in headings", matched, len(secondary)))
	case matched > 0:
		s.fail(weight, 5, CheckH2Keywords, SeverityInfo, "Only %d/%d secondary keywords in H2s", matched, len(secondary))
	default:
		s.fail(weight, 0, CheckH2Keywords, SeverityWarning, "No secondary keywords found in H2 headings")
	}
}

func checkWords(s *scorer, words int, template string, rules Rules) {
	const weight = 10
	floor := rules.templateFloor(template)
	switch {
	case words < rules.MinWordCount:
		s.fail(weight, 0, CheckWordCount, SeverityError, "Word count is %d (min %d)", words, rules.MinWordCount)
	case words < floor:
		s.fail(weight, 5, CheckWordCount, SeverityWarning, "Word count is %d (template %q recommends %d+)", words, template, floor)
	default:
		s.pass(weight, fmt.Sprintf("Word count: %d words", words))
	}
}

// checkInternalLinks gives half the weight to a document that links
// internally but below the minimum, so one missing link is not scored like none.
func checkInternalLinks(s *scorer, internal int, rules Rules) {
	const weight = 10
	switch {
	case internal >= rules.MinInternalLinks:
		s.pass(weight, fmt.Sprintf("Internal links: %d found", internal))
	case internal > 0:
		s.fail(weight, 5, CheckInternalLinks, SeverityWarning, "Only %d internal links (min %d)", internal, rules.MinInternalLinks)
	default:
		s.fail(weight, 0, CheckInternalLinks, SeverityWarning, "No internal links (min %d)", rules.MinInternalLinks)
	}
}

func checkImages(s *scorer, images []document.Image) {
	const weight = 5
	if len(images) == 0 {
		s.fail(weight, 2, CheckImageAlt, SeverityInfo, "No images found in content")
		return
	}
	missing := 0
	for _, img := range images {
		if img.Alt == "" {
			missing++
		}
	}
	// Images without alt text keep the same 2 points as a document with no
	// images; they are an accessibility issue, not an absent section.
	if missing > 0 {
		s.fail(weight, 2, CheckImageAlt, SeverityWarning, "%d image(s) missing alt text", missing)
		return
	}
	s.pass(weight, fmt.Sprintf("Images: %d with alt text", len(images)))
}

func checkSchema(s *scorer, doc document.Document) {
	const weight = 5
	switch {
	case doc.SchemaType() != "":
		s.pass(weight, "Schema type: "+doc.SchemaType())
	case doc.Category() != "":
		s.pass(weight, "Category: "+doc.Category())
	default:
		s.fail(weight, 0, CheckSchema, SeverityInfo, "No schema_type or category defined in header")
	}
}

func checkFAQ(s *scorer, headings []document.Heading, template string, rules Rules) {
	const weight = 5
	for _, h := range headings {
		text := strings.ToLower(h.Text)
		if strings.Contains(text, "faq") || strings.Contains(text, "frequently asked") {
			s.pass(weight, "FAQ section present")
			return
		}
	}
	if rules.isGuide(template) {
		s.fail(weight, 0, CheckFAQ, SeverityInfo, "No FAQ section (recommended for %s content)", template)
		return
	}
	s.fail(weight, 3, CheckFAQ, SeverityInfo, "No FAQ section")
}

func checkCTA(s *scorer, doc document.Document) {
	const weight = 5
	text, link := doc.CTA()
	if text != "" && link != "" {
		s.pass(weight, "CTA defined")
		return
	}
	s.fail(weight, 0, CheckCTA, SeverityWarning, "No CTA defined in header")
}

func checkParagraphs(s *scorer, paragraphs []string, rules Rules) {
	const weight = 5
	long := 0
	for _, p := range paragraphs {
		if document.SentenceCount(p) > rules.MaxParagraphSentences {
			long++
		}
	}
	if float64(long) > float64(len(paragraphs))*rules.LongParagraphRatio {
		s.fail(weight, 0, CheckParagraphs, SeverityInfo, "%d/%d paragraphs are too long (>%d sentences)", long, len(paragraphs), rules.MaxParagraphSentences)
		return
	}
	s.pass(weight, "Paragraph length: good")
}

func checkAuthority(s *scorer, external, authority int) {
	const weight = 5
	switch {
	case authority > 0:
		s.pass(weight, fmt.Sprintf("External authority links: %d found", authority))
	case external > 0:
		s.fail(weight, 2, CheckAuthorityLinks, SeverityInfo, "Has %d external link(s) but none from authority sources", external)
	default:
		s.fail(weight, 0, CheckAuthorityLinks, SeverityWarning, "No external authority links")
	}
}

func classifyLinks(links []document.Link, authorityDomains []string) (internal, external, authority int) {
	for _, link := range links {
		if link.Internal {
			internal++
			continue
		}
		external++
		if isAuthority(link.URL, authorityDomains) {
			authority++
		}
	}
	return internal, external, authority
}

func isAuthority(target string, domains []string) bool {
	parsed, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host == "" {
		return false
	}
	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
