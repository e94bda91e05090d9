package quality

import (
	"strings"

	"quill/internal/config"
	"quill/internal/document"
)

// Rules holds the thresholds a gate evaluation scores against.
type Rules struct {
	Domain                string
	TitleMaxLength        int
	DescriptionMinLength  int
	DescriptionMaxLength  int
	SlugMaxLength         int
	MinWordCount          int
	TemplateMinWords      map[string]int
	MinInternalLinks      int
	MaxParagraphSentences int
	LongParagraphRatio    float64
	GuideTemplates        []string
	AuthorityDomains      []string
	PublishThreshold      int
}

// DefaultRules mirrors the configuration defaults.
func DefaultRules() Rules {
	cfg := config.Default()
	return RulesFromConfig(&cfg)
}

// RulesFromConfig extracts the [quality] section and the site domain.
func RulesFromConfig(cfg *config.Config) Rules {
	if cfg == nil {
		return DefaultRules()
	}
	q := cfg.Quality
	floors := make(map[string]int, len(q.TemplateMinWords))
	for template, words := range q.TemplateMinWords {
		floors[template] = words
	}
	return Rules{
		Domain:                cfg.Site.Domain,
		TitleMaxLength:        q.TitleMaxLength,
		DescriptionMinLength:  q.DescriptionMinLength,
		DescriptionMaxLength:  q.DescriptionMaxLength,
		SlugMaxLength:         q.SlugMaxLength,
		MinWordCount:          q.MinWordCount,
		TemplateMinWords:      floors,
		MinInternalLinks:      q.MinInternalLinks,
		MaxParagraphSentences: q.MaxParagraphSentences,
		LongParagraphRatio:    q.LongParagraphRatio,
		GuideTemplates:        append([]string(nil), q.GuideTemplates...),
		AuthorityDomains:      append([]string(nil), q.AuthorityDomains...),
		PublishThreshold:      q.PublishThreshold,
	}
}

// templateFloor returns the word floor for template, falling back to the
// default template's floor for unknown templates.
func (r Rules) templateFloor(template string) int {
	if words, ok := r.TemplateMinWords[template]; ok {
		return words
	}
	return r.TemplateMinWords[document.DefaultTemplate]
}

func (r Rules) isGuide(template string) bool {
	for _, guide := range r.GuideTemplates {
		if strings.EqualFold(guide, template) {
			return true
		}
	}
	return false
}
