package illustration

import (
	"regexp"
	"strings"
)

// Theme selects the visual motif of a thumbnail.
type Theme string

const (
	ThemeGuide      Theme = "guide"
	ThemeComparison Theme = "comparison"
	ThemeList       Theme = "list"
	ThemeStory      Theme = "story"
	ThemeCountry    Theme = "country"
	ThemeEducation  Theme = "education"
)

var themeElements = map[Theme]string{
	ThemeGuide:      "glowing open book icon with light rays, step-by-step pathway visualization",
	ThemeComparison: "glowing podium with 3D trophy icon, side-by-side comparison layout",
	ThemeList:       "numbered ranking podium, stars and badges, leaderboard visualization",
	ThemeStory:      "silhouette of a person at a desk, success chart going up",
	ThemeCountry:    "world map with highlighted country, flag elements, global network",
	ThemeEducation:  "graduation cap with chart, lightbulb icon glowing",
}

var (
	bracketed   = regexp.MustCompile(`\[.*?\]|\(.*?\)`)
	yearPattern = regexp.MustCompile(`\d{4}`)
	separators  = regexp.MustCompile(`[:|–—]`)
	countryHint = regexp.MustCompile(`\bin [a-z]+\b`)
)

// DetectTheme picks a theme from the title, template and category.
func DetectTheme(title, template, category string) Theme {
	title = strings.ToLower(title)
	template = strings.ToLower(strings.TrimSpace(template))
	category = strings.ToLower(category)
	switch {
	case template == "comparison" || strings.Contains(title, " vs "):
		return ThemeComparison
	case template == "listicle" || strings.Contains(title, "best ") || strings.Contains(title, "top "):
		return ThemeList
	case template == "success-story":
		return ThemeStory
	case strings.Contains(category, "country") || countryHint.MatchString(title):
		return ThemeCountry
	case strings.Contains(title, "how to") || template == "how-to":
		return ThemeGuide
	case strings.Contains(title, "what is") || strings.Contains(category, "education"):
		return ThemeEducation
	}
	return ThemeGuide
}

// ShortTitle reduces a title to at most five words of display text.
func ShortTitle(title string) string {
	text := bracketed.ReplaceAllString(title, "")
	text = yearPattern.ReplaceAllString(text, "")
	text = separators.ReplaceAllString(text, "")
	words := strings.Fields(text)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// BuildPrompt describes the thumbnail for title in the given theme.
func BuildPrompt(title string, theme Theme) string {
	element, ok := themeElements[theme]
	if !ok {
		element = themeElements[ThemeGuide]
	}
	return strings.Join([]string{
		"Professional dark blog thumbnail,",
		element + ",",
		"charts in electric blue glow,",
		"modern minimalist tech style,",
		"dark navy background,",
		`clean white text "` + ShortTitle(title) + `" centered,`,
		"no clutter, no stock photo feel,",
		"16:9 aspect ratio, ultra sharp",
	}, " ")
}
