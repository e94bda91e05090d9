package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSlugLength bounds generated slugs.
const DefaultSlugLength = 60

var apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "")

// Slugify converts a title into a lowercase, hyphen-separated slug. Accents are
// folded to their base letters, apostrophes are dropped, every other run of
// non-alphanumeric characters becomes one hyphen, and the result is cut to
// maxLen without leaving a trailing hyphen. maxLen <= 0 uses DefaultSlugLength.
func Slugify(title string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSlugLength
	}
	folded := foldAccents(strings.ToLower(strings.TrimSpace(title)))
	folded = apostrophes.Replace(folded)

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	slug := b.String()
	if len(slug) > maxLen {
		slug = strings.TrimRight(slug[:maxLen], "-")
	}
	return slug
}

// IsSlug reports whether value is already a canonical slug: lowercase ASCII
// letters and digits separated by single hyphens.
func IsSlug(value string) bool {
	if value == "" || strings.HasPrefix(value, "-") || strings.HasSuffix(value, "-") || strings.Contains(value, "--") {
		return false
	}
	for _, r := range value {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}

// TitleCase capitalises each word using English casing rules.
func TitleCase(value string) string {
	return cases.Title(language.English).String(strings.TrimSpace(value))
}

func foldAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}
