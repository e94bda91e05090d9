package document

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	lenientKeyPattern   = regexp.MustCompile(`^([^\s:#][^:]*?):(?:\s+(.*))?$`)
	lenientFloatPattern = regexp.MustCompile(`^[-+]?(\d+\.\d*|\.\d+|\d+)([eE][-+]?\d+)?$`)
	lenientIntPattern   = regexp.MustCompile(`^[-+]?\d+$`)
)

// parseLenient reads a header that the YAML decoder rejected. It understands
// `key: value` lines, `key:` followed by `- item` lines (a list) or indented
// `sub: value` lines (a nested map), inline `[a, b]` lists, quoted strings,
// null, booleans and numbers. Lines it cannot read are skipped.
func parseLenient(raw string) *Header {
	lines := strings.Split(raw, "\n")
	h := NewHeader()
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t\r")
		if skipLine(line) || indentOf(line) > 0 {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		if value != "" {
			h.Set(key, parseScalar(value))
			continue
		}
		next, found := peek(lines, i+1)
		switch {
		case found && isListItem(next):
			items, last := collectList(lines, i+1, 0)
			h.Set(key, items)
			i = last
		case found && indentOf(next) > 0:
			sub, last := collectMap(lines, i+1)
			h.Set(key, sub)
			i = last
		default:
			h.Set(key, nil)
		}
	}
	return h
}

func collectMap(lines []string, start int) (*Header, int) {
	sub := NewHeader()
	last := start - 1
	for i := start; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t\r")
		if skipLine(line) {
			continue
		}
		indent := indentOf(line)
		if indent == 0 {
			break
		}
		last = i
		key, value, ok := splitKeyValue(strings.TrimSpace(line))
		if !ok {
			continue
		}
		if value != "" {
			sub.Set(key, parseScalar(value))
			continue
		}
		if next, found := peek(lines, i+1); found && isListItem(next) && indentOf(next) >= indent {
			items, end := collectList(lines, i+1, indent)
			sub.Set(key, items)
			last = end
			i = end
			continue
		}
		sub.Set(key, nil)
	}
	return sub, last
}

// collectList reads consecutive `- item` lines indented at least minIndent.
func collectList(lines []string, start, minIndent int) ([]string, int) {
	items := []string{}
	last := start - 1
	for i := start; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t\r")
		if skipLine(line) {
			continue
		}
		if !isListItem(line) || indentOf(line) < minIndent {
			break
		}
		last = i
		item := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		items = append(items, scalarText(item))
	}
	return items, last
}

func peek(lines []string, from int) (string, bool) {
	for i := from; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t\r")
		if skipLine(line) {
			continue
		}
		return line, true
	}
	return "", false
}

func skipLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

func isListItem(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "-" || strings.HasPrefix(trimmed, "- ")
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func splitKeyValue(line string) (string, string, bool) {
	m := lenientKeyPattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	key := unquote(strings.TrimSpace(m[1]))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(m[2]), true
}

// parseScalar converts one inline value to its header type.
func parseScalar(value string) any {
	value = strings.TrimSpace(value)
	if isQuoted(value) {
		return unquote(value)
	}
	value = stripComment(value)
	switch strings.ToLower(value) {
	case "", "null", "~":
		return nil
	case "true":
		return true
	case "false":
		return false
	case "{}":
		return NewHeader()
	case "[]":
		return []string{}
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		inner := strings.TrimSpace(value[1 : len(value)-1])
		items := []string{}
		for _, part := range splitInline(inner) {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, scalarText(part))
			}
		}
		return items
	}
	if lenientIntPattern.MatchString(value) {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	if lenientFloatPattern.MatchString(value) {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}

// scalarText returns the string form of a list element.
func scalarText(value string) string {
	value = strings.TrimSpace(value)
	if isQuoted(value) {
		return unquote(value)
	}
	return stripComment(value)
}

func splitInline(inner string) []string {
	var parts []string
	var current strings.Builder
	var quote rune
	for _, r := range inner {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			current.WriteRune(r)
		case r == ',':
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(parts, current.String())
}

func isQuoted(value string) bool {
	if len(value) < 2 {
		return false
	}
	first, last := value[0], value[len(value)-1]
	return (first == '"' && last == '"') || (first == '\'' && last == '\'')
}

func unquote(value string) string {
	if !isQuoted(value) {
		return value
	}
	if value[0] == '"' {
		if out, err := strconv.Unquote(value); err == nil {
			return out
		}
		return value[1 : len(value)-1]
	}
	return strings.ReplaceAll(value[1:len(value)-1], "''", "'")
}

func stripComment(value string) string {
	if idx := strings.Index(value, " #"); idx >= 0 {
		return strings.TrimSpace(value[:idx])
	}
	return value
}
