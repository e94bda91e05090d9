package document

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	headingLine  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	ruleLine     = regexp.MustCompile(`^(?:-{3,}|\*{3,}|_{3,})$`)
	bulletLine   = regexp.MustCompile(`^[-*+]\s+(.*)$`)
	numberedLine = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
	tableSepCell = regexp.MustCompile(`^:?-{1,}:?$`)
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	inlineImage  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]*)[^)]*\)`)
	inlineLink   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]*)[^)]*\)`)
	boldItalic   = regexp.MustCompile(`\*\*\*([^*]+)\*\*\*`)
	bold         = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italic       = regexp.MustCompile(`\*([^*\s][^*]*?)\*`)
	codeSentinel = regexp.MustCompile("\x00(\\d+)\x00")
)

type listKind int

const (
	noList listKind = iota
	bulletList
	numberedList
)

// htmlWriter accumulates block state for one ToHTML pass.
type htmlWriter struct {
	out       []string
	paragraph []string
	quote     []string
	table     [][]string
	list      listKind
	items     []string
}

// ToHTML converts a Markdown body to HTML in a single left-to-right pass.
// Recognized blocks are fenced code, headings h1 to h4, rules, block quotes,
// pipe tables and bullet or numbered lists; remaining lines become
// paragraphs. Text is escaped before inline markup is applied.
func ToHTML(body string) string {
	w := &htmlWriter{}
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	inFence := false
	fenceLang := ""
	var fence []string

	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				w.emit(codeBlock(fenceLang, fence))
				inFence, fence = false, nil
				continue
			}
			fence = append(fence, raw)
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "```"):
			w.flush()
			inFence = true
			fenceLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
		case trimmed == "":
			w.flush()
		case ruleLine.MatchString(trimmed):
			w.flush()
			w.emit("<hr>")
		case headingLine.MatchString(trimmed) && len(headingLine.FindStringSubmatch(trimmed)[1]) <= 4:
			m := headingLine.FindStringSubmatch(trimmed)
			w.flush()
			level := len(m[1])
			w.emit(fmt.Sprintf("<h%d>%s</h%d>", level, inline(m[2]), level))
		case strings.HasPrefix(trimmed, ">"):
			w.flushExcept("quote")
			w.quote = append(w.quote, strings.TrimSpace(strings.TrimPrefix(trimmed, ">")))
		case strings.HasPrefix(trimmed, "|"):
			w.flushExcept("table")
			cells := tableCells(trimmed)
			if !isSeparatorRow(cells) {
				w.table = append(w.table, cells)
			}
		case bulletLine.MatchString(trimmed):
			w.addItem(bulletList, bulletLine.FindStringSubmatch(trimmed)[1])
		case numberedLine.MatchString(trimmed):
			w.addItem(numberedList, numberedLine.FindStringSubmatch(trimmed)[1])
		default:
			w.flushExcept("paragraph")
			w.paragraph = append(w.paragraph, trimmed)
		}
	}
	if inFence {
		w.emit(codeBlock(fenceLang, fence))
	}
	w.flush()
	return strings.Join(w.out, "\n")
}

func (w *htmlWriter) emit(block string) {
	w.out = append(w.out, block)
}

func (w *htmlWriter) addItem(kind listKind, text string) {
	if w.list != kind {
		w.flush()
	} else {
		w.flushExcept("list")
	}
	w.list = kind
	w.items = append(w.items, text)
}

func (w *htmlWriter) flush() {
	w.flushExcept("")
}

// flushExcept closes every open block other than keep.
func (w *htmlWriter) flushExcept(keep string) {
	if keep != "paragraph" && len(w.paragraph) > 0 {
		w.emit("<p>" + inline(strings.Join(w.paragraph, " ")) + "</p>")
		w.paragraph = nil
	}
	if keep != "quote" && len(w.quote) > 0 {
		w.emit("<blockquote>" + inline(strings.Join(w.quote, " ")) + "</blockquote>")
		w.quote = nil
	}
	if keep != "table" && len(w.table) > 0 {
		w.emit(renderTable(w.table))
		w.table = nil
	}
	if keep != "list" && w.list != noList {
		tag := "ul"
		if w.list == numberedList {
			tag = "ol"
		}
		var b strings.Builder
		b.WriteString("<" + tag + ">\n")
		for _, item := range w.items {
			b.WriteString("<li>" + inline(item) + "</li>\n")
		}
		b.WriteString("</" + tag + ">")
		w.emit(b.String())
		w.list, w.items = noList, nil
	}
}

func codeBlock(lang string, lines []string) string {
	class := ""
	if lang != "" {
		class = ` class="language-` + html.EscapeString(lang) + `"`
	}
	return "<pre><code" + class + ">" + html.EscapeString(strings.Join(lines, "\n")) + "</code></pre>"
}

func tableCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSeparatorRow(cells []string) bool {
	for _, cell := range cells {
		if !tableSepCell.MatchString(cell) {
			return false
		}
	}
	return len(cells) > 0
}

func renderTable(rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>")
	for _, cell := range rows[0] {
		b.WriteString("<th>" + inline(cell) + "</th>")
	}
	b.WriteString("</tr>\n</thead>\n<tbody>\n")
	for _, row := range rows[1:] {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>" + inline(cell) + "</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>")
	return b.String()
}

// inline applies span-level markup: code spans first (their content is
// never reinterpreted), then images, links and emphasis.
func inline(text string) string {
	var spans []string
	text = inlineCode.ReplaceAllStringFunc(text, func(m string) string {
		content := inlineCode.FindStringSubmatch(m)[1]
		spans = append(spans, "<code>"+html.EscapeString(content)+"</code>")
		return "\x00" + strconv.Itoa(len(spans)-1) + "\x00"
	})
	text = html.EscapeString(text)
	text = inlineImage.ReplaceAllString(text, `<img src="${2}" alt="${1}" loading="lazy">`)
	text = inlineLink.ReplaceAllString(text, `<a href="${2}">${1}</a>`)
	text = boldItalic.ReplaceAllString(text, `<strong><em>${1}</em></strong>`)
	text = bold.ReplaceAllString(text, `<strong>${1}</strong>`)
	text = italic.ReplaceAllString(text, `<em>${1}</em>`)
	if len(spans) == 0 {
		return text
	}
	return codeSentinel.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(strings.Trim(m, "\x00"))
		if err != nil || idx >= len(spans) {
			return m
		}
		return spans[idx]
	})
}
