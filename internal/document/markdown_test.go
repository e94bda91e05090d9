package document_test

import (
	"strings"
	"testing"

	"quill/internal/document"
)

func TestToHTMLBlocks(t *testing.T) {
	body := strings.Join([]string{
		"# Heading One",
		"",
		"First line",
		"second line with **bold** and *italic* and ***both***.",
		"",
		"> quoted one",
		"> quoted two",
		"",
		"| Broker | Spread |",
		"|--------|:------:|",
		"| A | 0.1 |",
		"| B | 0.2 |",
		"",
		"- apple",
		"- banana",
		"1. first",
		"2. second",
		"",
		"---",
		"##### small",
	}, "\n")

	got := document.ToHTML(body)
	want := strings.Join([]string{
		"<h1>Heading One</h1>",
		"<p>First line second line with <strong>bold</strong> and <em>italic</em> and <strong><em>both</em></strong>.</p>",
		"<blockquote>quoted one quoted two</blockquote>",
		"<table>\n<thead>\n<tr><th>Broker</th><th>Spread</th></tr>\n</thead>\n<tbody>\n<tr><td>A</td><td>0.1</td></tr>\n<tr><td>B</td><td>0.2</td></tr>\n</tbody>\n</table>",
		"<ul>\n<li>apple</li>\n<li>banana</li>\n</ul>",
		"<ol>\n<li>first</li>\n<li>second</li>\n</ol>",
		"<hr>",
		"<p>##### small</p>",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected html:\n%s\nwant:\n%s", got, want)
	}
}

func TestToHTMLCodeIsNotReinterpreted(t *testing.T) {
	body := "```go\nx := a * b * c\n# not a heading\n```\n\nUse `**raw**` and <b>tags</b>."
	got := document.ToHTML(body)
	if !strings.Contains(got, `<pre><code class="language-go">x := a * b * c`+"\n"+`# not a heading</code></pre>`) {
		t.Fatalf("fenced block altered: %s", got)
	}
	if !strings.Contains(got, "<code>**raw**</code>") {
		t.Fatalf("inline code altered: %s", got)
	}
	if !strings.Contains(got, "&lt;b&gt;tags&lt;/b&gt;") {
		t.Fatalf("expected raw html to be escaped: %s", got)
	}
}

func TestToHTMLImagesBeforeLinks(t *testing.T) {
	got := document.ToHTML("See ![chart](/img/c.png) and [guide](/guide).")
	want := `<p>See <img src="/img/c.png" alt="chart" loading="lazy"> and <a href="/guide">guide</a>.</p>`
	if got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
}

func TestToHTMLDeterministic(t *testing.T) {
	body := "# A\n\n- x\n- y\n\ntext"
	if document.ToHTML(body) != document.ToHTML(body) {
		t.Fatal("ToHTML is not deterministic")
	}
}
