// Package render converts GitHub release notes into the HTML subset accepted by
// Telegram's HTML parse mode.
package render

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const ellipsis = "…"

// blockTags maps block-level HTML emitted by goldmark onto plain-text layout,
// since Telegram messages have no block elements besides pre and blockquote.
var blockTags = strings.NewReplacer(
	"<p>", "", "</p>\n", "\n\n", "</p>", "\n\n",
	"<ul>\n", "", "<ul>", "", "</ul>\n", "\n", "</ul>", "\n",
	"<ol>\n", "", "<ol>", "", "</ol>\n", "\n", "</ol>", "\n",
	"<li>", "• ", "</li>\n", "\n", "</li>", "\n",
	"<h1>", "<b>", "</h1>\n", "</b>\n", "</h1>", "</b>\n",
	"<h2>", "<b>", "</h2>\n", "</b>\n", "</h2>", "</b>\n",
	"<h3>", "<b>", "</h3>\n", "</b>\n", "</h3>", "</b>\n",
	"<h4>", "<b>", "</h4>\n", "</b>\n", "</h4>", "</b>\n",
	"<h5>", "<b>", "</h5>\n", "</b>\n", "</h5>", "</b>\n",
	"<h6>", "<b>", "</h6>\n", "</b>\n", "</h6>", "</b>\n",
	"<br>", "\n", "<br />", "\n",
	"<hr>", "\n", "<hr />", "\n",
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Renderer turns markdown release notes into a short Telegram-safe excerpt.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	maxLen int
}

// NewRenderer creates a Renderer that keeps at most maxLen bytes of markdown
// source. A maxLen of zero or less disables release notes entirely.
func NewRenderer(maxLen int) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	policy := bluemonday.NewPolicy()
	policy.AllowElements("b", "strong", "i", "em", "u", "s", "del", "code", "pre", "blockquote")
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowURLSchemes("http", "https")
	policy.RequireParseableURLs(true)

	return &Renderer{md: md, policy: policy, maxLen: maxLen}
}

// RenderNotes converts markdown release notes to sanitized Telegram HTML.
// Returns empty string for empty input.
func (r *Renderer) RenderNotes(src string) string {
	src = strings.TrimSpace(src)
	if src == "" || r.maxLen <= 0 {
		return ""
	}

	src = truncate(src, r.maxLen)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return strings.TrimSpace(r.policy.Sanitize(src))
	}

	out := r.policy.Sanitize(blockTags.Replace(buf.String()))
	out = blankLines.ReplaceAllString(out, "\n\n")

	return strings.TrimSpace(out)
}

// truncate cuts src to at most maxLen bytes, preferring the last line break
// inside the limit, and marks the cut with an ellipsis.
func truncate(src string, maxLen int) string {
	if maxLen <= 0 || len(src) <= maxLen {
		return src
	}

	cut := src[:maxLen]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	} else {
		for len(cut) > 0 && !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
	}

	return strings.TrimRight(cut, " \t\r\n") + "\n" + ellipsis
}
