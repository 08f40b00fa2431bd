package parsing

import (
	"bytes"
	"regexp"

	"git.handmade.network/hmn/edu/src/oops"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/util"
)

// Used for the published HTML pages and the HTML download.
var ContentMarkdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Footnote,
		highlightExtension,
		MathExtension{},
	),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Used for the LaTeX export. Bare URLs are left as text; the LaTeX renderer
// finds them itself.
var LaTeXMarkdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		MathExtension{},
	),
	goldmark.WithRenderer(NewLaTeXRenderer()),
)

// Used for character counts and other plain-text views of a content.
var PlaintextMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, MathExtension{}),
	goldmark.WithRenderer(plaintextRenderer{}),
)

func ParseMarkdown(source string, md goldmark.Markdown) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", oops.New(err, "failed to render markdown")
	}
	return buf.String(), nil
}

// Renders Markdown written by authors to HTML that is safe to serve.
func RenderHTML(source string) (string, error) {
	html, err := ParseMarkdown(source, ContentMarkdown)
	if err != nil {
		return "", err
	}
	return sanitizer.Sanitize(html), nil
}

func RenderLaTeX(source string) (string, error) {
	return ParseMarkdown(source, LaTeXMarkdown)
}

func Plaintext(source string) (string, error) {
	return ParseMarkdown(source, PlaintextMarkdown)
}

var highlightExtension = highlighting.NewHighlighting(
	highlighting.WithFormatOptions(EduChromaOptions...),
	highlighting.WithWrapperRenderer(func(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
		if entering {
			w.WriteString(`<pre class="edu-code">`)
		} else {
			w.WriteString(`</pre>`)
		}
	}),
)

var sanitizer = newSanitizer()

func newSanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9_ -]+$`)).OnElements("span", "pre", "code", "div")
	policy.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return policy
}
