package parsing

import (
	gohtml "html"
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// ----------------------
// Parser and delimiters
// ----------------------

// Display math, fenced by lines holding only "$$".
type mathParser struct{}

var _ parser.BlockParser = mathParser{}

func (s mathParser) Trigger() []byte {
	return []byte{'$'}
}

func (s mathParser) Open(parent gast.Node, reader text.Reader, pc parser.Context) (gast.Node, parser.State) {
	line, _ := reader.PeekLine()
	if strings.TrimSpace(string(line)) != "$$" {
		return nil, parser.NoChildren
	}
	skipRestOfLine(reader, line)
	return NewMathBlock(), parser.NoChildren
}

func (s mathParser) Continue(node gast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, _ := reader.PeekLine()
	if line == nil {
		return parser.Close
	}
	if strings.TrimSpace(string(line)) == "$$" {
		skipRestOfLine(reader, line)
		return parser.Close
	}

	node.(*MathBlock).Source += string(line)
	skipRestOfLine(reader, line)
	return parser.Continue | parser.NoChildren
}

// Consumes the line so it is not parsed again, leaving the newline for the
// block parser loop.
func skipRestOfLine(reader text.Reader, line []byte) {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	reader.Advance(n)
}

func (s mathParser) Close(node gast.Node, reader text.Reader, pc parser.Context) {}

func (s mathParser) CanInterruptParagraph() bool {
	return true
}

func (s mathParser) CanAcceptIndentedLine() bool {
	return false
}

// ----------------------
// AST node
// ----------------------

type MathBlock struct {
	gast.BaseBlock
	Source string
}

var _ gast.Node = &MathBlock{}

func (n *MathBlock) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Source": n.Source}, nil)
}

var KindMath = gast.NewNodeKind("Math")

func (n *MathBlock) Kind() gast.NodeKind {
	return KindMath
}

func NewMathBlock() *MathBlock {
	return &MathBlock{}
}

// ----------------------
// Renderer
// ----------------------

type MathHTMLRenderer struct {
	html.Config
}

func NewMathHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &MathHTMLRenderer{
		Config: html.NewConfig(),
	}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

func (r *MathHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMath, r.renderMath)
}

func (r *MathHTMLRenderer) renderMath(w util.BufWriter, source []byte, n gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		w.WriteString("<div class=\"math\">\n")
		w.WriteString("$$\n")
		w.WriteString(gohtml.EscapeString(n.(*MathBlock).Source))
		w.WriteString("$$\n")
		w.WriteString("</div>\n")
	}
	return gast.WalkSkipChildren, nil
}

// ----------------------
// Extension
// ----------------------

// Adds display math. Only the HTML renderer is registered here; the LaTeX
// and plain-text renderers know the node themselves.
type MathExtension struct{}

func (e MathExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithBlockParsers(
		util.Prioritized(mathParser{}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(NewMathHTMLRenderer(), 500),
	))
}
