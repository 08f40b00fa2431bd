package parsing

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"mvdan.cc/xurls/v2"
)

/*
Renders a Markdown document to a LaTeX body, ready to be dropped into a
document template. It needs these packages: hyperref, listings, ulem and
amssymb.

Raw HTML is dropped. Images are rendered as links.
*/
type LaTeXRenderer struct{}

var _ renderer.Renderer = LaTeXRenderer{}

func NewLaTeXRenderer() renderer.Renderer {
	return LaTeXRenderer{}
}

func (r LaTeXRenderer) AddOptions(...renderer.Option) {}

var urlRegex = xurls.Strict()

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`#`, `\#`,
	`%`, `\%`,
	`_`, `\_`,
	`^`, `\textasciicircum{}`,
	`~`, `\textasciitilde{}`,
)

var urlEscaper = strings.NewReplacer(
	`%`, `\%`,
	`#`, `\#`,
	`\`, `\\`,
	`{`, `\{`,
	`}`, `\}`,
)

func EscapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}

// Escapes text, turning the URLs in it into \url commands.
func escapeTextWithURLs(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range urlRegex.FindAllStringIndex(s, -1) {
		b.WriteString(EscapeLaTeX(s[last:loc[0]]))
		b.WriteString(`\url{`)
		b.WriteString(urlEscaper.Replace(s[loc[0]:loc[1]]))
		b.WriteString(`}`)
		last = loc[1]
	}
	b.WriteString(EscapeLaTeX(s[last:]))
	return b.String()
}

var headingCommands = []string{`\section*`, `\subsection*`, `\subsubsection*`, `\paragraph*`}

type latexWriter struct {
	w   io.Writer
	err error

	// Text nodes already written as part of an earlier run.
	consumed map[ast.Node]bool
}

func (lw *latexWriter) str(s string) {
	if lw.err == nil {
		_, lw.err = io.WriteString(lw.w, s)
	}
}

func (r LaTeXRenderer) Render(w io.Writer, source []byte, root ast.Node) error {
	out := &latexWriter{w: w, consumed: map[ast.Node]bool{}}
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		status := r.renderNode(out, source, n, entering)
		return status, out.err
	})
	if err != nil {
		return err
	}
	return out.err
}

func (r LaTeXRenderer) renderNode(out *latexWriter, source []byte, n ast.Node, entering bool) ast.WalkStatus {
	switch n := n.(type) {
	case *ast.Heading:
		if entering {
			cmd := headingCommands[min(n.Level, len(headingCommands))-1]
			out.str(cmd + "{")
		} else {
			out.str("}\n\n")
		}
	case *ast.Paragraph:
		if !entering {
			out.str("\n\n")
		}
	case *ast.TextBlock:
		if !entering && n.NextSibling() != nil {
			out.str("\n")
		}
	case *ast.Text:
		if entering && !out.consumed[n] {
			renderTextRun(out, source, n)
		}
	case *ast.String:
		if entering {
			out.str(EscapeLaTeX(string(n.Value)))
		}
	case *ast.Emphasis:
		cmd := `\emph{`
		if n.Level >= 2 {
			cmd = `\textbf{`
		}
		if entering {
			out.str(cmd)
		} else {
			out.str("}")
		}
	case *ast.CodeSpan:
		if entering {
			out.str(`\texttt{`)
		} else {
			out.str("}")
		}
	case *ast.FencedCodeBlock:
		if entering {
			out.str(`\begin{lstlisting}`)
			if lang := n.Language(source); len(lang) > 0 {
				out.str(fmt.Sprintf("[language=%s]", lang))
			}
			out.str("\n")
			writeLines(out, source, n)
			out.str("\\end{lstlisting}\n\n")
		}
		return ast.WalkSkipChildren
	case *ast.CodeBlock:
		if entering {
			out.str("\\begin{lstlisting}\n")
			writeLines(out, source, n)
			out.str("\\end{lstlisting}\n\n")
		}
		return ast.WalkSkipChildren
	case *ast.Link:
		if entering {
			out.str(`\href{` + urlEscaper.Replace(string(n.Destination)) + `}{`)
		} else {
			out.str("}")
		}
	case *ast.AutoLink:
		if entering {
			out.str(`\url{` + urlEscaper.Replace(string(n.URL(source))) + `}`)
		}
		return ast.WalkSkipChildren
	case *ast.Image:
		if entering {
			out.str(`\url{` + urlEscaper.Replace(string(n.Destination)) + `}`)
		}
		return ast.WalkSkipChildren
	case *ast.List:
		env := "itemize"
		if n.IsOrdered() {
			env = "enumerate"
		}
		if entering {
			out.str(`\begin{` + env + "}\n")
		} else {
			out.str(`\end{` + env + "}\n\n")
		}
	case *ast.ListItem:
		if entering {
			out.str(`\item `)
		} else {
			out.str("\n")
		}
	case *ast.Blockquote:
		if entering {
			out.str("\\begin{quote}\n")
		} else {
			out.str("\\end{quote}\n\n")
		}
	case *ast.ThematicBreak:
		if entering {
			out.str("\\noindent\\hrulefill\n\n")
		}
	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren
	case *east.Strikethrough:
		if entering {
			out.str(`\sout{`)
		} else {
			out.str("}")
		}
	case *east.TaskCheckBox:
		if entering {
			if n.IsChecked {
				out.str(`$\boxtimes$ `)
			} else {
				out.str(`$\square$ `)
			}
		}
	case *east.Table:
		if entering {
			out.str(`\begin{tabular}{` + strings.Repeat("l", len(n.Alignments)) + "}\n")
		} else {
			out.str("\\end{tabular}\n\n")
		}
	case *east.TableHeader:
		if !entering {
			out.str(" \\\\\n\\hline\n")
		}
	case *east.TableRow:
		if !entering {
			out.str(" \\\\\n")
		}
	case *east.TableCell:
		if entering && n.PreviousSibling() != nil {
			out.str(" & ")
		}
	case *MathBlock:
		if entering {
			out.str("\\[\n" + n.Source + "\\]\n\n")
		}
		return ast.WalkSkipChildren
	}
	return ast.WalkContinue
}

// The parser splits text around characters that might have started inline
// markup. Runs of sibling text nodes are joined back so URLs are found whole.
func renderTextRun(out *latexWriter, source []byte, first *ast.Text) {
	var run []byte
	last := first
	for {
		run = append(run, backslashRegex.ReplaceAll(last.Text(source), []byte("$1"))...)
		out.consumed[last] = true
		if last.SoftLineBreak() || last.HardLineBreak() {
			break
		}
		next, ok := last.NextSibling().(*ast.Text)
		if !ok {
			break
		}
		last = next
	}

	out.str(escapeTextWithURLs(string(run)))
	if last.HardLineBreak() {
		out.str("\\\\\n")
	} else if last.SoftLineBreak() {
		out.str("\n")
	}
}

func writeLines(out *latexWriter, source []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		out.str(string(line.Value(source)))
	}
}
