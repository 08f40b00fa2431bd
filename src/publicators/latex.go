package publicators

import (
	"bytes"
	"context"

	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/parsing"
	"git.handmade.network/hmn/edu/src/templates"
)

// LaTeX source of a content, written to <baseName>.tex. Compiling it is left
// to whoever downloads it.
type LaTeXPublicator struct{}

var _ Publicator = &LaTeXPublicator{}

func (p *LaTeXPublicator) Publish(ctx context.Context, mdPath, baseName string, opts Options) error {
	fm, body, err := readExport(mdPath)
	if err != nil {
		return err
	}
	latex, err := parsing.RenderLaTeX(body)
	if err != nil {
		return oops.New(err, "failed to render latex of %s", fm.Slug)
	}

	var buf bytes.Buffer
	err = templates.RenderText(&buf, "export.tex", templates.LaTeXDocument{
		Content: fm.Info(),
		Body:    latex,
	})
	if err != nil {
		return err
	}
	return writeOutput(baseName+".tex", buf.Bytes())
}
