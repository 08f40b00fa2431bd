package publicators

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"os"

	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/parsing"
	"git.handmade.network/hmn/edu/src/templates"
)

//go:embed download.css
var defaultCss string

// Single-page HTML version of a content, written to <baseName>.html.
type HTMLPublicator struct{}

var _ Publicator = &HTMLPublicator{}

func (p *HTMLPublicator) Publish(ctx context.Context, mdPath, baseName string, opts Options) error {
	page, err := renderDownload(mdPath, opts)
	if err != nil {
		return err
	}
	return writeOutput(baseName+".html", page)
}

func readExport(mdPath string) (templates.FrontMatter, string, error) {
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return templates.FrontMatter{}, "", oops.New(err, "failed to read markdown export")
	}
	fm, body, err := templates.SplitFrontMatter(data)
	if err != nil {
		return fm, "", oops.New(err, "invalid markdown export %s", mdPath)
	}
	return fm, string(body), nil
}

func renderDownload(mdPath string, opts Options) ([]byte, error) {
	fm, body, err := readExport(mdPath)
	if err != nil {
		return nil, err
	}
	html, err := parsing.RenderHTML(body)
	if err != nil {
		return nil, oops.New(err, "failed to render markdown of %s", fm.Slug)
	}

	css := opts.Css
	if css == "" {
		css = defaultCss
	}

	var buf bytes.Buffer
	err = templates.RenderHTML(&buf, "download.html", templates.Download{
		Content: fm.Info(),
		Css:     template.CSS(css),
		Body:    template.HTML(html),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeOutput(filename string, data []byte) error {
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return oops.New(err, "failed to write %s", filename)
	}
	return nil
}
