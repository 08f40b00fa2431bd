package templates

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInfo = ContentInfo{
	Title:           "Apprendre le Go",
	Slug:            "apprendre-le-go",
	Description:     "Un tutoriel & des exemples",
	Type:            "TUTORIAL",
	Licence:         "CC BY",
	Authors:         []string{"ada", "grace"},
	PublicationDate: time.Date(2024, 9, 2, 8, 15, 0, 0, time.UTC),
	Sha:             "0123abcd",
}

func TestAllTemplatesParse(t *testing.T) {
	htmls, texts, errs := getTemplatesFromFS(embeddedTemplateFs)
	assert.Empty(t, errs)
	assert.Contains(t, htmls, "page.html")
	assert.Contains(t, htmls, "download.html")
	assert.Contains(t, texts, "export.md")
	assert.Contains(t, texts, "export.tex")
}

func TestPage(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHTML(&buf, "page.html", Page{
		Content: testInfo,
		Path:    "partie/chapitre.html",
		Title:   "Chapitre",
		Breadcrumbs: []Breadcrumb{
			{Title: "Apprendre le Go", Url: "../introduction.html"},
		},
		Introduction: template.HTML("<p>Bonjour</p>"),
		Sections: []Section{
			{Title: "Extrait <1>", Slug: "extrait-1", Level: 1, Html: template.HTML("<p>Texte</p>")},
		},
	})
	require.Nil(t, err)

	html := buf.String()
	assert.Contains(t, html, "<title>Chapitre - Apprendre le Go</title>")
	assert.Contains(t, html, `<p>Bonjour</p>`)
	assert.Contains(t, html, `<h2>Extrait &lt;1&gt;</h2>`)
	assert.Contains(t, html, `<section id="extrait-1">`)
	assert.Contains(t, html, `href="../introduction.html"`)
	assert.Contains(t, html, "ada, grace")
	assert.Contains(t, html, `class="tutorial"`)
}

func TestDownload(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHTML(&buf, "download.html", Download{
		Content: testInfo,
		Body:    template.HTML("<h2>Partie</h2>"),
	})
	require.Nil(t, err)
	assert.Contains(t, buf.String(), "<h2>Partie</h2>")
	assert.Contains(t, buf.String(), "Un tutoriel &amp; des exemples")
}

func TestMarkdownExport(t *testing.T) {
	fm, err := MarshalFrontMatter(FrontMatter{Title: testInfo.Title, Slug: testInfo.Slug, Type: testInfo.Type})
	require.Nil(t, err)

	var buf bytes.Buffer
	err = RenderText(&buf, "export.md", MarkdownExport{
		FrontMatter: fm,
		Blocks: []MarkdownBlock{
			{Text: "Introduction du tuto.\n"},
			{Heading: "# Partie", Text: "Intro de la partie."},
			{Heading: "## Extrait"},
		},
	})
	require.Nil(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, "Introduction du tuto.\n\n# Partie\n\nIntro de la partie.\n\n## Extrait\n")

	parsed, body, err := SplitFrontMatter(buf.Bytes())
	require.Nil(t, err)
	assert.Equal(t, "Apprendre le Go", parsed.Title)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(body)), "Introduction du tuto."))
}

func TestLaTeXDocument(t *testing.T) {
	var buf bytes.Buffer
	err := RenderText(&buf, "export.tex", LaTeXDocument{
		Content: testInfo,
		Body:    `\section*{Partie}`,
	})
	require.Nil(t, err)

	out := buf.String()
	assert.Contains(t, out, `\title{Apprendre le Go}`)
	assert.Contains(t, out, `\author{ada \and grace}`)
	assert.Contains(t, out, `Un tutoriel \& des exemples`)
	assert.Contains(t, out, `\section*{Partie}`)
	assert.Contains(t, out, `\end{document}`)
}

func TestFrontMatter(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		fm := FrontMatter{
			Title:           "Titre: avec deux-points",
			Slug:            "titre",
			Type:            "ARTICLE",
			Authors:         []string{"ada"},
			PublicationDate: testInfo.PublicationDate,
			Sha:             "abc",
		}
		block, err := MarshalFrontMatter(fm)
		require.Nil(t, err)

		parsed, body, err := SplitFrontMatter([]byte(block + "Corps\n"))
		require.Nil(t, err)
		assert.Equal(t, fm.Title, parsed.Title)
		assert.Equal(t, fm.Authors, parsed.Authors)
		assert.True(t, fm.PublicationDate.Equal(parsed.PublicationDate))
		assert.Equal(t, "Corps\n", string(body))
		assert.Equal(t, "ARTICLE", parsed.Info().Type)
	})
	t.Run("missing", func(t *testing.T) {
		_, body, err := SplitFrontMatter([]byte("# Just markdown\n"))
		assert.True(t, errors.Is(err, ErrNoFrontMatter))
		assert.Equal(t, "# Just markdown\n", string(body))
	})
}

func TestRelativeURL(t *testing.T) {
	assert.Equal(t, "partie/chapitre.html", RelativeURL("introduction.html", "partie/chapitre.html"))
	assert.Equal(t, "../introduction.html", RelativeURL("partie/chapitre.html", "introduction.html"))
	assert.Equal(t, "../../a.html", RelativeURL("p/c/x.html", "a.html"))
	assert.Equal(t, "introduction.html", RelativeURL("partie/chapitre.html", "partie/introduction.html"))
	assert.Equal(t, "../b/x.html", RelativeURL("a/introduction.html", "b/x.html"))
}
