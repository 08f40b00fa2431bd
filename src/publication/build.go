package publication

import (
	"bytes"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"git.handmade.network/hmn/edu/src/drafts"
	"git.handmade.network/hmn/edu/src/manifest"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/parsing"
	"git.handmade.network/hmn/edu/src/templates"
	"git.handmade.network/hmn/edu/src/versioned"
)

const (
	introductionPage = "introduction.html"
	conclusionPage   = "conclusion.html"
)

/*
Writes the public output of a pruned tree into dir.

A content made only of extracts gets a single page, <slug>.html. Otherwise
every container that holds containers becomes a directory with an
introduction.html page (and a conclusion.html page when it has a
conclusion), and every other container becomes one page with its texts and
its extracts inlined.

The tree is updated in place to point at the pages: introduction and
conclusion paths name the pages that hold them, and are cleared wherever a
text was inlined.
*/
type builder struct {
	dir  string
	tree *versioned.Content
	info templates.ContentInfo
}

func (b *builder) writePages() error {
	root := &b.tree.Container
	if !root.HasContainers() {
		return b.writeLeafPage(root, b.tree.Slug+".html")
	}
	return b.writeContainerPages(root)
}

func (b *builder) writeContainerPages(c *versioned.Container) error {
	introPath := path.Join(c.Path(true), introductionPage)

	intro, err := renderText(c.Introduction)
	if err != nil {
		return err
	}
	page := templates.Page{
		Content:      b.info,
		Path:         introPath,
		Title:        c.Title,
		Breadcrumbs:  breadcrumbs(c.Parent(), introPath),
		Introduction: intro,
	}
	for _, child := range c.Children() {
		child := child.(*versioned.Container)
		page.Children = append(page.Children, templates.ChildLink{
			Title: child.Title,
			Url:   templates.RelativeURL(introPath, pagePath(child)),
		})
	}
	if err := b.writePage(page); err != nil {
		return err
	}
	c.IntroductionPath = ""
	if c.Introduction != "" {
		c.IntroductionPath = introPath
	}

	c.ConclusionPath = ""
	if c.Conclusion != "" {
		conclPath := path.Join(c.Path(true), conclusionPage)
		concl, err := renderText(c.Conclusion)
		if err != nil {
			return err
		}
		err = b.writePage(templates.Page{
			Content:     b.info,
			Path:        conclPath,
			Title:       c.Title,
			Breadcrumbs: breadcrumbs(c, conclPath),
			Conclusion:  concl,
		})
		if err != nil {
			return err
		}
		c.ConclusionPath = conclPath
	}

	for _, child := range c.Children() {
		child := child.(*versioned.Container)
		if child.HasContainers() {
			err = b.writeContainerPages(child)
		} else {
			err = b.writeLeafPage(child, pagePath(child))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) writeLeafPage(c *versioned.Container, p string) error {
	page := templates.Page{
		Content:     b.info,
		Path:        p,
		Title:       c.Title,
		Breadcrumbs: breadcrumbs(c.Parent(), p),
	}

	var err error
	if page.Introduction, err = renderText(c.Introduction); err != nil {
		return err
	}
	for _, child := range c.Children() {
		extract := child.(*versioned.Extract)
		html, err := renderText(extract.Text)
		if err != nil {
			return err
		}
		page.Sections = append(page.Sections, templates.Section{
			Title: extract.Title,
			Slug:  extract.Slug,
			Level: 1,
			Html:  html,
		})
		extract.TextPath = ""
	}
	if page.Conclusion, err = renderText(c.Conclusion); err != nil {
		return err
	}

	c.IntroductionPath = ""
	c.ConclusionPath = ""
	return b.writePage(page)
}

func (b *builder) writePage(page templates.Page) error {
	var buf bytes.Buffer
	if err := templates.RenderHTML(&buf, "page.html", page); err != nil {
		return err
	}
	return writeFile(filepath.Join(b.dir, filepath.FromSlash(page.Path)), buf.Bytes())
}

// The page a container is published as, relative to the public root.
func pagePath(c *versioned.Container) string {
	if c.HasContainers() {
		return path.Join(c.Path(true), introductionPage)
	}
	if c.IsRoot() {
		return c.Slug + ".html"
	}
	return c.Path(true) + ".html"
}

// Links to c and each of its ancestors, root first. Nil for no container.
func breadcrumbs(c *versioned.Container, from string) []templates.Breadcrumb {
	var crumbs []templates.Breadcrumb
	for a := c; a != nil; a = a.Parent() {
		crumbs = append([]templates.Breadcrumb{{
			Title: a.Title,
			Url:   templates.RelativeURL(from, pagePath(a)),
		}}, crumbs...)
	}
	return crumbs
}

func renderText(text string) (template.HTML, error) {
	if text == "" {
		return "", nil
	}
	html, err := parsing.RenderHTML(text)
	if err != nil {
		return "", oops.New(err, "failed to render markdown")
	}
	return template.HTML(html), nil
}

/*
Returns the Markdown export of a tree: YAML front matter, then every text in
document order under a heading of the depth of its node. The root has no
heading of its own, since the front matter carries its title.
*/
func GenerateMarkdownExport(tree *versioned.Content, info templates.ContentInfo) ([]byte, error) {
	fm, err := templates.MarshalFrontMatter(templates.FrontMatter{
		Title:           info.Title,
		Slug:            info.Slug,
		Description:     info.Description,
		Type:            info.Type,
		Licence:         info.Licence,
		Authors:         info.Authors,
		PublicationDate: info.PublicationDate,
		Sha:             info.Sha,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = templates.RenderText(&buf, "export.md", templates.MarkdownExport{
		FrontMatter: fm,
		Blocks:      markdownBlocks(&tree.Container, nil),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func markdownBlocks(c *versioned.Container, blocks []templates.MarkdownBlock) []templates.MarkdownBlock {
	block := templates.MarkdownBlock{Text: c.Introduction}
	if !c.IsRoot() {
		block.Heading = heading(c.Level(), c.Title)
	}
	blocks = append(blocks, block)

	for _, child := range c.Children() {
		switch child := child.(type) {
		case *versioned.Container:
			blocks = markdownBlocks(child, blocks)
		case *versioned.Extract:
			blocks = append(blocks, templates.MarkdownBlock{
				Heading: heading(child.Level(), child.Title),
				Text:    child.Text,
			})
		}
	}

	if c.Conclusion != "" {
		blocks = append(blocks, templates.MarkdownBlock{Text: c.Conclusion})
	}
	return blocks
}

func heading(level int, title string) string {
	return strings.Repeat("#", min(level, 6)) + " " + title
}

// Number of characters a reader sees in a Markdown export, front matter and
// formatting left out.
func countChars(export []byte) (int, error) {
	_, body, err := templates.SplitFrontMatter(export)
	if err != nil {
		return 0, err
	}
	text, err := parsing.Plaintext(string(body))
	if err != nil {
		return 0, oops.New(err, "failed to extract plain text")
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)), nil
}

func contentInfo(content *models.Content, tree *versioned.Content, date time.Time) templates.ContentInfo {
	info := templates.ContentInfo{
		Title:           tree.Title,
		Slug:            tree.Slug,
		Description:     tree.Description,
		Type:            string(tree.Type),
		Licence:         tree.Licence,
		PublicationDate: date,
		Sha:             tree.CurrentVersion,
	}
	if info.Licence == "" && content.Licence != nil {
		info.Licence = content.Licence.Title
	}
	for _, a := range content.Authors {
		info.Authors = append(info.Authors, a.Username)
	}
	return info
}

func writePublicManifest(dir string, tree *versioned.Content) error {
	data, err := manifest.Marshal(tree)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, drafts.ManifestFile), data)
}

func writeFile(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return oops.New(err, "failed to create directory for %s", filename)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return oops.New(err, "failed to write %s", filename)
	}
	return nil
}
