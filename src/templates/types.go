package templates

import (
	"html/template"
	"time"
)

type ContentInfo struct {
	Title           string
	Slug            string
	Description     string
	Type            string
	Licence         string
	Authors         []string
	PublicationDate time.Time
	Sha             string
}

type Breadcrumb struct {
	Title string
	Url   string
}

type ChildLink struct {
	Title string
	Url   string
}

type Section struct {
	Title string
	Slug  string
	Level int
	Html  template.HTML

	// Only set for containers in the single-page download.
	Introduction template.HTML
	Conclusion   template.HTML
	Sections     []Section
}

// One published page: a whole article, or a container and its extracts.
type Page struct {
	Content ContentInfo
	// Relative to the published root.
	Path        string
	Title       string
	Breadcrumbs []Breadcrumb

	Introduction template.HTML
	Conclusion   template.HTML
	Sections     []Section
	Children     []ChildLink
}

// Stylesheet and body of the single-page HTML download.
type Download struct {
	Content ContentInfo
	Css     template.CSS
	Body    template.HTML
}

type LaTeXDocument struct {
	Content ContentInfo
	Body    string
}

type MarkdownBlock struct {
	// Complete heading line, "#"s included. Empty for a text with no title.
	Heading string
	Text    string
}

type MarkdownExport struct {
	FrontMatter string
	Blocks      []MarkdownBlock
}
