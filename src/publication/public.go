package publication

import (
	"os"
	"path/filepath"

	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/drafts"
	"git.handmade.network/hmn/edu/src/manifest"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/versioned"
)

// The tree of a published content, as read back from its public manifest.
// Texts are not loaded; they live in the rendered pages.
type PublicContent struct {
	*versioned.Content

	// The public directory of the content.
	Dir string
}

func LoadPublic(cfg config.ContentConfig, published *models.PublishedContent) (*PublicContent, error) {
	dir := filepath.Join(cfg.RepoPublicPath, published.ContentPublicSlug)
	data, err := os.ReadFile(filepath.Join(dir, drafts.ManifestFile))
	if err != nil {
		return nil, oops.New(err, "failed to read public manifest of content %d", published.ContentID)
	}
	tree, err := manifest.ParseJSON(data, manifest.ParseOptions{
		ContentID:      published.ContentID,
		Sha:            published.ShaPublic,
		MaxTitleLength: cfg.MaxTitleLength,
		MaxSlugSize:    cfg.MaximumSlugSize,
		MaxTreeDepth:   cfg.MaxTreeDepth,
	})
	if err != nil {
		return nil, err
	}
	return &PublicContent{Content: tree, Dir: dir}, nil
}

/*
The file a node of the public tree is rendered in. Extracts are rendered in
the page of their container. Containers that hold containers are rendered as
a directory, and the path returned is that of its introduction page.
*/
func (pc *PublicContent) ProdPath(node versioned.Node) string {
	var c *versioned.Container
	switch n := node.(type) {
	case *versioned.Container:
		c = n
	case *versioned.Extract:
		c = n.Parent()
	}
	if !pc.HasContainers() {
		return filepath.Join(pc.Dir, pc.Slug+".html")
	}
	return filepath.Join(pc.Dir, filepath.FromSlash(pagePath(c)))
}

// The Markdown export of the content.
func (pc *PublicContent) ExportPath(cfg config.ContentConfig) string {
	return filepath.Join(pc.Dir, cfg.ExtraContentsDirname, pc.Slug+".md")
}

// Counts the characters of a published content from its public output alone.
func CharCount(cfg config.ContentConfig, published *models.PublishedContent) (int, error) {
	export := filepath.Join(cfg.RepoPublicPath, published.ContentPublicSlug, cfg.ExtraContentsDirname, published.ContentPublicSlug+".md")
	data, err := os.ReadFile(export)
	if err != nil {
		return 0, oops.New(err, "failed to read markdown export of content %d", published.ContentID)
	}
	return countChars(data)
}
