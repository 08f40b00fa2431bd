package manifest

import (
	"encoding/json"
	"errors"
	"strings"

	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/versioned"
)

var ErrNotV1 = errors.New("manifest is not a v1 manifest")

// Resolves a licence as written in a v1 manifest to a known licence code.
type LicenceLookup func(code string) (string, bool)

type v1Extract struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type v1Chapter struct {
	Title        string      `json:"title"`
	Introduction string      `json:"introduction"`
	Conclusion   string      `json:"conclusion"`
	Extracts     []v1Extract `json:"extracts"`
}

type v1Part struct {
	Title        string      `json:"title"`
	Introduction string      `json:"introduction"`
	Conclusion   string      `json:"conclusion"`
	Chapters     []v1Chapter `json:"chapters"`
}

type v1Manifest struct {
	Version      any    `json:"version"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	Type         string `json:"type"`
	Licence      any    `json:"licence"`
	Introduction string `json:"introduction"`
	Conclusion   string `json:"conclusion"`

	// articles
	Text string `json:"text"`
	// big tutorials
	Parts []v1Part `json:"parts"`
	// mini tutorials
	Chapter *v1Chapter `json:"chapter"`
}

/*
Rewrites a v1 manifest with the v2 schema. Articles become a root holding a
single extract, mini tutorials a root holding the chapter's extracts, and big
tutorials a root of parts holding chapters. Slugs are derived from titles.

The licence is kept only if licences knows it; the key is always written.
*/
func UpgradeV1(data []byte, licences LicenceLookup) ([]byte, error) {
	var old v1Manifest
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, oops.New(ErrBadManifest, "failed to decode v1 manifest: %v", err)
	}
	if old.Version != nil {
		if _, err := parseVersion(old.Version); err == nil {
			return nil, oops.New(ErrNotV1, "manifest already has version %v", old.Version)
		}
	}

	contentType := models.ContentTypeTutorial
	if strings.EqualFold(old.Type, "article") {
		contentType = models.ContentTypeArticle
	}

	tree := versioned.NewContent(old.Title, old.Slug, contentType)
	tree.Description = old.Description
	tree.IntroductionPath = old.Introduction
	tree.ConclusionPath = old.Conclusion
	if code, ok := licenceCode(old.Licence); ok && licences != nil {
		if known, ok := licences(code); ok {
			tree.Licence = known
		}
	}

	switch {
	case contentType == models.ContentTypeArticle:
		extract := versioned.NewExtract(old.Title, "")
		extract.TextPath = old.Text
		if err := tree.AddExtract(extract); err != nil {
			return nil, oops.New(err, "failed to convert article")
		}
	case old.Chapter != nil:
		if err := addExtracts(&tree.Container, old.Chapter.Extracts); err != nil {
			return nil, err
		}
	default:
		for _, part := range old.Parts {
			partContainer := versioned.NewContainer(part.Title)
			partContainer.IntroductionPath = part.Introduction
			partContainer.ConclusionPath = part.Conclusion
			if err := tree.AddContainer(partContainer); err != nil {
				return nil, oops.New(err, "failed to convert part %q", part.Title)
			}
			for _, chapter := range part.Chapters {
				chapterContainer := versioned.NewContainer(chapter.Title)
				chapterContainer.IntroductionPath = chapter.Introduction
				chapterContainer.ConclusionPath = chapter.Conclusion
				if err := partContainer.AddContainer(chapterContainer); err != nil {
					return nil, oops.New(err, "failed to convert chapter %q", chapter.Title)
				}
				if err := addExtracts(chapterContainer, chapter.Extracts); err != nil {
					return nil, err
				}
			}
		}
	}

	doc := Dump(tree)
	result, err := json.MarshalIndent(struct {
		Document
		// written even when empty
		Licence string `json:"licence"`
	}{doc, doc.Licence}, "", "    ")
	if err != nil {
		return nil, oops.New(err, "failed to encode upgraded manifest")
	}
	return result, nil
}

func addExtracts(c *versioned.Container, extracts []v1Extract) error {
	for _, e := range extracts {
		extract := versioned.NewExtract(e.Title, "")
		extract.TextPath = e.Text
		if err := c.AddExtract(extract); err != nil {
			return oops.New(err, "failed to convert extract %q", e.Title)
		}
	}
	return nil
}

func licenceCode(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, v != ""
	case map[string]any:
		code, ok := v["code"].(string)
		return code, ok && code != ""
	}
	return "", false
}
