package templates

import (
	"bytes"
	"errors"
	"time"

	"git.handmade.network/hmn/edu/src/oops"
	"github.com/goccy/go-yaml"
)

var ErrNoFrontMatter = errors.New("markdown export has no front matter")

const frontMatterFence = "---\n"

// Metadata at the top of a Markdown export.
type FrontMatter struct {
	Title           string    `yaml:"title"`
	Slug            string    `yaml:"slug"`
	Description     string    `yaml:"description,omitempty"`
	Type            string    `yaml:"type"`
	Licence         string    `yaml:"licence,omitempty"`
	Authors         []string  `yaml:"authors,omitempty"`
	PublicationDate time.Time `yaml:"publication_date"`
	Sha             string    `yaml:"sha"`
}

func (fm FrontMatter) Info() ContentInfo {
	return ContentInfo{
		Title:           fm.Title,
		Slug:            fm.Slug,
		Description:     fm.Description,
		Type:            fm.Type,
		Licence:         fm.Licence,
		Authors:         fm.Authors,
		PublicationDate: fm.PublicationDate,
		Sha:             fm.Sha,
	}
}

// Returns the front matter block, fences included.
func MarshalFrontMatter(fm FrontMatter) (string, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", oops.New(err, "failed to encode front matter")
	}
	return frontMatterFence + string(data) + frontMatterFence, nil
}

// Splits a Markdown export into its front matter and its body.
func SplitFrontMatter(data []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter
	if !bytes.HasPrefix(data, []byte(frontMatterFence)) {
		return fm, data, ErrNoFrontMatter
	}
	rest := data[len(frontMatterFence):]
	end := bytes.Index(rest, []byte("\n"+frontMatterFence))
	if end < 0 {
		return fm, data, oops.New(ErrNoFrontMatter, "front matter is not closed")
	}

	if err := yaml.Unmarshal(rest[:end+1], &fm); err != nil {
		return fm, data, oops.New(err, "failed to decode front matter")
	}
	return fm, rest[end+1+len(frontMatterFence):], nil
}
