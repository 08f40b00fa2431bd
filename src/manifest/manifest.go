package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/slugs"
	"git.handmade.network/hmn/edu/src/versioned"
)

// The revision written by Dump.
const CurrentVersion = "2.1"

const DefaultMaxTitleLength = 80

const (
	ObjectContainer = "container"
	ObjectExtract   = "extract"
)

var (
	ErrBadManifest        = errors.New("malformed manifest")
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported manifest version", ErrBadManifest)
)

var recognizedVersions = map[string]bool{
	"2":   true,
	"2.0": true,
	"2.1": true,
}

/*
The persisted form of a tree, stored as manifest.json at the root of a
content's repository and of its public output.

Introduction, Conclusion and Text hold file paths relative to that root, not
the texts themselves.
*/
type Document struct {
	Object         string      `json:"object"`
	Version        json.Number `json:"version,omitempty"`
	Title          string      `json:"title"`
	Slug           string      `json:"slug"`
	Description    string      `json:"description,omitempty"`
	Type           string      `json:"type,omitempty"`
	Licence        string      `json:"licence,omitempty"`
	Introduction   string      `json:"introduction,omitempty"`
	Conclusion     string      `json:"conclusion,omitempty"`
	Text           string      `json:"text,omitempty"`
	ReadyToPublish *bool       `json:"ready_to_publish,omitempty"`
	Children       []Document  `json:"children,omitempty"`
}

func Dump(tree *versioned.Content) Document {
	doc := dumpContainer(&tree.Container)
	doc.Version = CurrentVersion
	doc.Description = tree.Description
	doc.Type = string(tree.Type)
	doc.Licence = tree.Licence
	return doc
}

func dumpContainer(c *versioned.Container) Document {
	ready := c.ReadyToPublish
	doc := Document{
		Object:         ObjectContainer,
		Title:          c.Title,
		Slug:           c.Slug,
		Introduction:   c.IntroductionPath,
		Conclusion:     c.ConclusionPath,
		ReadyToPublish: &ready,
	}
	for _, child := range c.Children() {
		switch child := child.(type) {
		case *versioned.Container:
			doc.Children = append(doc.Children, dumpContainer(child))
		case *versioned.Extract:
			doc.Children = append(doc.Children, Document{
				Object: ObjectExtract,
				Title:  child.Title,
				Slug:   child.Slug,
				Text:   child.TextPath,
			})
		}
	}
	return doc
}

func Marshal(tree *versioned.Content) ([]byte, error) {
	data, err := json.MarshalIndent(Dump(tree), "", "    ")
	if err != nil {
		return nil, oops.New(err, "failed to encode manifest")
	}
	return data, nil
}

type ParseOptions struct {
	ContentID int
	// Commit the manifest was read from.
	Sha string

	MaxTitleLength int
	MaxSlugSize    int
	MaxTreeDepth   int
}

func ParseJSON(data []byte, opts ParseOptions) (*versioned.Content, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, oops.New(ErrBadManifest, "manifest is not a JSON object: %v", err)
	}
	return Parse(doc, opts)
}

/*
Builds a tree from a decoded manifest. The whole document is checked: the first
invalid node fails the parse and no tree is returned.

Errors wrap ErrBadManifest for structural problems, ErrUnsupportedVersion
for anything but a v2 manifest, and slugs.ErrInvalidSlug when a title or an
explicit slug does not make a valid slug.

"introduction" and "conclusion" are reserved for the texts of a container, so
a child with one of these slugs, such as a chapter titled "Introduction",
fails with ErrBadManifest. Give such a child an explicit slug instead.
*/
func Parse(doc map[string]any, opts ParseOptions) (*versioned.Content, error) {
	if opts.MaxTitleLength <= 0 {
		opts.MaxTitleLength = DefaultMaxTitleLength
	}
	if opts.MaxSlugSize <= 0 {
		opts.MaxSlugSize = slugs.DefaultMaxSize
	}

	if _, err := parseVersion(doc["version"]); err != nil {
		return nil, err
	}
	if object, ok := doc["object"]; ok && object != ObjectContainer {
		return nil, oops.New(ErrBadManifest, "the root must be a container, got %v", object)
	}

	p := parser{opts: opts}
	title, slug, err := p.titleAndSlug(doc, "")
	if err != nil {
		return nil, err
	}
	contentType, err := optionalString(doc, "type", "")
	if err != nil {
		return nil, err
	}
	if !models.ContentType(contentType).Valid() {
		return nil, oops.New(ErrBadManifest, "unknown content type %q", contentType)
	}

	content := versioned.NewContent(title, slug, models.ContentType(contentType))
	content.SetLimits(versioned.Limits{
		MaxLevel:    opts.MaxTreeDepth,
		MaxSlugSize: opts.MaxSlugSize,
	})
	content.ContentID = opts.ContentID
	content.CurrentVersion = opts.Sha

	if content.Description, err = optionalString(doc, "description", ""); err != nil {
		return nil, err
	}
	if content.Licence, err = optionalString(doc, "licence", ""); err != nil {
		return nil, err
	}
	if err := p.fillContainer(&content.Container, doc, ""); err != nil {
		return nil, err
	}
	return content, nil
}

func parseVersion(v any) (string, error) {
	var version string
	switch v := v.(type) {
	case nil:
		return "", oops.New(ErrUnsupportedVersion, "manifest has no version; upgrade it first")
	case json.Number:
		version = v.String()
	case float64:
		version = strings.TrimSuffix(fmt.Sprintf("%g", v), ".0")
	case string:
		version = v
	default:
		return "", oops.New(ErrUnsupportedVersion, "version has type %T", v)
	}
	if !recognizedVersions[version] {
		return "", oops.New(ErrUnsupportedVersion, "version %q", version)
	}
	return version, nil
}

type parser struct {
	opts ParseOptions
}

// Checks the title of a node and returns it with the node's slug: the explicit
// one when present, otherwise derived from the title. Both must be valid.
func (p *parser) titleAndSlug(doc map[string]any, where string) (string, string, error) {
	rawTitle, ok := doc["title"]
	if !ok {
		return "", "", oops.New(ErrBadManifest, "%s has no title", describe(where))
	}
	title, ok := rawTitle.(string)
	if !ok {
		return "", "", oops.New(ErrBadManifest, "title of %s must be a string, got %T", describe(where), rawTitle)
	}
	if n := utf8.RuneCountInString(title); n > p.opts.MaxTitleLength {
		return "", "", oops.New(ErrBadManifest, "title of %s is %d characters long (max %d)", describe(where), n, p.opts.MaxTitleLength)
	}

	derived := slugs.Slugify(title)
	if err := slugs.Validate(derived, p.opts.MaxSlugSize); err != nil {
		return "", "", oops.New(err, "title %q of %s", title, describe(where))
	}

	slug, err := optionalString(doc, "slug", derived)
	if err != nil {
		return "", "", err
	}
	if err := slugs.Validate(slug, p.opts.MaxSlugSize); err != nil {
		return "", "", oops.New(err, "slug of %s", describe(where))
	}
	return title, slug, nil
}

func (p *parser) fillContainer(c *versioned.Container, doc map[string]any, where string) error {
	var err error
	if c.IntroductionPath, err = optionalString(doc, "introduction", ""); err != nil {
		return err
	}
	if c.ConclusionPath, err = optionalString(doc, "conclusion", ""); err != nil {
		return err
	}
	if ready, ok := doc["ready_to_publish"]; ok {
		b, isBool := ready.(bool)
		if !isBool {
			return oops.New(ErrBadManifest, "ready_to_publish of %s must be a boolean", describe(where))
		}
		c.ReadyToPublish = b
	}

	rawChildren, ok := doc["children"]
	if !ok || rawChildren == nil {
		return nil
	}
	children, ok := rawChildren.([]any)
	if !ok {
		return oops.New(ErrBadManifest, "children of %s must be a list", describe(where))
	}

	for i, rawChild := range children {
		childWhere := fmt.Sprintf("%s/%d", where, i)
		child, ok := rawChild.(map[string]any)
		if !ok {
			return oops.New(ErrBadManifest, "%s is not an object", describe(childWhere))
		}
		title, slug, err := p.titleAndSlug(child, childWhere)
		if err != nil {
			return err
		}

		switch child["object"] {
		case ObjectContainer:
			sub := versioned.NewContainer(title)
			sub.Slug = slug
			if err := c.AddContainer(sub); err != nil {
				return treeError(err, childWhere)
			}
			if err := p.fillContainer(sub, child, childWhere); err != nil {
				return err
			}
		case ObjectExtract:
			extract := versioned.NewExtract(title, "")
			extract.Slug = slug
			if extract.TextPath, err = optionalString(child, "text", ""); err != nil {
				return err
			}
			if err := c.AddExtract(extract); err != nil {
				return treeError(err, childWhere)
			}
		default:
			return oops.New(ErrBadManifest, "%s has unknown object type %v", describe(childWhere), child["object"])
		}
	}
	return nil
}

func treeError(err error, where string) error {
	if errors.Is(err, slugs.ErrInvalidSlug) {
		return err
	}
	return oops.New(ErrBadManifest, "%s: %v", describe(where), err)
}

func optionalString(doc map[string]any, key, fallback string) (string, error) {
	v, ok := doc[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", oops.New(ErrBadManifest, "%s must be a string, got %T", key, v)
	}
	return s, nil
}

func describe(where string) string {
	if where == "" {
		return "the root"
	}
	return "child " + strings.TrimPrefix(where, "/")
}
