package models

import (
	"time"
)

type ContentType string

const (
	ContentTypeArticle  ContentType = "ARTICLE"
	ContentTypeTutorial ContentType = "TUTORIAL"
	ContentTypeOpinion  ContentType = "OPINION"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeArticle, ContentTypeTutorial, ContentTypeOpinion:
		return true
	}
	return false
}

// The draft-owning record of a tutorial, article or opinion. The draft itself
// lives in the content's git repository; ShaDraft is the commit it is at.
type Content struct {
	ID int `db:"id"`

	Title       string      `db:"title"`
	Slug        string      `db:"slug"`
	Type        ContentType `db:"type"`
	Description string      `db:"description"`

	ShaDraft string `db:"sha_draft"`

	// Set by callers after a successful publication, never by the pipeline.
	PublicVersionID *int `db:"public_version_id"`
	LicenceID       *int `db:"licence_id"`
	LastNoteID      *int `db:"last_note_id"`

	CreationDate time.Time  `db:"creation_date"`
	UpdateDate   *time.Time `db:"update_date"`

	// Non-db fields, to be filled in by fetch helpers
	Authors []*User
	Licence *Licence
}

func (c *Content) IsPublished() bool {
	return c.PublicVersionID != nil
}

func (c *Content) HasAuthor(userID int) bool {
	for _, a := range c.Authors {
		if a.ID == userID {
			return true
		}
	}
	return false
}

type PublishedContent struct {
	ID        int `db:"id"`
	ContentID int `db:"content_id"`

	// Copied from the draft at publication time, so that the public side can
	// be served without reading the draft.
	ContentPK         int         `db:"content_pk"`
	ContentType       ContentType `db:"content_type"`
	ContentPublicSlug string      `db:"content_public_slug"`

	ShaPublic string `db:"sha_public"`
	CharCount *int   `db:"char_count"`

	PublicationDate time.Time  `db:"publication_date"`
	UpdateDate      *time.Time `db:"update_date"`
	MustReindex     bool       `db:"must_reindex"`
}

type Licence struct {
	ID    int    `db:"id"`
	Code  string `db:"code"`
	Title string `db:"title"`
}
