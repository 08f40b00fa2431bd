package models

import (
	"time"
)

// A comment left on a published content. Positions start at 1 and increase by
// one per reaction on the same content.
type ContentReaction struct {
	ID        int `db:"id"`
	ContentID int `db:"content_id"`
	AuthorID  int `db:"author_id"`
	Position  int `db:"position"`

	Text     string `db:"text"`
	TextHTML string `db:"text_html"`

	PubDate time.Time `db:"pub_date"`
}

// The last reaction a user has seen on a content. There is at most one per
// (content, user).
type ContentRead struct {
	ID         int `db:"id"`
	ContentID  int `db:"content_id"`
	UserID     int `db:"user_id"`
	ReactionID int `db:"reaction_id"`
}

/*
Reports whether the user's participation in a content's discussion is stale:
they have read at least one reaction, and the reaction they last read is not
the newest one.

Without a read there is no baseline, so it is never stale. Without a last
note there is nothing newer to have missed.
*/
func LastParticipationIsOld(lastRead *ContentRead, lastNoteID *int) bool {
	if lastRead == nil || lastNoteID == nil {
		return false
	}
	return lastRead.ReactionID != *lastNoteID
}

type AlertScope string

const (
	AlertScopeContent  AlertScope = "CONTENT"
	AlertScopeReaction AlertScope = "REACTION"
)

// A moderation report. Alerts about a content must be solved before the
// content disappears, which unpublication takes care of.
type Alert struct {
	ID         int        `db:"id"`
	Scope      AlertScope `db:"scope"`
	ContentID  *int       `db:"content_id"`
	ReactionID *int       `db:"reaction_id"`
	AuthorID   int        `db:"author_id"`
	Text       string     `db:"text"`
	PubDate    time.Time  `db:"pub_date"`

	Solved        bool       `db:"solved"`
	ModeratorID   *int       `db:"moderator_id"`
	ResolveReason string     `db:"resolve_reason"`
	SolvedDate    *time.Time `db:"solved_date"`
}
