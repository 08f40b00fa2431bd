package contentdata

import (
	"context"
	"errors"

	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
	"git.handmade.network/hmn/edu/src/perf"
)

const unpublishedReason = "Le contenu a été dépublié."

// Returns db.NotFound if there is no content with that id.
func FetchContent(ctx context.Context, dbConn db.ConnOrTx, contentID int) (*models.Content, error) {
	run := perf.ExtractRun(ctx)
	run.StartBlock("SQL", "Fetch content")
	defer run.EndBlock()

	content, err := db.QueryOne[models.Content](ctx, dbConn,
		`
		---- Fetch content
		SELECT $columns
		FROM content
		WHERE id = $1
		`,
		contentID,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch content %d", contentID)
	}

	content.Authors, err = db.Query[models.User](ctx, dbConn,
		`
		---- Fetch content authors
		SELECT $columns{u}
		FROM
			edu_user AS u
			JOIN content_author AS ca ON ca.user_id = u.id
		WHERE ca.content_id = $1
		ORDER BY u.username
		`,
		contentID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch authors of content %d", contentID)
	}

	if content.LicenceID != nil {
		content.Licence, err = db.QueryOne[models.Licence](ctx, dbConn,
			`
			---- Fetch licence
			SELECT $columns
			FROM licence
			WHERE id = $1
			`,
			*content.LicenceID,
		)
		if err != nil && !errors.Is(err, db.NotFound) {
			return nil, oops.New(err, "failed to fetch licence of content %d", contentID)
		}
	}

	return content, nil
}

// Points a content at its live publication, or at none when publishedID is
// nil. Done by callers once a publication has succeeded.
func SetPublicVersion(ctx context.Context, dbConn db.ConnOrTx, contentID int, publishedID *int) error {
	_, err := dbConn.Exec(ctx,
		`
		---- Set public version
		UPDATE content
		SET public_version_id = $2
		WHERE id = $1
		`,
		contentID,
		publishedID,
	)
	if err != nil {
		return oops.New(err, "failed to set public version of content %d", contentID)
	}
	return nil
}

// Returns db.NotFound for an unknown code.
func FetchLicenceByCode(ctx context.Context, dbConn db.ConnOrTx, code string) (*models.Licence, error) {
	licence, err := db.QueryOne[models.Licence](ctx, dbConn,
		`
		---- Fetch licence by code
		SELECT $columns
		FROM licence
		WHERE code = $1
		`,
		code,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch licence %q", code)
	}
	return licence, nil
}

// Every licence, by code.
func FetchLicences(ctx context.Context, dbConn db.ConnOrTx) (map[string]*models.Licence, error) {
	licences, err := db.Query[models.Licence](ctx, dbConn,
		`
		---- Fetch licences
		SELECT $columns
		FROM licence
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch licences")
	}
	byCode := make(map[string]*models.Licence, len(licences))
	for _, l := range licences {
		byCode[l.Code] = l
	}
	return byCode, nil
}

/*
Reports whether a user has fallen behind on the discussion of a content:
they have read it before, and something has been posted since.
*/
func LastParticipationIsOld(ctx context.Context, dbConn db.ConnOrTx, content *models.Content, userID int) (bool, error) {
	read, err := db.QueryOne[models.ContentRead](ctx, dbConn,
		`
		---- Fetch content read
		SELECT $columns
		FROM content_read
		WHERE content_id = $1 AND user_id = $2
		`,
		content.ID,
		userID,
	)
	if errors.Is(err, db.NotFound) {
		read = nil
	} else if err != nil {
		return false, oops.New(err, "failed to fetch read of content %d by user %d", content.ID, userID)
	}
	return models.LastParticipationIsOld(read, content.LastNoteID), nil
}

// Records that a user has read a content up to a reaction.
func MarkRead(ctx context.Context, dbConn db.ConnOrTx, contentID, userID, reactionID int) error {
	_, err := dbConn.Exec(ctx,
		`
		---- Mark content read
		INSERT INTO content_read (content_id, user_id, reaction_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_id, user_id) DO UPDATE SET
			reaction_id = EXCLUDED.reaction_id
		`,
		contentID,
		userID,
		reactionID,
	)
	if err != nil {
		return oops.New(err, "failed to mark content %d read by user %d", contentID, userID)
	}
	return nil
}
