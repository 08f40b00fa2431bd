package contentdata

import (
	"context"
	"errors"

	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/oops"
)

type PublishedQuery struct {
	ContentIDs []int
	// Only records whose character count was never computed.
	MissingCharCount bool
}

func FetchPublished(ctx context.Context, dbConn db.ConnOrTx, q PublishedQuery) ([]*models.PublishedContent, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch published contents
		SELECT $columns
		FROM published_content
		WHERE TRUE
		`,
	)
	if len(q.ContentIDs) > 0 {
		qb.Add(`AND content_id = ANY($?)`, q.ContentIDs)
	}
	if q.MissingCharCount {
		qb.Add(`AND char_count IS NULL`)
	}
	qb.Add(`ORDER BY content_id`)

	published, err := db.Query[models.PublishedContent](ctx, dbConn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch published contents")
	}
	return published, nil
}

func SetCharCount(ctx context.Context, dbConn db.ConnOrTx, publishedID, charCount int) error {
	_, err := dbConn.Exec(ctx,
		`
		---- Set char count
		UPDATE published_content
		SET char_count = $2
		WHERE id = $1
		`,
		publishedID,
		charCount,
	)
	if err != nil {
		return oops.New(err, "failed to set char count of publication %d", publishedID)
	}
	return nil
}

// Publication records in Postgres.
type PublicationStore struct {
	Conn db.ConnOrTx
}

func (s *PublicationStore) PublishedFor(ctx context.Context, contentID int) (*models.PublishedContent, error) {
	published, err := db.QueryOne[models.PublishedContent](ctx, s.Conn,
		`
		---- Fetch publication of content
		SELECT $columns
		FROM published_content
		WHERE content_id = $1
		`,
		contentID,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch publication of content %d", contentID)
	}
	return published, nil
}

func (s *PublicationStore) SavePublished(ctx context.Context, p *models.PublishedContent) (*models.PublishedContent, error) {
	saved, err := db.QueryOne[models.PublishedContent](ctx, s.Conn,
		`
		---- Save publication
		INSERT INTO published_content (
			content_id, content_pk, content_type, content_public_slug, sha_public,
			char_count, publication_date, update_date, must_reindex
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (content_id) DO UPDATE SET
			content_pk = EXCLUDED.content_pk,
			content_type = EXCLUDED.content_type,
			content_public_slug = EXCLUDED.content_public_slug,
			sha_public = EXCLUDED.sha_public,
			char_count = EXCLUDED.char_count,
			update_date = EXCLUDED.update_date,
			must_reindex = EXCLUDED.must_reindex
		RETURNING $columns
		`,
		p.ContentID,
		p.ContentPK,
		p.ContentType,
		p.ContentPublicSlug,
		p.ShaPublic,
		p.CharCount,
		p.PublicationDate,
		p.UpdateDate,
		p.MustReindex,
	)
	if err != nil {
		return nil, oops.New(err, "failed to save publication of content %d", p.ContentID)
	}
	return saved, nil
}

func (s *PublicationStore) DeletePublished(ctx context.Context, contentID int, moderator *models.User) (int, error) {
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return 0, oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`
		---- Delete publication
		DELETE FROM published_content
		WHERE content_id = $1
		`,
		contentID,
	)
	if err != nil {
		return 0, oops.New(err, "failed to delete publication of content %d", contentID)
	}

	var moderatorID *int
	if moderator != nil {
		moderatorID = &moderator.ID
	}
	_, err = tx.Exec(ctx,
		`
		---- Solve content alerts
		UPDATE alert
		SET
			solved = TRUE,
			moderator_id = $2,
			resolve_reason = $3,
			solved_date = NOW()
		WHERE content_id = $1 AND scope = $4 AND NOT solved
		`,
		contentID,
		moderatorID,
		unpublishedReason,
		models.AlertScopeContent,
	)
	if err != nil {
		return 0, oops.New(err, "failed to solve alerts of content %d", contentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, oops.New(err, "failed to commit unpublication of content %d", contentID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PublicationStore) ListPublished(ctx context.Context) ([]*models.PublishedContent, error) {
	return FetchPublished(ctx, s.Conn, PublishedQuery{})
}
