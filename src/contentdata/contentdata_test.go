package contentdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.handmade.network/hmn/edu/src/db"
	"git.handmade.network/hmn/edu/src/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var publishedColumns = []string{
	"id", "content_id", "content_pk", "content_type", "content_public_slug",
	"sha_public", "char_count", "publication_date", "update_date", "must_reindex",
}

var published = time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestFetchContent(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("with authors and licence", func(t *testing.T) {
		mock := newMock(t)
		licenceID := int32(3)
		mock.ExpectQuery(`FROM content WHERE id = \$1`).
			WithArgs(12).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "title", "slug", "type", "description", "sha_draft",
				"public_version_id", "licence_id", "last_note_id", "creation_date", "update_date",
			}).AddRow(int32(12), "Apprendre le Go", "apprendre-le-go", "TUTORIAL", "", "c0ffee",
				nil, &licenceID, nil, created, nil))
		mock.ExpectQuery(`SELECT u.id, u.username, u.email, u.is_staff FROM edu_user AS u`).
			WithArgs(12).
			WillReturnRows(pgxmock.NewRows([]string{"id", "username", "email", "is_staff"}).
				AddRow(int32(1), "ada", "ada@example.com", false).
				AddRow(int32(2), "grace", "grace@example.com", true))
		mock.ExpectQuery(`FROM licence WHERE id = \$1`).
			WithArgs(3).
			WillReturnRows(pgxmock.NewRows([]string{"id", "code", "title"}).
				AddRow(int32(3), "CC BY", "Licence CC BY"))

		content, err := FetchContent(ctx, mock, 12)
		require.NoError(t, err)
		assert.Equal(t, "apprendre-le-go", content.Slug)
		assert.Equal(t, models.ContentTypeTutorial, content.Type)
		assert.False(t, content.IsPublished())
		require.Len(t, content.Authors, 2)
		assert.Equal(t, "grace", content.Authors[1].Username)
		assert.True(t, content.HasAuthor(2))
		if assert.NotNil(t, content.Licence) {
			assert.Equal(t, "Licence CC BY", content.Licence.Title)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("unknown", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM content WHERE id = \$1`).
			WithArgs(404).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err := FetchContent(ctx, mock, 404)
		assert.ErrorIs(t, err, db.NotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPublicationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("published for", func(t *testing.T) {
		mock := newMock(t)
		count := int32(1234)
		mock.ExpectQuery(`FROM published_content WHERE content_id = \$1`).
			WithArgs(7).
			WillReturnRows(pgxmock.NewRows(publishedColumns).
				AddRow(int32(70), int32(7), int32(7), "ARTICLE", "mon-article", "c0ffee", &count, published, nil, true))

		store := &PublicationStore{Conn: mock}
		p, err := store.PublishedFor(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 70, p.ID)
		assert.Equal(t, models.ContentTypeArticle, p.ContentType)
		assert.Equal(t, "mon-article", p.ContentPublicSlug)
		if assert.NotNil(t, p.CharCount) {
			assert.Equal(t, 1234, *p.CharCount)
		}
		assert.Nil(t, p.UpdateDate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("not published", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM published_content WHERE content_id = \$1`).
			WithArgs(8).
			WillReturnRows(pgxmock.NewRows(publishedColumns))

		store := &PublicationStore{Conn: mock}
		_, err := store.PublishedFor(ctx, 8)
		assert.ErrorIs(t, err, db.NotFound)
	})
	t.Run("save upserts on content", func(t *testing.T) {
		mock := newMock(t)
		count := 99
		record := &models.PublishedContent{
			ContentID:         7,
			ContentPK:         7,
			ContentType:       models.ContentTypeArticle,
			ContentPublicSlug: "mon-article",
			ShaPublic:         "c0ffee",
			CharCount:         &count,
			PublicationDate:   published,
			MustReindex:       true,
		}
		mock.ExpectQuery(`INSERT INTO published_content .* ON CONFLICT \(content_id\) DO UPDATE SET`).
			WithArgs(7, 7, models.ContentTypeArticle, "mon-article", "c0ffee", &count, published, pgxmock.AnyArg(), true).
			WillReturnRows(pgxmock.NewRows(publishedColumns).
				AddRow(int32(71), int32(7), int32(7), "ARTICLE", "mon-article", "c0ffee", int32(99), published, nil, true))

		store := &PublicationStore{Conn: mock}
		saved, err := store.SavePublished(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, 71, saved.ID)
		assert.Equal(t, 99, *saved.CharCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("delete solves alerts in one transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM published_content WHERE content_id = \$1`).
			WithArgs(7).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`UPDATE alert SET solved = TRUE`).
			WithArgs(7, pgxmock.AnyArg(), unpublishedReason, models.AlertScopeContent).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		mock.ExpectCommit()

		store := &PublicationStore{Conn: mock}
		n, err := store.DeletePublished(ctx, 7, &models.User{ID: 5, Username: "modo"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("delete rolls back on failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM published_content`).
			WithArgs(7).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`UPDATE alert`).
			WithArgs(7, pgxmock.AnyArg(), unpublishedReason, models.AlertScopeContent).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		store := &PublicationStore{Conn: mock}
		_, err := store.DeletePublished(ctx, 7, nil)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFetchPublished(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	mock.ExpectQuery(`FROM published_content WHERE TRUE AND content_id = ANY\(\$1\) AND char_count IS NULL ORDER BY content_id`).
		WithArgs([]int{1, 2}).
		WillReturnRows(pgxmock.NewRows(publishedColumns).
			AddRow(int32(10), int32(1), int32(1), "OPINION", "mon-billet", "f00d", nil, published, nil, false))

	list, err := FetchPublished(ctx, mock, PublishedQuery{ContentIDs: []int{1, 2}, MissingCharCount: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].CharCount)
	assert.Equal(t, models.ContentTypeOpinion, list[0].ContentType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastParticipationIsOld(t *testing.T) {
	ctx := context.Background()
	lastNote := 30
	content := &models.Content{ID: 7, LastNoteID: &lastNote}
	readColumns := []string{"id", "content_id", "user_id", "reaction_id"}

	t.Run("read up to an older reaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM content_read WHERE content_id = \$1 AND user_id = \$2`).
			WithArgs(7, 5).
			WillReturnRows(pgxmock.NewRows(readColumns).AddRow(int32(1), int32(7), int32(5), int32(29)))

		old, err := LastParticipationIsOld(ctx, mock, content, 5)
		require.NoError(t, err)
		assert.True(t, old)
	})
	t.Run("read up to the last reaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM content_read`).
			WithArgs(7, 5).
			WillReturnRows(pgxmock.NewRows(readColumns).AddRow(int32(1), int32(7), int32(5), int32(30)))

		old, err := LastParticipationIsOld(ctx, mock, content, 5)
		require.NoError(t, err)
		assert.False(t, old)
	})
	t.Run("never read", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM content_read`).
			WithArgs(7, 6).
			WillReturnRows(pgxmock.NewRows(readColumns))

		old, err := LastParticipationIsOld(ctx, mock, content, 6)
		require.NoError(t, err)
		assert.False(t, old)
	})
}

func TestWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("mark read upserts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO content_read .* ON CONFLICT \(content_id, user_id\)`).
			WithArgs(7, 5, 30).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, MarkRead(ctx, mock, 7, 5, 30))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("set public version", func(t *testing.T) {
		mock := newMock(t)
		id := 71
		mock.ExpectExec(`UPDATE content SET public_version_id = \$2 WHERE id = \$1`).
			WithArgs(7, &id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, SetPublicVersion(ctx, mock, 7, &id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("set char count", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE published_content SET char_count = \$2`).
			WithArgs(71, 1234).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, SetCharCount(ctx, mock, 71, 1234))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLicences(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	mock.ExpectQuery(`FROM licence WHERE code = \$1`).
		WithArgs("CC BY").
		WillReturnRows(pgxmock.NewRows([]string{"id", "code", "title"}).AddRow(int32(3), "CC BY", "Licence CC BY"))
	mock.ExpectQuery(`FROM licence WHERE code = \$1`).
		WithArgs("WTFPL").
		WillReturnRows(pgxmock.NewRows([]string{"id", "code", "title"}))
	mock.ExpectQuery(`FROM licence`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "code", "title"}).
			AddRow(int32(3), "CC BY", "Licence CC BY").
			AddRow(int32(4), "Tous droits réservés", "Tous droits réservés"))

	l, err := FetchLicenceByCode(ctx, mock, "CC BY")
	require.NoError(t, err)
	assert.Equal(t, 3, l.ID)

	_, err = FetchLicenceByCode(ctx, mock, "WTFPL")
	assert.ErrorIs(t, err, db.NotFound)

	all, err := FetchLicences(ctx, mock)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "Licence CC BY", all["CC BY"].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}
