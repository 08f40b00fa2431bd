package migration

import (
	"context"
	"testing"

	"git.handmade.network/hmn/edu/src/manifest"
	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/slugs"
	"git.handmade.network/hmn/edu/src/versioned"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleTree(t *testing.T) {
	t.Run("extracts under the root", func(t *testing.T) {
		tree := SampleTree("Un article pour commencer", models.ContentTypeArticle, 0, 3)
		assert.Equal(t, "un-article-pour-commencer", tree.Slug)
		assert.True(t, tree.HasExtracts())
		assert.Len(t, tree.Children(), 3)
		assert.Equal(t, 0, tree.Height())
	})
	t.Run("parts and chapters", func(t *testing.T) {
		tree := SampleTree("Un gros tutoriel", models.ContentTypeTutorial, 2, 2)
		assert.Equal(t, 2, tree.Height())
		chapter := versioned.Find(&tree.Container, "partie-2/chapitre-1")
		require.NotNil(t, chapter)
		assert.True(t, chapter.(*versioned.Container).HasExtracts())

		err := versioned.Walk(&tree.Container, func(n versioned.Node) error {
			return slugs.Validate(n.Info().Slug, 0)
		})
		assert.NoError(t, err)

		data, err := manifest.Marshal(tree)
		require.NoError(t, err)
		parsed, err := manifest.ParseJSON(data, manifest.ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, tree.Height(), parsed.Height())
	})
}

func TestEnsureNoContent(t *testing.T) {
	t.Run("empty database", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.Nil(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM content`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
		assert.Nil(t, ensureNoContent(context.Background(), mock))
		assert.Nil(t, mock.ExpectationsWereMet())
	})
	t.Run("database with contents", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.Nil(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM content`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
		assert.NotNil(t, ensureNoContent(context.Background(), mock))
		assert.Nil(t, mock.ExpectationsWereMet())
	})
}
