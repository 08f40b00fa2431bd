package vcs

import (
	"errors"
	"testing"

	"git.handmade.network/hmn/edu/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitAuthor(t *testing.T) {
	bot := models.User{ID: 1, Username: "admin", Email: "bot@example.com"}

	t.Run("logged in", func(t *testing.T) {
		author := &models.User{ID: 42, Username: "ada", Email: "ada@example.com"}
		sigs := CommitAuthor(author, bot)
		assert.Equal(t, Signature{Name: "42", Email: "ada@example.com"}, sigs.Author)
		assert.Equal(t, sigs.Author, sigs.Committer)
	})
	t.Run("nobody", func(t *testing.T) {
		sigs := CommitAuthor(nil, bot)
		assert.Equal(t, Signature{Name: "1", Email: "bot@example.com"}, sigs.Author)
	})
}

func TestRepo(t *testing.T) {
	dir := t.TempDir()
	repo, err := Init(dir)
	require.Nil(t, err)

	_, err = repo.Head()
	assert.True(t, errors.Is(err, ErrNoCommits))

	sigs := CommitAuthor(&models.User{ID: 3, Email: "a@example.com"}, models.User{})
	first, err := repo.Commit(Changes{Write: map[string][]byte{
		"manifest.json":        []byte("{}"),
		"part/extract.md":      []byte("Hello"),
		"part/introduction.md": []byte("Intro"),
	}}, "First", sigs)
	require.Nil(t, err)

	head, err := repo.Head()
	require.Nil(t, err)
	assert.Equal(t, first, head)

	second, err := repo.Commit(Changes{
		Write:  map[string][]byte{"part/extract.md": []byte("Hello again")},
		Remove: []string{"part/introduction.md"},
	}, "Second", sigs)
	require.Nil(t, err)
	assert.NotEqual(t, first, second)

	t.Run("read old and new", func(t *testing.T) {
		old, err := repo.ReadFile(first, "part/extract.md")
		require.Nil(t, err)
		assert.Equal(t, "Hello", string(old))

		current, err := repo.ReadFile(second, "part/extract.md")
		require.Nil(t, err)
		assert.Equal(t, "Hello again", string(current))

		_, err = repo.ReadFile(second, "part/introduction.md")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
	t.Run("list tree", func(t *testing.T) {
		files, err := repo.ListTree(first)
		require.Nil(t, err)
		assert.Equal(t, []string{"manifest.json", "part/extract.md", "part/introduction.md"}, files)

		files, err = repo.ListTree(second)
		require.Nil(t, err)
		assert.Equal(t, []string{"manifest.json", "part/extract.md"}, files)
	})
	t.Run("commit info", func(t *testing.T) {
		author, message, err := repo.CommitInfo(second)
		require.Nil(t, err)
		assert.Equal(t, Signature{Name: "3", Email: "a@example.com"}, author)
		assert.Equal(t, "Second", message)
	})
	t.Run("reopen", func(t *testing.T) {
		reopened, err := OpenOrInit(dir)
		require.Nil(t, err)
		head, err := reopened.Head()
		require.Nil(t, err)
		assert.Equal(t, second, head)
	})
}
