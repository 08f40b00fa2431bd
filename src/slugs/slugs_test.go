package slugs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "zest-de-citron", Slugify("Zest de citron"))
	assert.Equal(t, "leve-toi-et-code", Slugify("Lève-toi et code !"))
	assert.Equal(t, "foo-bar", Slugify("-- Foo Bar --"))
	assert.Equal(t, "foo-bar", Slugify("foo--bar"))
	assert.Equal(t, "foo-bar", Slugify("  Foo  Bar  "))
	assert.Equal(t, "20000-lieues-sous-les-mers", Slugify("20,000 lieues sous les mers"))
	assert.Equal(t, "snake_case", Slugify("snake_case"))
	assert.Equal(t, "", Slugify("..."))
	assert.Equal(t, "", Slugify("!@#$%^&"))
}

func TestCheck(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		for _, slug := range []string{"a", "zest", "zest-de-citron", "part_1", "42", strings.Repeat("a", DefaultMaxSize)} {
			assert.True(t, Check(slug, 0), slug)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		for _, slug := range []string{"", "-", "_", "-_-", "Zest", "zest de citron", "zest/citron", "zest.", "é", strings.Repeat("a", DefaultMaxSize+1)} {
			assert.False(t, Check(slug, 0), slug)
		}
	})
	t.Run("custom size", func(t *testing.T) {
		assert.True(t, Check("abcde", 5))
		assert.False(t, Check("abcdef", 5))
	})
	t.Run("error", func(t *testing.T) {
		assert.Nil(t, Validate("zest", 10))
		assert.ErrorIs(t, Validate("...", 10), ErrInvalidSlug)
	})
}

func TestUnique(t *testing.T) {
	taken := map[string]bool{"introduction": true, "chapitre": true, "chapitre-1": true}
	isTaken := func(s string) bool { return taken[s] }

	assert.Equal(t, "premiere-partie", Unique("Première partie", isTaken))
	assert.Equal(t, "chapitre-2", Unique("Chapitre", isTaken))
	assert.Equal(t, "introduction-1", Unique("Introduction", isTaken))
	assert.Equal(t, "", Unique("...", isTaken))
}
