package versioned

import (
	"errors"
	"testing"

	"git.handmade.network/hmn/edu/src/models"
	"git.handmade.network/hmn/edu/src/slugs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Builds the tree used by the move-target scenarios:
//
//	tuto
//	├── part1
//	│   └── chapter1
//	├── part2
//	└── part3
func newBigTree(t *testing.T) (*Content, map[string]*Container) {
	t.Helper()
	content := NewContent("Tuto", "", models.ContentTypeTutorial)
	nodes := map[string]*Container{}
	for _, title := range []string{"Part1", "Part2", "Part3"} {
		c := NewContainer(title)
		require.Nil(t, content.AddContainer(c))
		nodes[c.Slug] = c
	}
	chapter := NewContainer("Chapter1")
	require.Nil(t, nodes["part1"].AddContainer(chapter))
	nodes["chapter1"] = chapter
	return content, nodes
}

func TestAdd(t *testing.T) {
	t.Run("slugs and paths", func(t *testing.T) {
		content, nodes := newBigTree(t)
		extract := NewExtract("Premier extrait", "Du texte.")
		require.Nil(t, nodes["chapter1"].AddExtract(extract))

		assert.Equal(t, "tuto", content.Slug)
		assert.Equal(t, "part1/chapter1", nodes["chapter1"].Path(true))
		assert.Equal(t, "tuto/part1/chapter1", nodes["chapter1"].Path(false))
		assert.Equal(t, "", content.Path(true))
		assert.Equal(t, "part1/chapter1/premier-extrait", extract.FullSlug())
		assert.Equal(t, 3, extract.Level())
		assert.Equal(t, 2, nodes["chapter1"].Level())
		assert.Same(t, &content.Container, nodes["chapter1"].Root())
		assert.Same(t, nodes["part1"], nodes["chapter1"].Parent())
	})
	t.Run("duplicate titles", func(t *testing.T) {
		content := NewContent("Article", "", models.ContentTypeArticle)
		a := NewExtract("Intro", "")
		b := NewExtract("Intro", "")
		c := NewExtract("Introduction", "")
		require.Nil(t, content.AddExtract(a))
		require.Nil(t, content.AddExtract(b))
		require.Nil(t, content.AddExtract(c))

		assert.Equal(t, "intro", a.Slug)
		assert.Equal(t, "intro-1", b.Slug)
		assert.Equal(t, "introduction-1", c.Slug)
	})
	t.Run("explicit slug taken", func(t *testing.T) {
		content := NewContent("Article", "", models.ContentTypeArticle)
		require.Nil(t, content.AddExtract(NewExtract("Intro", "")))
		dup := NewExtract("Other", "")
		dup.Slug = "intro"
		assert.True(t, errors.Is(content.AddExtract(dup), ErrSlugTaken))
		assert.Nil(t, dup.Parent())
	})
	t.Run("invalid slug", func(t *testing.T) {
		content := NewContent("Article", "", models.ContentTypeArticle)
		e := NewExtract("...", "")
		assert.True(t, errors.Is(content.AddExtract(e), slugs.ErrInvalidSlug))
		assert.Empty(t, content.Children())
	})
	t.Run("too deep", func(t *testing.T) {
		_, nodes := newBigTree(t)
		err := nodes["chapter1"].AddContainer(NewContainer("Section"))
		assert.True(t, errors.Is(err, ErrTooDeep))

		deep := NewContainer("Deep")
		require.Nil(t, deep.AddContainer(NewContainer("Deeper")))
		assert.True(t, errors.Is(nodes["part2"].AddContainer(deep), ErrTooDeep))
	})
	t.Run("custom depth", func(t *testing.T) {
		content, nodes := newBigTree(t)
		content.SetLimits(Limits{MaxLevel: 3})
		assert.Nil(t, nodes["chapter1"].AddContainer(NewContainer("Section")))
	})
	t.Run("mixed children", func(t *testing.T) {
		content, nodes := newBigTree(t)
		require.Nil(t, nodes["part2"].AddExtract(NewExtract("E", "")))
		assert.True(t, errors.Is(nodes["part2"].AddContainer(NewContainer("C")), ErrMixedChildren))
		assert.True(t, errors.Is(content.AddExtract(NewExtract("E", "")), ErrMixedChildren))
		assert.True(t, nodes["part2"].HasExtracts())
		assert.False(t, nodes["part2"].HasContainers())
		assert.True(t, content.HasContainers())
	})
	t.Run("already attached", func(t *testing.T) {
		_, nodes := newBigTree(t)
		assert.True(t, errors.Is(nodes["part2"].AddContainer(nodes["chapter1"]), ErrAttached))
	})
	t.Run("cycle", func(t *testing.T) {
		outer := NewContainer("Outer")
		inner := NewContainer("Inner")
		require.Nil(t, outer.AddContainer(inner))
		assert.True(t, errors.Is(inner.AddContainer(outer), ErrCycle))
	})
}

func TestHeight(t *testing.T) {
	_, nodes := newBigTree(t)
	assert.Equal(t, 1, nodes["part1"].Height())
	assert.Equal(t, 0, nodes["part3"].Height())
	assert.Equal(t, 0, nodes["chapter1"].Height())
}

func childSlugs(c *Container) []string {
	var result []string
	for _, child := range c.Children() {
		result = append(result, child.Info().Slug)
	}
	return result
}

func TestMoveChild(t *testing.T) {
	t.Run("up and down", func(t *testing.T) {
		content, _ := newBigTree(t)
		require.Nil(t, content.MoveChildUp("part2"))
		assert.Equal(t, []string{"part2", "part1", "part3"}, childSlugs(&content.Container))
		require.Nil(t, content.MoveChildDown("part2"))
		assert.Equal(t, []string{"part1", "part2", "part3"}, childSlugs(&content.Container))

		assert.True(t, errors.Is(content.MoveChildUp("part1"), ErrCannotMove))
		assert.True(t, errors.Is(content.MoveChildDown("part3"), ErrCannotMove))
		assert.True(t, errors.Is(content.MoveChildUp("nope"), ErrNoSuchChild))
	})
	t.Run("before and after", func(t *testing.T) {
		content, _ := newBigTree(t)
		require.Nil(t, content.MoveChildBefore("part3", "part1"))
		assert.Equal(t, []string{"part3", "part1", "part2"}, childSlugs(&content.Container))
		require.Nil(t, content.MoveChildAfter("part3", "part2"))
		assert.Equal(t, []string{"part1", "part2", "part3"}, childSlugs(&content.Container))
		require.Nil(t, content.MoveChildAfter("part1", "part3"))
		assert.Equal(t, []string{"part2", "part3", "part1"}, childSlugs(&content.Container))

		assert.True(t, errors.Is(content.MoveChildAfter("part1", "part1"), ErrCannotMove))
		assert.True(t, errors.Is(content.MoveChildBefore("part1", "nope"), ErrNoSuchChild))
	})
}

func TestMoveBeside(t *testing.T) {
	t.Run("container across parents", func(t *testing.T) {
		content, nodes := newBigTree(t)
		require.Nil(t, MoveBeside(nodes["part3"], nodes["chapter1"], true))
		assert.Equal(t, []string{"chapter1", "part3"}, childSlugs(nodes["part1"]))
		assert.Equal(t, []string{"part1", "part2"}, childSlugs(&content.Container))
		assert.Equal(t, "part1/part3", nodes["part3"].Path(true))
	})
	t.Run("container too deep", func(t *testing.T) {
		content, nodes := newBigTree(t)
		assert.True(t, errors.Is(MoveBeside(nodes["part1"], nodes["chapter1"], false), ErrCannotMove))
		assert.Equal(t, []string{"part1", "part2", "part3"}, childSlugs(&content.Container))
	})
	t.Run("extract renamed on conflict", func(t *testing.T) {
		_, nodes := newBigTree(t)
		a := NewExtract("Same", "")
		b := NewExtract("Same", "")
		require.Nil(t, nodes["part2"].AddExtract(a))
		require.Nil(t, nodes["part3"].AddExtract(b))
		require.Nil(t, MoveBeside(b, a, false))
		assert.Equal(t, []string{"same-1", "same"}, childSlugs(nodes["part2"]))
		assert.Empty(t, nodes["part3"].Children())
	})
	t.Run("kinds must match", func(t *testing.T) {
		_, nodes := newBigTree(t)
		e := NewExtract("E", "")
		require.Nil(t, nodes["part2"].AddExtract(e))
		assert.True(t, errors.Is(MoveBeside(e, nodes["part3"], false), ErrCannotMove))
		assert.True(t, errors.Is(MoveBeside(nodes["part3"], e, false), ErrCannotMove))
	})
}

func TestMoveInto(t *testing.T) {
	_, nodes := newBigTree(t)
	e := NewExtract("E", "")
	require.Nil(t, nodes["chapter1"].AddExtract(e))

	require.Nil(t, MoveInto(e, nodes["part3"]))
	assert.Equal(t, "part3/e", e.FullSlug())
	assert.Empty(t, nodes["chapter1"].Children())

	assert.True(t, errors.Is(MoveInto(e, nodes["part1"]), ErrCannotMove))
	assert.Same(t, nodes["part3"], e.Parent())
}

func TestWalkAndFind(t *testing.T) {
	content, nodes := newBigTree(t)
	require.Nil(t, nodes["chapter1"].AddExtract(NewExtract("E", "")))

	var paths []string
	require.Nil(t, Walk(&content.Container, func(n Node) error {
		paths = append(paths, PathOf(n))
		return nil
	}))
	assert.Equal(t, []string{"", "part1", "part1/chapter1", "part1/chapter1/e", "part2", "part3"}, paths)

	assert.Same(t, nodes["part2"], Find(&content.Container, "part2"))
	assert.Nil(t, Find(&content.Container, "part4"))

	stop := errors.New("stop")
	count := 0
	err := Walk(&content.Container, func(n Node) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	assert.Same(t, stop, err)
	assert.Equal(t, 2, count)
}

func TestPrune(t *testing.T) {
	content, nodes := newBigTree(t)
	require.Nil(t, nodes["chapter1"].AddExtract(NewExtract("E", "text")))
	nodes["part2"].ReadyToPublish = false

	pruned := Prune(content)
	assert.Equal(t, []string{"part1", "part3"}, childSlugs(&pruned.Container))
	assert.Equal(t, []string{"part1", "part2", "part3"}, childSlugs(&content.Container))

	chapter := Find(&pruned.Container, "part1/chapter1").(*Container)
	assert.NotSame(t, nodes["chapter1"], chapter)
	assert.Same(t, &pruned.Container, chapter.Root())
	assert.Equal(t, "text", chapter.Children()[0].(*Extract).Text)

	cloned := Clone(content)
	assert.Equal(t, []string{"part1", "part2", "part3"}, childSlugs(&cloned.Container))
}
