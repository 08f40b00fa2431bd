package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastParticipationIsOld(t *testing.T) {
	intPtr := func(i int) *int { return &i }

	t.Run("never read", func(t *testing.T) {
		assert.False(t, LastParticipationIsOld(nil, intPtr(3)))
	})
	t.Run("no reactions", func(t *testing.T) {
		assert.False(t, LastParticipationIsOld(nil, nil))
		assert.False(t, LastParticipationIsOld(&ContentRead{ReactionID: 3}, nil))
	})
	t.Run("read the latest", func(t *testing.T) {
		assert.False(t, LastParticipationIsOld(&ContentRead{ReactionID: 3}, intPtr(3)))
	})
	t.Run("newer reaction since", func(t *testing.T) {
		assert.True(t, LastParticipationIsOld(&ContentRead{ReactionID: 3}, intPtr(4)))
	})
}

func TestContentType(t *testing.T) {
	assert.True(t, ContentTypeTutorial.Valid())
	assert.True(t, ContentType("OPINION").Valid())
	assert.False(t, ContentType("tutorial").Valid())

	c := Content{Authors: []*User{{ID: 2}, {ID: 7}}}
	assert.True(t, c.HasAuthor(7))
	assert.False(t, c.HasAuthor(3))
	assert.False(t, c.IsPublished())
}
