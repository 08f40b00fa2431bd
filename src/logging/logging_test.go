package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"git.handmade.network/hmn/edu/src/oops"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPrettyWriter(t *testing.T) {
	t.Run("plain message", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(newPrettyZerologWriter(&buf))
		logger.Info().Msg("content published")

		assert.Contains(t, buf.String(), "INFO")
		assert.Contains(t, buf.String(), "content published")
		assert.NotContains(t, buf.String(), "Fields:")
	})
	t.Run("fields and errors", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(newPrettyZerologWriter(&buf))
		logger.Error().
			Err(oops.New(errors.New("disk full"), "failed to write manifest")).
			Int("content", 12).
			Msg("publication failed")

		out := buf.String()
		assert.Contains(t, out, "ERROR:")
		assert.Contains(t, out, "failed to write manifest: disk full")
		assert.Contains(t, out, "content: 12")
	})
	t.Run("not json", func(t *testing.T) {
		var buf bytes.Buffer
		w := newPrettyZerologWriter(&buf)
		n, err := w.Write([]byte("raw line\n"))
		assert.Nil(t, err)
		assert.Equal(t, 9, n)
		assert.Equal(t, "raw line\n", buf.String())
	})
}

func TestContextLogger(t *testing.T) {
	t.Run("attached", func(t *testing.T) {
		logger := zerolog.Nop()
		ctx := AttachLoggerToContext(&logger, context.Background())
		assert.Same(t, &logger, ExtractLogger(ctx))
	})
	t.Run("missing", func(t *testing.T) {
		assert.Same(t, GlobalLogger(), ExtractLogger(context.Background()))
	})
}
