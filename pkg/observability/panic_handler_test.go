package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "unit")
		panic("kaboom")
	})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kaboom", entries[0]["panic"])
	assert.Equal(t, "unit", entries[0]["context"])
	assert.NotEmpty(t, entries[0]["stack"])
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad"), "panic: bad")
}
