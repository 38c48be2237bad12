package xio

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapReader(t *testing.T) {
	t.Run("keeps WriterTo", func(t *testing.T) {
		closed := false
		rc := WrapReader(strings.NewReader("hello world"), func() error {
			closed = true
			return nil
		})
		assert.IsType(t, readCloserWriterTo{}, rc)
		require.NoError(t, rc.Close())
		assert.True(t, closed)
	})

	t.Run("plain reader", func(t *testing.T) {
		closed := false
		r := iotest.DataErrReader(strings.NewReader("hello world"))
		rc := WrapReader(r, func() error {
			closed = true
			return nil
		})
		assert.IsType(t, readCloser{}, rc)
		require.NoError(t, rc.Close())
		assert.True(t, closed)
	})

	t.Run("nil closer", func(t *testing.T) {
		rc := WrapReader(iotest.DataErrReader(strings.NewReader("x")), nil)
		require.NoError(t, rc.Close())
	})
}
