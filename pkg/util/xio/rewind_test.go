package xio

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewindReader(t *testing.T) {
	data := "the header\nthe body\n"

	r := NewRewindReader(iotest.DataErrReader(strings.NewReader(data)))

	// The head of the stream reads the same every time.
	buf := make([]byte, len("the header"))
	for i := 0; i < 10; i++ {
		r.Rewind()
		n, err := io.ReadFull(r, buf)
		require.NoError(t, err, "iteration %d", i)
		assert.Equal(t, "the header", string(buf[:n]), "iteration %d", i)
	}

	// Handing over after a rewind serves the full stream from the start.
	r.Rewind()
	rest, err := io.ReadAll(r.Reader())
	require.NoError(t, err)
	assert.Equal(t, data, string(rest))
}

func TestRewindReaderSeekable(t *testing.T) {
	data := "sniff me twice"
	src := strings.NewReader(data)

	r := NewRewindReader(src)
	head := make([]byte, 5)
	_, err := io.ReadFull(r, head)
	require.NoError(t, err)

	// A seekable source is rewound in place, Reader returns it directly.
	got, err := io.ReadAll(r.Reader())
	require.NoError(t, err)
	assert.Equal(t, data, string(got))
}

func TestRewindReaderNil(t *testing.T) {
	assert.Nil(t, NewRewindReader(nil))
}
