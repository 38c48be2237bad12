package xio

import (
	"context"
	"io"
	"sync"
)

// NewCanceledReadCloser couples a reader to a context: reads fail with the
// context error once the context is done, even while a Read is blocked on
// the underlying stream. The wrapper must be closed, closing also releases
// the goroutine pumping the underlying reader.
func NewCanceledReadCloser(ctx context.Context, in io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	c := &canceledReadCloser{pr: pr, pw: pw, done: make(chan struct{})}

	go func() {
		_, err := io.Copy(pw, in)
		select {
		case <-ctx.Done():
			// The watcher already failed the pipe with the context error,
			// overriding it here would change what Read reports.
		default:
			c.closeWithError(err)
		}
		CloseAndSkipError(in)
	}()
	go func() {
		select {
		case <-ctx.Done():
			c.closeWithError(ctx.Err())
		case <-c.done:
		}
	}()

	return c
}

type canceledReadCloser struct {
	pr   *io.PipeReader
	pw   *io.PipeWriter
	once sync.Once
	done chan struct{}
}

func (c *canceledReadCloser) Read(buf []byte) (int, error) {
	return c.pr.Read(buf)
}

// Close tears the pipe down; later reads return io.EOF.
func (c *canceledReadCloser) Close() error {
	c.closeWithError(io.EOF)
	return nil
}

// closeWithError fails the pipe with err. The first error wins, both for
// the pipe and for releasing the watcher goroutine.
func (c *canceledReadCloser) closeWithError(err error) {
	c.pw.CloseWithError(err)
	c.once.Do(func() { close(c.done) })
}
