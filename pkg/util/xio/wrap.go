package xio

import "io"

// WrapReader turns r into an io.ReadCloser whose Close calls closer. When r
// implements io.WriterTo the wrapper forwards it, so io.Copy keeps the fast
// path.
func WrapReader(r io.Reader, closer func() error) io.ReadCloser {
	if _, ok := r.(io.WriterTo); ok {
		return readCloserWriterTo{r, closer}
	}
	return readCloser{r, closer}
}

type readCloser struct {
	io.Reader
	closer func() error
}

func (r readCloser) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

type readCloserWriterTo struct {
	io.Reader
	closer func() error
}

func (r readCloserWriterTo) WriteTo(w io.Writer) (int64, error) {
	return r.Reader.(io.WriterTo).WriteTo(w)
}

func (r readCloserWriterTo) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}
