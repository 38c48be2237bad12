package compression

// Option tunes how a format compresses or uncompresses. Formats ignore
// options they have no equivalent for.
type Option func(o *Options)

// Options is the combined option set. Format implementations narrow it with
// CompressOptions or UncompressOptions so each code path only sees the knobs
// that apply to it.
type Options struct {
	// Level is the encoder level in the format's native scale. Nil selects
	// the format's default.
	Level *int
	// Multithread selects a parallel encoder or decoder where the format
	// ships one.
	Multithread bool
}

// MakeOptions applies opts over the zero option set.
func MakeOptions(opts ...Option) *Options {
	o := &Options{}
	for _, apply := range opts {
		apply(o)
	}
	return o
}

// CompressOptions narrows the set to the write path.
func (o *Options) CompressOptions() *CompressOptions {
	return &CompressOptions{
		Level:       o.Level,
		Multithread: o.Multithread,
	}
}

// UncompressOptions narrows the set to the read path.
func (o *Options) UncompressOptions() *UncompressOptions {
	return &UncompressOptions{
		Multithread: o.Multithread,
	}
}

// CompressOptions are the knobs available when wrapping a writer.
type CompressOptions struct {
	Level       *int
	Multithread bool
}

// UncompressOptions are the knobs available when wrapping a reader.
type UncompressOptions struct {
	Multithread bool
}

// WithLevel sets the encoder level in the format's native scale.
func WithLevel(level int) Option {
	return func(o *Options) {
		o.Level = &level
	}
}

// WithMultithread requests the parallel implementation of a format where one
// exists, trading memory for throughput on large payloads.
func WithMultithread(multithread bool) Option {
	return func(o *Options) {
		o.Multithread = multithread
	}
}
