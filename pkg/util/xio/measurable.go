package xio

import (
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// NewMeasuredReader wraps r and counts the bytes read through it.
func NewMeasuredReader(r io.Reader) *MeasuredReader {
	return newMeasuredReader(r, clock.New())
}

func newMeasuredReader(r io.Reader, clk clock.Clock) *MeasuredReader {
	return &MeasuredReader{wrap: r, rate: rateCounter{time: clk}}
}

// MeasuredReader is a reader with byte accounting, used for transfer rate
// logging on ingest and read paths.
type MeasuredReader struct {
	wrap io.Reader
	rate rateCounter
}

func (m *MeasuredReader) Read(b []byte) (int, error) {
	n, err := m.wrap.Read(b)
	m.rate.Add(n)
	return n, err
}

// Total returns the number of bytes read so far.
func (m *MeasuredReader) Total() int64 {
	return m.rate.Total()
}

// BytesPer returns the observed rate per period since the previous
// measurement, the average over the whole read on the first call.
func (m *MeasuredReader) BytesPer(period time.Duration) float64 {
	return m.rate.Rate(period)
}

type rateCounter struct {
	mu   sync.Mutex
	time clock.Clock

	count     int64
	lastCount int64
	lastCheck time.Time
}

func (c *rateCounter) Add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count += int64(n)
	if c.lastCheck.IsZero() {
		c.lastCheck = c.time.Now()
	}
}

func (c *rateCounter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *rateCounter) Rate(period time.Duration) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.time.Now()
	between := now.Sub(c.lastCheck)
	changed := c.count - c.lastCount

	c.lastCount = c.count
	c.lastCheck = now
	return float64(changed*int64(period)) / float64(between)
}
