// Package height provides the chain height the guild registry uses for
// creation stamps and proposal expiry.
package height

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// DefaultBlockInterval makes 144 blocks roughly one day.
const DefaultBlockInterval = 10 * time.Minute

// Max is the highest height a source reports; stores keep heights in
// signed 64-bit columns.
const Max uint64 = math.MaxInt64

var (
	ErrBackwards = errors.New("height: cannot move backwards")
	ErrOverflow  = errors.New("height: beyond maximum height")
)

// Clock derives the height from wall time: (now - genesis) / interval.
// It never reports a lower height than it already returned, even if the
// system clock steps backwards.
type Clock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewClock returns a Clock counting blocks of interval length since genesis.
func NewClock(genesis time.Time, interval time.Duration) (*Clock, error) {
	if interval <= 0 {
		return nil, errors.New("height: block interval must be positive")
	}
	if genesis.IsZero() {
		return nil, errors.New("height: genesis is required")
	}
	return &Clock{genesis: genesis, interval: interval, now: time.Now}, nil
}

// Height implements guild.HeightSource.
func (c *Clock) Height(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var h uint64
	if elapsed := c.now().Sub(c.genesis); elapsed > 0 {
		h = uint64(elapsed / c.interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h < c.last {
		return c.last, nil
	}
	c.last = h
	return h, nil
}

// Manual is a height that only moves when told to. Used by tests and dev
// setups that want to step through proposal windows.
type Manual struct {
	mu sync.Mutex
	h  uint64
}

// NewManual starts at h, clamped to Max.
func NewManual(h uint64) *Manual {
	return &Manual{h: min(h, Max)}
}

// Height implements guild.HeightSource.
func (m *Manual) Height(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h, nil
}

// Advance moves the height forward by n and returns the new value. The
// height is left alone when the result would pass Max.
func (m *Manual) Advance(n uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > Max-m.h {
		return m.h, ErrOverflow
	}
	m.h += n
	return m.h, nil
}

// Set jumps to h. Moving backwards or past Max is refused.
func (m *Manual) Set(h uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h < m.h {
		return ErrBackwards
	}
	if h > Max {
		return ErrOverflow
	}
	m.h = h
	return nil
}
