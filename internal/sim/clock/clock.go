// Package clock supplies the integer tick that contract deadlines are
// measured against. One tick is one simulated second.
package clock

import "sync/atomic"

type Clock interface {
	Now() uint64
}

// Manual is a clock that only moves when told to.
type Manual struct {
	now atomic.Uint64
}

func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() uint64 { return m.now.Load() }

func (m *Manual) Set(t uint64) { m.now.Store(t) }

// Advance moves the clock forward by d ticks and returns the new time.
func (m *Manual) Advance(d uint64) uint64 { return m.now.Add(d) }
