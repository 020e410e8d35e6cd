// Package rng provides the seeded random source threaded through contract
// generation. All draws come from one PCG stream whose state can be saved and
// restored, so a resumed board regenerates exactly what an uninterrupted one would have.
package rng

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// pcgIncrement is the fixed second PCG word; only the seed varies per board.
const pcgIncrement = 0xda3e39cb94b95bdb

type Source struct {
	seed uint64
	pcg  *rand.PCG
	r    *rand.Rand
}

func New(seed uint64) *Source {
	pcg := rand.NewPCG(seed, pcgIncrement)
	return &Source{seed: seed, pcg: pcg, r: rand.New(pcg)}
}

func (s *Source) Seed() uint64 { return s.seed }

// Range returns an int in [min, max). When max <= min it returns min.
func (s *Source) Range(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.r.IntN(max-min)
}

// Float64 returns a float in [0, 1).
func (s *Source) Float64() float64 {
	return s.r.Float64()
}

// Pick returns a uniform index into a collection of n items, or -1 when n <= 0.
func (s *Source) Pick(n int) int {
	if n <= 0 {
		return -1
	}
	return s.r.IntN(n)
}

// MarshalBinary captures the current stream position (not just the seed).
func (s *Source) MarshalBinary() ([]byte, error) {
	state, err := s.pcg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(state)), s.seed)
	return append(out, state...), nil
}

func (s *Source) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("rng state: short buffer (%d bytes)", len(b))
	}
	pcg := &rand.PCG{}
	if err := pcg.UnmarshalBinary(b[8:]); err != nil {
		return fmt.Errorf("rng state: %w", err)
	}
	s.seed = binary.BigEndian.Uint64(b[:8])
	s.pcg = pcg
	s.r = rand.New(pcg)
	return nil
}
