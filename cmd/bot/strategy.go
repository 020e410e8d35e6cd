package main

import (
	"math"
	"math/rand/v2"

	"asteroidworks.ai/internal/protocol"
)

// strategy undercuts the visible payout by a small random margin but never
// goes below floor*StartingAmount. It bids at most once per contract per tick.
type strategy struct {
	me    string
	floor float64
	step  int
	rand  *rand.Rand
	last  map[string]uint64
}

func (s *strategy) reserve(c protocol.ContractView) int {
	return int(math.Ceil(float64(c.StartingAmount) * s.floor))
}

func (s *strategy) decide(tick uint64, c protocol.ContractView) (int, bool) {
	if c.Phase != "bidding" {
		delete(s.last, c.ID)
		return 0, false
	}
	if c.LowBidder == s.me {
		return 0, false
	}
	if t, ok := s.last[c.ID]; ok && t == tick {
		return 0, false
	}
	amount := c.Payout - 1
	if s.step > 0 {
		amount -= s.rand.IntN(s.step + 1)
	}
	if lo := s.reserve(c); amount < lo {
		amount = lo
	}
	if amount <= 0 || amount >= c.Payout {
		return 0, false
	}
	s.last[c.ID] = tick
	return amount, true
}
