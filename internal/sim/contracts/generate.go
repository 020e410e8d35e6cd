package contracts

import (
	"fmt"

	"asteroidworks.ai/internal/sim/rng"
	"asteroidworks.ai/internal/sim/tuning"
)

// Generator creates random contracts. Every draw comes from Rand in a fixed
// order (size, type, payout, attempt count, requirements, deadline), so a
// restored source regenerates identical contracts.
type Generator struct {
	Tiles TileSource
	Tune  tuning.Contracts
	Rand  *rng.Source
	Clock Clock
}

func (g *Generator) now() uint64 {
	if g.Clock == nil {
		return 0
	}
	return g.Clock.Now()
}

// Random picks a size and a type uniformly, then generates.
func (g *Generator) Random() (*Contract, error) {
	size := Sizes[g.Rand.Pick(len(Sizes))]
	typ := Types[g.Rand.Pick(len(Types))]
	return g.Generate(size, typ)
}

func (g *Generator) Generate(size Size, typ Type) (*Contract, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("generate: invalid size %d", int(size))
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("generate: invalid type %q", typ)
	}
	t := g.Tune
	payout := t.BasePayout*int(size) + g.Rand.Range(-t.PayoutVariation, t.PayoutVariation)
	c := &Contract{
		Type:           typ,
		Size:           size,
		Payout:         payout,
		StartingAmount: payout,
	}

	// Each attempt may come back empty once tiles run out; the contract
	// then simply has fewer requirements.
	lo, hi := size.requirementAttempts()
	attempts := g.Rand.Range(lo, hi)
	for i := 0; i < attempts; i++ {
		r, ok, err := g.selectNext(size, typ, c.Requirements)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if ok {
			c.Requirements = append(c.Requirements, r)
		}
	}

	c.BidEndTime = g.now() + uint64(g.Rand.Range(t.TimeMin, t.TimeMax)*t.TimeIncrement)
	return c, nil
}

// Instantiate creates one requirement of the given kind, bypassing selection.
func (g *Generator) Instantiate(kind Kind, size Size, typ Type, existing []Requirement) (Requirement, bool, error) {
	v, ok := variants[kind]
	if !ok {
		return Requirement{}, false, fmt.Errorf("requirement kind %q: %w", kind, ErrNotImplemented)
	}
	return v.create(g, size, typ, existing)
}
