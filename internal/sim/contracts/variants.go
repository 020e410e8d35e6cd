package contracts

import (
	"fmt"
	"strconv"

	"asteroidworks.ai/internal/sim/catalogs"
)

// variant is the dispatch entry for one requirement kind. create returns
// ok=false when no eligible tile remains.
type variant struct {
	weight   func(existing []Requirement) float64
	create   func(g *Generator, size Size, typ Type, existing []Requirement) (Requirement, bool, error)
	passes   func(r Requirement, g Grid) (bool, error)
	encode   func(r Requirement) ([]string, error)
	decode   func(params []string, tiles TileSource) (Requirement, error)
	describe func(r Requirement, currency string) string
}

var variants = map[Kind]variant{
	KindTileCount: {
		weight: func([]Requirement) float64 { return 5.0 / 6.0 },
		create: func(g *Generator, size Size, typ Type, existing []Requirement) (Requirement, bool, error) {
			eligible := withoutUsed(g.Tiles.WithTag(string(typ)), existing, KindTileCount)
			if len(eligible) == 0 {
				return Requirement{}, false, nil
			}
			t := eligible[g.Rand.Pick(len(eligible))]
			return TileCount(t, g.Rand.Range(1, int(size)*t.Rarity)), true, nil
		},
		passes: func(r Requirement, g Grid) (bool, error) {
			if r.Tile == nil {
				return false, fmt.Errorf("tile count requirement without tile")
			}
			n := 0
			g.ForEachOccupied(func(d *catalogs.TileDef) bool {
				if d.ID == r.Tile.ID {
					n++
				}
				return n < r.Count
			})
			return n >= r.Count, nil
		},
		encode: func(r Requirement) ([]string, error) {
			if r.Tile == nil {
				return nil, fmt.Errorf("tile count requirement without tile")
			}
			return []string{strconv.Itoa(r.Count), r.Tile.SaveCode}, nil
		},
		decode: func(p []string, tiles TileSource) (Requirement, error) {
			if len(p) != 2 {
				return Requirement{}, fmt.Errorf("want 2 params, got %d", len(p))
			}
			n, err := strconv.Atoi(p[0])
			if err != nil {
				return Requirement{}, err
			}
			t, ok := tiles.BySaveCode(p[1])
			if !ok {
				return Requirement{}, fmt.Errorf("unknown tile save code %q", p[1])
			}
			return TileCount(t, n), nil
		},
		describe: func(r Requirement, _ string) string {
			return fmt.Sprintf("%dx %s", r.Count, tileName(r.Tile))
		},
	},

	KindTileExclusion: {
		weight: func([]Requirement) float64 { return 1.0 / 6.0 },
		create: func(g *Generator, _ Size, typ Type, existing []Requirement) (Requirement, bool, error) {
			eligible := withoutUsed(g.Tiles.WithoutTag(string(typ)), existing, KindTileExclusion)
			if len(eligible) == 0 {
				return Requirement{}, false, nil
			}
			return TileExclusion(eligible[g.Rand.Pick(len(eligible))]), true, nil
		},
		passes: func(r Requirement, g Grid) (bool, error) {
			if r.Tile == nil {
				return false, fmt.Errorf("tile exclusion requirement without tile")
			}
			found := false
			g.ForEachOccupied(func(d *catalogs.TileDef) bool {
				found = d.ID == r.Tile.ID
				return !found
			})
			return !found, nil
		},
		encode: func(r Requirement) ([]string, error) {
			if r.Tile == nil {
				return nil, fmt.Errorf("tile exclusion requirement without tile")
			}
			return []string{r.Tile.SaveCode}, nil
		},
		decode: func(p []string, tiles TileSource) (Requirement, error) {
			if len(p) != 1 {
				return Requirement{}, fmt.Errorf("want 1 param, got %d", len(p))
			}
			t, ok := tiles.BySaveCode(p[0])
			if !ok {
				return Requirement{}, fmt.Errorf("unknown tile save code %q", p[0])
			}
			return TileExclusion(t), nil
		},
		describe: func(r Requirement, _ string) string {
			return "No " + tileName(r.Tile)
		},
	},

	KindMinimumValue: {
		weight: func([]Requirement) float64 { return 0 },
		create: func(g *Generator, size Size, _ Type, _ []Requirement) (Requirement, bool, error) {
			t := g.Tune
			swing := g.Rand.Range(-t.ValueVariation, t.ValueVariation+1) * t.ValueIncrement * int(size)
			return MinimumValue(int(size)*t.ValueMod + swing), true, nil
		},
		passes: func(r Requirement, g Grid) (bool, error) {
			total := 0
			g.ForEachOccupied(func(d *catalogs.TileDef) bool {
				total += d.Value
				return true
			})
			return total >= r.Value, nil
		},
		encode: func(r Requirement) ([]string, error) {
			return []string{strconv.Itoa(r.Value)}, nil
		},
		decode: func(p []string, _ TileSource) (Requirement, error) {
			if len(p) != 1 {
				return Requirement{}, fmt.Errorf("want 1 param, got %d", len(p))
			}
			v, err := strconv.Atoi(p[0])
			if err != nil {
				return Requirement{}, err
			}
			return MinimumValue(v), nil
		},
		describe: func(r Requirement, currency string) string {
			return fmt.Sprintf("Asteroid Value at least %s%d", currency, r.Value)
		},
	},

	KindRoomCount: {
		weight: func([]Requirement) float64 { return 0 },
		create: func(*Generator, Size, Type, []Requirement) (Requirement, bool, error) {
			return Requirement{}, false, fmt.Errorf("room count create: %w", ErrNotImplemented)
		},
		passes: func(Requirement, Grid) (bool, error) {
			return false, fmt.Errorf("room count passes: %w", ErrNotImplemented)
		},
		encode: func(Requirement) ([]string, error) {
			return nil, fmt.Errorf("room count encode: %w", ErrNotImplemented)
		},
		decode: func([]string, TileSource) (Requirement, error) {
			return Requirement{}, fmt.Errorf("room count decode: %w", ErrNotImplemented)
		},
		describe: func(r Requirement, _ string) string {
			if r.Count > 1 {
				return fmt.Sprintf("%d Rooms", r.Count)
			}
			return fmt.Sprintf("%d Room", r.Count)
		},
	},
}

// mandatoryKinds are added before any optional kind, in this order.
var mandatoryKinds = []Kind{KindMinimumValue}

// optionalKinds is the declaration order the weighted draw walks.
var optionalKinds = []Kind{KindTileCount, KindTileExclusion}

func tileName(t *catalogs.TileDef) string {
	if t == nil {
		return "?"
	}
	return t.Plural()
}
