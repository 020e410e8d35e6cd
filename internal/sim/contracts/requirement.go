package contracts

import (
	"fmt"

	"asteroidworks.ai/internal/sim/catalogs"
)

// Kind is the stable save tag of a requirement variant. Tags are never reused.
type Kind string

const (
	KindTileCount     Kind = "tr"
	KindTileExclusion Kind = "ter"
	KindMinimumValue  Kind = "vr"
	// KindRoomCount is reserved; every operation on it fails.
	KindRoomCount Kind = "rm"
)

// Requirement is a closed variant over Kind. Only the fields the kind uses
// are set: TileCount uses Tile and Count, TileExclusion uses Tile,
// MinimumValue uses Value, RoomCount uses Count.
type Requirement struct {
	Kind  Kind
	Tile  *catalogs.TileDef
	Count int
	Value int
}

// TileCount requires at least count tiles of the given type.
func TileCount(tile *catalogs.TileDef, count int) Requirement {
	return Requirement{Kind: KindTileCount, Tile: tile, Count: count}
}

// TileExclusion requires that no tile of the given type is present.
func TileExclusion(tile *catalogs.TileDef) Requirement {
	return Requirement{Kind: KindTileExclusion, Tile: tile}
}

// MinimumValue requires the summed tile value to reach value.
func MinimumValue(value int) Requirement {
	return Requirement{Kind: KindMinimumValue, Value: value}
}

// RoomCount is reserved. Evaluating or encoding it fails with ErrNotImplemented.
func RoomCount(rooms int) Requirement {
	return Requirement{Kind: KindRoomCount, Count: rooms}
}

// Passes reports whether the grid satisfies the requirement. The grid is only
// read.
func (r Requirement) Passes(g Grid) (bool, error) {
	v, ok := variants[r.Kind]
	if !ok {
		return false, fmt.Errorf("requirement kind %q: %w", r.Kind, ErrNotImplemented)
	}
	return v.passes(r, g)
}

func (r Requirement) Describe(currency string) string {
	v, ok := variants[r.Kind]
	if !ok {
		return string(r.Kind)
	}
	return v.describe(r, currency)
}

func hasKind(reqs []Requirement, k Kind) bool {
	for _, r := range reqs {
		if r.Kind == k {
			return true
		}
	}
	return false
}

// withoutUsed drops tiles already referenced by requirements of kind k.
func withoutUsed(tiles []*catalogs.TileDef, existing []Requirement, k Kind) []*catalogs.TileDef {
	out := make([]*catalogs.TileDef, 0, len(tiles))
	for _, t := range tiles {
		used := false
		for _, r := range existing {
			if r.Kind == k && r.Tile != nil && r.Tile.ID == t.ID {
				used = true
				break
			}
		}
		if !used {
			out = append(out, t)
		}
	}
	return out
}
