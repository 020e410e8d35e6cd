// Package contracts implements procedurally generated asteroid contracts:
// requirement variants, random generation, the reverse auction and the
// comma-separated save format.
package contracts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"asteroidworks.ai/internal/sim/catalogs"
)

var (
	ErrNotImplemented = errors.New("not implemented")
	ErrMalformed      = errors.New("malformed contract record")
)

type Type string

const (
	Housing          Type = "Housing"
	Industrial       Type = "Industrial"
	LuxuryHousing    Type = "LuxuryHousing"
	ApartmentHousing Type = "ApartmentHousing"
	Farming          Type = "Farming"
	Storage          Type = "Storage"
)

// Types is in declaration order; uniform picks index into it.
var Types = []Type{Housing, Industrial, LuxuryHousing, ApartmentHousing, Farming, Storage}

func (t Type) Valid() bool {
	for _, x := range Types {
		if x == t {
			return true
		}
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown contract type %q", ErrMalformed, s)
	}
	return t, nil
}

type Size int

const (
	Small  Size = 1
	Medium Size = 4
	Large  Size = 16
)

var Sizes = []Size{Small, Medium, Large}

func (s Size) Valid() bool {
	return s == Small || s == Medium || s == Large
}

func (s Size) String() string {
	switch s {
	case Small:
		return "Small"
	case Medium:
		return "Medium"
	case Large:
		return "Large"
	default:
		return strconv.Itoa(int(s))
	}
}

// ParseSize accepts either the size name or its numeric value.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	for _, x := range Sizes {
		if x.String() == s {
			return x, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Size(n).Valid() {
		return Size(n), nil
	}
	return 0, fmt.Errorf("%w: unknown contract size %q", ErrMalformed, s)
}

// requirementAttempts is the half-open range the attempt count is drawn from.
func (s Size) requirementAttempts() (int, int) {
	switch s {
	case Medium:
		return 3, 6
	case Large:
		return 5, 8
	default:
		return 1, 4
	}
}

// Bidder identifies a participant in the auction. NoBidder marks a contract
// nobody holds yet.
type Bidder string

const (
	NoBidder    Bidder = ""
	LocalPlayer Bidder = "You"
)

func (b Bidder) IsLocal() bool { return b == LocalPlayer }

// Valid reports whether b can be stored in a contract record.
func (b Bidder) Valid() bool {
	return b != NoBidder && !strings.ContainsAny(string(b), ",.\r\n")
}

type Contract struct {
	Type Type
	Size Size

	StartingAmount int
	Payout         int
	BidEndTime     uint64

	LowBidder   Bidder
	ReservedBid int

	Requirements []Requirement
}

func (c *Contract) Clone() *Contract {
	out := *c
	out.Requirements = append([]Requirement(nil), c.Requirements...)
	return &out
}

// Grid is the world state requirements are evaluated against. Implementations
// must not be mutated while a visit is in progress.
type Grid interface {
	ForEachOccupied(fn func(*catalogs.TileDef) bool)
}

// TileSource is the subset of the tile catalog generation and decoding need.
type TileSource interface {
	WithTag(tag string) []*catalogs.TileDef
	WithoutTag(tag string) []*catalogs.TileDef
	BySaveCode(code string) (*catalogs.TileDef, bool)
}

type Clock interface {
	Now() uint64
}
