package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Currency           string `yaml:"currency" json:"currency"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Contracts Contracts `yaml:"contracts" json:"contracts"`
	Board     Board     `yaml:"board" json:"board"`
}

// Contracts holds the generation constants. Payout and deadline draws use
// upper-exclusive ranges; the value variation is inclusive on both ends.
type Contracts struct {
	BasePayout      int `yaml:"base_payout" json:"base_payout"`
	PayoutVariation int `yaml:"payout_variation" json:"payout_variation"`

	TimeMin       int `yaml:"time_min" json:"time_min"`
	TimeMax       int `yaml:"time_max" json:"time_max"`
	TimeIncrement int `yaml:"time_increment" json:"time_increment"`

	ValueMod       int `yaml:"value_mod" json:"value_mod"`
	ValueVariation int `yaml:"value_variation" json:"value_variation"`
	ValueIncrement int `yaml:"value_increment" json:"value_increment"`
}

type Board struct {
	GenerateEveryTicks int    `yaml:"generate_every_ticks" json:"generate_every_ticks"`
	MaxOpen            int    `yaml:"max_open" json:"max_open"`
	LocalBidder        string `yaml:"local_bidder" json:"local_bidder"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         1,
		Currency:           "$",
		SnapshotEveryTicks: 300,
		Contracts: Contracts{
			BasePayout:      100,
			PayoutVariation: 10,
			TimeMin:         2,
			TimeMax:         10,
			TimeIncrement:   60,
			ValueMod:        500,
			ValueVariation:  2,
			ValueIncrement:  50,
		},
		Board: Board{
			GenerateEveryTicks: 30,
			MaxOpen:            8,
			LocalBidder:        "You",
		},
	}
}

// Load reads tuning.yaml on top of Defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	c := t.Contracts
	if c.BasePayout <= 0 {
		return fmt.Errorf("contracts.base_payout must be > 0")
	}
	if c.PayoutVariation < 0 || c.ValueVariation < 0 {
		return fmt.Errorf("contracts: variations must be >= 0")
	}
	if c.PayoutVariation >= c.BasePayout {
		return fmt.Errorf("contracts.payout_variation must be below base_payout")
	}
	if c.TimeMin <= 0 || c.TimeMax < c.TimeMin || c.TimeIncrement <= 0 {
		return fmt.Errorf("contracts: need 0 < time_min <= time_max and time_increment > 0")
	}
	if c.ValueMod < 0 || c.ValueIncrement < 0 {
		return fmt.Errorf("contracts: value_mod and value_increment must be >= 0")
	}
	b := t.Board
	if b.GenerateEveryTicks < 0 || b.MaxOpen < 0 {
		return fmt.Errorf("board: generate_every_ticks and max_open must be >= 0")
	}
	local := strings.TrimSpace(b.LocalBidder)
	if local == "" || strings.ContainsAny(local, ",.\n") {
		return fmt.Errorf("board.local_bidder must be non-empty without ',' '.' or newlines")
	}
	return nil
}
