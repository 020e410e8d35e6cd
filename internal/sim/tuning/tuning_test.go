package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	raw := []byte(`
currency: "¤"
contracts:
  base_payout: 250
board:
  max_open: 3
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Currency != "¤" || got.Contracts.BasePayout != 250 || got.Board.MaxOpen != 3 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	def := Defaults()
	if got.Contracts.TimeIncrement != def.Contracts.TimeIncrement || got.Board.LocalBidder != def.Board.LocalBidder {
		t.Fatalf("unset keys should keep defaults: %+v", got)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("contracts:\n  time_min: 9\n  time_max: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for time_max < time_min")
	}
}

func TestValidateLocalBidder(t *testing.T) {
	tu := Defaults()
	tu.Board.LocalBidder = "a,b"
	if err := tu.Validate(); err == nil {
		t.Fatalf("expected error for local bidder with comma")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
