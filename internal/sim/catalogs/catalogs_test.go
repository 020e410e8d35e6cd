package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if c.Palette[0] != "" || c.Index[""] != 0 {
		t.Fatalf("palette slot 0 must be the empty cell: %v", c.Palette[:2])
	}
	if len(c.Palette) != len(c.Defs)+1 {
		t.Fatalf("palette/defs size mismatch: %d vs %d", len(c.Palette), len(c.Defs))
	}
	for i := 2; i < len(c.Palette); i++ {
		if c.Palette[i-1] >= c.Palette[i] {
			t.Fatalf("palette not sorted at %d: %v", i, c.Palette)
		}
	}
	if c.Digest == "" {
		t.Fatalf("expected digest")
	}

	io, ok := c.BySaveCode("io")
	if !ok || io.ID != "IRON_ORE" {
		t.Fatalf("BySaveCode(io) = %+v, %v", io, ok)
	}
	if io.Plural() != "Iron Ore" {
		t.Fatalf("unexpected plural %q", io.Plural())
	}
	if bed, _ := c.Tile("BED"); bed.Plural() != "Beds" {
		t.Fatalf("default plural should append s, got %q", bed.Plural())
	}
}

func TestTagFiltersPartitionCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, tag := range []string{"Housing", "Industrial", "LuxuryHousing", "ApartmentHousing", "Farming", "Storage"} {
		with := c.WithTag(tag)
		without := c.WithoutTag(tag)
		if len(with) == 0 || len(without) == 0 {
			t.Fatalf("%s: expected both relevant and irrelevant tiles, got %d/%d", tag, len(with), len(without))
		}
		if len(with)+len(without) != len(c.Defs) {
			t.Fatalf("%s: filters do not partition the catalog", tag)
		}
		for _, d := range with {
			if !d.HasTag(tag) {
				t.Fatalf("%s: %s returned by WithTag without the tag", tag, d.ID)
			}
		}
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"zero rarity": `[{"id":"ROCK","save_code":"rk","name":"Rock","rarity":0}]`,
		"bad tag":     `[{"id":"ROCK","save_code":"rk","name":"Rock","rarity":1,"tags":["Castle"]}]`,
		"missing id":  `[{"save_code":"rk","name":"Rock","rarity":1}]`,
		"empty":       `[]`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected schema error", name)
		}
	}
}

func TestParseRejectsDuplicateSaveCode(t *testing.T) {
	raw := `[
	  {"id":"ROCK","save_code":"rk","name":"Rock","rarity":1},
	  {"id":"RUBBLE","save_code":"rk","name":"Rubble","rarity":1}
	]`
	_, err := Parse([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "save code") {
		t.Fatalf("expected duplicate save code error, got %v", err)
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Tile("HOT_TUB"); !ok {
		t.Fatalf("expected built-in catalog")
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	raw := `[{"id":"ROCK","save_code":"rk","name":"Rock","rarity":1,"value":2}]`
	if err := os.WriteFile(filepath.Join(dir, "tiles.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Defs) != 1 || c.Defs["ROCK"].Value != 2 {
		t.Fatalf("unexpected catalog: %+v", c.Defs)
	}
}
