package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed tiles.json
var defaultTilesJSON []byte

//go:embed tiles.schema.json
var tilesSchemaJSON string

// TileDef is one placeable tile kind. Tags name the contract types the tile
// is relevant to; a tile with no tags is relevant to nothing.
type TileDef struct {
	ID         string   `json:"id"`
	SaveCode   string   `json:"save_code"`
	Name       string   `json:"name"`
	PluralName string   `json:"plural_name,omitempty"`
	Rarity     int      `json:"rarity"`
	Value      int      `json:"value,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (t *TileDef) Plural() string {
	if t.PluralName != "" {
		return t.PluralName
	}
	return t.Name + "s"
}

func (t *TileDef) HasTag(tag string) bool {
	for _, x := range t.Tags {
		if x == tag {
			return true
		}
	}
	return false
}

// TileCatalog indexes tiles by id and save code. Palette index 0 is reserved
// for the empty cell; tiles follow in id order.
type TileCatalog struct {
	Palette []string
	Index   map[string]uint16
	Defs    map[string]*TileDef
	BySave  map[string]*TileDef
	Digest  string
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func tilesSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("tiles.schema.json", tilesSchemaJSON)
	})
	return schema, schemaErr
}

// Load reads <configDir>/tiles.json. A missing file falls back to the
// built-in catalog.
func Load(configDir string) (*TileCatalog, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "tiles.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Default()
		}
		return nil, err
	}
	return Parse(raw)
}

func Default() (*TileCatalog, error) {
	return Parse(defaultTilesJSON)
}

func Parse(raw []byte) (*TileCatalog, error) {
	s, err := tilesSchema()
	if err != nil {
		return nil, fmt.Errorf("tiles schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tiles.json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("tiles.json: %w", err)
	}

	var defs []TileDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("tiles.json: %w", err)
	}
	c := &TileCatalog{
		Defs:   make(map[string]*TileDef, len(defs)),
		BySave: make(map[string]*TileDef, len(defs)),
		Digest: sha256Hex(raw),
	}
	for i := range defs {
		d := &defs[i]
		if _, dup := c.Defs[d.ID]; dup {
			return nil, fmt.Errorf("tiles.json: duplicate id %s", d.ID)
		}
		if other, dup := c.BySave[d.SaveCode]; dup {
			return nil, fmt.Errorf("tiles.json: save code %q used by %s and %s", d.SaveCode, other.ID, d.ID)
		}
		c.Defs[d.ID] = d
		c.BySave[d.SaveCode] = d
	}

	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.Palette = append([]string{""}, ids...)
	c.Index = make(map[string]uint16, len(c.Palette))
	for i, id := range c.Palette {
		c.Index[id] = uint16(i)
	}
	return c, nil
}

func (c *TileCatalog) Tile(id string) (*TileDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

func (c *TileCatalog) BySaveCode(code string) (*TileDef, bool) {
	d, ok := c.BySave[code]
	return d, ok
}

// All returns every tile in palette order.
func (c *TileCatalog) All() []*TileDef {
	out := make([]*TileDef, 0, len(c.Defs))
	for _, id := range c.Palette[1:] {
		out = append(out, c.Defs[id])
	}
	return out
}

func (c *TileCatalog) WithTag(tag string) []*TileDef {
	return c.filter(func(d *TileDef) bool { return d.HasTag(tag) })
}

func (c *TileCatalog) WithoutTag(tag string) []*TileDef {
	return c.filter(func(d *TileDef) bool { return !d.HasTag(tag) })
}

func (c *TileCatalog) filter(keep func(*TileDef) bool) []*TileDef {
	var out []*TileDef
	for _, d := range c.All() {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
