// Package grid is the world-state tilemap that contract requirements are
// evaluated against. Cells hold catalog palette indices; 0 is empty.
package grid

import (
	"fmt"
	"strings"

	"asteroidworks.ai/internal/sim/catalogs"
)

type Tilemap struct {
	W, H  int
	Cells []uint16

	cat *catalogs.TileCatalog
}

func New(cat *catalogs.TileCatalog, w, h int) *Tilemap {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Tilemap{W: w, H: h, Cells: make([]uint16, w*h), cat: cat}
}

func (m *Tilemap) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.W && y < m.H
}

// Set places tileID at (x, y). An empty tileID clears the cell.
func (m *Tilemap) Set(x, y int, tileID string) error {
	if !m.inBounds(x, y) {
		return fmt.Errorf("grid: (%d,%d) out of bounds %dx%d", x, y, m.W, m.H)
	}
	idx, ok := m.cat.Index[tileID]
	if !ok {
		return fmt.Errorf("grid: unknown tile %q", tileID)
	}
	m.Cells[y*m.W+x] = idx
	return nil
}

func (m *Tilemap) Clear(x, y int) {
	if m.inBounds(x, y) {
		m.Cells[y*m.W+x] = 0
	}
}

// At returns the tile at (x, y), or nil for empty or out-of-bounds cells.
func (m *Tilemap) At(x, y int) *catalogs.TileDef {
	if !m.inBounds(x, y) {
		return nil
	}
	return m.def(m.Cells[y*m.W+x])
}

func (m *Tilemap) def(idx uint16) *catalogs.TileDef {
	if idx == 0 || int(idx) >= len(m.cat.Palette) {
		return nil
	}
	return m.cat.Defs[m.cat.Palette[idx]]
}

// ForEachOccupied visits every non-empty cell in row-major order until fn
// returns false.
func (m *Tilemap) ForEachOccupied(fn func(*catalogs.TileDef) bool) {
	for _, idx := range m.Cells {
		d := m.def(idx)
		if d == nil {
			continue
		}
		if !fn(d) {
			return
		}
	}
}

func (m *Tilemap) Count(tileID string) int {
	idx, ok := m.cat.Index[tileID]
	if !ok || idx == 0 {
		return 0
	}
	n := 0
	for _, c := range m.Cells {
		if c == idx {
			n++
		}
	}
	return n
}

// ParseRows builds a tilemap from rows of comma-separated tile save codes.
// Blank cells and "." are empty. Short rows are padded with empty cells.
func ParseRows(cat *catalogs.TileCatalog, rows []string) (*Tilemap, error) {
	w := 0
	split := make([][]string, len(rows))
	for i, r := range rows {
		split[i] = strings.Split(r, ",")
		if len(split[i]) > w {
			w = len(split[i])
		}
	}
	m := New(cat, w, len(rows))
	for y, cells := range split {
		for x, code := range cells {
			code = strings.TrimSpace(code)
			if code == "" || code == "." {
				continue
			}
			d, ok := cat.BySaveCode(code)
			if !ok {
				return nil, fmt.Errorf("grid: row %d col %d: unknown save code %q", y, x, code)
			}
			m.Cells[y*w+x] = cat.Index[d.ID]
		}
	}
	return m, nil
}

// Rows is the inverse of ParseRows.
func (m *Tilemap) Rows() []string {
	out := make([]string, m.H)
	codes := make([]string, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			codes[x] = "."
			if d := m.def(m.Cells[y*m.W+x]); d != nil {
				codes[x] = d.SaveCode
			}
		}
		out[y] = strings.Join(codes, ",")
	}
	return out
}

// Encode packs the cells with run-length encoding. The palette is the
// catalog's, so the result is only meaningful with the same catalog digest.
func (m *Tilemap) Encode() string {
	return encodeRLE(m.Cells)
}

// Decode is the inverse of Encode for a w by h grid.
func Decode(cat *catalogs.TileCatalog, w, h int, b64 string) (*Tilemap, error) {
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("grid: bad size %dx%d", w, h)
	}
	if w > 0 && h > maxCells/w {
		return nil, fmt.Errorf("grid: %dx%d exceeds %d cells", w, h, maxCells)
	}
	cells, err := decodeRLE(b64, uint64(w*h))
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	if len(cells) != w*h {
		return nil, fmt.Errorf("grid: decoded %d cells, want %dx%d", len(cells), w, h)
	}
	for i, c := range cells {
		if int(c) >= len(cat.Palette) {
			return nil, fmt.Errorf("grid: cell %d: palette index %d out of range", i, c)
		}
	}
	return &Tilemap{W: w, H: h, Cells: cells, cat: cat}, nil
}
