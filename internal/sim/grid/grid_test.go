package grid

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"

	"asteroidworks.ai/internal/sim/catalogs"
)

func testCatalog(t *testing.T) *catalogs.TileCatalog {
	t.Helper()
	c, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestParseRowsAndCount(t *testing.T) {
	cat := testCatalog(t)
	m, err := ParseRows(cat, []string{
		"bd,bd,.",
		"io,,kt",
		"bd",
	})
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if m.W != 3 || m.H != 3 {
		t.Fatalf("size = %dx%d", m.W, m.H)
	}
	if got := m.Count("BED"); got != 3 {
		t.Fatalf("Count(BED) = %d", got)
	}
	if got := m.Count("HOT_TUB"); got != 0 {
		t.Fatalf("Count(HOT_TUB) = %d", got)
	}
	if d := m.At(0, 1); d == nil || d.ID != "IRON_ORE" {
		t.Fatalf("At(0,1) = %+v", d)
	}
	if m.At(1, 1) != nil || m.At(9, 9) != nil {
		t.Fatalf("expected empty cells")
	}

	occupied := 0
	m.ForEachOccupied(func(*catalogs.TileDef) bool { occupied++; return true })
	if occupied != 5 {
		t.Fatalf("occupied = %d", occupied)
	}

	want := []string{"bd,bd,.", "io,.,kt", "bd,.,."}
	for i, r := range m.Rows() {
		if r != want[i] {
			t.Fatalf("row %d = %q want %q", i, r, want[i])
		}
	}
}

func TestParseRowsUnknownCode(t *testing.T) {
	if _, err := ParseRows(testCatalog(t), []string{"bd,zz"}); err == nil {
		t.Fatalf("expected unknown save code error")
	}
}

func TestForEachOccupiedStops(t *testing.T) {
	m, err := ParseRows(testCatalog(t), []string{"rk,rk,rk,rk"})
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	visits := 0
	m.ForEachOccupied(func(*catalogs.TileDef) bool { visits++; return visits < 2 })
	if visits != 2 {
		t.Fatalf("visits = %d", visits)
	}
}

func TestSetAndClear(t *testing.T) {
	m := New(testCatalog(t), 4, 2)
	if err := m.Set(3, 1, "HOT_TUB"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(4, 0, "HOT_TUB"); err == nil {
		t.Fatalf("expected bounds error")
	}
	if err := m.Set(0, 0, "NOPE"); err == nil {
		t.Fatalf("expected unknown tile error")
	}
	if m.Count("HOT_TUB") != 1 {
		t.Fatalf("hot tub not placed")
	}
	m.Clear(3, 1)
	if m.Count("HOT_TUB") != 0 {
		t.Fatalf("hot tub not cleared")
	}
}

func TestEncodeDecode(t *testing.T) {
	cat := testCatalog(t)
	m := New(cat, 16, 8)
	for x := 0; x < 16; x++ {
		_ = m.Set(x, 0, "ROCK")
	}
	_ = m.Set(5, 5, "DRILL")
	_ = m.Set(6, 5, "DRILL")

	out, err := Decode(cat, 16, 8, m.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range m.Cells {
		if out.Cells[i] != m.Cells[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out.Cells[i], m.Cells[i])
		}
	}
	if _, err := Decode(cat, 4, 4, m.Encode()); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decodeRLE("!!!", maxCells); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, err := decodeRLE(encodeRLE(nil), maxCells); err != nil {
		t.Fatalf("empty input: %v", err)
	}
}

// rlePairs encodes raw (index, run) pairs without the encoder's merging.
func rlePairs(pairs ...uint64) string {
	var buf []byte
	for _, v := range pairs {
		buf = binary.AppendUvarint(buf, v)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func TestDecodeRejectsOverflowingRun(t *testing.T) {
	// The second run wraps len+run around to a small number.
	huge := rlePairs(1, 1, 1, math.MaxUint64)
	if _, err := decodeRLE(huge, maxCells); err == nil {
		t.Fatalf("expected run length error")
	}
	if _, err := decodeRLE(rlePairs(0, maxCells+1), maxCells); err == nil {
		t.Fatalf("expected cap error")
	}
	if _, err := Decode(testCatalog(t), 2, 2, rlePairs(0, 5)); err == nil {
		t.Fatalf("expected error for runs past w*h")
	}
}

func TestDecodeRejectsBadSize(t *testing.T) {
	cat := testCatalog(t)
	for _, sz := range [][2]int{{-1, 4}, {4, -1}, {-2, -2}, {maxCells, 2}} {
		if _, err := Decode(cat, sz[0], sz[1], rlePairs(0, 1)); err == nil {
			t.Fatalf("Decode(%dx%d) accepted", sz[0], sz[1])
		}
	}
	m, err := Decode(cat, 0, 0, encodeRLE(nil))
	if err != nil || len(m.Cells) != 0 {
		t.Fatalf("empty grid: %v", err)
	}
}
