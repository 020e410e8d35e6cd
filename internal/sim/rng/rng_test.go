package rng

import "testing"

func TestRangeBounds(t *testing.T) {
	s := New(7)
	for i := 0; i < 2000; i++ {
		v := s.Range(-3, 4)
		if v < -3 || v >= 4 {
			t.Fatalf("Range(-3,4) out of bounds: %d", v)
		}
	}
	if got := s.Range(5, 5); got != 5 {
		t.Fatalf("empty range should return min, got %d", got)
	}
	if got := s.Range(9, 2); got != 9 {
		t.Fatalf("inverted range should return min, got %d", got)
	}
}

func TestSameSeedSameStream(t *testing.T) {
	a := New(1337)
	b := New(1337)
	for i := 0; i < 100; i++ {
		if x, y := a.Range(0, 1000), b.Range(0, 1000); x != y {
			t.Fatalf("draw %d diverged: %d vs %d", i, x, y)
		}
	}
}

func TestMarshalResumesStream(t *testing.T) {
	a := New(42)
	for i := 0; i < 17; i++ {
		_ = a.Range(0, 100)
	}
	state, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	b := New(0)
	if err := b.UnmarshalBinary(state); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if b.Seed() != 42 {
		t.Fatalf("seed not restored: %d", b.Seed())
	}
	for i := 0; i < 50; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("resumed stream diverged at %d: %v vs %v", i, x, y)
		}
	}
}

func TestUnmarshalShortBuffer(t *testing.T) {
	if err := New(1).UnmarshalBinary([]byte{1, 2}); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestPick(t *testing.T) {
	s := New(3)
	if got := s.Pick(0); got != -1 {
		t.Fatalf("Pick(0) = %d, want -1", got)
	}
	for i := 0; i < 100; i++ {
		if v := s.Pick(3); v < 0 || v >= 3 {
			t.Fatalf("Pick(3) out of bounds: %d", v)
		}
	}
}
