package contracts

import (
	"bytes"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	cat := testCatalog(t)
	codec := Codec{Tiles: cat}
	g := newGenerator(t, 11, 250)
	for i := 0; i < 50; i++ {
		c, err := g.Random()
		if err != nil {
			t.Fatalf("Random: %v", err)
		}
		c.Bid("A", c.Payout-3)
		if i%2 == 0 {
			c.Bid(LocalPlayer, c.ReservedBid-1)
		}

		line, err := codec.Encode(c)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := codec.Decode(line)
		if err != nil {
			t.Fatalf("Decode(%q): %v", line, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, c)
		}
	}
}

func TestEncodeFormat(t *testing.T) {
	cat := testCatalog(t)
	c := &Contract{
		Type: Farming, Size: Medium, Payout: 390, StartingAmount: 402, BidEndTime: 1234,
		LowBidder: "A", ReservedBid: 300,
		Requirements: []Requirement{
			MinimumValue(2000),
			TileCount(tile(t, cat, "SOIL"), 12),
			TileExclusion(tile(t, cat, "IRON_ORE")),
		},
	}
	line, err := Codec{Tiles: cat}.Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "Medium,Farming,390,402,1234,A,300,vr.2000,tr.12.so,ter.io"
	if line != want {
		t.Fatalf("Encode = %q want %q", line, want)
	}
}

func TestDecodeDropsBadRequirements(t *testing.T) {
	var buf bytes.Buffer
	codec := Codec{Tiles: testCatalog(t), Log: log.New(&buf, "", 0)}
	c, err := codec.Decode("Small,Housing,100,100,500,,0,vr.500,xyz.1.2,tr.x.bd,ter.zz,tr.2.bd\n")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Requirements) != 2 {
		t.Fatalf("want 2 requirements, got %+v", c.Requirements)
	}
	if c.Requirements[0] != MinimumValue(500) || c.Requirements[1].Kind != KindTileCount || c.Requirements[1].Count != 2 {
		t.Fatalf("unexpected requirements %+v", c.Requirements)
	}
	if n := strings.Count(buf.String(), "dropping requirement"); n != 3 {
		t.Fatalf("want 3 drop log lines, got %d:\n%s", n, buf.String())
	}
}

func TestDecodeUnknownTagOnly(t *testing.T) {
	c, err := Codec{Tiles: testCatalog(t)}.Decode("Large,Storage,1600,1600,90,,0,xyz.1.2")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Requirements) != 0 || c.Size != Large || c.Type != Storage {
		t.Fatalf("unexpected contract %+v", c)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	codec := Codec{Tiles: testCatalog(t)}
	bad := []string{
		"Huge,Housing,100,100,500,,0",
		"Small,Castle,100,100,500,,0",
		"Small,Housing,abc,100,500,,0",
		"Small,Housing,100,100,-5,,0",
		"Small,Housing,100,100,500,",
		"",
	}
	for _, line := range bad {
		if _, err := codec.Decode(line); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): want ErrMalformed, got %v", line, err)
		}
	}
}

func TestDecodeNumericSize(t *testing.T) {
	c, err := Codec{Tiles: testCatalog(t)}.Decode("4,Farming,400,400,10,B,7")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Size != Medium || c.LowBidder != "B" || c.ReservedBid != 7 {
		t.Fatalf("unexpected contract %+v", c)
	}
}

func TestRoomCountRecordIsFatal(t *testing.T) {
	codec := Codec{Tiles: testCatalog(t)}
	if _, err := codec.Decode("Small,Housing,100,100,500,,0,rm.2"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Decode: want ErrNotImplemented, got %v", err)
	}
	c := &Contract{Type: Housing, Size: Small, Requirements: []Requirement{RoomCount(2)}}
	if _, err := codec.Encode(c); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Encode: want ErrNotImplemented, got %v", err)
	}
}

func TestEncodeRejectsUnsafeBidder(t *testing.T) {
	codec := Codec{Tiles: testCatalog(t)}
	for _, b := range []Bidder{"a,b", "a.b", "a\nb"} {
		c := &Contract{Type: Housing, Size: Small, LowBidder: b}
		if _, err := codec.Encode(c); err == nil {
			t.Fatalf("Encode with bidder %q should fail", b)
		}
	}
}
