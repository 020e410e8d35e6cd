package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"asteroidworks.ai/internal/observerproto"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/clock"
	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/rng"
	"asteroidworks.ai/internal/sim/tuning"
)

func newTestServer(t *testing.T) (*Server, *board.Board) {
	t.Helper()
	cat, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	tune := tuning.Defaults()
	clk := clock.NewManual(0)
	b, err := board.New(board.Config{
		Generator: &contracts.Generator{Tiles: cat, Tune: tune.Contracts, Rand: rng.New(3), Clock: clk},
		Codec:     contracts.Codec{Tiles: cat},
		Clock:     clk,
		Tune:      tune.Board,
	})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if err := b.Tick(0); err != nil {
		t.Fatalf("tick: %v", err)
	}
	return NewServer(Config{Board: b, Tiles: cat, Currency: "$"}), b
}

func TestBootstrap(t *testing.T) {
	s, b := newTestServer(t)
	srv := httptest.NewServer(s.BootstrapHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.BoardID != b.ID() || boot.LocalBidder != "You" || len(boot.Tiles) == 0 {
		t.Fatalf("unexpected bootstrap: %+v", boot)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:1234":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestStreamStateThenAudits(t *testing.T) {
	s, b := newTestServer(t)
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var state observerproto.StateMsg
	if err := conn.ReadJSON(&state); err != nil {
		t.Fatalf("read state: %v", err)
	}
	if state.Type != "STATE" || len(state.Contracts) != b.Len() {
		t.Fatalf("unexpected state: %d contracts, board has %d", len(state.Contracts), b.Len())
	}
	first := state.Contracts[0]
	if first.Record == "" || !strings.Contains(first.Description, "Contract (") {
		t.Fatalf("state entry missing record or description: %+v", first)
	}

	// Bids are filtered unless requested; the next generated contract is not.
	if _, err := b.Bid(first.ID, "rival", 1); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := b.Generate(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	var audit observerproto.AuditMsg
	if err := conn.ReadJSON(&audit); err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if audit.Audit.Action != string(board.EventCreated) {
		t.Fatalf("expected CREATED audit first, got %+v", audit.Audit)
	}
}
