package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"asteroidworks.ai/internal/protocol"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/clock"
	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/rng"
	"asteroidworks.ai/internal/sim/tuning"
)

func newTestBoard(t *testing.T) *board.Board {
	t.Helper()
	cat, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	tune := tuning.Defaults()
	clk := clock.NewManual(0)
	b, err := board.New(board.Config{
		Generator: &contracts.Generator{Tiles: cat, Tune: tune.Contracts, Rand: rng.New(7), Clock: clk},
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
	return b
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func hello(t *testing.T, conn *websocket.Conn, bidder string) {
	t.Helper()
	msg := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Bidder: bidder}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write hello: %v", err)
	}
}

// readUntil reads messages until one of type typ arrives and decodes it into v.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			if err := json.Unmarshal(raw, v); err != nil {
				t.Fatalf("unmarshal %s: %v", typ, err)
			}
			return
		}
	}
}

func TestHandshakeAndBid(t *testing.T) {
	b := newTestBoard(t)
	s := NewServer(Config{Board: b, Currency: "$"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	hello(t, conn, "rival")

	var welcome protocol.WelcomeMsg
	readUntil(t, conn, protocol.TypeWelcome, &welcome)
	if welcome.Bidder != "rival" || welcome.SessionID == "" || welcome.BoardID != b.ID() {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	var listing protocol.BoardMsg
	readUntil(t, conn, protocol.TypeBoard, &listing)
	if len(listing.Contracts) != b.Len() || len(listing.Contracts) == 0 {
		t.Fatalf("board listing has %d contracts, board has %d", len(listing.Contracts), b.Len())
	}

	target := listing.Contracts[0]
	bid := protocol.BidMsg{Type: protocol.TypeBid, ProtocolVersion: protocol.Version, ContractID: target.ID, Amount: target.Payout - 10}
	if err := conn.WriteJSON(bid); err != nil {
		t.Fatalf("write bid: %v", err)
	}

	var ev protocol.EventMsg
	readUntil(t, conn, protocol.TypeEvent, &ev)
	if ev.Event != string(board.EventBid) || ev.Contract.YourReserve != target.Payout-10 {
		t.Fatalf("holder should see own reserve in event: %+v", ev)
	}

	var res protocol.BidResultMsg
	readUntil(t, conn, protocol.TypeBidResult, &res)
	if !res.Accepted || res.Reason != string(contracts.BidFirst) || res.Payout != target.Payout-1 {
		t.Fatalf("unexpected bid result: %+v", res)
	}

	e, _ := b.Get(target.ID)
	if e.Contract.LowBidder != "rival" {
		t.Fatalf("board not updated: %+v", e.Contract)
	}
}

func TestBidUnknownContract(t *testing.T) {
	b := newTestBoard(t)
	srv := httptest.NewServer(NewServer(Config{Board: b}).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	hello(t, conn, "rival")
	var listing protocol.BoardMsg
	readUntil(t, conn, protocol.TypeBoard, &listing)

	_ = conn.WriteJSON(protocol.BidMsg{Type: protocol.TypeBid, ContractID: "C999", Amount: 5})
	var res protocol.BidResultMsg
	readUntil(t, conn, protocol.TypeBidResult, &res)
	if res.Accepted || res.Code != protocol.ErrNotFound {
		t.Fatalf("expected E_NOT_FOUND, got %+v", res)
	}
}

func TestHandshakeRejectsLocalBidderName(t *testing.T) {
	b := newTestBoard(t)
	srv := httptest.NewServer(NewServer(Config{Board: b}).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	hello(t, conn, string(b.LocalBidder()))

	var em protocol.ErrorMsg
	readUntil(t, conn, protocol.TypeError, &em)
	if em.Code != protocol.ErrNoPermission {
		t.Fatalf("expected E_NO_PERMISSION, got %+v", em)
	}
}

func TestHandshakeRejectsBidderAlreadyConnected(t *testing.T) {
	b := newTestBoard(t)
	s := NewServer(Config{Board: b})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	first := dial(t, srv)
	hello(t, first, "rival")
	var listing protocol.BoardMsg
	readUntil(t, first, protocol.TypeBoard, &listing)

	second := dial(t, srv)
	hello(t, second, "rival")
	var em protocol.ErrorMsg
	readUntil(t, second, protocol.TypeError, &em)
	if em.Code != protocol.ErrConflict {
		t.Fatalf("expected E_CONFLICT, got %+v", em)
	}
	if s.Sessions() != 1 {
		t.Fatalf("sessions = %d", s.Sessions())
	}

	// The name frees up once its session ends.
	_ = first.Close()
	deadline := time.Now().Add(3 * time.Second)
	for s.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
	third := dial(t, srv)
	hello(t, third, "rival")
	var welcome protocol.WelcomeMsg
	readUntil(t, third, protocol.TypeWelcome, &welcome)
	if welcome.Bidder != "rival" {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
}

func TestMalformedBidGetsError(t *testing.T) {
	b := newTestBoard(t)
	srv := httptest.NewServer(NewServer(Config{Board: b}).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	hello(t, conn, "rival")
	var listing protocol.BoardMsg
	readUntil(t, conn, protocol.TypeBoard, &listing)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"BID","contract_id":"C1","amount":"lots"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var em protocol.ErrorMsg
	readUntil(t, conn, protocol.TypeError, &em)
	if em.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("expected E_PROTO_BAD_REQUEST, got %+v", em)
	}
}
