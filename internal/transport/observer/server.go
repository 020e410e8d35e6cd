package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"asteroidworks.ai/internal/observerproto"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
)

type Config struct {
	Board    *board.Board
	Tiles    *catalogs.TileCatalog
	Currency string
	Logger   *log.Logger
}

// Server is the loopback-only spectator feed: full board state on subscribe,
// then one AUDIT message per board event.
type Server struct {
	board    *board.Board
	tiles    *catalogs.TileCatalog
	currency string
	log      *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	out         chan []byte
	includeBids atomic.Bool
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		board:    cfg.Board,
		tiles:    cfg.Tiles,
		currency: cfg.Currency,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
	cfg.Board.Subscribe(s.publish)
	return s
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			BoardID:         s.board.ID(),
			Tick:            s.board.Now(),
			Currency:        s.currency,
			LocalBidder:     string(s.board.LocalBidder()),
		}
		if s.tiles != nil {
			resp.TilesDigest = s.tiles.Digest
			for _, d := range s.tiles.All() {
				resp.Tiles = append(resp.Tiles, observerproto.TileInfo{
					ID: d.ID, SaveCode: d.SaveCode, Name: d.Name, Value: d.Value, Tags: d.Tags,
				})
			}
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		subr := &subscriber{out: make(chan []byte, 1024)}
		subr.includeBids.Store(sub.IncludeBids)

		s.mu.Lock()
		s.subs[sid] = subr
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		state, err := s.state()
		if err != nil {
			s.log.Printf("observer %s state: %v", sid, err)
			return
		}
		if err := writeJSON(conn, state); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-subr.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				subr.includeBids.Store(sub.IncludeBids)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) state() (observerproto.StateMsg, error) {
	now := s.board.Now()
	snap, err := s.board.ExportSnapshot(now)
	if err != nil {
		return observerproto.StateMsg{}, err
	}
	out := observerproto.StateMsg{
		Type:            "STATE",
		ProtocolVersion: observerproto.Version,
		Tick:            now,
		Contracts:       make([]observerproto.ContractState, 0, len(snap.Contracts)),
	}
	for _, c := range snap.Contracts {
		cs := observerproto.ContractState{ID: c.ID, Phase: c.Phase, CreatedTick: c.CreatedTick, Record: c.Record}
		if e, ok := s.board.Get(c.ID); ok {
			cs.Description = e.Contract.Describe(s.currency)
		}
		out.Contracts = append(out.Contracts, cs)
	}
	return out, nil
}

func (s *Server) publish(ev board.Event) {
	msg := observerproto.AuditMsg{
		Type:            "AUDIT",
		ProtocolVersion: observerproto.Version,
		Audit:           board.AuditFor(ev),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subr := range s.subs {
		if ev.Kind == board.EventBid && !subr.includeBids.Load() {
			continue
		}
		select {
		case subr.out <- b:
		default:
			// Slow spectator; it can resubscribe for a fresh STATE.
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == "SUBSCRIBE" && sub.ProtocolVersion == observerproto.Version
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
