package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"asteroidworks.ai/internal/protocol"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/contracts"
)

const sessionQueue = 64

type Config struct {
	Board       *board.Board
	Currency    string
	TilesDigest string
	Logger      *log.Logger
}

// Server speaks the bidding protocol to remote bidders. Each session gets
// the board as seen by its bidder and a feed of board events.
type Server struct {
	board       *board.Board
	currency    string
	tilesDigest string
	log         *log.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id     string
	bidder contracts.Bidder
	out    chan []byte
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		board:       cfg.Board,
		currency:    cfg.Currency,
		tilesDigest: cfg.TilesDigest,
		log:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
	}
	cfg.Board.Subscribe(s.broadcast)
	return s
}

// Sessions reports the number of connected bidders.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer s.leave(sess.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.send(sess, errorMsg(protocol.ErrProtoBadRequest, "malformed json"))
				continue
			}
			switch base.Type {
			case protocol.TypeBid:
				s.handleBid(sess, msg)
			default:
				s.send(sess, errorMsg(protocol.ErrProtoBadRequest, "unsupported message type "+base.Type))
			}
		}
	}
}

func (s *Server) handleBid(sess *session, msg []byte) {
	if err := protocol.Validate(protocol.TypeBid, msg); err != nil {
		s.send(sess, errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	var bid protocol.BidMsg
	if err := json.Unmarshal(msg, &bid); err != nil {
		s.send(sess, errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		return
	}

	res := protocol.BidResultMsg{
		Type:            protocol.TypeBidResult,
		ProtocolVersion: protocol.Version,
		ContractID:      bid.ContractID,
	}
	out, err := s.board.Bid(bid.ContractID, sess.bidder, bid.Amount)
	if err != nil {
		res.Code = protocol.CodeFor(err)
		res.Message = err.Error()
		s.send(sess, res)
		return
	}
	res.Accepted = out.Accepted
	res.Reason = string(out.Reason)
	res.Payout = out.PayoutAfter
	switch out.Reason {
	case contracts.BidRejectedEnded:
		res.Code = protocol.ErrBiddingClosed
	case contracts.BidRejectedAmount, contracts.BidRejectedBidder:
		res.Code = protocol.ErrBadRequest
	}
	s.send(sess, res)
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		closeWith(conn, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil
	}
	bidder := contracts.Bidder(strings.TrimSpace(hello.Bidder))
	if bidder == s.board.LocalBidder() || !bidder.Valid() {
		_ = writeJSON(conn, errorMsg(protocol.ErrNoPermission, "bidder name not allowed"))
		closeWith(conn, "bad bidder")
		return nil
	}

	sess := &session{
		id:     uuid.NewString(),
		bidder: bidder,
		out:    make(chan []byte, sessionQueue),
	}
	// A bidder name belongs to one live session at a time. Registering here,
	// before WELCOME, also means no event falls between it and the listing.
	if !s.claim(sess) {
		_ = writeJSON(conn, errorMsg(protocol.ErrConflict, "bidder already connected"))
		closeWith(conn, "bidder in use")
		return nil
	}

	now := s.board.Now()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Bidder:          string(bidder),
		BoardID:         s.board.ID(),
		Tick:            now,
		Currency:        s.currency,
		TilesDigest:     s.tilesDigest,
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.leave(sess.id)
		return nil
	}
	if err := writeJSON(conn, protocol.BoardFor(s.board.List(), bidder, now, s.currency)); err != nil {
		s.leave(sess.id)
		return nil
	}
	s.log.Printf("session %s bidder=%s joined", sess.id, bidder)
	return sess
}

func (s *Server) claim(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.sessions {
		if other.bidder == sess.bidder {
			return false
		}
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		s.log.Printf("session %s bidder=%s left", id, sess.bidder)
	}
}

// broadcast renders ev per session. Sessions whose queue is full miss the
// event and catch up from the next BOARD they see.
func (s *Server) broadcast(ev board.Event) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.send(sess, protocol.EventFor(ev, sess.bidder, s.currency))
	}
}

func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("session %s marshal: %v", sess.id, err)
		return
	}
	select {
	case sess.out <- b:
	default:
		s.log.Printf("session %s queue full, dropping message", sess.id)
	}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
