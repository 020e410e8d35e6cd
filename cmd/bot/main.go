package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"asteroidworks.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "bidder name")
		floor = flag.Float64("floor", 0.7, "lowest bid as a fraction of the starting amount")
		step  = flag.Int("step", 3, "max extra undercut per bid")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Bidder:          *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	st := &strategy{
		me:    *name,
		floor: *floor,
		step:  *step,
		rand:  rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		last:  map[string]uint64{},
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s board=%s tick=%d", w.SessionID, w.BoardID, w.Tick)

		case protocol.TypeBoard:
			var b protocol.BoardMsg
			if err := json.Unmarshal(msg, &b); err != nil {
				continue
			}
			for _, c := range b.Contracts {
				st.consider(conn, logger, b.Tick, c)
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			if ev.Settlement != nil && ev.Settlement.Winner == *name {
				logger.Printf("%s settled success=%v payout=%d", ev.Contract.ID, ev.Settlement.Success, ev.Settlement.Payout)
			}
			st.consider(conn, logger, ev.Tick, ev.Contract)

		case protocol.TypeBidResult:
			var r protocol.BidResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			logger.Printf("BID %s accepted=%v reason=%s payout=%d %s", r.ContractID, r.Accepted, r.Reason, r.Payout, r.Code)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}

func (s *strategy) consider(conn *websocket.Conn, logger *log.Logger, tick uint64, c protocol.ContractView) {
	amount, ok := s.decide(tick, c)
	if !ok {
		return
	}
	bid := protocol.BidMsg{
		Type:            protocol.TypeBid,
		ProtocolVersion: protocol.Version,
		ContractID:      c.ID,
		Amount:          amount,
	}
	if err := conn.WriteJSON(bid); err != nil {
		logger.Printf("send BID: %v", err)
	}
}
