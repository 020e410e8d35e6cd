// Package board owns the live contract collection: it schedules generation,
// routes bids, closes auctions at their deadline and settles contracts won by
// the local player.
package board

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/tuning"
)

var (
	ErrNotFound    = errors.New("contract not found")
	ErrNotAwaiting = errors.New("contract is not awaiting settlement")
	ErrNoAdvance   = errors.New("board clock cannot advance")
)

// Advancer is a clock the board can step forward itself.
type Advancer interface {
	Advance(d uint64) uint64
}

type Phase string

const (
	PhaseBidding  Phase = "bidding"
	PhaseAwaiting Phase = "awaiting"
)

type Entry struct {
	ID          string
	Phase       Phase
	CreatedTick uint64
	Contract    *contracts.Contract
}

func (e Entry) clone() Entry {
	e.Contract = e.Contract.Clone()
	return e
}

type Config struct {
	ID        string
	Generator *contracts.Generator
	Codec     contracts.Codec
	Clock     contracts.Clock
	Tune      tuning.Board

	Audit  AuditLogger
	Logger *log.Logger
}

type Board struct {
	id    string
	gen   *contracts.Generator
	codec contracts.Codec
	clock contracts.Clock
	tune  tuning.Board
	local contracts.Bidder
	audit AuditLogger
	log   *log.Logger

	mu        sync.Mutex
	entries   map[string]*Entry
	nextID    uint64
	lastGen   uint64
	primed    bool
	seq       uint64
	listeners []func(Event)

	// emitMu is taken before mu is released so events leave the board in
	// the order they were applied.
	emitMu sync.Mutex
}

func New(cfg Config) (*Board, error) {
	if cfg.Generator == nil || cfg.Generator.Rand == nil {
		return nil, fmt.Errorf("board: generator with a random source is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("board: clock is required")
	}
	if cfg.ID == "" {
		cfg.ID = "board_1"
	}
	local := contracts.Bidder(strings.TrimSpace(cfg.Tune.LocalBidder))
	if local == contracts.NoBidder {
		local = contracts.LocalPlayer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Board{
		id:      cfg.ID,
		gen:     cfg.Generator,
		codec:   cfg.Codec,
		clock:   cfg.Clock,
		tune:    cfg.Tune,
		local:   local,
		audit:   cfg.Audit,
		log:     logger,
		entries: map[string]*Entry{},
		nextID:  1,
	}, nil
}

func (b *Board) ID() string                    { return b.id }
func (b *Board) LocalBidder() contracts.Bidder { return b.local }
func (b *Board) Now() uint64                   { return b.clock.Now() }

// Seq returns the sequence number of the last event the board emitted.
func (b *Board) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Subscribe registers fn for every board event. fn runs on the goroutine that
// caused the event, in event order, and must neither block nor call back into
// a mutating Board method.
func (b *Board) Subscribe(fn func(Event)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Generate creates one random contract and opens it for bidding.
func (b *Board) Generate() (Entry, error) {
	b.mu.Lock()
	ev, err := b.generateLocked(b.clock.Now())
	if err != nil {
		b.mu.Unlock()
		return Entry{}, err
	}
	evs := b.unlockAndDispatch([]Event{ev})
	return evs[0].Entry, nil
}

func (b *Board) generateLocked(now uint64) (Event, error) {
	c, err := b.gen.Random()
	if err != nil {
		return Event{}, err
	}
	e := &Entry{
		ID:          "C" + strconv.FormatUint(b.nextID, 10),
		Phase:       PhaseBidding,
		CreatedTick: now,
		Contract:    c,
	}
	b.nextID++
	b.entries[e.ID] = e
	return Event{Kind: EventCreated, Tick: now, Entry: e.clone()}, nil
}

// Tick runs the scheduler for tick now: it tops the board up to MaxOpen
// bidding contracts every GenerateEveryTicks, then closes auctions whose
// deadline passed. Contracts held by the local bidder wait for settlement;
// all others leave the board.
func (b *Board) Tick(now uint64) error {
	b.mu.Lock()
	evs, err := b.tickLocked(now)
	b.unlockAndDispatch(evs)
	return err
}

// Step advances the board clock by one tick and runs Tick for the new tick
// under the same lock, so no bid can observe the new tick before its
// scheduler events.
func (b *Board) Step() (uint64, error) {
	adv, ok := b.clock.(Advancer)
	if !ok {
		return 0, ErrNoAdvance
	}
	b.mu.Lock()
	now := adv.Advance(1)
	evs, err := b.tickLocked(now)
	b.unlockAndDispatch(evs)
	return now, err
}

func (b *Board) tickLocked(now uint64) ([]Event, error) {
	var evs []Event
	var genErr error

	every := uint64(b.tune.GenerateEveryTicks)
	if every > 0 && (!b.primed || now-b.lastGen >= every) {
		b.primed = true
		b.lastGen = now
		for b.countLocked(PhaseBidding) < b.tune.MaxOpen {
			ev, err := b.generateLocked(now)
			if err != nil {
				genErr = err
				break
			}
			evs = append(evs, ev)
		}
	}

	for _, id := range b.sortedIDsLocked() {
		e := b.entries[id]
		if e.Phase != PhaseBidding || !e.Contract.BiddingEnded(now) {
			continue
		}
		if e.Contract.LowBidder == b.local {
			e.Phase = PhaseAwaiting
			evs = append(evs, Event{Kind: EventAwaiting, Tick: now, Entry: e.clone()})
			continue
		}
		delete(b.entries, id)
		evs = append(evs, Event{Kind: EventExpired, Tick: now, Entry: e.clone()})
	}

	if genErr != nil {
		return evs, fmt.Errorf("board tick %d: %w", now, genErr)
	}
	return evs, nil
}

// Bid places a bid on an open contract. Bids after the deadline are rejected
// with BidRejectedEnded and leave the contract untouched.
func (b *Board) Bid(id string, bidder contracts.Bidder, amount int) (contracts.BidOutcome, error) {
	b.mu.Lock()
	now := b.clock.Now()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		return contracts.BidOutcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var out contracts.BidOutcome
	if e.Phase != PhaseBidding || e.Contract.BiddingEnded(now) {
		out = contracts.BidOutcome{
			Reason:       contracts.BidRejectedEnded,
			PayoutBefore: e.Contract.Payout,
			PayoutAfter:  e.Contract.Payout,
		}
	} else {
		out = e.Contract.PlaceBid(bidder, amount)
	}
	ev := Event{Kind: EventBid, Tick: now, Entry: e.clone(), Bidder: bidder, Amount: amount, Outcome: out}
	b.unlockAndDispatch([]Event{ev})
	return out, nil
}

// Settle evaluates an awaiting contract against the delivered grid and removes
// it from the board.
func (b *Board) Settle(id string, g contracts.Grid) (Settlement, error) {
	b.mu.Lock()
	now := b.clock.Now()
	e, ok := b.entries[id]
	if !ok {
		b.mu.Unlock()
		return Settlement{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.Phase != PhaseAwaiting {
		b.mu.Unlock()
		return Settlement{}, fmt.Errorf("%w: %s is %s", ErrNotAwaiting, id, e.Phase)
	}
	success, err := e.Contract.Evaluate(g)
	if err != nil {
		b.mu.Unlock()
		return Settlement{}, fmt.Errorf("settle %s: %w", id, err)
	}
	s := Settlement{
		ID:      id,
		Success: success,
		Winner:  e.Contract.LowBidder,
		Payout:  e.Contract.Payout,
		Tick:    now,
	}
	delete(b.entries, id)
	ev := Event{Kind: EventSettled, Tick: now, Entry: e.clone(), Settlement: &s}
	b.unlockAndDispatch([]Event{ev})
	return s, nil
}

// List returns copies of all entries in creation order.
func (b *Board) List() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.entries))
	for _, id := range b.sortedIDsLocked() {
		out = append(out, b.entries[id].clone())
	}
	return out
}

func (b *Board) Get(id string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Board) countLocked(p Phase) int {
	n := 0
	for _, e := range b.entries {
		if e.Phase == p {
			n++
		}
	}
	return n
}

func (b *Board) sortedIDsLocked() []string {
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idNum(ids[i]) < idNum(ids[j]) })
	return ids
}

func idNum(id string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimPrefix(id, "C"), 10, 64)
	return n
}

// unlockAndDispatch numbers evs, releases mu and delivers them to the audit
// log and listeners. It must be called with mu held. emitMu is acquired
// before mu is released, so two callers deliver in the order they held mu.
func (b *Board) unlockAndDispatch(evs []Event) []Event {
	if len(evs) == 0 {
		b.mu.Unlock()
		return evs
	}
	for i := range evs {
		b.seq++
		evs[i].Seq = b.seq
	}
	listeners := append([]func(Event){}, b.listeners...)
	b.emitMu.Lock()
	b.mu.Unlock()
	defer b.emitMu.Unlock()

	for _, ev := range evs {
		if b.audit != nil {
			if err := b.audit.WriteAudit(AuditFor(ev)); err != nil {
				b.log.Printf("audit %s %s: %v", ev.Kind, ev.Entry.ID, err)
			}
		}
		for _, fn := range listeners {
			fn(ev)
		}
	}
	return evs
}
