package board

import "asteroidworks.ai/internal/sim/contracts"

type EventKind string

const (
	EventCreated  EventKind = "CREATED"
	EventBid      EventKind = "BID"
	EventExpired  EventKind = "EXPIRED"
	EventAwaiting EventKind = "AWAITING"
	EventSettled  EventKind = "SETTLED"
)

// Event is delivered to subscribers after the board lock is released. Entry
// holds a copy of the contract as it was when the event happened.
type Event struct {
	Kind  EventKind
	Tick  uint64
	Entry Entry

	// Seq numbers events in the order the board applied them, starting at 1.
	Seq uint64

	// Set for EventBid.
	Bidder  contracts.Bidder
	Amount  int
	Outcome contracts.BidOutcome

	// Set for EventSettled.
	Settlement *Settlement
}

type Settlement struct {
	ID      string           `json:"id"`
	Success bool             `json:"success"`
	Winner  contracts.Bidder `json:"winner"`
	Payout  int              `json:"payout"`
	Tick    uint64           `json:"tick"`
}

type AuditEntry struct {
	Seq        uint64         `json:"seq,omitempty"`
	Tick       uint64         `json:"tick"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	ContractID string         `json:"contract_id"`
	Amount     int            `json:"amount,omitempty"`
	Payout     int            `json:"payout"`
	Reason     string         `json:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// AuditFor renders the audit entry written for ev.
func AuditFor(ev Event) AuditEntry {
	c := ev.Entry.Contract
	a := AuditEntry{
		Seq:        ev.Seq,
		Tick:       ev.Tick,
		Actor:      "board",
		Action:     string(ev.Kind),
		ContractID: ev.Entry.ID,
	}
	if c != nil {
		a.Payout = c.Payout
	}
	switch ev.Kind {
	case EventCreated:
		a.Details = map[string]any{
			"size":         c.Size.String(),
			"type":         string(c.Type),
			"bid_end_time": c.BidEndTime,
			"requirements": len(c.Requirements),
		}
	case EventBid:
		a.Actor = string(ev.Bidder)
		a.Amount = ev.Amount
		a.Reason = string(ev.Outcome.Reason)
		if ev.Outcome.Ratcheted {
			a.Details = map[string]any{"ratcheted_from": ev.Outcome.PayoutBefore}
		}
	case EventAwaiting, EventExpired:
		if c != nil {
			a.Details = map[string]any{"low_bidder": string(c.LowBidder)}
		}
	case EventSettled:
		if s := ev.Settlement; s != nil {
			a.Actor = string(s.Winner)
			a.Reason = "FAILED"
			if s.Success {
				a.Reason = "SUCCESS"
			}
		}
	}
	return a
}
