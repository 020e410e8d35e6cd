package protocol

import (
	"errors"

	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/contracts"
)

type ContractView struct {
	ID             string            `json:"id"`
	Phase          string            `json:"phase"`
	Type           string            `json:"type"`
	Size           string            `json:"size"`
	StartingAmount int               `json:"starting_amount"`
	Payout         int               `json:"payout"`
	BidEndTime     uint64            `json:"bid_end_time"`
	TimeLeft       string            `json:"time_left"`
	LowBidder      string            `json:"low_bidder,omitempty"`
	YourReserve    int               `json:"your_reserve,omitempty"`
	Requirements   []RequirementView `json:"requirements"`
}

type RequirementView struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ContractFor renders an entry for viewer. The reserved bid is only shown to
// the bidder holding it.
func ContractFor(e board.Entry, viewer contracts.Bidder, now uint64, currency string) ContractView {
	c := e.Contract
	v := ContractView{
		ID:             e.ID,
		Phase:          string(e.Phase),
		Type:           string(c.Type),
		Size:           c.Size.String(),
		StartingAmount: c.StartingAmount,
		Payout:         c.Payout,
		BidEndTime:     c.BidEndTime,
		TimeLeft:       contracts.FormatTimeLeft(c.TimeLeft(now)),
		LowBidder:      string(c.LowBidder),
		Requirements:   make([]RequirementView, 0, len(c.Requirements)),
	}
	if viewer != contracts.NoBidder && c.LowBidder == viewer {
		v.YourReserve = c.ReservedBid
	}
	for _, r := range c.Requirements {
		v.Requirements = append(v.Requirements, RequirementView{Kind: string(r.Kind), Text: r.Describe(currency)})
	}
	return v
}

func BoardFor(entries []board.Entry, viewer contracts.Bidder, now uint64, currency string) BoardMsg {
	out := BoardMsg{Type: TypeBoard, ProtocolVersion: Version, Tick: now, Contracts: make([]ContractView, 0, len(entries))}
	for _, e := range entries {
		out.Contracts = append(out.Contracts, ContractFor(e, viewer, now, currency))
	}
	return out
}

func EventFor(ev board.Event, viewer contracts.Bidder, currency string) EventMsg {
	m := EventMsg{
		Type:            TypeEvent,
		ProtocolVersion: Version,
		Tick:            ev.Tick,
		Event:           string(ev.Kind),
		Contract:        ContractFor(ev.Entry, viewer, ev.Tick, currency),
	}
	if ev.Kind == board.EventBid {
		m.Bidder = string(ev.Bidder)
		m.Reason = string(ev.Outcome.Reason)
	}
	if s := ev.Settlement; s != nil {
		m.Settlement = &SettlementView{Success: s.Success, Winner: string(s.Winner), Payout: s.Payout}
	}
	return m
}

// CodeFor maps a board error to a wire error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, board.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, board.ErrNotAwaiting):
		return ErrNotAwaiting
	default:
		return ErrInternal
	}
}
