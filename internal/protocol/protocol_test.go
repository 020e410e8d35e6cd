package protocol

import (
	"encoding/json"
	"testing"

	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/contracts"
)

func TestValidateHello(t *testing.T) {
	ok := `{"type":"HELLO","protocol_version":"1.0","bidder":"rival"}`
	if err := Validate(TypeHello, []byte(ok)); err != nil {
		t.Fatalf("valid hello rejected: %v", err)
	}
	for name, raw := range map[string]string{
		"missing bidder": `{"type":"HELLO","protocol_version":"1.0"}`,
		"comma":          `{"type":"HELLO","protocol_version":"1.0","bidder":"a,b"}`,
		"space":          `{"type":"HELLO","protocol_version":"1.0","bidder":"a b"}`,
		"wrong type":     `{"type":"BID","protocol_version":"1.0","bidder":"rival"}`,
	} {
		if err := Validate(TypeHello, []byte(raw)); err == nil {
			t.Fatalf("%s: expected schema error", name)
		}
	}
}

func TestValidateBid(t *testing.T) {
	if err := Validate(TypeBid, []byte(`{"type":"BID","contract_id":"C1","amount":90}`)); err != nil {
		t.Fatalf("valid bid rejected: %v", err)
	}
	if err := Validate(TypeBid, []byte(`{"type":"BID","contract_id":"C1","amount":"90"}`)); err == nil {
		t.Fatalf("string amount should be rejected")
	}
	if err := Validate(TypeWelcome, []byte(`{}`)); err == nil {
		t.Fatalf("server message types are not accepted from clients")
	}
}

func TestContractViewHidesReserve(t *testing.T) {
	e := board.Entry{
		ID:    "C1",
		Phase: board.PhaseBidding,
		Contract: &contracts.Contract{
			Type: contracts.Housing, Size: contracts.Small,
			StartingAmount: 100, Payout: 89, BidEndTime: 130,
			LowBidder: "rival", ReservedBid: 70,
			Requirements: []contracts.Requirement{contracts.MinimumValue(500)},
		},
	}

	holder := ContractFor(e, "rival", 10, "$")
	if holder.YourReserve != 70 {
		t.Fatalf("holder should see reserve, got %d", holder.YourReserve)
	}
	other := ContractFor(e, "You", 10, "$")
	if other.YourReserve != 0 {
		t.Fatalf("reserve leaked to non-holder: %d", other.YourReserve)
	}
	raw, _ := json.Marshal(other)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if _, ok := m["your_reserve"]; ok {
		t.Fatalf("your_reserve should be omitted: %s", raw)
	}
	if other.TimeLeft != "2m 0s" {
		t.Fatalf("time left = %q", other.TimeLeft)
	}
	if len(other.Requirements) != 1 || other.Requirements[0].Text != "Asteroid Value at least $500" {
		t.Fatalf("unexpected requirements: %+v", other.Requirements)
	}
}

func TestEventForBidOmitsAmount(t *testing.T) {
	e := board.Entry{ID: "C2", Phase: board.PhaseBidding, Contract: &contracts.Contract{Type: contracts.Storage, Size: contracts.Large, Payout: 99}}
	ev := board.Event{
		Kind: board.EventBid, Tick: 5, Entry: e, Bidder: "rival", Amount: 42,
		Outcome: contracts.BidOutcome{Accepted: true, Reason: contracts.BidFirst},
	}
	m := EventFor(ev, "You", "$")
	if m.Event != "BID" || m.Bidder != "rival" || m.Reason != "FIRST" {
		t.Fatalf("unexpected event: %+v", m)
	}
	raw, _ := json.Marshal(m)
	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)
	if _, ok := generic["amount"]; ok {
		t.Fatalf("bid amount must not be broadcast: %s", raw)
	}
}
