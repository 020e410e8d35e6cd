package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/contracts"
)

func TestObserveLifecycle(t *testing.T) {
	SetOpen(nil)
	c := &contracts.Contract{Type: contracts.Housing, Size: contracts.Small, Payout: 100}
	entry := board.Entry{ID: "C1", Phase: board.PhaseBidding, Contract: c}

	generated := ContractsGenerated.WithLabelValues("Small", string(contracts.Housing))
	first := BidsTotal.WithLabelValues(string(contracts.BidFirst))
	success := SettlementsTotal.WithLabelValues("success")
	before := []float64{testutil.ToFloat64(generated), testutil.ToFloat64(first), testutil.ToFloat64(success)}

	Observe(board.Event{Kind: board.EventCreated, Entry: entry})
	Observe(board.Event{Kind: board.EventBid, Entry: entry, Outcome: contracts.BidOutcome{Accepted: true, Reason: contracts.BidFirst}})

	bidding := OpenContracts.WithLabelValues(string(board.PhaseBidding))
	awaiting := OpenContracts.WithLabelValues(string(board.PhaseAwaiting))
	if got := testutil.ToFloat64(bidding); got != 1 {
		t.Fatalf("bidding gauge = %v, want 1", got)
	}

	Observe(board.Event{Kind: board.EventAwaiting, Entry: entry})
	if testutil.ToFloat64(bidding) != 0 || testutil.ToFloat64(awaiting) != 1 {
		t.Fatalf("awaiting transition not reflected: %v/%v", testutil.ToFloat64(bidding), testutil.ToFloat64(awaiting))
	}

	Observe(board.Event{Kind: board.EventSettled, Entry: entry, Settlement: &board.Settlement{ID: "C1", Success: true}})
	if testutil.ToFloat64(awaiting) != 0 {
		t.Fatalf("awaiting gauge should drop after settlement")
	}

	after := []float64{testutil.ToFloat64(generated), testutil.ToFloat64(first), testutil.ToFloat64(success)}
	for i := range before {
		if after[i]-before[i] != 1 {
			t.Fatalf("counter %d moved by %v, want 1", i, after[i]-before[i])
		}
	}
}

func TestSetOpen(t *testing.T) {
	SetOpen([]board.Entry{
		{ID: "C1", Phase: board.PhaseBidding},
		{ID: "C2", Phase: board.PhaseBidding},
		{ID: "C3", Phase: board.PhaseAwaiting},
	})
	if got := testutil.ToFloat64(OpenContracts.WithLabelValues("bidding")); got != 2 {
		t.Fatalf("bidding = %v, want 2", got)
	}
	if got := testutil.ToFloat64(OpenContracts.WithLabelValues("awaiting")); got != 1 {
		t.Fatalf("awaiting = %v, want 1", got)
	}
}
