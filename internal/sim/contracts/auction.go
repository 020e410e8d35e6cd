package contracts

type BidReason string

const (
	BidFirst          BidReason = "FIRST"
	BidOutbid         BidReason = "OUTBID"
	BidReserveLowered BidReason = "RESERVE_LOWERED"

	BidRejectedAmount BidReason = "REJECTED_AMOUNT"
	BidRejectedBidder BidReason = "REJECTED_BIDDER"
	BidRejectedNotLow BidReason = "REJECTED_NOT_LOW"
	BidRejectedEnded  BidReason = "REJECTED_ENDED"
)

// BidOutcome describes what a bid did. Ratcheted is set when a rejected bid
// still lowered the visible payout.
type BidOutcome struct {
	Accepted     bool
	Reason       BidReason
	PayoutBefore int
	PayoutAfter  int
	Ratcheted    bool
}

// PlaceBid applies one reverse-auction bid. amount is the payout the bidder is
// willing to accept.
//
// A rejected bid from a challenger that undercuts the visible payout without
// beating the holder's reserve moves the visible payout down to amount. This
// is the only way a rejected bid mutates the contract.
//
// PlaceBid does not check the deadline; callers owning a clock do.
func (c *Contract) PlaceBid(bidder Bidder, amount int) BidOutcome {
	out := BidOutcome{PayoutBefore: c.Payout}

	switch {
	case amount <= 0:
		out.Reason = BidRejectedAmount
	case bidder == NoBidder:
		out.Reason = BidRejectedBidder
	case c.LowBidder == bidder && amount < c.ReservedBid:
		out.Accepted, out.Reason = true, BidReserveLowered
	case c.LowBidder != NoBidder && c.LowBidder != bidder:
		if c.ReservedBid > 0 && amount < c.ReservedBid {
			c.Payout = c.ReservedBid - 1
			out.Accepted, out.Reason = true, BidOutbid
			break
		}
		out.Reason = BidRejectedNotLow
		if amount < c.Payout && amount >= c.ReservedBid {
			c.Payout = amount
			out.Ratcheted = true
		}
	case c.LowBidder == NoBidder && amount < c.Payout:
		c.Payout--
		out.Accepted, out.Reason = true, BidFirst
	default:
		out.Reason = BidRejectedNotLow
	}

	if out.Accepted {
		c.LowBidder = bidder
		c.ReservedBid = amount
	}
	out.PayoutAfter = c.Payout
	return out
}

func (c *Contract) Bid(bidder Bidder, amount int) bool {
	return c.PlaceBid(bidder, amount).Accepted
}

type AuctionState int

const (
	StateNoBidder AuctionState = iota
	StateHeld
	StateEnded
)

func (s AuctionState) String() string {
	switch s {
	case StateHeld:
		return "held"
	case StateEnded:
		return "ended"
	default:
		return "no_bidder"
	}
}

func (c *Contract) BiddingEnded(now uint64) bool {
	return now >= c.BidEndTime
}

func (c *Contract) AuctionState(now uint64) AuctionState {
	switch {
	case c.BiddingEnded(now):
		return StateEnded
	case c.LowBidder != NoBidder:
		return StateHeld
	default:
		return StateNoBidder
	}
}

// Evaluate checks every requirement in order and stops at the first failure.
// A contract without requirements passes.
func (c *Contract) Evaluate(g Grid) (bool, error) {
	for _, r := range c.Requirements {
		ok, err := r.Passes(g)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
