package contracts

import (
	"fmt"
	"strings"
)

func (c *Contract) Describe(currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Contract (%s)\n", c.Type, c.Size)
	for _, r := range c.Requirements {
		b.WriteString(r.Describe(currency))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Payout: %s%d", currency, c.Payout)
	return b.String()
}

// FormatTimeLeft renders a tick count (one tick per second) as "1h 2m 3s",
// omitting zero hours and minutes.
func FormatTimeLeft(ticks uint64) string {
	var b strings.Builder
	if h := ticks / 3600; h > 0 {
		fmt.Fprintf(&b, "%dh ", h)
		ticks %= 3600
	}
	if m := ticks / 60; m > 0 {
		fmt.Fprintf(&b, "%dm ", m)
		ticks %= 60
	}
	fmt.Fprintf(&b, "%ds", ticks)
	return b.String()
}

// TimeLeft is the remaining bidding time at now, zero once bidding ended.
func (c *Contract) TimeLeft(now uint64) uint64 {
	if c.BiddingEnded(now) {
		return 0
	}
	return c.BidEndTime - now
}
