package contracts

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// Codec reads and writes the single-line contract record:
//
//	<Size>,<Type>,<Payout>,<StartingAmount>,<BidEndTime>,<LowBidder>,<ReservedBid>[,<tag>.<p1>[.<p2>]]*
type Codec struct {
	Tiles TileSource
	Log   *log.Logger
}

const headerFields = 7

func (c Codec) logger() *log.Logger {
	if c.Log == nil {
		return log.New(io.Discard, "", 0)
	}
	return c.Log
}

func (c Codec) Encode(ct *Contract) (string, error) {
	if ct.LowBidder != NoBidder && !ct.LowBidder.Valid() {
		return "", fmt.Errorf("encode: bidder %q cannot be stored", ct.LowBidder)
	}
	fields := []string{
		ct.Size.String(),
		string(ct.Type),
		strconv.Itoa(ct.Payout),
		strconv.Itoa(ct.StartingAmount),
		strconv.FormatUint(ct.BidEndTime, 10),
		string(ct.LowBidder),
		strconv.Itoa(ct.ReservedBid),
	}
	for i, r := range ct.Requirements {
		v, ok := variants[r.Kind]
		if !ok {
			return "", fmt.Errorf("encode requirement %d: kind %q: %w", i, r.Kind, ErrNotImplemented)
		}
		params, err := v.encode(r)
		if err != nil {
			return "", fmt.Errorf("encode requirement %d: %w", i, err)
		}
		fields = append(fields, strings.Join(append([]string{string(r.Kind)}, params...), "."))
	}
	return strings.Join(fields, ","), nil
}

// Decode parses one record. A bad header is fatal. A requirement with an
// unknown tag, a bad number or an unknown tile is logged and dropped; the
// reserved room count tag is fatal.
func (c Codec) Decode(line string) (*Contract, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) < headerFields {
		return nil, fmt.Errorf("%w: %d fields, want at least %d", ErrMalformed, len(fields), headerFields)
	}

	size, err := ParseSize(fields[0])
	if err != nil {
		return nil, err
	}
	typ, err := ParseType(fields[1])
	if err != nil {
		return nil, err
	}
	ct := &Contract{Size: size, Type: typ, LowBidder: Bidder(fields[5])}
	if ct.Payout, err = atoiField("payout", fields[2]); err != nil {
		return nil, err
	}
	if ct.StartingAmount, err = atoiField("starting amount", fields[3]); err != nil {
		return nil, err
	}
	if ct.BidEndTime, err = strconv.ParseUint(strings.TrimSpace(fields[4]), 10, 64); err != nil {
		return nil, fmt.Errorf("%w: bid end time %q", ErrMalformed, fields[4])
	}
	if ct.ReservedBid, err = atoiField("reserved bid", fields[6]); err != nil {
		return nil, err
	}

	for _, seg := range fields[headerFields:] {
		parts := strings.Split(seg, ".")
		v, ok := variants[Kind(parts[0])]
		if !ok {
			c.logger().Printf("contract record: dropping requirement %q: unknown tag", seg)
			continue
		}
		r, err := v.decode(parts[1:], c.Tiles)
		if errors.Is(err, ErrNotImplemented) {
			return nil, fmt.Errorf("decode requirement %q: %w", seg, err)
		}
		if err != nil {
			c.logger().Printf("contract record: dropping requirement %q: %v", seg, err)
			continue
		}
		ct.Requirements = append(ct.Requirements, r)
	}
	return ct, nil
}

func atoiField(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, name, s)
	}
	return n, nil
}
