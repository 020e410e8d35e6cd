package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/clock"
	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/rng"
	"asteroidworks.ai/internal/sim/tuning"
)

type summary struct {
	FirstTick uint64
	LastTick  uint64
	Contracts int
	// Counts is keyed by action, or action/reason when a reason is present.
	Counts map[string]int
}

func summarize(entries []board.AuditEntry) summary {
	s := summary{Counts: map[string]int{}}
	seen := map[string]bool{}
	for i, e := range entries {
		if i == 0 || e.Tick < s.FirstTick {
			s.FirstTick = e.Tick
		}
		if e.Tick > s.LastTick {
			s.LastTick = e.Tick
		}
		if !seen[e.ContractID] {
			seen[e.ContractID] = true
			s.Contracts++
		}
		key := e.Action
		if e.Reason != "" {
			key += "/" + e.Reason
		}
		s.Counts[key]++
	}
	return s
}

func (s summary) keys() []string {
	out := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatEntry(e board.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d %-8s actor=%s payout=%d", e.Tick, e.Action, e.Actor, e.Payout)
	if e.Amount != 0 {
		fmt.Fprintf(&b, " amount=%d", e.Amount)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", e.Reason)
	}
	if len(e.Details) > 0 {
		raw, _ := json.Marshal(e.Details)
		fmt.Fprintf(&b, " %s", raw)
	}
	return b.String()
}

// recorder collects the entries a rebuilt board produces.
type recorder struct{ entries []board.AuditEntry }

func (r *recorder) WriteAudit(e board.AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

// rebuild creates an offline board from a snapshot using the same catalogs and
// tuning the server ran with.
func rebuild(snap snapshot.SnapshotV1, configDir, tuningPath string) (*board.Board, *clock.Manual, error) {
	tiles, err := catalogs.Load(configDir)
	if err != nil {
		return nil, nil, err
	}
	if snap.Header.CatalogDigest != "" && snap.Header.CatalogDigest != tiles.Digest {
		return nil, nil, fmt.Errorf("tile catalog digest mismatch: snapshot=%s configs=%s", snap.Header.CatalogDigest, tiles.Digest)
	}
	tp := strings.TrimSpace(tuningPath)
	if tp == "" {
		tp = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		tune = tuning.Defaults()
	}
	return newReplayBoard(snap, tiles, tune)
}

func newReplayBoard(snap snapshot.SnapshotV1, tiles *catalogs.TileCatalog, tune tuning.Tuning) (*board.Board, *clock.Manual, error) {
	clk := clock.NewManual(snap.Header.Tick)
	b, err := board.New(board.Config{
		ID:        snap.Header.BoardID,
		Generator: &contracts.Generator{Tiles: tiles, Tune: tune.Contracts, Rand: rng.New(snap.Header.Seed), Clock: clk},
		Codec:     contracts.Codec{Tiles: tiles},
		Clock:     clk,
		Tune:      tune.Board,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := b.ImportSnapshot(snap); err != nil {
		return nil, nil, err
	}
	return b, clk, nil
}

// verify replays every recorded bid the snapshot does not already reflect
// and checks that b reproduces the recorded audit trail. Entries newer than
// the snapshot are those with a sequence number above fromSeq; logs written
// without sequence numbers fall back to tick > fromTick. Settlements need the
// delivered grid, which the audit log does not carry, so SETTLED entries are
// skipped on both sides and sequence numbers are not compared.
func verify(b *board.Board, clk *clock.Manual, recorded []board.AuditEntry, fromTick, fromSeq uint64) (int, error) {
	rec := &recorder{}
	b.Subscribe(func(ev board.Event) {
		if ev.Kind != board.EventSettled {
			_ = rec.WriteAudit(board.AuditFor(ev))
		}
	})

	var want []board.AuditEntry
	for _, e := range recorded {
		if e.Action == string(board.EventSettled) {
			continue
		}
		if (e.Seq > 0 && e.Seq > fromSeq) || (e.Seq == 0 && e.Tick > fromTick) {
			want = append(want, e)
		}
	}

	tick := fromTick
	for _, e := range want {
		if e.Tick < tick {
			return 0, fmt.Errorf("audit out of order at tick %d: %s %s", e.Tick, e.Action, e.ContractID)
		}
		for tick < e.Tick {
			tick++
			clk.Set(tick)
			if err := b.Tick(tick); err != nil {
				return 0, fmt.Errorf("tick %d: %w", tick, err)
			}
		}
		if e.Action == string(board.EventBid) {
			if _, err := b.Bid(e.ContractID, contracts.Bidder(e.Actor), e.Amount); err != nil {
				return 0, fmt.Errorf("tick %d bid on %s: %w", tick, e.ContractID, err)
			}
		}
	}

	if len(rec.entries) != len(want) {
		return 0, fmt.Errorf("entry count mismatch: replayed=%d recorded=%d", len(rec.entries), len(want))
	}
	for j := range want {
		got, exp := rec.entries[j], want[j]
		got.Seq, exp.Seq = 0, 0
		gb, _ := json.Marshal(got)
		eb, _ := json.Marshal(exp)
		if string(gb) != string(eb) {
			return j, fmt.Errorf("mismatch at entry %d:\n  got  %s\n  want %s", j, gb, eb)
		}
	}
	return len(want), nil
}
