package board

import (
	"fmt"
	"strconv"
	"strings"

	"asteroidworks.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures every entry plus the random source position, so an
// imported board generates the same contracts the exporting board would have.
func (b *Board) ExportSnapshot(tick uint64) (snapshot.SnapshotV1, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := b.gen.Rand.MarshalBinary()
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("export rng: %w", err)
	}
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:          snapshot.Version,
			BoardID:          b.id,
			Tick:             tick,
			Seed:             b.gen.Rand.Seed(),
			RNGState:         state,
			NextContract:     b.nextID,
			LastGenerateTick: b.lastGen,
			AuditSeq:         b.seq,
		},
	}
	for _, id := range b.sortedIDsLocked() {
		e := b.entries[id]
		rec, err := b.codec.Encode(e.Contract)
		if err != nil {
			return snapshot.SnapshotV1{}, fmt.Errorf("export %s: %w", id, err)
		}
		snap.Contracts = append(snap.Contracts, snapshot.ContractV1{
			ID:          id,
			Phase:       string(e.Phase),
			CreatedTick: e.CreatedTick,
			Record:      rec,
		})
	}
	return snap, nil
}

// ImportSnapshot replaces the board contents. Nothing changes when any record
// fails to decode.
func (b *Board) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.BoardID != "" && snap.Header.BoardID != b.id {
		return fmt.Errorf("snapshot board id %q does not match %q", snap.Header.BoardID, b.id)
	}
	entries := make(map[string]*Entry, len(snap.Contracts))
	next := snap.Header.NextContract
	for _, rec := range snap.Contracts {
		if !strings.HasPrefix(rec.ID, "C") || idNum(rec.ID) == 0 {
			return fmt.Errorf("snapshot contract id %q", rec.ID)
		}
		phase := Phase(rec.Phase)
		if phase != PhaseBidding && phase != PhaseAwaiting {
			return fmt.Errorf("snapshot contract %s: phase %q", rec.ID, rec.Phase)
		}
		c, err := b.codec.Decode(rec.Record)
		if err != nil {
			return fmt.Errorf("snapshot contract %s: %w", rec.ID, err)
		}
		entries[rec.ID] = &Entry{ID: rec.ID, Phase: phase, CreatedTick: rec.CreatedTick, Contract: c}
		if n := idNum(rec.ID); n >= next {
			next = n + 1
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(snap.Header.RNGState) > 0 {
		if err := b.gen.Rand.UnmarshalBinary(snap.Header.RNGState); err != nil {
			return fmt.Errorf("snapshot rng: %w", err)
		}
	}
	if next == 0 {
		next = 1
	}
	b.entries = entries
	b.nextID = next
	b.lastGen = snap.Header.LastGenerateTick
	b.seq = snap.Header.AuditSeq
	b.primed = next > 1
	b.log.Printf("imported %d contracts (next=%s)", len(entries), "C"+strconv.FormatUint(next, 10))
	return nil
}
