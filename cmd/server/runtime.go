package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"asteroidworks.ai/internal/metrics"
	"asteroidworks.ai/internal/persistence/indexdb"
	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/clock"
)

// boardRuntime drives one board: it advances the clock a tick at a time,
// runs the scheduler and writes periodic snapshots.
type boardRuntime struct {
	board         *board.Board
	clock         *clock.Manual
	snapDir       string
	snapEvery     uint64
	currency      string
	catalogDigest string
	idx           indexdb.Index
	log           *log.Logger
}

// step advances one tick and returns the new tick.
func (r *boardRuntime) step() uint64 {
	now, err := r.board.Step()
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("board").Inc()
		r.log.Printf("tick %d: %v", now, err)
	}
	metrics.CurrentTick.Set(float64(now))
	if r.idx != nil {
		st := r.idx.Stats()
		metrics.IndexQueueDepth.Set(float64(st.QueueDepth))
		metrics.IndexDropped.WithLabelValues("audit").Set(float64(st.DropAuditTotal))
		metrics.IndexDropped.WithLabelValues("snapshot").Set(float64(st.DropSnapshotTotal))
	}
	return now
}

func (r *boardRuntime) snapshotDue(tick uint64) bool {
	return r.snapEvery > 0 && tick%r.snapEvery == 0
}

// writeSnapshot exports the board at tick and stores it under snapDir.
func (r *boardRuntime) writeSnapshot(tick uint64) (string, error) {
	start := time.Now()
	snap, err := r.board.ExportSnapshot(tick)
	if err != nil {
		return "", err
	}
	snap.Header.Currency = r.currency
	snap.Header.CatalogDigest = r.catalogDigest

	path := snapshot.PathForTick(r.snapDir, tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	if r.idx != nil {
		r.idx.RecordSnapshot(path, snap)
	}
	return path, nil
}

// run ticks at rateHz until ctx ends, then writes a final snapshot.
func (r *boardRuntime) run(ctx context.Context, rateHz int) {
	if rateHz <= 0 {
		rateHz = 1
	}
	t := time.NewTicker(time.Second / time.Duration(rateHz))
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			tick := r.clock.Now()
			if path, err := r.writeSnapshot(tick); err != nil {
				r.log.Printf("final snapshot: %v", err)
			} else {
				r.log.Printf("final snapshot tick=%d path=%s", tick, path)
			}
			return
		case <-t.C:
			now := r.step()
			if r.snapshotDue(now) {
				if _, err := r.writeSnapshot(now); err != nil {
					metrics.ErrorsTotal.WithLabelValues("snapshot").Inc()
					r.log.Printf("snapshot: %v", err)
				}
			}
		}
	}
}
