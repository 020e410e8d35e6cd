// Package indexdb maintains a queryable read model of board activity: audit
// entries, the latest known state of every contract, snapshots and catalog
// digests. Writes are queued and applied by a background goroutine; the
// JSONL audit log stays the source of truth when the queue overflows.
package indexdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"

	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/tuning"
)

// Index is implemented by every backend.
type Index interface {
	board.AuditLogger
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	UpsertCatalogs(cat *catalogs.TileCatalog, tune tuning.Tuning) error
	Stats() QueueStats
	Flush(ctx context.Context) error
	Close() error
}

// Reader is the query side used by admin tooling.
type Reader interface {
	Contracts(ctx context.Context, status string, limit int) ([]ContractRow, error)
	History(ctx context.Context, contractID string) ([]board.AuditEntry, error)
}

var (
	_ Index  = (*SQLiteIndex)(nil)
	_ Reader = (*SQLiteIndex)(nil)
	_ Index  = (*PostgresIndex)(nil)
	_ Reader = (*PostgresIndex)(nil)
)

type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	audit    board.AuditEntry
	snapshot snapshotRow

	// flushed is closed once everything queued before it is committed.
	flushed chan struct{}
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Seed      uint64
	Contracts int
	Awaiting  int
}

func snapshotRowFor(path string, snap snapshot.SnapshotV1) snapshotRow {
	r := snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Header.Seed,
		Contracts: len(snap.Contracts),
	}
	for _, c := range snap.Contracts {
		if c.Phase == string(board.PhaseAwaiting) {
			r.Awaiting++
		}
	}
	return r
}

// queue is the non-blocking hand-off shared by the backends.
type queue struct {
	ch     chan req
	closed atomic.Bool

	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

func (q *queue) enqueue(r req) {
	if q.closed.Load() {
		return
	}
	select {
	case q.ch <- r:
	default:
		switch r.kind {
		case reqAudit:
			q.dropAudit.Add(1)
		case reqSnapshot:
			q.dropSnapshot.Add(1)
		}
	}
}

// flush waits for the writer to commit every request queued so far.
func (q *queue) flush(ctx context.Context) error {
	if q.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case q.ch <- req{flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(q.ch),
		QueueCapacity:     cap(q.ch),
		DropAuditTotal:    q.dropAudit.Load(),
		DropSnapshotTotal: q.dropSnapshot.Load(),
	}
}

// contractStatus maps an audit action to the status column of the contracts
// table. Bids keep the contract open.
func contractStatus(action string) string {
	switch board.EventKind(action) {
	case board.EventExpired:
		return "expired"
	case board.EventAwaiting:
		return "awaiting"
	case board.EventSettled:
		return "settled"
	default:
		return "bidding"
	}
}

func lowBidder(a board.AuditEntry) string {
	if a.Action == string(board.EventBid) {
		switch contracts.BidReason(a.Reason) {
		case contracts.BidFirst, contracts.BidOutbid, contracts.BidReserveLowered:
			return a.Actor
		}
		return ""
	}
	if v, ok := a.Details["low_bidder"].(string); ok {
		return v
	}
	return ""
}

// contractRow is the upsert derived from one audit entry.
type contractRow struct {
	ID          string
	Status      string
	Payout      int
	LowBidder   string
	Bids        int
	Size        string
	Type        string
	Result      string
	CreatedTick uint64
	UpdatedTick uint64
}

func contractRowFor(a board.AuditEntry) contractRow {
	r := contractRow{
		ID:          a.ContractID,
		Status:      contractStatus(a.Action),
		Payout:      a.Payout,
		LowBidder:   lowBidder(a),
		UpdatedTick: a.Tick,
	}
	switch board.EventKind(a.Action) {
	case board.EventCreated:
		r.CreatedTick = a.Tick
		r.Size, _ = a.Details["size"].(string)
		r.Type, _ = a.Details["type"].(string)
	case board.EventBid:
		r.Bids = 1
	case board.EventSettled:
		r.Result = a.Reason
	}
	return r
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

func catalogRows(cat *catalogs.TileCatalog, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if b, err := json.Marshal(cat.All()); err == nil {
		rows = append(rows, catalogRow{name: "tiles", digest: cat.Digest, json: b})
	}
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}
	return rows
}
