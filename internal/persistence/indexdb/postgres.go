package indexdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/tuning"
)

// PostgresIndex mirrors SQLiteIndex on a shared PostgreSQL database. Queued
// writes are sent as one pgx.Batch per drain of the queue.
type PostgresIndex struct {
	pool *pgxpool.Pool

	queue
	wg   sync.WaitGroup
	once sync.Once
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	p := &PostgresIndex{pool: pool}
	p.ch = make(chan req, 65536)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick BIGINT NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			contract_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			payout INTEGER NOT NULL,
			reason TEXT,
			raw_json JSONB NOT NULL,
			PRIMARY KEY (tick, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audits_contract_tick ON audits(contract_id, tick)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			payout INTEGER NOT NULL,
			low_bidder TEXT NOT NULL,
			bids INTEGER NOT NULL,
			size TEXT NOT NULL,
			type TEXT NOT NULL,
			result TEXT NOT NULL,
			created_tick BIGINT NOT NULL,
			updated_tick BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick BIGINT PRIMARY KEY,
			path TEXT NOT NULL,
			seed BIGINT NOT NULL,
			contracts INTEGER NOT NULL,
			awaiting INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

const (
	pgInsertAudit = `INSERT INTO audits(tick,seq,actor,action,contract_id,amount,payout,reason,raw_json)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tick, seq) DO UPDATE SET actor=EXCLUDED.actor, action=EXCLUDED.action,
			contract_id=EXCLUDED.contract_id, amount=EXCLUDED.amount, payout=EXCLUDED.payout,
			reason=EXCLUDED.reason, raw_json=EXCLUDED.raw_json`

	pgUpsertContract = `INSERT INTO contracts(id,status,payout,low_bidder,bids,size,type,result,created_tick,updated_tick)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status,
			payout=EXCLUDED.payout,
			low_bidder=COALESCE(NULLIF(EXCLUDED.low_bidder,''), contracts.low_bidder),
			bids=contracts.bids+EXCLUDED.bids,
			size=COALESCE(NULLIF(EXCLUDED.size,''), contracts.size),
			type=COALESCE(NULLIF(EXCLUDED.type,''), contracts.type),
			result=COALESCE(NULLIF(EXCLUDED.result,''), contracts.result),
			updated_tick=EXCLUDED.updated_tick`

	pgInsertSnapshot = `INSERT INTO snapshots(tick,path,seed,contracts,awaiting) VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (tick) DO UPDATE SET path=EXCLUDED.path, seed=EXCLUDED.seed,
			contracts=EXCLUDED.contracts, awaiting=EXCLUDED.awaiting`
)

func (p *PostgresIndex) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
		p.pool.Close()
	})
	return nil
}

func (p *PostgresIndex) WriteAudit(entry board.AuditEntry) error {
	p.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (p *PostgresIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	p.enqueue(req{kind: reqSnapshot, snapshot: snapshotRowFor(path, snap)})
}

func (p *PostgresIndex) Stats() QueueStats { return p.stats() }

func (p *PostgresIndex) Flush(ctx context.Context) error { return p.flush(ctx) }

func (p *PostgresIndex) UpsertCatalogs(cat *catalogs.TileCatalog, tune tuning.Tuning) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO meta(key,value) VALUES('schema_version','1') ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`)
	now := time.Now().UTC()
	for _, r := range catalogRows(cat, tune) {
		batch.Queue(`INSERT INTO catalogs(name,digest,json,updated_at) VALUES($1,$2,$3,$4)
			ON CONFLICT (name) DO UPDATE SET digest=EXCLUDED.digest, json=EXCLUDED.json, updated_at=EXCLUDED.updated_at`,
			r.name, r.digest, r.json, now)
	}
	return p.pool.SendBatch(ctx, batch).Close()
}

func (p *PostgresIndex) loop() {
	const maxBatch = 500

	var (
		batch         = &pgx.Batch{}
		lastAuditTick uint64
		auditSeq      int
	)

	send := func() {
		if batch.Len() == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = p.pool.SendBatch(ctx, batch).Close()
		cancel()
		batch = &pgx.Batch{}
	}

	for r := range p.ch {
		if r.flushed != nil {
			send()
			close(r.flushed)
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			batch.Queue(pgInsertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.ContractID, a.Amount, a.Payout, a.Reason, raw)
			c := contractRowFor(a)
			batch.Queue(pgUpsertContract, c.ID, c.Status, c.Payout, c.LowBidder, c.Bids, c.Size, c.Type, c.Result,
				int64(c.CreatedTick), int64(c.UpdatedTick))
		case reqSnapshot:
			sn := r.snapshot
			batch.Queue(pgInsertSnapshot, int64(sn.Tick), sn.Path, int64(sn.Seed), sn.Contracts, sn.Awaiting)
		}
		if batch.Len() >= maxBatch || len(p.ch) == 0 {
			send()
		}
	}
	send()
}

func (p *PostgresIndex) Contracts(ctx context.Context, status string, limit int) ([]ContractRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `SELECT id,status,payout,low_bidder,bids,size,type,result,created_tick,updated_tick
		FROM contracts WHERE ($1='' OR status=$1) ORDER BY updated_tick DESC, id DESC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()
	var out []ContractRow
	for rows.Next() {
		var r ContractRow
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Status, &r.Payout, &r.LowBidder, &r.Bids, &r.Size, &r.Type, &r.Result, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		r.CreatedTick, r.UpdatedTick = uint64(created), uint64(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresIndex) History(ctx context.Context, contractID string) ([]board.AuditEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT raw_json FROM audits WHERE contract_id=$1 ORDER BY tick, seq`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()
	var out []board.AuditEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a board.AuditEntry
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
