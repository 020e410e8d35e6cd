package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	queue
	wg   sync.WaitGroup
	once sync.Once
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db}
	s.ch = make(chan req, 65536)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			contract_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			payout INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_contract_tick ON audits(contract_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE TABLE IF NOT EXISTS contracts (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			payout INTEGER NOT NULL,
			low_bidder TEXT NOT NULL,
			bids INTEGER NOT NULL,
			size TEXT NOT NULL,
			type TEXT NOT NULL,
			result TEXT NOT NULL,
			created_tick INTEGER NOT NULL,
			updated_tick INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			contracts INTEGER NOT NULL,
			awaiting INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

const sqliteUpsertContract = `INSERT INTO contracts(id,status,payout,low_bidder,bids,size,type,result,created_tick,updated_tick)
	VALUES(?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		status=excluded.status,
		payout=excluded.payout,
		low_bidder=COALESCE(NULLIF(excluded.low_bidder,''), contracts.low_bidder),
		bids=contracts.bids+excluded.bids,
		size=COALESCE(NULLIF(excluded.size,''), contracts.size),
		type=COALESCE(NULLIF(excluded.type,''), contracts.type),
		result=COALESCE(NULLIF(excluded.result,''), contracts.result),
		updated_tick=excluded.updated_tick`

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteAudit(entry board.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRowFor(path, snap)})
}

func (s *SQLiteIndex) Stats() QueueStats { return s.stats() }

func (s *SQLiteIndex) UpsertCatalogs(cat *catalogs.TileCatalog, tune tuning.Tuning) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(cat, tune) {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Flush blocks until every queued write has been committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error { return s.flush(ctx) }

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,contract_id,amount,payout,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	upsertContract, _ := s.db.Prepare(sqliteUpsertContract)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,contracts,awaiting) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAudit, upsertContract, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.flushed != nil {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil {
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
			if insertAudit == nil || upsertContract == nil {
				continue
			}
			if _, err := tx.Stmt(insertAudit).Exec(
				int64(a.Tick), seq, a.Actor, a.Action, a.ContractID, a.Amount, a.Payout, a.Reason, string(raw),
			); err != nil {
				rollback()
				continue
			}
			c := contractRowFor(a)
			if _, err := tx.Stmt(upsertContract).Exec(
				c.ID, c.Status, c.Payout, c.LowBidder, c.Bids, c.Size, c.Type, c.Result, int64(c.CreatedTick), int64(c.UpdatedTick),
			); err != nil {
				rollback()
				continue
			}
			opCount += 2

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Tick), sn.Path, int64(sn.Seed), sn.Contracts, sn.Awaiting); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

// ContractRow is the indexed state of one contract.
type ContractRow struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Payout      int    `json:"payout"`
	LowBidder   string `json:"low_bidder"`
	Bids        int    `json:"bids"`
	Size        string `json:"size"`
	Type        string `json:"type"`
	Result      string `json:"result,omitempty"`
	CreatedTick uint64 `json:"created_tick"`
	UpdatedTick uint64 `json:"updated_tick"`
}

// Contracts lists indexed contracts, newest first. An empty status matches all.
func (s *SQLiteIndex) Contracts(ctx context.Context, status string, limit int) ([]ContractRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,status,payout,low_bidder,bids,size,type,result,created_tick,updated_tick
		FROM contracts WHERE (?='' OR status=?) ORDER BY updated_tick DESC, id DESC LIMIT ?`, status, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContractRow
	for rows.Next() {
		var r ContractRow
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Status, &r.Payout, &r.LowBidder, &r.Bids, &r.Size, &r.Type, &r.Result, &created, &updated); err != nil {
			return nil, err
		}
		r.CreatedTick, r.UpdatedTick = uint64(created), uint64(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// History returns the audit trail of one contract in tick order.
func (s *SQLiteIndex) History(ctx context.Context, contractID string) ([]board.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM audits WHERE contract_id=? ORDER BY tick, seq`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []board.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a board.AuditEntry
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
