package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"asteroidworks.ai/internal/sim/board"
)

// dbCmd queries the sqlite read model written by the server.
//
//	admin db [-board id | -db path] snapshots|contracts|history|bidders|catalogs
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	boardID := fs.String("board", "board_1", "board id (ignored with -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	status := fs.String("status", "", "contract status filter (contracts)")
	contractID := fs.String("contract", "", "contract id (history)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "boards", *boardID, "index", "board.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	if err := runQuery(os.Stdout, db, q, dbArgs{Limit: *limit, Status: *status, ContractID: *contractID}); err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
}

type dbArgs struct {
	Limit      int
	Status     string
	ContractID string
}

func runQuery(w io.Writer, db *sql.DB, q string, a dbArgs) error {
	enc := json.NewEncoder(w)
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,contracts,awaiting FROM snapshots ORDER BY tick DESC LIMIT ?`, a.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				Path      string `json:"path"`
				Seed      int64  `json:"seed"`
				Contracts int    `json:"contracts"`
				Awaiting  int    `json:"awaiting"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Contracts, &r.Awaiting); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "contracts":
		rows, err := db.Query(`SELECT id,status,payout,low_bidder,bids,size,type,result,created_tick,updated_tick
			FROM contracts WHERE (?='' OR status=?) ORDER BY updated_tick DESC, id DESC LIMIT ?`, a.Status, a.Status, a.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID          string `json:"id"`
				Status      string `json:"status"`
				Payout      int    `json:"payout"`
				LowBidder   string `json:"low_bidder"`
				Bids        int    `json:"bids"`
				Size        string `json:"size"`
				Type        string `json:"type"`
				Result      string `json:"result,omitempty"`
				CreatedTick int64  `json:"created_tick"`
				UpdatedTick int64  `json:"updated_tick"`
			}
			if err := rows.Scan(&r.ID, &r.Status, &r.Payout, &r.LowBidder, &r.Bids, &r.Size, &r.Type, &r.Result, &r.CreatedTick, &r.UpdatedTick); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "history":
		if strings.TrimSpace(a.ContractID) == "" {
			return fmt.Errorf("history needs -contract")
		}
		rows, err := db.Query(`SELECT raw_json FROM audits WHERE contract_id=? ORDER BY tick, seq`, a.ContractID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			var e board.AuditEntry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				return err
			}
			_ = enc.Encode(e)
		}
		return rows.Err()

	case "bidders":
		// Accepted and total bids per bidder.
		rows, err := db.Query(`SELECT actor,
				SUM(CASE WHEN action='BID' AND reason IN ('FIRST','OUTBID','RESERVE_LOWERED') THEN 1 ELSE 0 END) AS accepted,
				SUM(CASE WHEN action='BID' THEN 1 ELSE 0 END) AS bids
			FROM audits WHERE action='BID' GROUP BY actor ORDER BY accepted DESC, actor LIMIT ?`, a.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Bidder   string `json:"bidder"`
				Accepted int    `json:"accepted"`
				Bids     int    `json:"bids"`
			}
			if err := rows.Scan(&r.Bidder, &r.Accepted, &r.Bids); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (want snapshots|contracts|history|bidders|catalogs)", q)
	}
}
