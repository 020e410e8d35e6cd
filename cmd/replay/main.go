package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "asteroidworks.ai/internal/persistence/log"
	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		boardID    = flag.String("board", "board_1", "board id")
		auditDir   = flag.String("audit", "", "audit dir containing audit-*.jsonl.zst (default: <data>/boards/<board>/audit)")
		contractID = flag.String("contract", "", "print the history of one contract")
		snapPath   = flag.String("snapshot", "", "verify: path to .snap.zst to replay from")
		configDir  = flag.String("configs", "./configs", "config directory (verify only)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (verify only, default: <configs>/tuning.yaml)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	dir := strings.TrimSpace(*auditDir)
	if dir == "" {
		dir = filepath.Join(*dataDir, "boards", *boardID, "audit")
	}
	entries, err := loadAudit(dir, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}

	switch {
	case *contractID != "":
		n := 0
		for _, e := range entries {
			if e.ContractID != *contractID {
				continue
			}
			n++
			fmt.Println(formatEntry(e))
		}
		if n == 0 {
			fmt.Fprintln(os.Stderr, "no audit entries for", *contractID)
			os.Exit(1)
		}
	case *snapPath != "":
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d board=%s tick=%d seed=%d contracts=%d next=%d\n",
			snap.Header.Version, snap.Header.BoardID, snap.Header.Tick, snap.Header.Seed,
			len(snap.Contracts), snap.Header.NextContract)

		b, clk, err := rebuild(snap, *configDir, *tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rebuild board:", err)
			os.Exit(1)
		}
		checked, err := verify(b, clk, entries, snap.Header.Tick, snap.Header.AuditSeq)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		fmt.Printf("replay ok: checked=%d entries (from snapshot tick=%d)\n", checked, snap.Header.Tick)
	default:
		s := summarize(entries)
		fmt.Printf("entries=%d ticks=%d..%d contracts=%d\n", len(entries), s.FirstTick, s.LastTick, s.Contracts)
		for _, k := range s.keys() {
			fmt.Printf("  %-24s %d\n", k, s.Counts[k])
		}
	}
}

func loadAudit(dir string, toTick uint64) ([]board.AuditEntry, error) {
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no audit files found in %s", dir)
	}
	var out []board.AuditEntry
	for _, path := range files {
		stop := false
		err := persistlog.ReadAudit(path, func(e board.AuditEntry) bool {
			if toTick != 0 && e.Tick > toTick {
				stop = true
				return false
			}
			out = append(out, e)
			return true
		})
		if err != nil {
			return nil, err
		}
		if stop {
			break
		}
	}
	return out, nil
}
