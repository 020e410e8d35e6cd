// Package snapshot stores board state as zstd-compressed text: one JSON header
// line followed by one tab-separated record per contract.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	BoardID string `json:"board_id"`
	Tick    uint64 `json:"tick"`

	Seed     uint64 `json:"seed"`
	RNGState []byte `json:"rng_state"`

	Currency      string `json:"currency,omitempty"`
	CatalogDigest string `json:"catalog_digest,omitempty"`

	NextContract     uint64 `json:"next_contract"`
	LastGenerateTick uint64 `json:"last_generate_tick"`

	// AuditSeq is the sequence number of the last audit entry already
	// reflected in the snapshot.
	AuditSeq uint64 `json:"audit_seq,omitempty"`
}

// ContractV1 is one contract line. Record is the contract's own save format and
// never contains a tab.
type ContractV1 struct {
	ID          string
	Phase       string
	CreatedTick uint64
	Record      string
}

type SnapshotV1 struct {
	Header    Header
	Contracts []ContractV1
}

func Encode(w io.Writer, snap SnapshotV1) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	for _, c := range snap.Contracts {
		if strings.ContainsAny(c.ID+c.Phase+c.Record, "\t\n") {
			return fmt.Errorf("snapshot: contract %q contains a tab or newline", c.ID)
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%s\n", c.ID, c.Phase, c.CreatedTick, c.Record); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return snap, err
		}
		return snap, fmt.Errorf("snapshot: missing header")
	}
	if err := json.Unmarshal(sc.Bytes(), &snap.Header); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	for line := 2; sc.Scan(); line++ {
		text := sc.Text()
		if text == "" {
			continue
		}
		parts := strings.SplitN(text, "\t", 4)
		if len(parts) != 4 {
			return snap, fmt.Errorf("snapshot line %d: want 4 fields, got %d", line, len(parts))
		}
		created, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return snap, fmt.Errorf("snapshot line %d: created tick: %w", line, err)
		}
		snap.Contracts = append(snap.Contracts, ContractV1{
			ID:          parts[0],
			Phase:       parts[1],
			CreatedTick: created,
			Record:      parts[3],
		})
	}
	return snap, sc.Err()
}

// WriteSnapshot writes to a temp file and renames it into place, so readers
// never see a partial snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := Encode(enc, snap); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer dec.Close()
	return Decode(dec)
}

// PathForTick is <dir>/<tick>.snap.zst.
func PathForTick(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the snapshot in dir with the highest tick, or "" if none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
