package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"asteroidworks.ai/internal/persistence/indexdb"
	"asteroidworks.ai/internal/sim/board"
)

func openRuntimeIndex(boardDir string, disableDB bool) (indexdb.Index, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("AW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(boardDir, "index", "board.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "postgres", "postgresql":
		url := strings.TrimSpace(os.Getenv("AW_INDEX_POSTGRES_URL"))
		if url == "" {
			return nil, fmt.Errorf("AW_INDEX_BACKEND=postgres but AW_INDEX_POSTGRES_URL is empty")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		idx, err := indexdb.OpenPostgres(ctx, url)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported AW_INDEX_BACKEND: %s", backend)
	}
}

// multiAuditLogger writes every entry to the durable log first, then the index.
type multiAuditLogger struct {
	a board.AuditLogger
	b board.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry board.AuditEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return err
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
