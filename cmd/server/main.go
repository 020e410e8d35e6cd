package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asteroidworks.ai/internal/metrics"
	persistlog "asteroidworks.ai/internal/persistence/log"
	"asteroidworks.ai/internal/persistence/snapshot"
	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/sim/clock"
	"asteroidworks.ai/internal/sim/contracts"
	"asteroidworks.ai/internal/sim/rng"
	"asteroidworks.ai/internal/sim/tuning"
	"asteroidworks.ai/internal/transport/observer"
	"asteroidworks.ai/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		boardID    = flag.String("board", "board_1", "board id")
		seed       = flag.Uint64("seed", 1337, "board seed (used only when starting a fresh board)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (audit + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		mcpListen     = flag.String("mcp_listen", "127.0.0.1:8090", "embedded MCP http listen address (empty to disable)")
		mcpHMACSecret = flag.String("mcp_hmac_secret", "", "embedded MCP hmac secret (or set AW_MCP_HMAC_SECRET)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tiles, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	boardDir := filepath.Join(*dataDir, "boards", *boardID)
	snapDir := filepath.Join(boardDir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional: read-model index backend (does not affect board determinism).
	idx, err := openRuntimeIndex(boardDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(tiles, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	var (
		snap      snapshot.SnapshotV1
		haveSnap  bool
		startTick uint64
		boardSeed = *seed
	)
	if snapshotToLoad != "" {
		snap, err = snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.BoardID != "" && snap.Header.BoardID != *boardID {
			logger.Fatalf("snapshot board id mismatch: flag=%s snap=%s", *boardID, snap.Header.BoardID)
		}
		if snap.Header.CatalogDigest != "" && snap.Header.CatalogDigest != tiles.Digest {
			logger.Printf("tile catalog changed since snapshot; contracts naming removed tiles will drop requirements")
		}
		haveSnap = true
		startTick = snap.Header.Tick
		boardSeed = snap.Header.Seed
	}

	auditLog := persistlog.NewAuditLogger(boardDir)
	defer auditLog.Close()

	clk := clock.NewManual(startTick)
	codec := contracts.Codec{Tiles: tiles, Log: log.New(os.Stdout, "[codec] ", log.LstdFlags)}
	b, err := board.New(board.Config{
		ID: *boardID,
		Generator: &contracts.Generator{
			Tiles: tiles,
			Tune:  tune.Contracts,
			Rand:  rng.New(boardSeed),
			Clock: clk,
		},
		Codec:  codec,
		Clock:  clk,
		Tune:   tune.Board,
		Audit:  multiAuditLogger{a: auditLog, b: idx},
		Logger: log.New(os.Stdout, "[board] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("board: %v", err)
	}
	if haveSnap {
		if err := b.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d contracts=%d", filepath.Base(snapshotToLoad), startTick, b.Len())
	} else {
		logger.Printf("fresh board %s seed=%d", *boardID, boardSeed)
	}
	metrics.SetOpen(b.List())
	b.Subscribe(metrics.Observe)

	ctx, cancel := signalContext()
	defer cancel()

	rt := &boardRuntime{
		board:         b,
		clock:         clk,
		snapDir:       snapDir,
		snapEvery:     uint64(tune.SnapshotEveryTicks),
		currency:      tune.Currency,
		catalogDigest: tiles.Digest,
		idx:           idx,
		log:           logger,
	}
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		rt.run(ctx, tune.TickRateHz)
	}()

	embeddedMCP, err := startEmbeddedMCP(ctx, embeddedMCPCfg{
		Listen:     strings.TrimSpace(*mcpListen),
		HMACSecret: strings.TrimSpace(*mcpHMACSecret),
		Board:      b,
		Tiles:      tiles,
		Currency:   tune.Currency,
	}, logger)
	if err != nil {
		logger.Fatalf("embedded mcp: %v", err)
	}
	defer embeddedMCP.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	wsSrv := ws.NewServer(ws.Config{
		Board:       b,
		Currency:    tune.Currency,
		TilesDigest: tiles.Digest,
		Logger:      log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds),
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	enableAdminHTTP := envBool("AW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("AW_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect board determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			resp := struct {
				BoardID   string `json:"board_id"`
				Tick      uint64 `json:"tick"`
				Contracts int    `json:"contracts"`
				Sessions  int    `json:"sessions"`
				Index     any    `json:"index,omitempty"`
			}{
				BoardID:   b.ID(),
				Tick:      b.Now(),
				Contracts: b.Len(),
				Sessions:  wsSrv.Sessions(),
			}
			if idx != nil {
				resp.Index = idx.Stats()
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			tick := clk.Now()
			path, err := rt.writeSnapshot(tick)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick, "path": path})
		})

		obsSrv := observer.NewServer(observer.Config{
			Board:    b,
			Tiles:    tiles,
			Currency: tune.Currency,
			Logger:   log.New(os.Stdout, "[observer] ", log.LstdFlags),
		})
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (AW_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (AW_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-runDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
