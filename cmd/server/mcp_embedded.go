package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"asteroidworks.ai/internal/sim/board"
	"asteroidworks.ai/internal/sim/catalogs"
	"asteroidworks.ai/internal/transport/mcp"
)

type embeddedMCPCfg struct {
	// Listen is the HTTP listen address for the embedded MCP server.
	// Set to empty to disable.
	Listen string

	// HMACSecret overrides AW_MCP_HMAC_SECRET.
	HMACSecret string

	Board    *board.Board
	Tiles    *catalogs.TileCatalog
	Currency string
}

type embeddedMCP struct {
	httpSrv *http.Server
	ln      net.Listener

	closeOnce sync.Once
}

func (e *embeddedMCP) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if e.httpSrv != nil {
			_ = e.httpSrv.Shutdown(ctx)
		}
		if e.ln != nil {
			_ = e.ln.Close()
		}
	})
}

func startEmbeddedMCP(ctx context.Context, cfg embeddedMCPCfg, logger *log.Logger) (*embeddedMCP, error) {
	listen := strings.TrimSpace(cfg.Listen)
	if listen == "" {
		logger.Printf("embedded MCP disabled (mcp_listen empty)")
		return nil, nil
	}

	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("AW_MCP_HMAC_SECRET"))
	}
	if envBool("AW_MCP_REQUIRE_HMAC", defaultRequireMCPHMAC()) && secret == "" {
		return nil, fmt.Errorf("[mcp] hmac secret required (set -mcp_hmac_secret or AW_MCP_HMAC_SECRET)")
	}
	if secret == "" && !isLoopbackListenAddress(listen) {
		return nil, fmt.Errorf("[mcp] refusing insecure MCP listen on non-loopback address %q without hmac secret", listen)
	}

	authMode := "none(loopback-only)"
	if secret != "" {
		authMode = "hmac"
	}
	logger.Printf("embedded_mcp auth_mode=%s listening on http://%s/mcp", authMode, listen)

	server := mcp.NewServer(mcp.Config{
		Board:    cfg.Board,
		Tiles:    cfg.Tiles,
		Currency: cfg.Currency,
		Logger:   log.New(os.Stdout, "[mcp] ", log.LstdFlags|log.Lmicroseconds),
	})
	handler := mcp.RequireAuth(mcp.NewHTTPHandler(server), []byte(secret))

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.Handle("/mcp/", handler)

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("mcp listen: %w", err)
	}
	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	em := &embeddedMCP{httpSrv: httpSrv, ln: ln}

	go func() {
		<-ctx.Done()
		em.Close()
	}()
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("embedded_mcp serve error: %v", err)
		}
	}()
	return em, nil
}

func defaultRequireMCPHMAC() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return true
	default:
		return false
	}
}

func isLoopbackListenAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = strings.TrimSpace(h)
	}
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
