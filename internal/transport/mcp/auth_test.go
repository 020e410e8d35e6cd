package mcp

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func signedRequest(t *testing.T, secret []byte, body []byte, ts time.Time, nonce string) *http.Request {
	t.Helper()
	tsStr := strconv.FormatInt(ts.UnixMilli(), 10)
	req := httptest.NewRequest(http.MethodPost, "http://example.invalid/mcp", bytes.NewReader(body))
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set(headerAgentID, "agent_1")
	req.Header.Set(headerTS, tsStr)
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerSignature, Sign(secret, tsStr, http.MethodPost, "/mcp", "agent_1", nonce, body))
	return req
}

func TestVerifyHMAC(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	now := time.UnixMilli(1700000000000)

	req := signedRequest(t, secret, body, now, "n1")
	if vr := verifyHMAC(req, body, secret, now); vr.HTTPStatus != 0 || vr.SessionKey != "agent_1" {
		t.Fatalf("expected ok, got %+v", vr)
	}
	if vr := verifyHMAC(req, []byte(`{}`), secret, now); vr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("tampered body should fail, got %+v", vr)
	}
	if vr := verifyHMAC(req, body, secret, now.Add(301*time.Second)); vr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("stale timestamp should fail, got %+v", vr)
	}
	req.Header.Del(headerNonce)
	if vr := verifyHMAC(req, body, secret, now); vr.Message != "missing x-nonce" {
		t.Fatalf("expected missing nonce, got %+v", vr)
	}
}

func TestRequireAuth(t *testing.T) {
	secret := []byte("topsecret")
	var seen []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireAuth(next, secret)
	body := []byte(`{"jsonrpc":"2.0"}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, secret, body, time.Now(), "n1"))
	if rec.Code != http.StatusNoContent || !bytes.Equal(seen, body) {
		t.Fatalf("signed request: code=%d body=%q", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, secret, body, time.Now(), "n1"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay should be rejected, got %d", rec.Code)
	}
}

func TestRequireAuthLoopbackOnlyWithoutSecret(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote client should be forbidden, got %d", rec.Code)
	}

	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback client should pass, got %d", rec.Code)
	}
}

func TestReplayGuardAllowsAfterExpiry(t *testing.T) {
	g := newReplayGuard(2 * time.Second)
	now := time.Unix(1700000000, 0)
	if !g.allow("agent_1", "sig_1", now) {
		t.Fatalf("expected first request to pass")
	}
	if g.allow("agent_1", "sig_1", now.Add(1*time.Second)) {
		t.Fatalf("expected duplicate request in ttl to fail")
	}
	if !g.allow("agent_1", "sig_2", now.Add(1*time.Second)) {
		t.Fatalf("expected different signature to pass")
	}
	if !g.allow("agent_1", "sig_1", now.Add(3*time.Second)) {
		t.Fatalf("expected request after ttl expiry to pass")
	}
}
