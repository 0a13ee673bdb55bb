package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/gauntlet-cli/internal/auth"
	"github.com/relaymesh/gauntlet-cli/internal/credential"
	"github.com/relaymesh/gauntlet-cli/internal/gateway"
	"github.com/relaymesh/gauntlet-cli/internal/metrics"
)

// scriptedGateway plays back a fixed sequence of chat statuses and serves
// logins with fresh tokens, counting both.
type scriptedGateway struct {
	mu          sync.Mutex
	chatScript  []int // status per chat call, last entry repeats
	chatCalls   int
	loginCalls  int
	loginStatus int
	chatBody    string
}

func newScripted(statuses ...int) *scriptedGateway {
	return &scriptedGateway{
		chatScript:  statuses,
		loginStatus: http.StatusOK,
		chatBody:    `{"choices":[{"message":{"content":"7"}}]}`,
	}
}

func (s *scriptedGateway) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch r.URL.Path {
		case "/chat/completions":
			idx := s.chatCalls
			if idx >= len(s.chatScript) {
				idx = len(s.chatScript) - 1
			}
			status := s.chatScript[idx]
			s.chatCalls++
			w.WriteHeader(status)
			if status == http.StatusOK {
				fmt.Fprint(w, s.chatBody)
			}
		case "/auth/login":
			s.loginCalls++
			w.WriteHeader(s.loginStatus)
			if s.loginStatus == http.StatusOK {
				fmt.Fprintf(w, `{"token":"refreshed-%d","expires_in":60}`, s.loginCalls)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (s *scriptedGateway) counts() (chat, login int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatCalls, s.loginCalls
}

// harness wires a scripted gateway into an executor with a recording sleep.
type harness struct {
	exec   *Executor
	tokens *auth.Manager
	srv    *httptest.Server
	sleeps []time.Duration
}

func newHarness(t *testing.T, sg *scriptedGateway, retry429 bool, max429 int) *harness {
	t.Helper()
	srv := httptest.NewServer(sg.handler())
	t.Cleanup(srv.Close)

	client := gateway.NewClient(srv.URL, 2*time.Second)
	tokens := auth.NewManager(client, credential.NewStore(), "pass123", 5*time.Second)
	exec := New(client, tokens, "deepseek-chat", retry429, max429)

	h := &harness{exec: exec, tokens: tokens, srv: srv}
	exec.sleep = func(d time.Duration) {
		h.sleeps = append(h.sleeps, d)
		time.Sleep(10 * time.Millisecond) // keep elapsed measurable without real backoff
	}
	return h
}

func (h *harness) cred(username, token string) credential.Credential {
	now := time.Now()
	c := credential.Credential{Username: username, Token: token, IssuedAt: now, ExpiresAt: now.Add(time.Minute)}
	h.tokens.Store().Put(c)
	return c
}

func TestExecuteSuccessFirstTry(t *testing.T) {
	sg := newScripted(http.StatusOK)
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "Say a number.", "round1")

	if !out.OK {
		t.Fatalf("outcome not OK: %+v", out)
	}
	if out.Retries != 0 {
		t.Errorf("retries = %d, want 0", out.Retries)
	}
	if out.Snippet != "7" {
		t.Errorf("snippet = %q, want 7", out.Snippet)
	}
	if out.Phase != "round1" {
		t.Errorf("phase = %q", out.Phase)
	}
	if out.Elapsed <= 0 {
		t.Error("elapsed must be positive")
	}
}

func TestExecuteRateLimitThenSuccess(t *testing.T) {
	sg := newScripted(http.StatusTooManyRequests, http.StatusOK)
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "tok")

	start := time.Now()
	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round1")

	if !out.OK {
		t.Fatalf("outcome not OK: %+v", out)
	}
	if out.Retries != 1 {
		t.Errorf("retries = %d, want 1", out.Retries)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 150*time.Millisecond {
		t.Errorf("backoff sleeps = %v, want [150ms]", h.sleeps)
	}
	if out.Elapsed < 10*time.Millisecond {
		t.Errorf("elapsed = %v, must include the backoff sleep", out.Elapsed)
	}
	if wall := time.Since(start); out.Elapsed > wall {
		t.Errorf("elapsed %v exceeds wall clock %v", out.Elapsed, wall)
	}
	if chat, _ := sg.counts(); chat != 2 {
		t.Errorf("chat calls = %d, want 2", chat)
	}
}

func TestExecuteRateLimitCeilingExhausted(t *testing.T) {
	sg := newScripted(http.StatusTooManyRequests)
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "burst")

	if out.OK {
		t.Fatal("outcome should be a failure")
	}
	if out.Category != metrics.CategoryRateLimit {
		t.Errorf("category = %s, want rate_limit", out.Category)
	}
	if out.ErrorTag != "HTTP_429" {
		t.Errorf("tag = %s, want HTTP_429", out.ErrorTag)
	}
	if out.Retries != 2 {
		t.Errorf("retries = %d, want 2 (the ceiling)", out.Retries)
	}
	// Exponential: 150ms, then 300ms.
	if len(h.sleeps) != 2 || h.sleeps[0] != 150*time.Millisecond || h.sleeps[1] != 300*time.Millisecond {
		t.Errorf("backoff sleeps = %v, want [150ms 300ms]", h.sleeps)
	}
	if chat, _ := sg.counts(); chat != 3 {
		t.Errorf("chat calls = %d, want 3 (initial + 2 retries)", chat)
	}
}

func TestExecuteRateLimitRetryDisabled(t *testing.T) {
	sg := newScripted(http.StatusTooManyRequests)
	h := newHarness(t, sg, false, 2)
	cred := h.cred("u1", "tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round1")

	if out.OK || out.Category != metrics.CategoryRateLimit {
		t.Fatalf("outcome = %+v, want immediate rate_limit failure", out)
	}
	if chat, _ := sg.counts(); chat != 1 {
		t.Errorf("chat calls = %d, want 1 with retry disabled", chat)
	}
}

func TestExecute401RefreshThenSuccess(t *testing.T) {
	sg := newScripted(http.StatusUnauthorized, http.StatusOK)
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "stale-tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round2")

	if !out.OK {
		t.Fatalf("outcome not OK: %+v", out)
	}
	if out.Retries != 1 {
		t.Errorf("retries = %d, want 1", out.Retries)
	}
	if _, login := sg.counts(); login != 1 {
		t.Errorf("login calls = %d, want exactly 1 refresh", login)
	}
	// The refresh must be visible to everyone sharing the store.
	stored, _ := h.tokens.Store().Get("u1")
	if stored.Token == "stale-tok" {
		t.Error("shared store still holds the stale token after refresh")
	}
}

func TestExecute401TwiceIsTerminalAuth(t *testing.T) {
	sg := newScripted(http.StatusUnauthorized, http.StatusUnauthorized)
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round1")

	if out.OK {
		t.Fatal("outcome should be a failure")
	}
	if out.Category != metrics.CategoryAuth {
		t.Errorf("category = %s, want auth", out.Category)
	}
	chat, login := sg.counts()
	if login != 1 {
		t.Errorf("login calls = %d, want exactly 1 (never an unbounded refresh loop)", login)
	}
	if chat != 2 {
		t.Errorf("chat calls = %d, want 2", chat)
	}
}

func TestExecute401RefreshFailure(t *testing.T) {
	sg := newScripted(http.StatusUnauthorized)
	sg.loginStatus = http.StatusUnauthorized
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round1")

	if out.OK || out.Category != metrics.CategoryAuth {
		t.Fatalf("outcome = %+v, want auth failure when refresh fails", out)
	}
	if chat, _ := sg.counts(); chat != 1 {
		t.Errorf("chat calls = %d, want 1 (no retry without a fresh token)", chat)
	}
}

func TestExecuteUpstreamErrorNoRetry(t *testing.T) {
	for _, status := range []int{500, 502, 503} {
		t.Run(fmt.Sprintf("HTTP_%d", status), func(t *testing.T) {
			sg := newScripted(status)
			h := newHarness(t, sg, true, 2)
			cred := h.cred("u1", "tok")

			out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round1")

			if out.OK {
				t.Fatal("outcome should be a failure")
			}
			if out.Category != metrics.CategoryUpstream {
				t.Errorf("category = %s, want upstream", out.Category)
			}
			if out.ErrorTag != fmt.Sprintf("HTTP_%d", status) {
				t.Errorf("tag = %s", out.ErrorTag)
			}
			if chat, _ := sg.counts(); chat != 1 {
				t.Errorf("chat calls = %d, want 1 (5xx is never retried)", chat)
			}
		})
	}
}

func TestExecuteUnexpectedStatusIsOther(t *testing.T) {
	sg := newScripted(http.StatusForbidden)
	h := newHarness(t, sg, true, 2)
	cred := h.cred("u1", "tok")

	out := h.exec.Execute(context.Background(), "u1", cred, "hi", "round1")

	if out.OK || out.Category != metrics.CategoryOther {
		t.Fatalf("outcome = %+v, want other-category failure", out)
	}
	if out.ErrorTag != "HTTP_403" {
		t.Errorf("tag = %s, want HTTP_403", out.ErrorTag)
	}
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := gateway.NewClient(srv.URL, 30*time.Millisecond)
	tokens := auth.NewManager(client, credential.NewStore(), "pass123", 5*time.Second)
	exec := New(client, tokens, "m", true, 2)

	now := time.Now()
	cred := credential.Credential{Username: "u1", Token: "tok", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}

	out := exec.Execute(context.Background(), "u1", cred, "hi", "round1")

	if out.OK {
		t.Fatal("outcome should be a failure")
	}
	if out.Category != metrics.CategoryTimeout {
		t.Errorf("category = %s, want timeout", out.Category)
	}
	if out.ErrorTag != "timeout" {
		t.Errorf("tag = %s, want timeout", out.ErrorTag)
	}
	if out.Elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, should cover the timed-out attempt", out.Elapsed)
	}
}
