// Package harness provides test harness utilities for E2E testing
package harness

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// FakeGateway is an in-process stand-in for the LLM gateway: token auth,
// admin user management and a chat endpoint, with optional rate limiting.
type FakeGateway struct {
	mu         sync.Mutex
	users      map[string]*userRecord
	tokens     map[string]string // token -> username
	tokenSeq   int
	chatCalls  int
	loginCalls int

	// TokenTTL is the expires_in the login endpoint hands out, in seconds.
	TokenTTL int
	// RateLimitEvery makes every Nth chat call answer 429. Zero disables.
	RateLimitEvery int
	// RateLimitMax caps how many 429s are served in total. Zero means no cap.
	RateLimitMax int
	limited      int

	srv *httptest.Server
}

type userRecord struct {
	password  string
	quotaTier string
	active    bool
}

// NewFakeGateway starts the gateway on an ephemeral port.
func NewFakeGateway() *FakeGateway {
	g := &FakeGateway{
		users:    make(map[string]*userRecord),
		tokens:   make(map[string]string),
		TokenTTL: 3600,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", g.handleLogin)
	mux.HandleFunc("/chat/completions", g.handleChat)
	mux.HandleFunc("/admin/users", g.handleUsers)
	mux.HandleFunc("/admin/users/", g.handleUser)
	g.srv = httptest.NewServer(mux)
	return g
}

// URL returns the gateway's base URL.
func (g *FakeGateway) URL() string { return g.srv.URL }

// Close shuts the gateway down.
func (g *FakeGateway) Close() { g.srv.Close() }

// ChatCalls returns how many chat requests the gateway has seen.
func (g *FakeGateway) ChatCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chatCalls
}

// LoginCalls returns how many login requests the gateway has seen.
func (g *FakeGateway) LoginCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loginCalls
}

// UserCount returns how many accounts exist.
func (g *FakeGateway) UserCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

// RevokeAllTokens invalidates every issued token, forcing re-login on the
// next authenticated call.
func (g *FakeGateway) RevokeAllTokens() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = make(map[string]string)
}

func (g *FakeGateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.loginCalls++
	u, ok := g.users[body.Username]
	if !ok || !u.active || u.password != body.Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	g.tokenSeq++
	token := fmt.Sprintf("tok-%s-%d", body.Username, g.tokenSeq)
	g.tokens[token] = body.Username

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": g.TokenTTL,
	})
}

func (g *FakeGateway) handleChat(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.chatCalls++
	n := g.chatCalls
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	_, authorized := g.tokens[bearer]
	limited := g.RateLimitEvery > 0 && n%g.RateLimitEvery == 0 &&
		(g.RateLimitMax == 0 || g.limited < g.RateLimitMax)
	if limited {
		g.limited++
	}
	g.mu.Unlock()

	if !authorized {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if limited {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": fmt.Sprintf("reply %d", n)}},
		},
	})
}

func (g *FakeGateway) handleUsers(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var body struct {
			Username  string `json:"username"`
			Password  string `json:"password"`
			QuotaTier string `json:"quota_tier"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, exists := g.users[body.Username]; exists {
			writeJSON(w, http.StatusOK, map[string]any{"detail": "user already exists"})
			return
		}
		g.users[body.Username] = &userRecord{password: body.Password, quotaTier: body.QuotaTier}
		writeJSON(w, http.StatusCreated, map[string]any{"username": body.Username})
	case http.MethodGet:
		var list []map[string]any
		for name, u := range g.users {
			list = append(list, map[string]any{
				"username": name, "quota_tier": u.quotaTier, "is_active": u.active,
			})
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *FakeGateway) handleUser(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	if name, ok := strings.CutSuffix(rest, "/active"); ok {
		u, exists := g.users[name]
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			IsActive bool `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.active = body.IsActive
		w.WriteHeader(http.StatusOK)
		return
	}
	u, exists := g.users[rest]
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": rest, "quota_tier": u.quotaTier, "is_active": u.active,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
