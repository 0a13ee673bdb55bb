// internal/auth/manager.go
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/relaymesh/gauntlet-cli/internal/credential"
	"github.com/relaymesh/gauntlet-cli/internal/gateway"
)

const (
	// loginFanout caps how many login calls run at once during LoginAll.
	loginFanout = 50
	// refreshFanout caps concurrent refreshes during EnsureFresh.
	refreshFanout = 20
	// transientRetryDelay is the pause before the single retry of a login
	// that failed at the transport level.
	transientRetryDelay = 200 * time.Millisecond
)

// Manager owns login and token refresh for a fleet of test accounts. All
// successful logins land in the shared credential store; accounts that can't
// log in are simply absent from it.
type Manager struct {
	client   *gateway.Client
	store    *credential.Store
	password string
	grace    time.Duration
}

// NewManager builds a token manager over the shared gateway client and
// credential store. grace is the refresh window before expiry.
func NewManager(client *gateway.Client, store *credential.Store, password string, grace time.Duration) *Manager {
	return &Manager{client: client, store: store, password: password, grace: grace}
}

// Store exposes the credential store the manager populates.
func (m *Manager) Store() *credential.Store {
	return m.store
}

// Grace returns the configured refresh grace window.
func (m *Manager) Grace() time.Duration {
	return m.grace
}

// LoginOne performs a single login. A 401 is terminal (wrong credentials);
// a transport failure is retried exactly once after a short delay. On success
// the credential's expiry is anchored to the moment the token was issued.
func (m *Manager) LoginOne(ctx context.Context, username string) (credential.Credential, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, ttl, err := m.client.Login(ctx, username, m.password)
		if err == nil {
			now := time.Now()
			return credential.Credential{
				Username:  username,
				Token:     token,
				IssuedAt:  now,
				ExpiresAt: now.Add(ttl),
			}, nil
		}
		if errors.Is(err, gateway.ErrUnauthorized) {
			return credential.Credential{}, err
		}
		lastErr = err
		if attempt == 0 {
			select {
			case <-time.After(transientRetryDelay):
			case <-ctx.Done():
				return credential.Credential{}, ctx.Err()
			}
		}
	}
	return credential.Credential{}, lastErr
}

// LoginAll logs in every username with bounded concurrency and fills the
// store with the successes. It returns how many logged in; a shortfall is
// the caller's to report, not an error.
func (m *Manager) LoginAll(ctx context.Context, usernames []string) int {
	sem := make(chan struct{}, loginFanout)
	var wg sync.WaitGroup
	for _, username := range usernames {
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			cred, err := m.LoginOne(ctx, u)
			if err != nil {
				return
			}
			m.store.Put(cred)
		}(username)
	}
	wg.Wait()
	return m.store.Len()
}

// EnsureFresh scans the store once and concurrently re-logs every credential
// within the grace window of expiry. Refresh failures leave the old entry in
// place; the next request on it will hit the reactive 401 path instead.
func (m *Manager) EnsureFresh(ctx context.Context) int {
	var stale []string
	for _, cred := range m.store.Snapshot() {
		if cred.ExpiresWithin(m.grace) {
			stale = append(stale, cred.Username)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	sem := make(chan struct{}, refreshFanout)
	var wg sync.WaitGroup
	for _, username := range stale {
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			if cred, err := m.LoginOne(ctx, u); err == nil {
				m.store.Put(cred)
			}
		}(username)
	}
	wg.Wait()
	return len(stale)
}

// RefreshOnDemand synchronously refreshes one account's credential, replacing
// the store entry on success. Used reactively when a request comes back 401
// because the token was invalidated out of band.
func (m *Manager) RefreshOnDemand(ctx context.Context, username string) (credential.Credential, error) {
	cred, err := m.LoginOne(ctx, username)
	if err != nil {
		return credential.Credential{}, err
	}
	m.store.Put(cred)
	return cred, nil
}
