// internal/credential/store.go
package credential

import (
	"sync"
	"time"
)

// Credential is one account's bearer token with its lifetime. Values are
// immutable: a refresh produces a new Credential and replaces the old one
// wholesale, so a reader can never observe a token paired with the wrong
// expiry.
type Credential struct {
	Username  string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresWithin reports whether the credential is inside the given grace
// window of its expiry (or already expired).
func (c Credential) ExpiresWithin(grace time.Duration) bool {
	return time.Until(c.ExpiresAt) < grace
}

// Store is a concurrency-safe map of username → Credential. It only ever
// holds accounts whose login succeeded. Updates are whole-value replacements
// under the lock; unrelated reads never see a partially-written entry.
type Store struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{creds: make(map[string]Credential)}
}

// Get returns the credential for username, if present.
func (s *Store) Get(username string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[username]
	return c, ok
}

// Put replaces the credential for cred.Username.
func (s *Store) Put(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Username] = cred
}

// Delete removes a username's credential, if present.
func (s *Store) Delete(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, username)
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// Usernames returns the stored usernames in unspecified order.
func (s *Store) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.creds))
	for u := range s.creds {
		names = append(names, u)
	}
	return names
}

// Snapshot returns a point-in-time copy of every credential. Callers get
// their own slice; later store mutations are not reflected in it.
func (s *Store) Snapshot() []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out
}
