package provision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relaymesh/gauntlet-cli/internal/gateway"
)

// fakeAdmin emulates the gateway's admin API: first create of a name returns
// 201, duplicates return the legacy 500-with-"exists" shape, and names in
// reject always fail with 400.
type fakeAdmin struct {
	mu        sync.Mutex
	existing  map[string]bool
	activated map[string]int
	reject    map[string]bool
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		existing:  make(map[string]bool),
		activated: make(map[string]int),
		reject:    make(map[string]bool),
	}
}

func (f *fakeAdmin) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/admin/users" && r.Method == http.MethodPost:
			var body struct {
				Username string `json:"username"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad create body: %v", err)
			}
			if f.reject[body.Username] {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if f.existing[body.Username] {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"user already exists"}`))
				return
			}
			f.existing[body.Username] = true
			w.WriteHeader(http.StatusCreated)

		case strings.HasSuffix(r.URL.Path, "/active") && r.Method == http.MethodPost:
			username := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/admin/users/"), "/active")
			f.activated[username]++
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeAdmin) activations(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activated[username]
}

func newProvisioner(url string) *Provisioner {
	client := gateway.NewClient(url, 5*time.Second)
	return New(client, "pass123", "basic", 8, 8)
}

func TestUsernames(t *testing.T) {
	names := Usernames("st_user", 3)
	want := []string{"st_user000", "st_user001", "st_user002"}
	if len(names) != len(want) {
		t.Fatalf("len = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestProvisionFreshAccounts(t *testing.T) {
	admin := newFakeAdmin()
	srv := httptest.NewServer(admin.handler(t))
	defer srv.Close()

	p := newProvisioner(srv.URL)
	usernames := Usernames("st_user", 5)
	res := p.Provision(context.Background(), usernames)

	if res.Usable != 5 {
		t.Errorf("usable = %d, want 5", res.Usable)
	}
	if len(res.Created) != 5 {
		t.Errorf("created = %d, want 5", len(res.Created))
	}
	for _, u := range usernames {
		if admin.activations(u) == 0 {
			t.Errorf("%s was never activated", u)
		}
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	admin := newFakeAdmin()
	srv := httptest.NewServer(admin.handler(t))
	defer srv.Close()

	p := newProvisioner(srv.URL)
	usernames := Usernames("st_user", 4)

	first := p.Provision(context.Background(), usernames)
	second := p.Provision(context.Background(), usernames)

	if len(first.Created) != 4 {
		t.Errorf("first run created = %d, want 4", len(first.Created))
	}
	if len(second.Created) != 0 {
		t.Errorf("second run created = %d, want 0 (all accounts already exist)", len(second.Created))
	}
	if second.Usable != 4 {
		t.Errorf("second run usable = %d, want 4", second.Usable)
	}
}

func TestProvisionOneFailureDoesNotAbortBatch(t *testing.T) {
	admin := newFakeAdmin()
	admin.reject["st_user002"] = true
	srv := httptest.NewServer(admin.handler(t))
	defer srv.Close()

	p := newProvisioner(srv.URL)
	usernames := Usernames("st_user", 5)
	res := p.Provision(context.Background(), usernames)

	if res.Usable != 4 {
		t.Errorf("usable = %d, want 4", res.Usable)
	}
	if len(res.Usernames) != 5 {
		t.Errorf("full username list = %d, want 5 regardless of failures", len(res.Usernames))
	}
	if admin.activations("st_user002") != 0 {
		t.Error("failed account must not be activated")
	}
	for _, u := range []string{"st_user000", "st_user001", "st_user003", "st_user004"} {
		if admin.activations(u) == 0 {
			t.Errorf("%s should have been activated", u)
		}
	}
}

// Even accounts that already existed get re-activated in phase 2, to repair
// races between concurrent provisioners using the same prefix.
func TestProvisionReactivatesExistingAccounts(t *testing.T) {
	admin := newFakeAdmin()
	admin.existing["st_user000"] = true
	admin.existing["st_user001"] = true
	srv := httptest.NewServer(admin.handler(t))
	defer srv.Close()

	p := newProvisioner(srv.URL)
	res := p.Provision(context.Background(), Usernames("st_user", 2))

	if len(res.Created) != 0 {
		t.Errorf("created = %v, want none", res.Created)
	}
	for _, u := range []string{"st_user000", "st_user001"} {
		if admin.activations(u) == 0 {
			t.Errorf("existing account %s must still be activated", u)
		}
	}
}
