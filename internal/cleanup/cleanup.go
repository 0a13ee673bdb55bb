// internal/cleanup/cleanup.go
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaymesh/gauntlet-cli/internal/gateway"
)

// Teardown is best effort throughout: every error here is swallowed so that
// cleanup can never mask the diagnostic result of the run itself.

// DeactivateAll flips every listed account inactive through the admin API.
// Returns how many calls succeeded.
func DeactivateAll(ctx context.Context, client *gateway.Client, usernames []string) int {
	ok := 0
	for _, u := range usernames {
		if err := client.SetUserActive(ctx, u, false); err == nil {
			ok++
		}
	}
	return ok
}

// PurgeStats counts what an artifact purge removed.
type PurgeStats struct {
	UserFiles  int
	QuotaFiles int
	LogDirs    int
}

// Purger removes a gateway's on-disk per-user artifacts: user records under
// <dataDir>/users, quota state under <dataDir>/quotas, and per-user log
// directories under <logsDir>/users. An empty dataDir disables it.
type Purger struct {
	dataDir string
	logsDir string
	prefix  string
}

// NewPurger builds a purger scoped to the given username prefix.
func NewPurger(dataDir, logsDir, prefix string) *Purger {
	return &Purger{dataDir: dataDir, logsDir: logsDir, prefix: prefix}
}

// PurgeByPrefix removes artifacts for every on-disk user whose name carries
// the purger's prefix. Used as the pre-clean pass to clear leftovers from
// earlier, interrupted runs.
func (p *Purger) PurgeByPrefix() PurgeStats {
	if p.dataDir == "" || p.prefix == "" {
		return PurgeStats{}
	}
	var targets []string
	entries, err := os.ReadDir(filepath.Join(p.dataDir, "users"))
	if err != nil {
		return PurgeStats{}
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, p.prefix) && strings.HasSuffix(name, ".toml") {
			targets = append(targets, strings.TrimSuffix(name, ".toml"))
		}
	}
	return p.purge(targets)
}

// PurgeUsers removes artifacts for the given usernames. Only names carrying
// the prefix, or explicitly listed in created, are touched - the purge must
// never reach beyond what this harness provisioned.
func (p *Purger) PurgeUsers(usernames, created []string) PurgeStats {
	if p.dataDir == "" {
		return PurgeStats{}
	}
	createdSet := make(map[string]bool, len(created))
	for _, u := range created {
		createdSet[u] = true
	}
	var targets []string
	seen := make(map[string]bool)
	for _, u := range append(append([]string{}, usernames...), created...) {
		if seen[u] {
			continue
		}
		seen[u] = true
		if strings.HasPrefix(u, p.prefix) || createdSet[u] {
			targets = append(targets, u)
		}
	}
	return p.purge(targets)
}

func (p *Purger) purge(targets []string) PurgeStats {
	var stats PurgeStats
	for _, u := range targets {
		userFile := filepath.Join(p.dataDir, "users", u+".toml")
		if err := os.Remove(userFile); err == nil {
			stats.UserFiles++
		}
		quotaFile := filepath.Join(p.dataDir, "quotas", u+".json")
		if err := os.Remove(quotaFile); err == nil {
			stats.QuotaFiles++
		}
		if p.logsDir != "" {
			logDir := filepath.Join(p.logsDir, "users", u)
			if _, err := os.Stat(logDir); err == nil {
				if err := os.RemoveAll(logDir); err == nil {
					stats.LogDirs++
				}
			}
		}
	}
	return stats
}
