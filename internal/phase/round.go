// internal/phase/round.go
package phase

import (
	"context"
	"sync"
	"time"

	"github.com/relaymesh/gauntlet-cli/internal/auth"
	"github.com/relaymesh/gauntlet-cli/internal/executor"
	"github.com/relaymesh/gauntlet-cli/internal/metrics"
)

// roundPoolCap bounds a round's worker pool regardless of fleet size.
const roundPoolCap = 100

// Runner drives one staggered round: the fleet is dispatched in fixed-size
// batches with a delay between them, emulating a gradual ramp-up instead of
// an instantaneous spike. That arrival pattern is what the gateway's rate
// limiter actually sees in production.
type Runner struct {
	exec   *executor.Executor
	tokens *auth.Manager
	prompt string

	// sleep is swapped out by tests to count ramp delays without waiting.
	sleep func(time.Duration)
}

// NewRunner builds a round runner over the shared executor and token manager.
func NewRunner(exec *executor.Executor, tokens *auth.Manager, prompt string) *Runner {
	return &Runner{exec: exec, tokens: tokens, prompt: prompt, sleep: time.Sleep}
}

// Round sends one request per logged-in account, ramped in batches of
// batchSize with batchDelay between consecutive batches (none after the
// last). usernames must be in provisioning order; accounts absent from the
// credential store are skipped. The round blocks until every submitted
// request has resolved; outcomes land in completion order.
func (r *Runner) Round(ctx context.Context, name string, usernames []string, batchSize int, batchDelay time.Duration) *metrics.Phase {
	// Tokens are refreshed once per round, not per batch; anything that
	// expires mid-round is caught by the executor's reactive 401 path.
	r.tokens.EnsureFresh(ctx)

	store := r.tokens.Store()
	var targets []string
	for _, u := range usernames {
		if _, ok := store.Get(u); ok {
			targets = append(targets, u)
		}
	}

	p := metrics.NewPhase(name)
	if len(targets) == 0 {
		return p
	}

	if batchSize < 1 {
		batchSize = 1
	}
	if batchSize > len(targets) {
		batchSize = len(targets)
	}

	poolWidth := len(targets)
	if poolWidth > roundPoolCap {
		poolWidth = roundPoolCap
	}

	start := time.Now()
	results := make(chan metrics.Outcome, len(targets))
	sem := make(chan struct{}, poolWidth)
	var wg sync.WaitGroup

	for idx := 0; idx < len(targets); idx += batchSize {
		end := idx + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		for _, username := range targets[idx:end] {
			wg.Add(1)
			sem <- struct{}{}
			go func(u string) {
				defer wg.Done()
				defer func() { <-sem }()
				cred, ok := store.Get(u)
				if !ok {
					// Logged out between filtering and dispatch; nothing to send.
					return
				}
				results <- r.exec.Execute(ctx, u, cred, r.prompt, name)
			}(username)
		}
		if end < len(targets) {
			r.sleep(batchDelay)
		}
	}

	wg.Wait()
	close(results)
	for out := range results {
		p.Add(out)
	}
	p.Wall = time.Since(start)
	return p
}
