// internal/phase/burst.go
package phase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaymesh/gauntlet-cli/internal/auth"
	"github.com/relaymesh/gauntlet-cli/internal/executor"
	"github.com/relaymesh/gauntlet-cli/internal/metrics"
)

// Burst fires a fixed number of requests through one bounded pool with no
// batching and no stagger. Every request picks an identity at random, so the
// gateway sees uncoordinated maximal load from many accounts at once - a
// qualitatively different stress than the ramped rounds.
type Burst struct {
	exec   *executor.Executor
	tokens *auth.Manager
	prompt string
	rng    *rand.Rand

	// pacer optionally caps client-side dispatch rate. Nil means unlimited,
	// which is the point of a burst; the cap exists for runs where the box
	// generating load would otherwise drown its own NIC.
	pacer *rate.Limiter
}

// NewBurst builds a burst runner. seed fixes the identity-selection sequence
// for reproducible runs; rps > 0 enables the dispatch pacer.
func NewBurst(exec *executor.Executor, tokens *auth.Manager, prompt string, seed int64, rps float64) *Burst {
	b := &Burst{
		exec:   exec,
		tokens: tokens,
		prompt: prompt,
		rng:    rand.New(rand.NewSource(seed)),
	}
	if rps > 0 {
		b.pacer = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return b
}

// Run submits total requests under a pool of width concurrency and blocks
// until all resolve. An empty credential store skips the burst entirely and
// returns an empty phase. Identity selection snapshots the known usernames
// once; credentials themselves are re-read at dispatch so refreshes done by
// other workers are picked up.
func (b *Burst) Run(ctx context.Context, total, concurrency int) *metrics.Phase {
	p := metrics.NewPhase("burst")

	store := b.tokens.Store()
	names := store.Usernames()
	if len(names) == 0 || total <= 0 {
		return p
	}

	start := time.Now()
	results := make(chan metrics.Outcome, total)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := 0; i < total; i++ {
		// rand.Rand is not goroutine-safe; pick in the submit loop.
		username := names[b.rng.Intn(len(names))]
		if b.pacer != nil {
			if err := b.pacer.Wait(ctx); err != nil {
				break
			}
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			cred, ok := store.Get(u)
			if !ok {
				return
			}
			// Refresh synchronously if the token is about to lapse, so the
			// burst measures the gateway's limiter rather than token churn.
			if cred.ExpiresWithin(b.tokens.Grace()) {
				if fresh, err := b.tokens.RefreshOnDemand(ctx, u); err == nil {
					cred = fresh
				}
			}
			results <- b.exec.Execute(ctx, u, cred, b.prompt, "burst")
		}(username)
	}

	wg.Wait()
	close(results)
	for out := range results {
		p.Add(out)
	}
	p.Wall = time.Since(start)
	return p
}
