// internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/relaymesh/gauntlet-cli/internal/auth"
	"github.com/relaymesh/gauntlet-cli/internal/credential"
	"github.com/relaymesh/gauntlet-cli/internal/gateway"
	"github.com/relaymesh/gauntlet-cli/internal/metrics"
)

// backoffBase is the first 429 backoff; each further retry doubles it.
const backoffBase = 150 * time.Millisecond

// Executor issues one logical chat request with the harness's retry policy:
// one reactive token refresh on 401, bounded exponential backoff on 429,
// immediate failure on anything else. However many attempts that takes, the
// caller gets exactly one Outcome whose Elapsed covers the whole episode.
type Executor struct {
	client *gateway.Client
	tokens *auth.Manager
	model  string

	retryRateLimit  bool
	maxRateLimitTry int

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New builds an executor over the shared gateway client and token manager.
func New(client *gateway.Client, tokens *auth.Manager, model string, retryRateLimit bool, maxRateLimitTry int) *Executor {
	return &Executor{
		client:          client,
		tokens:          tokens,
		model:           model,
		retryRateLimit:  retryRateLimit,
		maxRateLimitTry: maxRateLimitTry,
		sleep:           time.Sleep,
	}
}

// state is one step of the retry machine. Keeping it explicit makes the
// retry ceiling and the single-refresh rule mechanically checkable.
type state int

const (
	stateAttempt state = iota
	stateRefresh
	stateBackoff
	stateDone
)

// Execute runs one logical request for username with the given credential.
// A mid-flight 401 refresh publishes the new credential to the shared store,
// so unrelated requests for the same account benefit immediately.
func (e *Executor) Execute(ctx context.Context, username string, cred credential.Credential, content, phase string) metrics.Outcome {
	start := time.Now()
	retries := 0
	refreshed := false

	var out metrics.Outcome
	st := stateAttempt
	for st != stateDone {
		switch st {
		case stateAttempt:
			res, err := e.client.Chat(ctx, cred.Token, e.model, content)
			if err != nil {
				out = failure(phase, 0, gateway.FaultName(err), retries)
				st = stateDone
				break
			}
			switch {
			case res.StatusCode == http.StatusOK:
				out = metrics.Outcome{
					OK:      true,
					Status:  http.StatusOK,
					Phase:   phase,
					Snippet: res.Snippet,
					Retries: retries,
				}
				st = stateDone
			case res.StatusCode == http.StatusUnauthorized && !refreshed:
				st = stateRefresh
			case res.StatusCode == http.StatusTooManyRequests && e.retryRateLimit && retries < e.maxRateLimitTry:
				st = stateBackoff
			default:
				out = failure(phase, res.StatusCode, fmt.Sprintf("HTTP_%d", res.StatusCode), retries)
				st = stateDone
			}

		case stateRefresh:
			// Exactly one refresh per logical request. A second 401, or a
			// refresh that itself fails, is terminal.
			fresh, err := e.tokens.RefreshOnDemand(ctx, username)
			if err != nil {
				out = failure(phase, http.StatusUnauthorized, "HTTP_401", retries)
				st = stateDone
				break
			}
			cred = fresh
			refreshed = true
			retries++
			st = stateAttempt

		case stateBackoff:
			e.sleep(backoffBase * (1 << retries))
			retries++
			st = stateAttempt
		}
	}

	out.Elapsed = time.Since(start)
	return out
}

// failure builds a failed outcome, bucketing the status or fault tag into
// the coarse category histogram.
func failure(phase string, status int, tag string, retries int) metrics.Outcome {
	return metrics.Outcome{
		OK:       false,
		Status:   status,
		ErrorTag: tag,
		Category: categorize(status, tag),
		Phase:    phase,
		Retries:  retries,
	}
}

func categorize(status int, tag string) metrics.Category {
	switch {
	case tag == "timeout":
		return metrics.CategoryTimeout
	case status == http.StatusUnauthorized:
		return metrics.CategoryAuth
	case status == http.StatusTooManyRequests:
		return metrics.CategoryRateLimit
	case status >= 500 && status < 600:
		return metrics.CategoryUpstream
	default:
		return metrics.CategoryOther
	}
}
