// internal/provision/provisioner.go
package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/relaymesh/gauntlet-cli/internal/gateway"
)

// Status is the per-account result of the creation phase.
type Status string

const (
	// StatusNew means the account did not exist before this run.
	StatusNew Status = "new"
	// StatusOK means the account already existed; for the rest of the run it
	// is interchangeable with StatusNew.
	StatusOK Status = "ok"
	// StatusFail excludes the account from activation and from the run.
	StatusFail Status = "fail"
)

// Provisioner creates and activates a fleet of test accounts through the
// admin API. Creation and activation are separate idempotent admin calls and
// must not race each other, so they run as two distinct fan-out phases.
type Provisioner struct {
	client          *gateway.Client
	password        string
	quotaTier       string
	createWorkers   int
	activateWorkers int
}

// New builds a provisioner. Worker widths of zero fall back to 30.
func New(client *gateway.Client, password, quotaTier string, createWorkers, activateWorkers int) *Provisioner {
	if createWorkers <= 0 {
		createWorkers = 30
	}
	if activateWorkers <= 0 {
		activateWorkers = 30
	}
	return &Provisioner{
		client:          client,
		password:        password,
		quotaTier:       quotaTier,
		createWorkers:   createWorkers,
		activateWorkers: activateWorkers,
	}
}

// Usernames generates the target username list for a run: prefix plus a
// zero-padded index, in stable provisioning order.
func Usernames(prefix string, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return names
}

// Result reports what provisioning did.
type Result struct {
	// Usernames is the full target list, in provisioning order, regardless of
	// per-account outcomes.
	Usernames []string
	// Created is the subset that did not exist before this run. Physical
	// cleanup uses it to scope deletions precisely.
	Created []string
	// Usable counts accounts with StatusNew or StatusOK.
	Usable int
}

// Provision runs the two-phase protocol: concurrent create-or-confirm over
// every username, then concurrent activation of every account that is usable.
// Activation runs even for accounts the create call already activated - if
// two processes provision the same prefix at once, the second phase repairs
// whatever the race left behind. A single account's failure never aborts the
// batch.
func (p *Provisioner) Provision(ctx context.Context, usernames []string) Result {
	statuses := p.createAll(ctx, usernames)

	var toActivate []string
	var created []string
	for _, u := range usernames {
		switch statuses[u] {
		case StatusNew:
			created = append(created, u)
			toActivate = append(toActivate, u)
		case StatusOK:
			toActivate = append(toActivate, u)
		}
	}

	p.activateAll(ctx, toActivate)

	return Result{
		Usernames: usernames,
		Created:   created,
		Usable:    len(toActivate),
	}
}

// createOne maps one create call onto a Status. Any error, transport or
// protocol, is a plain StatusFail: the account just sits this run out.
func (p *Provisioner) createOne(ctx context.Context, username string) Status {
	outcome, err := p.client.CreateUser(ctx, username, p.password, p.quotaTier)
	if err != nil {
		return StatusFail
	}
	switch outcome {
	case gateway.CreateCreated:
		return StatusNew
	case gateway.CreateExists:
		return StatusOK
	default:
		return StatusFail
	}
}

func (p *Provisioner) createAll(ctx context.Context, usernames []string) map[string]Status {
	statuses := make(map[string]Status, len(usernames))
	var mu sync.Mutex
	sem := make(chan struct{}, p.createWorkers)
	var wg sync.WaitGroup
	for _, username := range usernames {
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			s := p.createOne(ctx, u)
			mu.Lock()
			statuses[u] = s
			mu.Unlock()
		}(username)
	}
	wg.Wait()
	return statuses
}

func (p *Provisioner) activateAll(ctx context.Context, usernames []string) {
	sem := make(chan struct{}, p.activateWorkers)
	var wg sync.WaitGroup
	for _, username := range usernames {
		wg.Add(1)
		sem <- struct{}{}
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			// Best effort: a failed activation surfaces later as a 401/403 in
			// the request phases, which is exactly what we're here to measure.
			_ = p.client.SetUserActive(ctx, u, true)
		}(username)
	}
	wg.Wait()
}
