// Package providertest holds in-memory doubles for the external collaborators
// of the publish pipeline.
package providertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
)

// Adapter is a scripted ProviderAdapter.
type Adapter struct {
	name string

	mu      sync.Mutex
	outcome domain.ProviderOutcome
	err     error
	panicV  any
	delay   time.Duration
	inputs  []domain.PublishInput

	calls int32
}

// NewAdapter returns an adapter that succeeds with "<name>_post".
func NewAdapter(name string) *Adapter {
	return &Adapter{
		name:    strings.ToLower(name),
		outcome: domain.ProviderOutcome{OK: true, ExternalID: strings.ToLower(name) + "_post"},
	}
}

func (a *Adapter) Name() string { return a.name }

// Reject makes every call return ok=false with msg.
func (a *Adapter) Reject(msg string) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcome = domain.ProviderOutcome{OK: false, Error: msg}
	return a
}

// Fail makes every call return err.
func (a *Adapter) Fail(err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	return a
}

func (a *Adapter) Panic(v any) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panicV = v
	return a
}

// Delay holds every call for d or until ctx is done.
func (a *Adapter) Delay(d time.Duration) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
	return a
}

func (a *Adapter) Publish(ctx context.Context, in domain.PublishInput) (domain.ProviderOutcome, error) {
	atomic.AddInt32(&a.calls, 1)

	a.mu.Lock()
	a.inputs = append(a.inputs, in)
	outcome, err, panicV, delay := a.outcome, a.err, a.panicV, a.delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.ProviderOutcome{}, ctx.Err()
		}
	}
	if panicV != nil {
		panic(panicV)
	}
	if err != nil {
		return domain.ProviderOutcome{}, err
	}
	return outcome, nil
}

func (a *Adapter) Calls() int { return int(atomic.LoadInt32(&a.calls)) }

// Inputs returns a copy of what every call received.
func (a *Adapter) Inputs() []domain.PublishInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.PublishInput(nil), a.inputs...)
}

// Broker is a static IdentityBroker keyed by "user/provider".
type Broker struct {
	mu    sync.Mutex
	creds map[string]domain.Credential
	errs  map[string]error
}

func NewBroker() *Broker {
	return &Broker{creds: map[string]domain.Credential{}, errs: map[string]error{}}
}

func brokerKey(userID, provider string) string {
	return userID + "/" + strings.ToLower(provider)
}

// Grant issues a token for the pair.
func (b *Broker) Grant(userID, provider, token string) *Broker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds[brokerKey(userID, provider)] = domain.Credential{Token: token}
	return b
}

func (b *Broker) Deny(userID, provider string, err error) *Broker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[brokerKey(userID, provider)] = err
	return b
}

func (b *Broker) Credential(_ context.Context, userID, provider string) (domain.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := brokerKey(userID, provider)
	if err, ok := b.errs[key]; ok {
		return domain.Credential{}, err
	}
	cred, ok := b.creds[key]
	if !ok {
		return domain.Credential{}, fmt.Errorf("no credential for %s", key)
	}
	return cred, nil
}

// StatusClient is a scripted TaskStatusClient. Each query pops the next
// scripted answer; the last one repeats.
type StatusClient struct {
	mu      sync.Mutex
	script  map[string][]StatusAnswer
	queries map[string]int
}

type StatusAnswer struct {
	Outcome domain.TaskOutcome
	Err     error
}

func NewStatusClient() *StatusClient {
	return &StatusClient{script: map[string][]StatusAnswer{}, queries: map[string]int{}}
}

func (s *StatusClient) Script(externalTaskID string, answers ...StatusAnswer) *StatusClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[externalTaskID] = answers
	return s
}

func (s *StatusClient) Query(_ context.Context, externalTaskID string) (domain.TaskOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queries[externalTaskID]
	s.queries[externalTaskID] = n + 1

	answers := s.script[externalTaskID]
	if len(answers) == 0 {
		return domain.PendingOutcome(), nil
	}
	if n >= len(answers) {
		n = len(answers) - 1
	}
	return answers[n].Outcome, answers[n].Err
}

func (s *StatusClient) Queries(externalTaskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[externalTaskID]
}

// Fetcher is an ArtifactFetcher that records downloads instead of performing them.
type Fetcher struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func NewFetcher() *Fetcher {
	return &Fetcher{calls: map[string]int{}}
}

func (f *Fetcher) Fail(err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

func (f *Fetcher) Fetch(_ context.Context, taskID, url string) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[taskID]++
	if f.err != nil {
		return "", 0, f.err
	}
	return "artifacts/" + taskID + ".mp3", int64(len(url)), nil
}

// Downloads reports how many times the artifact of taskID was fetched.
func (f *Fetcher) Downloads(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[taskID]
}
