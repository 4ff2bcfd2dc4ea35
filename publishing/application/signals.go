package application

import (
	"context"
	"sync"

	"github.com/AzielCF/az-publish/publishing/domain"
)

// JobWatcher carries job status nudges from executors to relays.
type JobWatcher interface {
	JobChanged(ctx context.Context, jobID string, status domain.JobStatus)
	// Watch returns a channel closed when ctx is done.
	Watch(ctx context.Context, jobID string) <-chan domain.JobStatus
}

// SweepWaker triggers a sweep ahead of the regular interval.
type SweepWaker interface {
	Wake(ctx context.Context) error
	Wakeups(ctx context.Context) <-chan struct{}
}

// LocalSignals is the single process JobWatcher and SweepWaker used when
// valkey is disabled.
type LocalSignals struct {
	mu       sync.Mutex
	watchers map[string]map[chan domain.JobStatus]struct{}
	wakeups  map[chan struct{}]struct{}
}

func NewLocalSignals() *LocalSignals {
	return &LocalSignals{
		watchers: make(map[string]map[chan domain.JobStatus]struct{}),
		wakeups:  make(map[chan struct{}]struct{}),
	}
}

func (l *LocalSignals) JobChanged(_ context.Context, jobID string, status domain.JobStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.watchers[jobID] {
		select {
		case ch <- status:
		default:
		}
	}
}

func (l *LocalSignals) Watch(ctx context.Context, jobID string) <-chan domain.JobStatus {
	ch := make(chan domain.JobStatus, 1)
	l.mu.Lock()
	if l.watchers[jobID] == nil {
		l.watchers[jobID] = make(map[chan domain.JobStatus]struct{})
	}
	l.watchers[jobID][ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.watchers[jobID], ch)
		if len(l.watchers[jobID]) == 0 {
			delete(l.watchers, jobID)
		}
		close(ch)
		l.mu.Unlock()
	}()
	return ch
}

func (l *LocalSignals) Wake(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.wakeups {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (l *LocalSignals) Wakeups(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.wakeups[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.wakeups, ch)
		close(ch)
		l.mu.Unlock()
	}()
	return ch
}
