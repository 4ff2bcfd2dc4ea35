package application

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/sirupsen/logrus"
)

type RelayMessageType string

const (
	RelayStatus RelayMessageType = "status"
	RelayPing   RelayMessageType = "ping"
	RelayDone   RelayMessageType = "done"
)

type RelayMessage struct {
	OK   bool               `json:"ok"`
	Type RelayMessageType   `json:"type"`
	Job  *domain.PublishJob `json:"job,omitempty"`
}

// CloseReason tells the transport how a relay ended.
type CloseReason int

const (
	CloseNormal CloseReason = iota
	CloseTimeout
	CloseForbidden
	// CloseGone means the client went away or could not be written to.
	CloseGone
	CloseInternal
)

// Code is the websocket close code of the reason.
func (c CloseReason) Code() int {
	switch c {
	case CloseNormal:
		return 1000
	case CloseTimeout:
		return 4408
	case CloseForbidden:
		return 4403
	case CloseGone:
		return 1001
	default:
		return 1011
	}
}

func (c CloseReason) String() string {
	switch c {
	case CloseNormal:
		return "done"
	case CloseTimeout:
		return "timeout"
	case CloseForbidden:
		return "forbidden"
	case CloseGone:
		return "gone"
	default:
		return "internal_error"
	}
}

type RelayConfig struct {
	PollInterval time.Duration
	Keepalive    time.Duration
	MaxDuration  time.Duration
}

// StatusRelay narrates one job's stored state to one client. It only reads.
type StatusRelay struct {
	jobs    domain.JobRepository
	watcher JobWatcher
	cfg     RelayConfig
}

func NewStatusRelay(jobs domain.JobRepository, watcher JobWatcher, cfg RelayConfig) *StatusRelay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = 15 * time.Second
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 10 * time.Minute
	}
	return &StatusRelay{jobs: jobs, watcher: watcher, cfg: cfg}
}

// Run streams status changes of jobID to emit until the job is terminal,
// MaxDuration elapses or ctx ends. Ownership is checked before any job state
// is read; a foreign or unknown job ends with CloseForbidden and no emission.
func (r *StatusRelay) Run(ctx context.Context, session domain.Session, jobID string, emit func(RelayMessage) error) (CloseReason, error) {
	if session.UserID == "" {
		return CloseForbidden, domain.ErrUnauthenticated
	}
	owner, err := r.jobs.Owner(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return CloseForbidden, domain.ErrForbidden
		}
		return CloseInternal, err
	}
	if owner != session.UserID {
		logrus.Warnf("[RELAY] User %s denied access to job %s", session.UserID, jobID)
		return CloseForbidden, domain.ErrForbidden
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var nudges <-chan domain.JobStatus
	if r.watcher != nil {
		nudges = r.watcher.Watch(ctx, jobID)
	}
	deadline := time.NewTimer(r.cfg.MaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	var last domain.JobStatus
	lastEmit := time.Now()
	for {
		job, err := r.jobs.Get(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return CloseGone, nil
			}
			return CloseInternal, err
		}

		// a lagging replica may hand back an older status; never step back
		if job.Status.Rank() > last.Rank() {
			if err := emit(RelayMessage{OK: true, Type: RelayStatus, Job: job}); err != nil {
				return CloseGone, err
			}
			last = job.Status
			lastEmit = time.Now()
		}
		if job.Status.Terminal() {
			if err := emit(RelayMessage{OK: job.Status == domain.JobStatusCompleted, Type: RelayDone, Job: job}); err != nil {
				return CloseGone, err
			}
			return CloseNormal, nil
		}
		if time.Since(lastEmit) >= r.cfg.Keepalive {
			if err := emit(RelayMessage{OK: true, Type: RelayPing}); err != nil {
				return CloseGone, err
			}
			lastEmit = time.Now()
		}

		select {
		case <-ctx.Done():
			return CloseGone, nil
		case <-deadline.C:
			logrus.Debugf("[RELAY] Job %s relay reached its max duration", jobID)
			return CloseTimeout, domain.ErrTimeout
		case <-ticker.C:
		case _, ok := <-nudges:
			if !ok {
				nudges = nil
			}
		}
	}
}
