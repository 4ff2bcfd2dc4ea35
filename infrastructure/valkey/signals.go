package valkey

import (
	"context"
	"encoding/json"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/sirupsen/logrus"
)

type jobStatusMessage struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
}

// decodeJobStatus drops messages that do not name a known status.
func decodeJobStatus(message string) (jobStatusMessage, bool) {
	var m jobStatusMessage
	if err := json.Unmarshal([]byte(message), &m); err != nil || m.JobID == "" {
		return m, false
	}
	switch m.Status {
	case domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusCompleted, domain.JobStatusFailed:
		return m, true
	}
	return m, false
}

// JobSignals fans job status changes out to relays on every instance.
// A message is only a nudge: receivers always re-read the job row.
type JobSignals struct {
	client *Client
}

func NewJobSignals(client *Client) *JobSignals {
	return &JobSignals{client: client}
}

func (s *JobSignals) channel(jobID string) string {
	return s.client.Channel("jobs", jobID, "status")
}

// JobChanged publishes the new status. Failures are logged, never returned.
func (s *JobSignals) JobChanged(ctx context.Context, jobID string, status domain.JobStatus) {
	data, err := json.Marshal(jobStatusMessage{JobID: jobID, Status: status})
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.channel(jobID), string(data)); err != nil {
		logrus.WithError(err).Warnf("[VALKEY] Failed to publish status of job %s", jobID)
	}
}

// Watch subscribes to status changes of one job. The returned channel is
// closed once ctx is done or the subscription fails.
func (s *JobSignals) Watch(ctx context.Context, jobID string) <-chan domain.JobStatus {
	out := make(chan domain.JobStatus, 1)
	go func() {
		defer close(out)
		err := s.client.Subscribe(ctx, s.channel(jobID), func(message string) {
			m, ok := decodeJobStatus(message)
			if !ok {
				return
			}
			select {
			case out <- m.Status:
			default:
			}
		})
		if err != nil {
			logrus.WithError(err).Warnf("[VALKEY] Subscription for job %s ended", jobID)
		}
	}()
	return out
}

// SweepSignal wakes the claim sweepers of every instance ahead of their interval.
type SweepSignal struct {
	client *Client
}

func NewSweepSignal(client *Client) *SweepSignal {
	return &SweepSignal{client: client}
}

func (s *SweepSignal) channel() string {
	return s.client.Channel("sweeper", "signal")
}

func (s *SweepSignal) Wake(ctx context.Context) error {
	return s.client.Publish(ctx, s.channel(), "1")
}

// Wakeups delivers one value per signal, coalescing bursts.
func (s *SweepSignal) Wakeups(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		logrus.Infof("[VALKEY] Watching sweeper channel %s", s.channel())
		err := s.client.Subscribe(ctx, s.channel(), func(string) {
			select {
			case out <- struct{}{}:
			default:
			}
		})
		if err != nil {
			logrus.WithError(err).Error("[VALKEY] Sweeper listener failed")
		}
	}()
	return out
}
