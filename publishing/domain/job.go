package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses along queued -> running -> terminal.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

type JobSource string

const (
	SourceScheduledPost JobSource = "scheduled_post"
	SourcePublishNow    JobSource = "manual_publish_now"
	SourceAPI           JobSource = "api"
)

// ErrSummaryProvidersFailed is the top level error of a job where at least
// one provider did not succeed.
const ErrSummaryProvidersFailed = "one_or_more_providers_failed"

// JobRequest is the raw request snapshot stored with the job.
type JobRequest struct {
	Source       JobSource  `json:"source"`
	PostID       string     `json:"postId,omitempty"`
	Providers    []string   `json:"providers"`
	Media        []string   `json:"media,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	DryRun       bool       `json:"dryRun,omitempty"`
}

// ProviderResult is one slot of the job result payload.
type ProviderResult struct {
	Provider   string `json:"provider"`
	OK         bool   `json:"ok"`
	ExternalID string `json:"externalId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type PublishJob struct {
	ID         string           `json:"jobId"`
	UserID     string           `json:"userId"`
	Status     JobStatus        `json:"status"`
	Providers  []string         `json:"providers"`
	Caption    string           `json:"caption"`
	Request    JobRequest       `json:"request"`
	Results    []ProviderResult `json:"results,omitempty"`
	Error      *string          `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// PostID returns the originating ScheduledContent id, if any.
func (j PublishJob) PostID() string {
	return j.Request.PostID
}

// NewJobID returns a fresh "pub_<32 hex>" identifier.
func NewJobID() string {
	id := uuid.New()
	return "pub_" + hex.EncodeToString(id[:])
}

// Aggregate applies the all-or-nothing policy: completed only if every
// provider result is ok. An empty result set is a failure.
func Aggregate(results []ProviderResult) (JobStatus, *string) {
	if len(results) == 0 {
		summary := ErrSummaryProvidersFailed
		return JobStatusFailed, &summary
	}
	for _, r := range results {
		if !r.OK {
			summary := ErrSummaryProvidersFailed
			return JobStatusFailed, &summary
		}
	}
	return JobStatusCompleted, nil
}

// AllOK is the conjunction of every result's ok flag.
func AllOK(results []ProviderResult) bool {
	status, _ := Aggregate(results)
	return status == JobStatusCompleted
}

// NormalizeProviders lowercases, trims and de-duplicates while keeping order.
func NormalizeProviders(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func containsProvider(list []string, provider string) bool {
	for _, p := range list {
		if strings.EqualFold(p, provider) {
			return true
		}
	}
	return false
}
