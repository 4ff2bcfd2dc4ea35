package domain

import (
	"context"
	"time"
)

// ContentRepository persists ScheduledContent and implements the claim protocol.
type ContentRepository interface {
	Create(ctx context.Context, c *ScheduledContent) error
	GetByID(ctx context.Context, id string) (*ScheduledContent, error)
	// ListClaimable returns candidates ordered by (scheduled_for, id).
	ListClaimable(ctx context.Context, now time.Time, limit int) ([]ScheduledContent, error)
	// Claim reserves the row for jobID. ErrClaimConflict when the predicate no longer holds.
	Claim(ctx context.Context, id, jobID string, now time.Time) error
	// ClaimNow reserves a user's post immediately, regardless of scheduled_for.
	ClaimNow(ctx context.Context, userID, id, jobID string, now time.Time) (*ScheduledContent, error)
	// ReleaseClaim undoes Claim when the job could not be created.
	ReleaseClaim(ctx context.Context, id, jobID string) error
	MarkInvalid(ctx context.Context, id, reason string, now time.Time) (bool, error)
	RecordJobOutcome(ctx context.Context, id, jobID string, status JobStatus, errMsg *string, publishedAt *time.Time) error
	Requeue(ctx context.Context, userID, id string) error
}

// JobRepository persists publish jobs. Every status write is conditional on
// the current status so transitions stay monotonic.
type JobRepository interface {
	Create(ctx context.Context, j *PublishJob) error
	Get(ctx context.Context, id string) (*PublishJob, error)
	Owner(ctx context.Context, id string) (string, error)
	MarkRunning(ctx context.Context, id string, now time.Time) error
	Finish(ctx context.Context, id string, status JobStatus, results []ProviderResult, errSummary *string, now time.Time) error
	Fail(ctx context.Context, id, reason string, now time.Time) error
}

// TaskRepository persists async external tasks.
type TaskRepository interface {
	Create(ctx context.Context, t *AsyncExternalTask) error
	Get(ctx context.Context, id string) (*AsyncExternalTask, error)
	GetByExternalID(ctx context.Context, externalID string) (*AsyncExternalTask, error)
	ListPending(ctx context.Context, limit int) ([]AsyncExternalTask, error)
	IncrementAttempts(ctx context.Context, id string) error
	// ApplyTerminal writes a terminal outcome only while the task is pending.
	// applied is false when another writer got there first.
	ApplyTerminal(ctx context.Context, id string, outcome TaskOutcome, now time.Time) (applied bool, err error)
	SetArtifact(ctx context.Context, id, ref string) error
}

type ConnectionRepository interface {
	Get(ctx context.Context, userID, provider string) (*SocialConnection, error)
	ListForUser(ctx context.Context, userID string) ([]SocialConnection, error)
	Upsert(ctx context.Context, c *SocialConnection) error
}

// PublishInput is what a Provider Adapter receives.
type PublishInput struct {
	Caption    string
	Media      []string
	Credential Credential
	DryRun     bool
}

// ProviderOutcome is the typed result parsed at the adapter boundary.
type ProviderOutcome struct {
	OK         bool
	ExternalID string
	Error      string
}

// ProviderAdapter publishes to one external network. A returned error means
// the call itself failed; a rejected post is an outcome with OK=false.
type ProviderAdapter interface {
	Name() string
	Publish(ctx context.Context, in PublishInput) (ProviderOutcome, error)
}

// IdentityBroker supplies per user, per provider credentials.
type IdentityBroker interface {
	Credential(ctx context.Context, userID, provider string) (Credential, error)
}

// TaskStatusClient queries an external system for a task's current status.
type TaskStatusClient interface {
	Query(ctx context.Context, externalTaskID string) (TaskOutcome, error)
}

// ArtifactFetcher stores the result of a completed task locally.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, taskID, url string) (ref string, size int64, err error)
}
