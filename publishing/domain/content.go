package domain

import "time"

type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusScheduled ContentStatus = "scheduled"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusFailed    ContentStatus = "failed"
)

// Reasons recorded in LastError when a due post cannot be claimed at all.
const (
	InvalidEmptyContent     = "empty_content"
	InvalidMissingProviders = "missing_providers"
	InvalidMissingMedia     = "missing_media"
)

// ScheduledContent is a user's post. The three Last* claim fields belong to
// the claim protocol: LastJobID is set exactly once per scheduling instant and
// is only cleared by an explicit requeue.
type ScheduledContent struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	Caption       string        `json:"caption"`
	Media         []string      `json:"media"`
	Providers     []string      `json:"providers"`
	Status        ContentStatus `json:"status"`
	ScheduledFor  *time.Time    `json:"scheduledFor,omitempty"`
	PublishedAt   *time.Time    `json:"publishedAt,omitempty"`
	LastJobID     *string       `json:"lastJobId,omitempty"`
	LastJobStatus *string       `json:"lastJobStatus,omitempty"`
	LastAttemptAt *time.Time    `json:"lastAttemptAt,omitempty"`
	LastError     *string       `json:"lastError,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Claimable mirrors the selection predicate used by the storage layer.
func (c ScheduledContent) Claimable(now time.Time) bool {
	return c.Status == ContentStatusScheduled &&
		c.PublishedAt == nil &&
		c.LastJobID == nil &&
		c.ScheduledFor != nil &&
		!c.ScheduledFor.After(now)
}

// InvalidReason returns a non-empty reason when the post can never be
// published as configured. mediaRequired lists providers that reject
// text-only posts.
func (c ScheduledContent) InvalidReason(mediaRequired []string) string {
	if SanitizeCaption(c.Caption) == "" && len(c.Media) == 0 {
		return InvalidEmptyContent
	}
	if len(c.Providers) == 0 {
		return InvalidMissingProviders
	}
	if len(c.Media) == 0 {
		for _, p := range c.Providers {
			if containsProvider(mediaRequired, p) {
				return InvalidMissingMedia
			}
		}
	}
	return ""
}
