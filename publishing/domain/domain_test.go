package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_AllOrNothing(t *testing.T) {
	status, summary := Aggregate([]ProviderResult{
		{Provider: "facebook", OK: true},
		{Provider: "instagram", OK: true},
	})
	assert.Equal(t, JobStatusCompleted, status)
	assert.Nil(t, summary)

	status, summary = Aggregate([]ProviderResult{
		{Provider: "facebook", OK: true},
		{Provider: "tiktok", OK: false, Error: "not_supported_yet"},
	})
	assert.Equal(t, JobStatusFailed, status)
	require.NotNil(t, summary)
	assert.Equal(t, ErrSummaryProvidersFailed, *summary)

	status, _ = Aggregate(nil)
	assert.Equal(t, JobStatusFailed, status)
}

func TestJobStatus_Rank(t *testing.T) {
	assert.Less(t, JobStatusQueued.Rank(), JobStatusRunning.Rank())
	assert.Less(t, JobStatusRunning.Rank(), JobStatusCompleted.Rank())
	assert.Equal(t, JobStatusCompleted.Rank(), JobStatusFailed.Rank())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
}

func TestNewJobID(t *testing.T) {
	a, b := NewJobID(), NewJobID()
	assert.True(t, strings.HasPrefix(a, "pub_"))
	assert.Len(t, a, len("pub_")+32)
	assert.NotEqual(t, a, b)
}

func TestNormalizeProviders(t *testing.T) {
	got := NormalizeProviders([]string{" Facebook", "instagram", "", "facebook", "TikTok"})
	assert.Equal(t, []string{"facebook", "instagram", "tiktok"}, got)
}

func TestSanitizeCaption(t *testing.T) {
	assert.Equal(t, "hello", SanitizeCaption("  hel\x00lo \n"))
	assert.Equal(t, "ok", SanitizeCaption("o\xffk"))
	assert.Equal(t, "", SanitizeCaption(" \x00 "))
}

func TestScheduledContent_Claimable(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	jobID := "pub_x"

	base := ScheduledContent{Status: ContentStatusScheduled, ScheduledFor: &past}
	assert.True(t, base.Claimable(now))

	atNow := base
	atNow.ScheduledFor = &now
	assert.True(t, atNow.Claimable(now))

	later := base
	later.ScheduledFor = &future
	assert.False(t, later.Claimable(now))

	claimed := base
	claimed.LastJobID = &jobID
	assert.False(t, claimed.Claimable(now))

	published := base
	published.PublishedAt = &past
	assert.False(t, published.Claimable(now))

	draft := base
	draft.Status = ContentStatusDraft
	assert.False(t, draft.Claimable(now))
}

func TestScheduledContent_InvalidReason(t *testing.T) {
	mediaRequired := []string{"instagram", "tiktok"}

	assert.Equal(t, InvalidEmptyContent, ScheduledContent{Providers: []string{"facebook"}}.InvalidReason(mediaRequired))
	assert.Equal(t, InvalidMissingProviders, ScheduledContent{Caption: "hi"}.InvalidReason(mediaRequired))
	assert.Equal(t, InvalidMissingMedia, ScheduledContent{Caption: "hi", Providers: []string{"facebook", "Instagram"}}.InvalidReason(mediaRequired))
	assert.Empty(t, ScheduledContent{Caption: "hi", Providers: []string{"facebook"}}.InvalidReason(mediaRequired))
	assert.Empty(t, ScheduledContent{Media: []string{"a.jpg"}, Providers: []string{"instagram"}}.InvalidReason(mediaRequired))
}

func TestProviderError(t *testing.T) {
	err := NewProviderError("tiktok", KindUnsupported, "")
	assert.Equal(t, "not_supported_yet", err.Error())

	err = NewProviderError("facebook", KindUnreachable, "dial tcp: timeout")
	assert.Equal(t, "unreachable: dial tcp: timeout", err.Error())
	assert.True(t, errors.Is(err, ErrExternalUnreachable))
}

func TestSession(t *testing.T) {
	_, err := RequireSession(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	ctx := WithSession(context.Background(), Session{UserID: "u1"})
	s, err := RequireSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)

	_, ok := SessionFrom(WithSession(context.Background(), Session{}))
	assert.False(t, ok)
}

func TestOutcomeFromExternal(t *testing.T) {
	tests := []struct {
		status, url, reason string
		want                TaskOutcome
	}{
		{"SUCCESS", "https://cdn/x.mp3", "", CompletedOutcome("https://cdn/x.mp3")},
		{"complete", "", "", CompletedOutcome("")},
		{"FIRST_SUCCESS", "", "", PendingOutcome()},
		{"FIRST_SUCCESS", "https://cdn/y.mp3", "", CompletedOutcome("https://cdn/y.mp3")},
		{"FAILED", "", "quota", FailedOutcome("quota")},
		{"CREATE_TASK_FAILED", "", "", FailedOutcome("create_task_failed")},
		{"ERROR", "", "", FailedOutcome("error")},
		{"PENDING", "", "", PendingOutcome()},
		{"", "", "", PendingOutcome()},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeFromExternal(tt.status, tt.url, tt.reason))
		})
	}
}
