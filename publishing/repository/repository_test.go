package repository_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-publish/core/database"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/publishing/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func duePost(t *testing.T, repo *repository.ContentGormRepository, id string, scheduledFor time.Time) *domain.ScheduledContent {
	t.Helper()
	post := &domain.ScheduledContent{
		ID:           id,
		UserID:       "user-1",
		Caption:      "hello",
		Providers:    []string{"facebook"},
		Status:       domain.ContentStatusScheduled,
		ScheduledFor: &scheduledFor,
	}
	require.NoError(t, repo.Create(context.Background(), post))
	return post
}

func TestContent_ListClaimableOrdering(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	duePost(t, repo, "b", now.Add(-time.Minute))
	duePost(t, repo, "a", now.Add(-time.Minute))
	duePost(t, repo, "c", now.Add(-time.Hour))
	duePost(t, repo, "future", now.Add(time.Hour))

	draft := &domain.ScheduledContent{ID: "draft", UserID: "user-1", Caption: "x", Status: domain.ContentStatusDraft}
	require.NoError(t, repo.Create(ctx, draft))

	got, err := repo.ListClaimable(ctx, now, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	limited, err := repo.ListClaimable(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestContent_ClaimIsExactlyOnce(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	now := time.Now().UTC()
	duePost(t, repo, "post-1", now.Add(-time.Minute))

	const workers = 16
	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Claim(context.Background(), "post-1", fmt.Sprintf("pub_%02d", i), now)
			switch err {
			case nil:
				atomic.AddInt32(&wins, 1)
			case domain.ErrClaimConflict:
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(workers-1), conflicts)

	post, err := repo.GetByID(context.Background(), "post-1")
	require.NoError(t, err)
	require.NotNil(t, post.LastJobID)
	require.NotNil(t, post.LastJobStatus)
	assert.Equal(t, "queued", *post.LastJobStatus)
	assert.NotNil(t, post.LastAttemptAt)
}

func TestContent_ClaimRespectsPredicate(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	duePost(t, repo, "future", now.Add(time.Hour))
	assert.ErrorIs(t, repo.Claim(ctx, "future", "pub_1", now), domain.ErrClaimConflict)
	assert.ErrorIs(t, repo.Claim(ctx, "missing", "pub_1", now), domain.ErrClaimConflict)
}

func TestContent_ReleaseClaimOnlyForOwningJob(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	duePost(t, repo, "p", now.Add(-time.Minute))

	require.NoError(t, repo.Claim(ctx, "p", "pub_owner", now))
	require.NoError(t, repo.ReleaseClaim(ctx, "p", "pub_other"))

	post, err := repo.GetByID(ctx, "p")
	require.NoError(t, err)
	require.NotNil(t, post.LastJobID)
	assert.Equal(t, "pub_owner", *post.LastJobID)

	require.NoError(t, repo.ReleaseClaim(ctx, "p", "pub_owner"))
	post, err = repo.GetByID(ctx, "p")
	require.NoError(t, err)
	assert.Nil(t, post.LastJobID)
	assert.True(t, post.Claimable(now))
}

func TestContent_RecordJobOutcomeKeepsLastJobID(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	duePost(t, repo, "ok", now.Add(-time.Minute))
	duePost(t, repo, "bad", now.Add(-time.Minute))

	require.NoError(t, repo.Claim(ctx, "ok", "pub_ok", now))
	require.NoError(t, repo.Claim(ctx, "bad", "pub_bad", now))

	require.NoError(t, repo.RecordJobOutcome(ctx, "ok", "pub_ok", domain.JobStatusCompleted, nil, &now))
	summary := domain.ErrSummaryProvidersFailed
	require.NoError(t, repo.RecordJobOutcome(ctx, "bad", "pub_bad", domain.JobStatusFailed, &summary, nil))

	okPost, err := repo.GetByID(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentStatusPublished, okPost.Status)
	assert.NotNil(t, okPost.PublishedAt)
	assert.Equal(t, "pub_ok", *okPost.LastJobID)

	badPost, err := repo.GetByID(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, badPost.PublishedAt)
	require.NotNil(t, badPost.LastJobID)
	assert.Equal(t, "pub_bad", *badPost.LastJobID)
	assert.Equal(t, "failed", *badPost.LastJobStatus)
	assert.Equal(t, domain.ErrSummaryProvidersFailed, *badPost.LastError)
	assert.False(t, badPost.Claimable(now.Add(time.Hour)), "a failed attempt does not free the claim slot")

	// explicit requeue frees it
	require.NoError(t, repo.Requeue(ctx, "user-1", "bad"))
	badPost, err = repo.GetByID(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, badPost.Claimable(now.Add(time.Hour)))

	assert.ErrorIs(t, repo.Requeue(ctx, "user-1", "ok"), domain.ErrNotRequeueable)
	assert.ErrorIs(t, repo.Requeue(ctx, "someone-else", "bad"), domain.ErrContentNotFound)
}

func TestContent_ClaimNowOutcomes(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	duePost(t, repo, "later", now.Add(24*time.Hour))
	post, err := repo.ClaimNow(ctx, "user-1", "later", "pub_now", now)
	require.NoError(t, err)
	assert.Equal(t, "pub_now", *post.LastJobID)
	assert.WithinDuration(t, now, *post.ScheduledFor, time.Second)

	_, err = repo.ClaimNow(ctx, "user-1", "later", "pub_again", now)
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)

	_, err = repo.ClaimNow(ctx, "user-2", "later", "pub_x", now)
	assert.ErrorIs(t, err, domain.ErrContentNotFound)

	_, err = repo.ClaimNow(ctx, "user-1", "missing", "pub_x", now)
	assert.ErrorIs(t, err, domain.ErrContentNotFound)

	draft := &domain.ScheduledContent{ID: "draft", UserID: "user-1", Caption: "x", Status: domain.ContentStatusDraft}
	require.NoError(t, repo.Create(ctx, draft))
	_, err = repo.ClaimNow(ctx, "user-1", "draft", "pub_x", now)
	assert.ErrorIs(t, err, domain.ErrNotScheduled)

	published := now.Add(-time.Hour)
	done := &domain.ScheduledContent{ID: "done", UserID: "user-1", Caption: "x", Status: domain.ContentStatusScheduled, PublishedAt: &published}
	require.NoError(t, repo.Create(ctx, done))
	_, err = repo.ClaimNow(ctx, "user-1", "done", "pub_x", now)
	assert.ErrorIs(t, err, domain.ErrAlreadyPublished)
}

func TestContent_MarkInvalid(t *testing.T) {
	repo := repository.NewContentGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	duePost(t, repo, "p", now.Add(-time.Minute))

	ok, err := repo.MarkInvalid(ctx, "p", domain.InvalidMissingMedia, now)
	require.NoError(t, err)
	assert.True(t, ok)

	post, err := repo.GetByID(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentStatusFailed, post.Status)
	assert.Equal(t, domain.InvalidMissingMedia, *post.LastError)
	assert.Nil(t, post.LastJobID)

	ok, err = repo.MarkInvalid(ctx, "p", domain.InvalidMissingMedia, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJob_TransitionsAreMonotonic(t *testing.T) {
	repo := repository.NewJobGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	job := &domain.PublishJob{
		UserID:    "user-1",
		Providers: []string{"facebook", "instagram"},
		Caption:   "hi",
		Request:   domain.JobRequest{Source: domain.SourceAPI, Providers: []string{"facebook", "instagram"}},
	}
	require.NoError(t, repo.Create(ctx, job))
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	results := []domain.ProviderResult{{Provider: "facebook", OK: true, ExternalID: "fb_1"}}

	// cannot finish before running
	assert.ErrorIs(t, repo.Finish(ctx, job.ID, domain.JobStatusCompleted, results, nil, now), domain.ErrInvalidTransition)

	require.NoError(t, repo.MarkRunning(ctx, job.ID, now))
	assert.ErrorIs(t, repo.MarkRunning(ctx, job.ID, now), domain.ErrInvalidTransition)

	require.NoError(t, repo.Finish(ctx, job.ID, domain.JobStatusCompleted, results, nil, now))
	assert.ErrorIs(t, repo.Fail(ctx, job.ID, "late", now), domain.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Finish(ctx, job.ID, domain.JobStatusRunning, nil, nil, now), domain.ErrInvalidTransition)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, results, stored.Results)
	assert.Equal(t, domain.SourceAPI, stored.Request.Source)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)

	owner, err := repo.Owner(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)

	_, err = repo.Owner(ctx, "pub_missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.MarkRunning(ctx, "pub_missing", now), domain.ErrJobNotFound)
}

func TestTask_ApplyTerminalFirstWriteWins(t *testing.T) {
	repo := repository.NewTaskGormRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	task := &domain.AsyncExternalTask{UserID: "user-1", Kind: "music", ExternalTaskID: "ext-1"}
	require.NoError(t, repo.Create(ctx, task))
	assert.ErrorIs(t, repo.Create(ctx, &domain.AsyncExternalTask{UserID: "user-1", Kind: "music", ExternalTaskID: "ext-1"}), domain.ErrTaskAlreadyTracked)

	applied, err := repo.ApplyTerminal(ctx, task.ID, domain.PendingOutcome(), now)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.ApplyTerminal(ctx, task.ID, domain.CompletedOutcome("https://cdn/a.mp3"), now)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.ApplyTerminal(ctx, task.ID, domain.FailedOutcome("late failure"), now)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, "https://cdn/a.mp3", *stored.ResultURL)
	assert.Nil(t, stored.FailureReason)

	require.NoError(t, repo.SetArtifact(ctx, task.ID, "media/tasks/1.mp3"))
	require.NoError(t, repo.SetArtifact(ctx, task.ID, "media/tasks/other.mp3"))
	stored, err = repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "media/tasks/1.mp3", *stored.ArtifactRef)

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTask_IncrementAttempts(t *testing.T) {
	repo := repository.NewTaskGormRepository(setupTestDB(t))
	ctx := context.Background()

	task := &domain.AsyncExternalTask{UserID: "u", Kind: "music", ExternalTaskID: "ext-2"}
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.IncrementAttempts(ctx, task.ID))
	require.NoError(t, repo.IncrementAttempts(ctx, task.ID))

	stored, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestConnection_Upsert(t *testing.T) {
	repo := repository.NewConnectionGormRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.SocialConnection{UserID: "u", Provider: "Facebook", ProviderAccountID: "1"}))
	require.NoError(t, repo.Upsert(ctx, &domain.SocialConnection{UserID: "u", Provider: "facebook", ProviderAccountID: "2", Name: "Page"}))
	require.NoError(t, repo.Upsert(ctx, &domain.SocialConnection{UserID: "u", Provider: "instagram", ProviderAccountID: "3"}))

	conn, err := repo.Get(ctx, "u", "FACEBOOK")
	require.NoError(t, err)
	assert.Equal(t, "2", conn.ProviderAccountID)
	assert.Equal(t, "Page", conn.Name)

	list, err := repo.ListForUser(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = repo.Get(ctx, "u", "tiktok")
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
}
