package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-publish/pkg/retry"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const defaultSweepBatch = 25

// DefaultSweepRetry backs off 700ms, 1.4s, 2.1s between the four attempts
// a transient storage error gets.
var DefaultSweepRetry = retry.Policy{BaseDelay: 700 * time.Millisecond, MaxDelay: 3 * time.Second, MaxAttempts: 4}

type SweeperDeps struct {
	Content  domain.ContentRepository
	Jobs     *JobManager
	Waker    SweepWaker
	Settings domain.PublishSettings
	Interval time.Duration
	Batch    int
	Retry    retry.Policy
	// IsTransient and IsOutOfMemory classify storage errors.
	IsTransient   func(error) bool
	IsOutOfMemory func(error) bool
	Now           func() time.Time
}

// ClaimedPost is a post this sweeper now owns, with the job created for it.
type ClaimedPost struct {
	Post  domain.ScheduledContent
	JobID string
}

// ClaimSweeper discovers due scheduled posts and claims each one exactly once,
// no matter how many sweepers run at the same time.
type ClaimSweeper struct {
	content       domain.ContentRepository
	jobs          *JobManager
	waker         SweepWaker
	mediaRequired []string
	interval      time.Duration
	batch         int
	policy        retry.Policy
	isTransient   func(error) bool
	isOOM         func(error) bool
	now           func() time.Time

	// limit is the batch size of the next sweep.
	limit atomic.Int64
}

func NewClaimSweeper(deps SweeperDeps) *ClaimSweeper {
	s := &ClaimSweeper{
		content:       deps.Content,
		jobs:          deps.Jobs,
		waker:         deps.Waker,
		mediaRequired: deps.Settings.MediaRequiredProviders,
		interval:      deps.Interval,
		batch:         deps.Batch,
		policy:        deps.Retry,
		isTransient:   deps.IsTransient,
		isOOM:         deps.IsOutOfMemory,
		now:           deps.Now,
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	if s.batch <= 0 {
		s.batch = defaultSweepBatch
	}
	if s.policy.MaxAttempts == 0 {
		s.policy = DefaultSweepRetry
	}
	if s.isTransient == nil {
		s.isTransient = func(error) bool { return false }
	}
	if s.isOOM == nil {
		s.isOOM = func(error) bool { return false }
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	s.limit.Store(int64(s.batch))
	return s
}

// withRetry retries transient storage errors only.
func (s *ClaimSweeper) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) error {
		err := fn(ctx)
		if err == nil || !s.isTransient(err) {
			return retry.Permanent(err)
		}
		logrus.WithError(err).Warnf("[SWEEPER] Transient storage error (attempt %d/%d)", attempt, s.policy.MaxAttempts)
		return err
	})
	return err
}

// ClaimDuePosts claims up to limit due posts and creates a queued job for
// each. Posts another sweeper won are skipped silently.
func (s *ClaimSweeper) ClaimDuePosts(ctx context.Context, now time.Time, limit int) ([]ClaimedPost, error) {
	var candidates []domain.ScheduledContent
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = s.content.ListClaimable(ctx, now, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	claimed := make([]ClaimedPost, 0, len(candidates))
	for _, post := range candidates {
		if !post.Claimable(now) {
			continue
		}
		if reason := post.InvalidReason(s.mediaRequired); reason != "" {
			s.markInvalid(ctx, post, reason, now)
			continue
		}

		jobID := domain.NewJobID()
		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.content.Claim(ctx, post.ID, jobID, now)
		})
		if errors.Is(err, domain.ErrClaimConflict) {
			logrus.Debugf("[SWEEPER] Post %s already claimed elsewhere", post.ID)
			continue
		}
		if err != nil {
			if s.isOOM(err) {
				return claimed, err
			}
			logrus.WithError(err).Errorf("[SWEEPER] Failed to claim post %s", post.ID)
			continue
		}

		_, err = s.jobs.Create(ctx, post.UserID, jobID, post.Caption, domain.JobRequest{
			Source:       domain.SourceScheduledPost,
			PostID:       post.ID,
			Providers:    post.Providers,
			Media:        post.Media,
			ScheduledFor: post.ScheduledFor,
		})
		if err != nil {
			logrus.WithError(err).Errorf("[SWEEPER] Failed to create job for post %s, releasing claim", post.ID)
			if relErr := s.content.ReleaseClaim(ctx, post.ID, jobID); relErr != nil {
				logrus.WithError(relErr).Errorf("[SWEEPER] Failed to release claim of post %s", post.ID)
			}
			if s.isOOM(err) {
				return claimed, err
			}
			continue
		}

		post.LastJobID = &jobID
		claimed = append(claimed, ClaimedPost{Post: post, JobID: jobID})
	}
	return claimed, nil
}

func (s *ClaimSweeper) markInvalid(ctx context.Context, post domain.ScheduledContent, reason string, now time.Time) {
	marked, err := s.content.MarkInvalid(ctx, post.ID, reason, now)
	if err != nil {
		logrus.WithError(err).Errorf("[SWEEPER] Failed to mark post %s invalid", post.ID)
		return
	}
	if marked {
		logrus.WithFields(logrus.Fields{"post_id": post.ID, "reason": reason}).Warn("[SWEEPER] Post cannot be published")
	}
}

// Sweep runs one claim pass and dispatches every claimed job. It returns the
// number of posts claimed.
func (s *ClaimSweeper) Sweep(ctx context.Context) (int, error) {
	limit := s.BatchLimit()
	now := s.now()

	claimed, err := s.ClaimDuePosts(ctx, now, limit)
	for _, c := range claimed {
		if c.Post.ScheduledFor != nil {
			logrus.Infof("[SWEEPER] Claimed post %s (due %s) as job %s", c.Post.ID, humanize.Time(*c.Post.ScheduledFor), c.JobID)
		}
		s.jobs.Dispatch(c.JobID)
	}

	switch {
	case err != nil && s.isOOM(err):
		if limit != 1 {
			logrus.WithError(err).Warn("[SWEEPER] Database out of memory, shrinking batch to 1")
		}
		s.limit.Store(1)
	case err == nil && limit != s.batch:
		s.limit.Store(int64(s.batch))
	}
	return len(claimed), err
}

// BatchLimit is the batch size the next sweep will use.
func (s *ClaimSweeper) BatchLimit() int {
	return int(s.limit.Load())
}

// Run sweeps right away, then every interval and whenever a wake-up signal
// arrives, until ctx is done.
func (s *ClaimSweeper) Run(ctx context.Context) {
	var wakeups <-chan struct{}
	if s.waker != nil {
		wakeups = s.waker.Wakeups(ctx)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.Infof("[SWEEPER] Started, interval %s, batch %d", s.interval, s.batch)
	for {
		if n, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("[SWEEPER] Sweep failed")
		} else if n > 0 {
			logrus.Infof("[SWEEPER] Sweep claimed %d posts", n)
		}

		select {
		case <-ctx.Done():
			logrus.Info("[SWEEPER] Stopped")
			return
		case <-ticker.C:
		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
			}
		}
	}
}

// Start runs the sweeper in the background.
func (s *ClaimSweeper) Start(ctx context.Context) {
	go s.Run(ctx)
}

// PublishNow claims one of the session user's scheduled posts right away,
// ignoring its scheduled time, and queues a job for it.
func (s *ClaimSweeper) PublishNow(ctx context.Context, postID string) (*domain.PublishJob, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}

	post, err := s.content.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != session.UserID {
		return nil, domain.ErrContentNotFound
	}
	if reason := post.InvalidReason(s.mediaRequired); reason != "" {
		return nil, &domain.InvalidContentError{Reason: reason}
	}

	jobID := domain.NewJobID()
	post, err = s.content.ClaimNow(ctx, session.UserID, postID, jobID, s.now())
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, post.UserID, jobID, post.Caption, domain.JobRequest{
		Source:       domain.SourcePublishNow,
		PostID:       post.ID,
		Providers:    post.Providers,
		Media:        post.Media,
		ScheduledFor: post.ScheduledFor,
	})
	if err != nil {
		if relErr := s.content.ReleaseClaim(ctx, post.ID, jobID); relErr != nil {
			logrus.WithError(relErr).Errorf("[SWEEPER] Failed to release claim of post %s", post.ID)
		}
		return nil, err
	}
	logrus.Infof("[SWEEPER] Post %s published now as job %s", post.ID, jobID)
	s.jobs.Dispatch(jobID)
	return job, nil
}

// Requeue makes a post whose last job failed claimable again and wakes the
// sweepers.
func (s *ClaimSweeper) Requeue(ctx context.Context, postID string) error {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return err
	}
	if err := s.content.Requeue(ctx, session.UserID, postID); err != nil {
		return err
	}
	logrus.Infof("[SWEEPER] Post %s requeued", postID)
	if s.waker != nil {
		if err := s.waker.Wake(ctx); err != nil {
			logrus.WithError(err).Warn("[SWEEPER] Failed to send wake-up signal")
		}
	}
	return nil
}
