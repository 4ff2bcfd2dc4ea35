package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-publish/pkg/jobworker"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/sirupsen/logrus"
)

// ErrCaptionRequired rejects API submissions without a caption.
var ErrCaptionRequired = errors.New("caption is required")

// JobManagerDeps wires the JobManager. Connections, Pool and Watcher are optional.
type JobManagerDeps struct {
	Jobs        domain.JobRepository
	Content     domain.ContentRepository
	Connections domain.ConnectionRepository
	Broker      domain.IdentityBroker
	Adapters    []domain.ProviderAdapter
	Pool        *jobworker.Pool
	Watcher     JobWatcher
	Now         func() time.Time
}

// JobManager owns the publish job state machine.
type JobManager struct {
	jobs        domain.JobRepository
	content     domain.ContentRepository
	connections domain.ConnectionRepository
	broker      domain.IdentityBroker
	adapters    map[string]domain.ProviderAdapter
	pool        *jobworker.Pool
	watcher     JobWatcher
	now         func() time.Time

	// background tracks executions started outside the pool.
	background sync.WaitGroup
}

func NewJobManager(deps JobManagerDeps) *JobManager {
	m := &JobManager{
		jobs:        deps.Jobs,
		content:     deps.Content,
		connections: deps.Connections,
		broker:      deps.Broker,
		adapters:    make(map[string]domain.ProviderAdapter, len(deps.Adapters)),
		pool:        deps.Pool,
		watcher:     deps.Watcher,
		now:         deps.Now,
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	for _, a := range deps.Adapters {
		m.adapters[strings.ToLower(strings.TrimSpace(a.Name()))] = a
	}
	return m
}

// Providers lists the providers with an adapter.
func (m *JobManager) Providers() []string {
	out := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type SubmitRequest struct {
	Caption   string   `json:"caption"`
	Providers []string `json:"providers"`
	Media     []string `json:"media"`
	DryRun    bool     `json:"dryRun"`
}

// Submit persists a queued job for the session user and hands execution to
// the background. It never waits on a provider.
func (m *JobManager) Submit(ctx context.Context, req SubmitRequest) (*domain.PublishJob, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	caption := domain.SanitizeCaption(req.Caption)
	if caption == "" {
		return nil, ErrCaptionRequired
	}
	providers := domain.NormalizeProviders(req.Providers)
	if len(providers) == 0 {
		providers = domain.NormalizeProviders(session.Settings.DefaultProviders)
	}

	job, err := m.Create(ctx, session.UserID, domain.NewJobID(), caption, domain.JobRequest{
		Source:    domain.SourceAPI,
		Providers: providers,
		Media:     req.Media,
		DryRun:    req.DryRun,
	})
	if err != nil {
		return nil, err
	}
	m.Dispatch(job.ID)
	return job, nil
}

// Create inserts a queued job. The claim path calls it with the job id it
// has already written into the post.
func (m *JobManager) Create(ctx context.Context, userID, jobID, caption string, req domain.JobRequest) (*domain.PublishJob, error) {
	now := m.now()
	req.Providers = domain.NormalizeProviders(req.Providers)
	job := &domain.PublishJob{
		ID:        jobID,
		UserID:    userID,
		Status:    domain.JobStatusQueued,
		Providers: req.Providers,
		Caption:   domain.SanitizeCaption(caption),
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"user_id":   userID,
		"source":    req.Source,
		"providers": job.Providers,
	}).Info("[PUBLISH_JOB] Job queued")
	m.notify(ctx, job.ID, domain.JobStatusQueued)
	return job, nil
}

// Dispatch runs the job in the background, on the worker pool when one is
// configured and it has room.
func (m *JobManager) Dispatch(jobID string) {
	run := func(ctx context.Context) error {
		// pool shutdown must not strand a job in running
		return m.Execute(context.WithoutCancel(ctx), jobID)
	}
	if m.pool != nil && m.pool.TryDispatch(jobworker.Job{Key: jobID, Handler: run}) {
		return
	}
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		if err := run(context.Background()); err != nil {
			logrus.WithError(err).Errorf("[PUBLISH_JOB] Job %s failed", jobID)
		}
	}()
}

// Drain waits for executions started outside the pool.
func (m *JobManager) Drain() {
	m.background.Wait()
}

// Execute drives one job from queued to a terminal state. A job that is not
// queued any more belongs to another executor and is left alone.
func (m *JobManager) Execute(ctx context.Context, jobID string) (err error) {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := m.jobs.MarkRunning(ctx, jobID, m.now()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logrus.Debugf("[PUBLISH_JOB] Job %s is %s, skipping", jobID, job.Status)
			return nil
		}
		return err
	}
	m.notify(ctx, jobID, domain.JobStatusRunning)

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("panic: %v", r)
			logrus.Errorf("[PUBLISH_JOB] Job %s panicked: %v", jobID, r)
			m.fail(ctx, job, reason)
			err = errors.New(reason)
		}
	}()

	start := time.Now()
	results := m.fanOut(ctx, job.UserID, domain.PublishInput{
		Caption: job.Caption,
		Media:   job.Request.Media,
		DryRun:  job.Request.DryRun,
	}, job.Providers)

	status, summary := domain.Aggregate(results)
	if err := m.jobs.Finish(ctx, jobID, status, results, summary, m.now()); err != nil {
		logrus.WithError(err).Errorf("[PUBLISH_JOB] Failed to store results of job %s", jobID)
		m.fail(ctx, job, "store_results_failed: "+err.Error())
		return err
	}
	m.notify(ctx, jobID, status)
	m.writeBack(ctx, job, status, summary)

	logrus.WithFields(logrus.Fields{
		"job_id":   jobID,
		"status":   status,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("[PUBLISH_JOB] Job finished")
	return nil
}

// fail records reason as the terminal error. A job that already reached a
// terminal state keeps it.
func (m *JobManager) fail(ctx context.Context, job *domain.PublishJob, reason string) {
	if err := m.jobs.Fail(ctx, job.ID, reason, m.now()); err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			logrus.WithError(err).Errorf("[PUBLISH_JOB] Could not mark job %s failed", job.ID)
		}
		return
	}
	m.notify(ctx, job.ID, domain.JobStatusFailed)
	m.writeBack(ctx, job, domain.JobStatusFailed, &reason)
}

// writeBack copies the outcome to the post a claimed job came from. The
// claim slot stays consumed.
func (m *JobManager) writeBack(ctx context.Context, job *domain.PublishJob, status domain.JobStatus, errMsg *string) {
	postID := job.PostID()
	if postID == "" || m.content == nil {
		return
	}
	var publishedAt *time.Time
	if status == domain.JobStatusCompleted {
		now := m.now()
		publishedAt = &now
	}
	if err := m.content.RecordJobOutcome(ctx, postID, job.ID, status, errMsg, publishedAt); err != nil {
		logrus.WithError(err).Errorf("[PUBLISH_JOB] Failed to write job %s outcome back to post %s", job.ID, postID)
	}
}

// Preview runs the fan-out in dry-run mode. Nothing is persisted.
func (m *JobManager) Preview(ctx context.Context, req SubmitRequest) ([]domain.ProviderResult, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	caption := domain.SanitizeCaption(req.Caption)
	if caption == "" {
		return nil, ErrCaptionRequired
	}
	providers := domain.NormalizeProviders(req.Providers)
	if len(providers) == 0 {
		providers = domain.NormalizeProviders(session.Settings.DefaultProviders)
	}
	return m.fanOut(ctx, session.UserID, domain.PublishInput{Caption: caption, Media: req.Media, DryRun: true}, providers), nil
}

// Get returns a job of the session user. Other users' jobs are not found.
func (m *JobManager) Get(ctx context.Context, jobID string) (*domain.PublishJob, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != session.UserID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// Wait returns the job once it is terminal or timeout elapsed, whichever
// comes first. A non-terminal job after the timeout is not an error.
func (m *JobManager) Wait(ctx context.Context, jobID string, timeout time.Duration) (*domain.PublishJob, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nudges <-chan domain.JobStatus
	if m.watcher != nil {
		nudges = m.watcher.Watch(ctx, jobID)
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := m.jobs.Get(context.WithoutCancel(ctx), jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, nil
		case <-ticker.C:
		case <-nudges:
		}
	}
}

func (m *JobManager) notify(ctx context.Context, jobID string, status domain.JobStatus) {
	if m.watcher != nil {
		m.watcher.JobChanged(ctx, jobID, status)
	}
}
