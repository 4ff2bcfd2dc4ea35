package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-publish/pkg/retry"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/sirupsen/logrus"
)

var errStillPending = errors.New("task still pending")

// DefaultPollPolicy waits 5s, 10s, ... capped at 30s, for at most 40 queries.
var DefaultPollPolicy = retry.Policy{BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 40}

// ReconcilerDeps wires the Reconciler. Status and Artifacts are optional:
// without a status client the poll path only waits for the callback.
type ReconcilerDeps struct {
	Tasks     domain.TaskRepository
	Status    domain.TaskStatusClient
	Artifacts domain.ArtifactFetcher
	Policy    retry.Policy
	Now       func() time.Time
}

// TaskRequest registers a task that was already submitted to an external system.
type TaskRequest struct {
	Kind           string `json:"kind"`
	ExternalTaskID string `json:"externalTaskId"`
}

// Reconciler converges async external tasks to a terminal state. The
// callback path and the poll path both end in ApplyOutcome, where the first
// terminal write wins.
type Reconciler struct {
	tasks     domain.TaskRepository
	status    domain.TaskStatusClient
	artifacts domain.ArtifactFetcher
	policy    retry.Policy
	now       func() time.Time

	root   context.Context
	cancel context.CancelFunc
	polls  sync.WaitGroup
}

func NewReconciler(deps ReconcilerDeps) *Reconciler {
	root, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		tasks:     deps.Tasks,
		status:    deps.Status,
		artifacts: deps.Artifacts,
		policy:    deps.Policy,
		now:       deps.Now,
		root:      root,
		cancel:    cancel,
	}
	if r.policy.MaxAttempts == 0 {
		r.policy = DefaultPollPolicy
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Submit starts tracking a task the session user submitted to an external
// system, and starts its poll path.
func (r *Reconciler) Submit(ctx context.Context, kind, externalTaskID string) (*domain.AsyncExternalTask, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	task := &domain.AsyncExternalTask{
		UserID:         session.UserID,
		Kind:           strings.ToLower(strings.TrimSpace(kind)),
		ExternalTaskID: strings.TrimSpace(externalTaskID),
		Status:         domain.TaskStatusPending,
	}
	if err := r.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"task_id":          task.ID,
		"external_task_id": task.ExternalTaskID,
		"kind":             task.Kind,
		"poll_budget":      r.policy.MaxWait().String(),
	}).Info("[RECONCILER] Task submitted")

	r.startPoll(task.ID)
	return task, nil
}

// Get returns one of the session user's tasks.
func (r *Reconciler) Get(ctx context.Context, taskID string) (*domain.AsyncExternalTask, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	task, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != session.UserID {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// ApplyOutcome is the only way a task leaves pending. It reports whether
// this call made the terminal write; side effects run only for that caller.
// Non-terminal outcomes change nothing.
func (r *Reconciler) ApplyOutcome(ctx context.Context, taskID string, outcome domain.TaskOutcome) (bool, error) {
	if !outcome.Status.Terminal() {
		return false, nil
	}

	applied, err := r.tasks.ApplyTerminal(ctx, taskID, outcome, r.now())
	if err != nil {
		return false, fmt.Errorf("apply outcome to task %s: %w", taskID, err)
	}
	if !applied {
		logrus.Debugf("[RECONCILER] Task %s already terminal, ignoring %s", taskID, outcome.Status)
		return false, nil
	}
	logrus.WithFields(logrus.Fields{"task_id": taskID, "status": outcome.Status, "reason": outcome.Reason}).
		Info("[RECONCILER] Task reached terminal state")

	if outcome.Status == domain.TaskStatusCompleted && outcome.ResultURL != "" && r.artifacts != nil {
		r.storeArtifact(ctx, taskID, outcome.ResultURL)
	}
	return true, nil
}

// storeArtifact keeps the task completed even when the download fails; the
// remote result URL is already recorded.
func (r *Reconciler) storeArtifact(ctx context.Context, taskID, resultURL string) {
	ref, _, err := r.artifacts.Fetch(ctx, taskID, resultURL)
	if err != nil {
		logrus.WithError(err).Errorf("[RECONCILER] Failed to download artifact of task %s", taskID)
		return
	}
	if err := r.tasks.SetArtifact(ctx, taskID, ref); err != nil {
		logrus.WithError(err).Errorf("[RECONCILER] Failed to record artifact of task %s", taskID)
	}
}

// HandleCallback applies an outcome delivered by the external system.
func (r *Reconciler) HandleCallback(ctx context.Context, externalTaskID string, outcome domain.TaskOutcome) (bool, error) {
	task, err := r.tasks.GetByExternalID(ctx, externalTaskID)
	if err != nil {
		return false, err
	}
	return r.ApplyOutcome(ctx, task.ID, outcome)
}

// Poll queries the external status until the task is terminal, the policy
// runs out of attempts or ctx ends. Running out of attempts fails the task
// with the timeout reason.
func (r *Reconciler) Poll(ctx context.Context, taskID string) error {
	err := retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) error {
		task, err := r.tasks.Get(ctx, taskID)
		if err != nil {
			return retry.Permanent(err)
		}
		if task.Status.Terminal() {
			return nil
		}
		if err := r.tasks.IncrementAttempts(ctx, taskID); err != nil {
			logrus.WithError(err).Warnf("[RECONCILER] Failed to count attempt of task %s", taskID)
		}
		if r.status == nil {
			return errStillPending
		}

		outcome, err := r.status.Query(ctx, task.ExternalTaskID)
		if err != nil {
			if errors.Is(err, domain.ErrExternalUnreachable) {
				logrus.WithError(err).Debugf("[RECONCILER] Status of task %s unreachable (attempt %d)", taskID, attempt)
				return err
			}
			return retry.Permanent(err)
		}
		if !outcome.Status.Terminal() {
			return errStillPending
		}
		if _, err := r.ApplyOutcome(ctx, taskID, outcome); err != nil {
			return retry.Permanent(err)
		}
		return nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, retry.ErrExhausted):
		applied, applyErr := r.ApplyOutcome(context.WithoutCancel(ctx), taskID, domain.FailedOutcome(domain.FailureReasonTimeout))
		if applyErr != nil {
			return applyErr
		}
		if applied {
			logrus.Warnf("[RECONCILER] Task %s timed out after %d attempts", taskID, r.policy.MaxAttempts)
		}
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case ctx.Err() != nil:
		// left pending; ResumePending picks it up again
		return ctx.Err()
	default:
		if errors.Is(err, domain.ErrTaskNotFound) {
			return err
		}
		logrus.WithError(err).Errorf("[RECONCILER] Status query for task %s failed", taskID)
		if _, applyErr := r.ApplyOutcome(context.WithoutCancel(ctx), taskID, domain.FailedOutcome("status_query_failed")); applyErr != nil {
			return applyErr
		}
		return err
	}
}

func (r *Reconciler) startPoll(taskID string) {
	r.polls.Add(1)
	go func() {
		defer r.polls.Done()
		if err := r.Poll(r.root, taskID); err != nil && r.root.Err() == nil {
			logrus.WithError(err).Debugf("[RECONCILER] Poll of task %s ended", taskID)
		}
	}()
}

// ResumePending restarts the poll path of every pending task, e.g. after a
// restart. It returns how many polls were started.
func (r *Reconciler) ResumePending(ctx context.Context) (int, error) {
	tasks, err := r.tasks.ListPending(ctx, 500)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		r.startPoll(t.ID)
	}
	if len(tasks) > 0 {
		logrus.Infof("[RECONCILER] Resumed polling for %d pending tasks", len(tasks))
	}
	return len(tasks), nil
}

// Close stops background polls and waits for them. Their tasks stay pending.
func (r *Reconciler) Close() {
	r.cancel()
	r.polls.Wait()
}
