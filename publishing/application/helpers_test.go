package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-publish/core/database"
	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/publishing/providertest"
	"github.com/AzielCF/az-publish/publishing/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db          *gorm.DB
	content     *repository.ContentGormRepository
	jobs        *repository.JobGormRepository
	tasks       *repository.TaskGormRepository
	connections *repository.ConnectionGormRepository
	broker      *providertest.Broker
	recorder    *statusRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &fixture{
		db:          db,
		content:     repository.NewContentGormRepository(db),
		jobs:        repository.NewJobGormRepository(db),
		tasks:       repository.NewTaskGormRepository(db),
		connections: repository.NewConnectionGormRepository(db),
		broker:      providertest.NewBroker(),
		recorder:    newStatusRecorder(),
	}
}

func (f *fixture) manager(adapters ...domain.ProviderAdapter) *application.JobManager {
	return application.NewJobManager(application.JobManagerDeps{
		Jobs:     f.jobs,
		Content:  f.content,
		Broker:   f.broker,
		Adapters: adapters,
		Watcher:  f.recorder,
	})
}

func (f *fixture) countJobs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("publish_jobs").Count(&n).Error)
	return n
}

func (f *fixture) scheduledPost(t *testing.T, id, userID string, scheduledFor time.Time, providers ...string) *domain.ScheduledContent {
	t.Helper()
	post := &domain.ScheduledContent{
		ID:           id,
		UserID:       userID,
		Caption:      "launch day",
		Media:        []string{"media/launch.jpg"},
		Providers:    providers,
		Status:       domain.ContentStatusScheduled,
		ScheduledFor: &scheduledFor,
	}
	require.NoError(t, f.content.Create(context.Background(), post))
	return post
}

func userCtx(userID string) context.Context {
	return domain.WithSession(context.Background(), domain.Session{
		UserID: userID,
		Settings: domain.PublishSettings{
			DefaultProviders:       []string{"facebook"},
			MediaRequiredProviders: []string{"instagram", "tiktok"},
		},
	})
}

// statusRecorder is a JobWatcher that remembers every transition per job.
type statusRecorder struct {
	*application.LocalSignals
	mu   sync.Mutex
	seen map[string][]domain.JobStatus
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{LocalSignals: application.NewLocalSignals(), seen: map[string][]domain.JobStatus{}}
}

func (r *statusRecorder) JobChanged(ctx context.Context, jobID string, status domain.JobStatus) {
	r.mu.Lock()
	r.seen[jobID] = append(r.seen[jobID], status)
	r.mu.Unlock()
	r.LocalSignals.JobChanged(ctx, jobID, status)
}

func (r *statusRecorder) statuses(jobID string) []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.seen[jobID]...)
}
