package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type contentModel struct {
	ID            string     `gorm:"primaryKey"`
	UserID        string     `gorm:"index:idx_posts_user;not null"`
	Caption       string     `gorm:"type:text"`
	Media         string     `gorm:"type:text;default:'[]'"` // JSON
	Providers     string     `gorm:"type:text;default:'[]'"` // JSON
	Status        string     `gorm:"index:idx_posts_due,priority:1;not null;default:'draft'"`
	ScheduledFor  *time.Time `gorm:"index:idx_posts_due,priority:2"`
	PublishedAt   *time.Time
	LastJobID     *string `gorm:"index:idx_posts_last_job"`
	LastJobStatus *string
	LastAttemptAt *time.Time
	LastError     *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (contentModel) TableName() string {
	return "posts"
}

type jobModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index:idx_publish_jobs_user;not null"`
	Status     string `gorm:"index:idx_publish_jobs_status;not null"`
	Providers  string `gorm:"type:text;default:'[]'"` // JSON
	Caption    string `gorm:"type:text"`
	Request    string `gorm:"type:text;default:'{}'"` // JSON
	Result     string `gorm:"type:text"`              // JSON, empty until terminal
	Error      *string
	CreatedAt  time.Time `gorm:"not null"`
	StartedAt  *time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time `gorm:"not null"`
}

func (jobModel) TableName() string {
	return "publish_jobs"
}

type taskModel struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"index:idx_async_tasks_user;not null"`
	Kind           string `gorm:"not null"`
	ExternalTaskID string `gorm:"uniqueIndex:idx_async_tasks_external;not null"`
	Status         string `gorm:"index:idx_async_tasks_status;not null"`
	ResultURL      *string
	ArtifactRef    *string
	FailureReason  *string
	Attempts       int       `gorm:"default:0"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
	CompletedAt    *time.Time
}

func (taskModel) TableName() string {
	return "async_tasks"
}

type connectionModel struct {
	UserID            string `gorm:"primaryKey"`
	Provider          string `gorm:"primaryKey"`
	ProviderAccountID string `gorm:"not null"`
	Name              string
	CreatedAt         time.Time `gorm:"not null"`
}

func (connectionModel) TableName() string {
	return "social_connections"
}

// Migrate creates or updates every table used by the publishing pipeline.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&contentModel{}, &jobModel{}, &taskModel{}, &connectionModel{})
}

// --- Mappers ---

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func toContentModel(c *domain.ScheduledContent) contentModel {
	return contentModel{
		ID:            c.ID,
		UserID:        c.UserID,
		Caption:       c.Caption,
		Media:         encodeList(c.Media),
		Providers:     encodeList(c.Providers),
		Status:        string(c.Status),
		ScheduledFor:  utcPtr(c.ScheduledFor),
		PublishedAt:   utcPtr(c.PublishedAt),
		LastJobID:     c.LastJobID,
		LastJobStatus: c.LastJobStatus,
		LastAttemptAt: utcPtr(c.LastAttemptAt),
		LastError:     c.LastError,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func fromContentModel(m contentModel) *domain.ScheduledContent {
	return &domain.ScheduledContent{
		ID:            m.ID,
		UserID:        m.UserID,
		Caption:       m.Caption,
		Media:         decodeList(m.Media),
		Providers:     decodeList(m.Providers),
		Status:        domain.ContentStatus(m.Status),
		ScheduledFor:  utcPtr(m.ScheduledFor),
		PublishedAt:   utcPtr(m.PublishedAt),
		LastJobID:     m.LastJobID,
		LastJobStatus: m.LastJobStatus,
		LastAttemptAt: utcPtr(m.LastAttemptAt),
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func toJobModel(j *domain.PublishJob) (jobModel, error) {
	req, err := json.Marshal(j.Request)
	if err != nil {
		return jobModel{}, err
	}
	m := jobModel{
		ID:         j.ID,
		UserID:     j.UserID,
		Status:     string(j.Status),
		Providers:  encodeList(j.Providers),
		Caption:    j.Caption,
		Request:    string(req),
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.UTC(),
		StartedAt:  utcPtr(j.StartedAt),
		FinishedAt: utcPtr(j.FinishedAt),
		UpdatedAt:  j.UpdatedAt.UTC(),
	}
	if j.Results != nil {
		res, err := json.Marshal(j.Results)
		if err != nil {
			return jobModel{}, err
		}
		m.Result = string(res)
	}
	return m, nil
}

func fromJobModel(m jobModel) (*domain.PublishJob, error) {
	j := &domain.PublishJob{
		ID:         m.ID,
		UserID:     m.UserID,
		Status:     domain.JobStatus(m.Status),
		Providers:  decodeList(m.Providers),
		Caption:    m.Caption,
		Error:      m.Error,
		CreatedAt:  m.CreatedAt.UTC(),
		StartedAt:  utcPtr(m.StartedAt),
		FinishedAt: utcPtr(m.FinishedAt),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
	if m.Request != "" {
		if err := json.Unmarshal([]byte(m.Request), &j.Request); err != nil {
			return nil, err
		}
	}
	if m.Result != "" {
		if err := json.Unmarshal([]byte(m.Result), &j.Results); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func fromTaskModel(m taskModel) *domain.AsyncExternalTask {
	return &domain.AsyncExternalTask{
		ID:             m.ID,
		UserID:         m.UserID,
		Kind:           m.Kind,
		ExternalTaskID: m.ExternalTaskID,
		Status:         domain.TaskStatus(m.Status),
		ResultURL:      m.ResultURL,
		ArtifactRef:    m.ArtifactRef,
		FailureReason:  m.FailureReason,
		Attempts:       m.Attempts,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
		CompletedAt:    utcPtr(m.CompletedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
