package domain

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// FailureReasonTimeout is recorded when polling gave up before the external
// system reported a terminal status.
const FailureReasonTimeout = "timeout"

// AsyncExternalTask tracks a long running job submitted to an external system.
type AsyncExternalTask struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Kind           string     `json:"kind"`
	ExternalTaskID string     `json:"externalTaskId"`
	Status         TaskStatus `json:"status"`
	ResultURL      *string    `json:"resultUrl,omitempty"`
	ArtifactRef    *string    `json:"artifactRef,omitempty"`
	FailureReason  *string    `json:"failureReason,omitempty"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// TaskOutcome is what either convergence path learned about a task.
// A pending outcome carries no terminal information.
type TaskOutcome struct {
	Status    TaskStatus
	ResultURL string
	Reason    string
}

func CompletedOutcome(resultURL string) TaskOutcome {
	return TaskOutcome{Status: TaskStatusCompleted, ResultURL: resultURL}
}

func FailedOutcome(reason string) TaskOutcome {
	return TaskOutcome{Status: TaskStatusFailed, Reason: reason}
}

func PendingOutcome() TaskOutcome {
	return TaskOutcome{Status: TaskStatusPending}
}

// OutcomeFromExternal maps a status string reported by an external task
// system onto a TaskOutcome. Unknown statuses are still running.
func OutcomeFromExternal(status, resultURL, reason string) TaskOutcome {
	status = strings.ToUpper(strings.TrimSpace(status))
	resultURL = strings.TrimSpace(resultURL)

	switch {
	case status == "SUCCESS" || status == "COMPLETE" || status == "COMPLETED":
		return CompletedOutcome(resultURL)
	case status == "FIRST_SUCCESS" || status == "TEXT_SUCCESS":
		// partial success only counts once something can be downloaded
		if resultURL != "" {
			return CompletedOutcome(resultURL)
		}
		return PendingOutcome()
	case status == "FAILED" || status == "ERROR" ||
		strings.HasSuffix(status, "_FAILED") || strings.HasSuffix(status, "_ERROR"):
		if strings.TrimSpace(reason) == "" {
			reason = strings.ToLower(status)
		}
		return FailedOutcome(reason)
	default:
		return PendingOutcome()
	}
}
