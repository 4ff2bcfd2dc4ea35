package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClaimConflict means another worker already owns the row. Expected, not a fault.
	ErrClaimConflict = errors.New("claim conflict")

	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrExternalUnreachable = errors.New("external system unreachable")
	ErrTimeout             = errors.New("timed out waiting for a terminal status")

	ErrJobNotFound     = errors.New("publish job not found")
	ErrContentNotFound = errors.New("post not found")
	ErrTaskNotFound    = errors.New("task not found")

	ErrConnectionNotFound = errors.New("social connection not found")

	// ErrTaskAlreadyTracked means the external task id is registered already.
	ErrTaskAlreadyTracked = errors.New("task_already_tracked")

	// Publish-now outcomes.
	ErrAlreadyPublished = errors.New("already_published")
	ErrAlreadyQueued    = errors.New("already_queued")
	ErrNotScheduled     = errors.New("not_scheduled")
	ErrNotRequeueable   = errors.New("not_requeueable")

	// ErrInvalidTransition is returned when a conditional status write matched no row.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ProviderErrorKind classifies a failure scoped to one provider in a job.
type ProviderErrorKind string

const (
	KindUnsupported     ProviderErrorKind = "not_supported_yet"
	KindNotConnected    ProviderErrorKind = "not_connected"
	KindCredentialError ProviderErrorKind = "credential_error"
	KindProviderError   ProviderErrorKind = "provider_error"
	KindUnreachable     ProviderErrorKind = "unreachable"
	KindPanic           ProviderErrorKind = "panic"
)

// ProviderError never aborts a job; it becomes the provider's result entry.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Message == "" || e.Message == string(e.Kind) {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is(err, ErrExternalUnreachable) match unreachable providers.
func (e *ProviderError) Unwrap() error {
	if e.Kind == KindUnreachable {
		return ErrExternalUnreachable
	}
	return nil
}

func NewProviderError(provider string, kind ProviderErrorKind, msg string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: msg}
}

// Unreachable wraps a transport failure talking to an external system.
func Unreachable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrExternalUnreachable, err)
}

// InvalidContentError means a post can never be published as configured.
type InvalidContentError struct {
	Reason string
}

func (e *InvalidContentError) Error() string { return e.Reason }
