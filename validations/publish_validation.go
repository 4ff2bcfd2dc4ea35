package validations

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/AzielCF/az-publish/infrastructure/httpclient"
	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	pkgError "github.com/AzielCF/az-publish/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var providerName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,31}$`)

func ValidatePublish(ctx context.Context, request application.SubmitRequest) error {
	caption := domain.SanitizeCaption(request.Caption)
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Caption, validation.By(func(any) error {
			if caption == "" {
				return errors.New("caption is required")
			}
			return nil
		})),
		validation.Field(&request.Providers, validation.Length(0, 20), validation.Each(
			validation.Required.Error("provider name is required"),
			validation.Match(providerName).Error("invalid provider name"),
		)),
		validation.Field(&request.Media, validation.Length(0, 20), validation.Each(
			validation.Required.Error("media reference is required"),
			validation.Length(1, 2048),
		)),
	)
	return asValidationError(err)
}

func ValidateTaskRequest(ctx context.Context, request application.TaskRequest) error {
	request.Kind = strings.TrimSpace(request.Kind)
	request.ExternalTaskID = strings.TrimSpace(request.ExternalTaskID)
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Kind, validation.Required.Error("kind is required"), validation.Length(1, 32)),
		validation.Field(&request.ExternalTaskID, validation.Required.Error("externalTaskId is required"), validation.Length(1, 128)),
	)
	return asValidationError(err)
}

func ValidateConnect(ctx context.Context, request application.ConnectRequest) error {
	request.ProviderAccountID = strings.TrimSpace(request.ProviderAccountID)
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Provider, validation.Required.Error("provider is required"), validation.Match(providerName).Error("invalid provider name")),
		validation.Field(&request.ProviderAccountID, validation.Required.Error("providerAccountId is required"), validation.Length(1, 128)),
		validation.Field(&request.Name, validation.Length(0, 128)),
	)
	return asValidationError(err)
}

// ValidateTaskCallback only checks the fields needed to find the task; the
// status itself is interpreted by the reconciler.
func ValidateTaskCallback(ctx context.Context, payload httpclient.TaskStatusPayload) error {
	data := payload.Data
	err := validation.ValidateStructWithContext(ctx, &data,
		validation.Field(&data.TaskID, validation.Required.Error("data.taskId is required")),
	)
	return asValidationError(err)
}

// asValidationError flattens ozzo's field map into the first message, sorted
// by field, so clients get a stable single line.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return pkgError.ValidationError(err.Error())
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	first := fields[keys[0]]

	var nested validation.Errors
	if errors.As(first, &nested) {
		return asValidationError(nested)
	}
	return pkgError.ValidationError(first.Error())
}
