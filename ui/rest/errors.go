package rest

import (
	"errors"

	pkgError "github.com/AzielCF/az-publish/pkg/error"
	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// toHTTPError maps domain errors onto the typed errors the REST layer renders.
// Anything unknown is an internal error.
func toHTTPError(err error) pkgError.GenericError {
	var generic pkgError.GenericError
	if errors.As(err, &generic) {
		return generic
	}
	var invalid *domain.InvalidContentError
	if errors.As(err, &invalid) {
		return pkgError.ValidationError(invalid.Reason)
	}

	switch {
	case errors.Is(err, application.ErrCaptionRequired),
		errors.Is(err, application.ErrUnknownProvider):
		return pkgError.ValidationError(err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		return pkgError.UnauthorizedError(err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return pkgError.ForbiddenError(err.Error())
	case errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrContentNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return pkgError.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrAlreadyPublished),
		errors.Is(err, domain.ErrAlreadyQueued),
		errors.Is(err, domain.ErrNotRequeueable),
		errors.Is(err, domain.ErrTaskAlreadyTracked):
		return pkgError.ConflictError(err.Error())
	case errors.Is(err, domain.ErrClaimConflict):
		return pkgError.ConflictError(domain.ErrAlreadyQueued.Error())
	case errors.Is(err, domain.ErrNotScheduled):
		return pkgError.ValidationError(err.Error())
	case errors.Is(err, application.ErrConnectionsDisabled):
		return pkgError.ServiceUnavailableError(err.Error())
	}
	return nil
}

// respondError writes {"ok": false, "error": ...} with the mapped status.
func respondError(c *fiber.Ctx, err error) error {
	if httpErr := toHTTPError(err); httpErr != nil {
		return c.Status(httpErr.StatusCode()).JSON(fiber.Map{
			"ok":    false,
			"error": httpErr.Error(),
			"code":  httpErr.ErrCode(),
		})
	}
	logrus.WithError(err).Errorf("[REST] %s %s failed", c.Method(), c.Path())
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"ok":    false,
		"error": "internal_error",
		"code":  "INTERNAL_SERVER_ERROR",
	})
}
