package rest

import (
	"crypto/subtle"

	"github.com/AzielCF/az-publish/infrastructure/httpclient"
	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/validations"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const callbackSecretHeader = "X-Callback-Secret"

type Tasks struct {
	Reconciler     *application.Reconciler
	CallbackSecret string
}

// InitRestTasks registers the authenticated task routes.
func InitRestTasks(router fiber.Router, handler Tasks) Tasks {
	router.Post("/tasks", handler.Submit)
	router.Get("/tasks/:id", handler.Get)
	return handler
}

// InitRestTaskCallback registers the callback route, which external systems
// call without a user session.
func InitRestTaskCallback(router fiber.Router, handler Tasks) Tasks {
	router.Post("/callback/tasks", handler.Callback)
	return handler
}

func (handler *Tasks) Submit(c *fiber.Ctx) error {
	var request application.TaskRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid JSON body"})
	}
	if err := validations.ValidateTaskRequest(c.UserContext(), request); err != nil {
		return respondError(c, err)
	}

	task, err := handler.Reconciler.Submit(c.UserContext(), request.Kind, request.ExternalTaskID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(task)
}

func (handler *Tasks) Get(c *fiber.Ctx) error {
	task, err := handler.Reconciler.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(task)
}

// Callback applies a status pushed by the external system. Replays and
// callbacks that lose the race to the poll path answer applied=false.
func (handler *Tasks) Callback(c *fiber.Ctx) error {
	if handler.CallbackSecret != "" {
		got := c.Get(callbackSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(handler.CallbackSecret)) != 1 {
			logrus.Warnf("[REST] Task callback from %s rejected: bad secret", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "invalid callback secret"})
		}
	}

	var payload httpclient.TaskStatusPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid JSON body"})
	}
	if err := validations.ValidateTaskCallback(c.UserContext(), payload); err != nil {
		return respondError(c, err)
	}

	applied, err := handler.Reconciler.HandleCallback(c.UserContext(), payload.Data.TaskID, payload.Data.Outcome())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "applied": applied})
}
