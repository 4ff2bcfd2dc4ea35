package rest

import (
	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/validations"
	"github.com/gofiber/fiber/v2"
)

type Connections struct {
	Jobs *application.JobManager
}

func InitRestConnections(router fiber.Router, handler Connections) Connections {
	router.Get("/connections", handler.List)
	router.Put("/connections/:provider", handler.Connect)
	return handler
}

func (handler *Connections) List(c *fiber.Ctx) error {
	list, err := handler.Jobs.Connections(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "connections": list})
}

func (handler *Connections) Connect(c *fiber.Ctx) error {
	var request application.ConnectRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid JSON body"})
	}
	request.Provider = c.Params("provider")
	if err := validations.ValidateConnect(c.UserContext(), request); err != nil {
		return respondError(c, err)
	}

	conn, err := handler.Jobs.Connect(c.UserContext(), request)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "connection": conn})
}
