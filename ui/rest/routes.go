package rest

import (
	"github.com/AzielCF/az-publish/core/security"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
)

// Routes collects every handler mounted under <base path>/api.
type Routes struct {
	Tokens     *security.TokenService
	Settings   domain.PublishSettings
	Publish    Publish
	Tasks      Tasks
	Health     Health
	WorkerPool WorkerPool
	// Relay is the websocket upgrade handler for job status streams.
	Relay fiber.Handler
}

// Mount registers the public routes first, then everything behind the
// session middleware.
func Mount(router fiber.Router, routes Routes) {
	api := router.Group("/api")
	InitRestHealth(api, routes.Health)
	InitRestTaskCallback(api, routes.Tasks)

	protected := api.Group("", middleware.Session(routes.Tokens, routes.Settings))
	if routes.Relay != nil {
		// before /publish-jobs/:id, which would otherwise match "ws"
		protected.Get("/publish-jobs/ws", routes.Relay)
	}
	InitRestPublish(protected, routes.Publish)
	InitRestConnections(protected, Connections{Jobs: routes.Publish.Jobs})
	InitRestTasks(protected, routes.Tasks)
	InitRestWorkerPool(protected, routes.WorkerPool)
}
