package rest

import (
	"github.com/AzielCF/az-publish/pkg/jobworker"
	"github.com/gofiber/fiber/v2"
)

type WorkerPool struct {
	Pool *jobworker.Pool
}

func InitRestWorkerPool(router fiber.Router, handler WorkerPool) WorkerPool {
	router.Get("/job-worker-pool/stats", handler.GetStats)
	return handler
}

// GetStats returns real-time statistics of the job worker pool.
func (handler *WorkerPool) GetStats(c *fiber.Ctx) error {
	if handler.Pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Job worker pool not initialized",
		})
	}
	return c.JSON(handler.Pool.GetStats())
}
