package rest

import (
	"time"

	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/validations"
	"github.com/gofiber/fiber/v2"
)

type Publish struct {
	Jobs        *application.JobManager
	Sweeper     *application.ClaimSweeper
	PreviewWait time.Duration
}

func InitRestPublish(router fiber.Router, handler Publish) Publish {
	router.Post("/publish", handler.Publish)
	router.Post("/publish-async", handler.PublishAsync)
	router.Get("/publish-jobs/:id", handler.GetJob)
	router.Post("/posts/:id/publish-now", handler.PublishNow)
	router.Post("/posts/:id/requeue", handler.Requeue)
	return handler
}

type publishResponse struct {
	OK      bool                    `json:"ok"`
	Results []domain.ProviderResult `json:"results"`
	JobID   string                  `json:"jobId,omitempty"`
	Status  domain.JobStatus        `json:"status,omitempty"`
}

func (handler *Publish) parse(c *fiber.Ctx) (application.SubmitRequest, error) {
	var request application.SubmitRequest
	if err := c.BodyParser(&request); err != nil {
		return request, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validations.ValidatePublish(c.UserContext(), request); err != nil {
		return request, err
	}
	return request, nil
}

// Publish runs a dry run inline, or queues a job and waits a bounded time
// for it so simple clients get the per-provider breakdown in one call.
func (handler *Publish) Publish(c *fiber.Ctx) error {
	request, err := handler.parse(c)
	if err != nil {
		return respondParseError(c, err)
	}

	if request.DryRun {
		results, err := handler.Jobs.Preview(c.UserContext(), request)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(publishResponse{OK: domain.AllOK(results), Results: results})
	}

	job, err := handler.Jobs.Submit(c.UserContext(), request)
	if err != nil {
		return respondError(c, err)
	}
	done, err := handler.Jobs.Wait(c.UserContext(), job.ID, handler.PreviewWait)
	if err != nil {
		return respondError(c, err)
	}

	results := done.Results
	if results == nil {
		results = []domain.ProviderResult{}
	}
	return c.JSON(publishResponse{
		OK:      done.Status == domain.JobStatusCompleted && domain.AllOK(results),
		Results: results,
		JobID:   done.ID,
		Status:  done.Status,
	})
}

func (handler *Publish) PublishAsync(c *fiber.Ctx) error {
	request, err := handler.parse(c)
	if err != nil {
		return respondParseError(c, err)
	}
	request.DryRun = false

	job, err := handler.Jobs.Submit(c.UserContext(), request)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "jobId": job.ID, "status": job.Status})
}

func (handler *Publish) GetJob(c *fiber.Ctx) error {
	job, err := handler.Jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}

func (handler *Publish) PublishNow(c *fiber.Ctx) error {
	job, err := handler.Sweeper.PublishNow(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "jobId": job.ID, "status": job.Status})
}

func (handler *Publish) Requeue(c *fiber.Ctx) error {
	if err := handler.Sweeper.Requeue(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func respondParseError(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"ok": false, "error": fe.Message})
	}
	return respondError(c, err)
}
