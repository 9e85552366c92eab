package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/offline"
)

type Sweeper interface {
	Sweep(ctx context.Context) (*job.SweepReport, error)
}

type Drainer interface {
	Drain(ctx context.Context) (*offline.DrainReport, error)
}

type ReconcileHandler struct {
	sweeper Sweeper
	drainer Drainer
}

func NewReconcileHandler(sweeper Sweeper, drainer Drainer) *ReconcileHandler {
	return &ReconcileHandler{sweeper: sweeper, drainer: drainer}
}

// Sweep runs one reconciliation pass now instead of waiting for the tick.
func (h *ReconcileHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.sweeper.Sweep(c.Context())
	if err != nil {
		if errors.Is(err, job.ErrSweepInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *ReconcileHandler) Drain(c *fiber.Ctx) error {
	report, err := h.drainer.Drain(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(report)
}
