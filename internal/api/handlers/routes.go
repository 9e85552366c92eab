package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the scheduling API. auth guards everything under
// /api.
func RegisterRoutes(app *fiber.App, auth fiber.Handler, schedule *ScheduleHandler, reconcile *ReconcileHandler, watermark *WatermarkHandler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Use(auth)

	api.Post("/schedule", schedule.Schedule)
	api.Post("/schedule/csv", schedule.ScheduleCSV)
	api.Get("/scheduled", schedule.ListUpcoming)
	api.Put("/scheduled/:id", schedule.EditRecord)
	api.Delete("/scheduled/:id", schedule.DeleteRecord)

	api.Post("/reconcile", reconcile.Sweep)
	api.Post("/offline/drain", reconcile.Drain)

	api.Post("/watermarks/:accountId", watermark.Upload)
}
