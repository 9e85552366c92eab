package handlers

import (
	"errors"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

const maxWatermarkSize = 5 << 20

type WatermarkHandler struct {
	w service.WatermarkService
}

func NewWatermarkHandler(watermarks service.WatermarkService) *WatermarkHandler {
	return &WatermarkHandler{w: watermarks}
}

func (h *WatermarkHandler) Upload(c *fiber.Ctx) error {
	accountID := c.Params("accountId")

	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}
	if fh.Size > maxWatermarkSize {
		return badRequest(c, "Watermark is larger than 5MB")
	}
	f, err := fh.Open()
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "Unable to read file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "Unable to read file")
	}

	url, err := h.w.Upload(c.Context(), accountID, data)
	if err != nil {
		if errors.Is(err, service.ErrNotAnImage) {
			return badRequest(c, err.Error())
		}
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to store watermark",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account_id": accountID,
		"url":        url,
	})
}
