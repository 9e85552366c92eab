package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/csvimport"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type ScheduleHandler struct {
	s   service.SchedulerService
	w   service.WatermarkService
	now func() time.Time
}

func NewScheduleHandler(scheduler service.SchedulerService, watermarks service.WatermarkService) *ScheduleHandler {
	return &ScheduleHandler{s: scheduler, w: watermarks, now: time.Now}
}

func (h *ScheduleHandler) Schedule(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.Accounts) == 0 || len(req.Posts) == 0 {
		return badRequest(c, "At least one account and one post are required")
	}

	intents := make([]models.PostIntent, 0, len(req.Posts))
	for _, p := range req.Posts {
		at, err := parseScheduleDate(p.ScheduleDate, h.now())
		if err != nil {
			return badRequest(c, "Invalid schedule_date: "+p.ScheduleDate)
		}
		intents = append(intents, models.PostIntent{ImageURL: p.ImageURL, Caption: p.Caption, RequestedAt: at})
	}

	return h.run(c, req.Accounts, intents)
}

// ScheduleCSV takes a multipart upload with the spreadsheet in "file" and a
// JSON array of accounts in "accounts".
func (h *ScheduleHandler) ScheduleCSV(c *fiber.Ctx) error {
	var accounts []models.Account
	if err := json.Unmarshal([]byte(c.FormValue("accounts")), &accounts); err != nil || len(accounts) == 0 {
		return badRequest(c, "accounts must be a non-empty JSON array")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "Unable to read file")
	}
	defer f.Close()

	intents, err := csvimport.Parse(f, time.Local, h.now())
	if err != nil {
		return badRequest(c, err.Error())
	}
	if len(intents) == 0 {
		return badRequest(c, "No rows with an image url")
	}

	return h.run(c, accounts, intents)
}

func (h *ScheduleHandler) run(c *fiber.Ctx, accounts []models.Account, intents []models.PostIntent) error {
	batch := service.NewBatchContext(accounts, intents)
	batch.ApplyWatermarks(c.Context(), h.w)

	result := h.s.ScheduleBatch(c.Context(), batch)
	resp := transfer.ScheduleResponse{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []*models.ScheduledRecord{}
	}
	if resp.Failed == nil {
		resp.Failed = []transfer.PairFailure{}
	}

	slog.Info("batch scheduled", "user_id", GetUserID(c), "succeeded", len(resp.Succeeded), "failed", len(resp.Failed))

	status := fiber.StatusOK
	if len(resp.Succeeded) == 0 {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(resp)
}

func (h *ScheduleHandler) ListUpcoming(c *fiber.Ctx) error {
	ids := splitAccountIDs(c.Query("account_id"), c.Query("account_ids"))
	if len(ids) == 0 {
		return badRequest(c, "account_id is required")
	}

	records, err := h.s.ListUpcoming(c.Context(), ids)
	if err != nil {
		slog.Error(err.Error())
		return sendError(c, err)
	}
	if records == nil {
		records = []*models.ScheduledRecord{}
	}
	return c.Status(fiber.StatusOK).JSON(records)
}

func (h *ScheduleHandler) EditRecord(c *fiber.Ctx) error {
	id := c.Params("id")

	var req transfer.EditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Account.AccessToken == "" {
		return badRequest(c, "account.access_token is required")
	}

	changes := service.RecordChanges{Caption: req.Caption, ImageURL: req.ImageURL}
	if req.ScheduleDate != nil {
		at, err := parseScheduleDate(*req.ScheduleDate, h.now())
		if err != nil {
			return badRequest(c, "Invalid schedule_date: "+*req.ScheduleDate)
		}
		changes.RequestedAt = &at
	}

	rec, err := h.s.EditScheduledRecord(c.Context(), id, changes, req.Account)
	if err != nil {
		return sendError(c, err)
	}
	slog.Info("record edited", "user_id", GetUserID(c), "old_id", id, "new_id", rec.ID)
	return c.Status(fiber.StatusOK).JSON(rec)
}

func (h *ScheduleHandler) DeleteRecord(c *fiber.Ctx) error {
	id := c.Params("id")

	var req transfer.DeleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	if err := h.s.DeleteScheduledRecord(c.Context(), id, req.AccessToken); err != nil {
		return sendError(c, err)
	}
	slog.Info("record deleted", "user_id", GetUserID(c), "record_id", id)
	return c.SendStatus(fiber.StatusNoContent)
}
