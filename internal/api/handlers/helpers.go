package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

// GetUserID returns the operator the auth middleware resolved, or "".
func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// statusFor maps the error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrNotEditable), errors.Is(err, service.ErrClaimConflict):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrConfig), errors.Is(err, service.ErrInvalidAccount):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrAuthExpired):
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrProviderRejected):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func sendError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  service.ErrorKind(err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// parseScheduleDate reads an operator supplied date. An empty string means
// as soon as allowed.
func parseScheduleDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	return dateparse.ParseLocal(s)
}

func splitAccountIDs(values ...string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
