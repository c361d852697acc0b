package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
)

// GetUserID returns the user the auth middleware accepted, or "".
func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// ErrorHandler maps engine errors to HTTP status codes.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := fiber.Map{"error": err.Error()}

	var invalid *apperr.ValidationError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &invalid):
		status = fiber.StatusUnprocessableEntity
		body["problems"] = invalid.Problems
	case errors.Is(err, apperr.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, apperr.ErrQueueBusy):
		status = fiber.StatusConflict
	case errors.Is(err, apperr.ErrInvalidResumeMode):
		status = fiber.StatusBadRequest
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
	}

	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "user_id", GetUserID(c), "error", err)
	}
	return c.Status(status).JSON(body)
}

type submissionIDsRequest struct {
	SubmissionIDs []string          `json:"submissionIds"`
	ResumeMode    models.ResumeMode `json:"resumeMode,omitempty"`
}

func parseSubmissionIDs(c *fiber.Ctx) (*submissionIDsRequest, error) {
	var req submissionIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Unable to parse request body")
	}
	if len(req.SubmissionIDs) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "submissionIds is required")
	}
	return &req, nil
}
