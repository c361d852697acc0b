package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type History interface {
	GetPostHistory(ctx context.Context, submissionID string) ([]*models.PostEvent, error)
}

type Records interface {
	Get(ctx context.Context, id string) (*models.PostRecord, error)
	LatestForSubmission(ctx context.Context, submissionID string) (*models.PostRecord, error)
}

type SubmissionHandler struct {
	submissions repository.SubmissionRepository
	history     History
	records     Records
	tasks       queue.TaskClient
}

func NewSubmissionHandler(
	submissions repository.SubmissionRepository,
	history History,
	records Records,
	tasks queue.TaskClient) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		history:     history,
		records:     records,
		tasks:       tasks,
	}
}

type scheduleRequest struct {
	At         time.Time         `json:"at"`
	ResumeMode models.ResumeMode `json:"resumeMode,omitempty"`
}

func (h *SubmissionHandler) Schedule(c *fiber.Ctx) error {
	id := c.Params("id")

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Unable to parse request body")
	}
	if req.At.IsZero() {
		return fiber.NewError(fiber.StatusBadRequest, "at is required")
	}
	if req.ResumeMode != "" && !req.ResumeMode.Valid() {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidResumeMode, req.ResumeMode)
	}

	sub, err := h.submissions.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("submission %s: %w", id, apperr.ErrNotFound)
	}

	taskID, err := queue.ScheduleSubmission(c.Context(), h.tasks, queue.ScheduleSubmissionPayload{
		SubmissionID: id,
		ResumeMode:   req.ResumeMode,
	}, req.At)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"taskId": taskID,
		"at":     req.At.UTC(),
	})
}

func (h *SubmissionHandler) History(c *fiber.Ctx) error {
	events, err := h.history.GetPostHistory(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if events == nil {
		events = []*models.PostEvent{}
	}
	return c.Status(fiber.StatusOK).JSON(events)
}

func (h *SubmissionHandler) LatestRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	rec, err := h.records.LatestForSubmission(c.Context(), id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("post record for submission %s: %w", id, apperr.ErrNotFound)
	}
	return c.Status(fiber.StatusOK).JSON(rec)
}

func (h *SubmissionHandler) GetRecord(c *fiber.Ctx) error {
	rec, err := h.records.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(rec)
}
