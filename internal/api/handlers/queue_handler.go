package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
)

type PostQueue interface {
	Enqueue(ctx context.Context, submissionIDs []string, mode models.ResumeMode) ([]string, error)
	List(ctx context.Context) ([]*models.PostQueueRecord, error)
	Reorder(ctx context.Context, submissionIDs []string) error
	Cancel(ctx context.Context, submissionIDs []string) (int64, error)
}

type QueueHandler struct {
	q PostQueue
}

func NewQueueHandler(q PostQueue) *QueueHandler {
	return &QueueHandler{q: q}
}

func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	req, err := parseSubmissionIDs(c)
	if err != nil {
		return err
	}

	ids, err := h.q.Enqueue(c.Context(), req.SubmissionIDs, req.ResumeMode)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	slog.Info("submissions enqueued", "user_id", GetUserID(c), "requested", len(req.SubmissionIDs), "queued", len(ids))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"queueIds": ids,
	})
}

func (h *QueueHandler) List(c *fiber.Ctx) error {
	items, err := h.q.List(c.Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*models.PostQueueRecord{}
	}
	return c.Status(fiber.StatusOK).JSON(items)
}

func (h *QueueHandler) Reorder(c *fiber.Ctx) error {
	req, err := parseSubmissionIDs(c)
	if err != nil {
		return err
	}

	if err := h.q.Reorder(c.Context(), req.SubmissionIDs); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Queue reordered",
	})
}

func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	req, err := parseSubmissionIDs(c)
	if err != nil {
		return err
	}

	removed, err := h.q.Cancel(c.Context(), req.SubmissionIDs)
	if err != nil {
		return err
	}
	slog.Info("submissions cancelled", "user_id", GetUserID(c), "submission_ids", req.SubmissionIDs, "removed", removed)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"removed": removed,
	})
}
