package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/apperr"
)

func (j *Queue) HandleScheduleSubmissionTask(ctx context.Context, task *asynq.Task) error {
	var payload ScheduleSubmissionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	ids, err := j.posts.Enqueue(ctx, []string{payload.SubmissionID}, payload.ResumeMode)
	if err != nil {
		var invalid *apperr.ValidationError
		if errors.As(err, &invalid) || errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidResumeMode) {
			slog.Warn("scheduled submission rejected", "submission_id", payload.SubmissionID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if len(ids) == 0 {
		slog.Info("scheduled submission already enqueued", "submission_id", payload.SubmissionID)
		return nil
	}
	slog.Info("scheduled submission enqueued", "submission_id", payload.SubmissionID, "queue_id", ids[0])
	return nil
}
