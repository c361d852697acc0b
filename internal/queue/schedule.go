package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskClient is the subset of *asynq.Client used to schedule tasks.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ScheduleSubmission enqueues the submission into the post queue at the given
// time. A time in the past schedules it immediately.
func ScheduleSubmission(ctx context.Context, client TaskClient, payload ScheduleSubmissionPayload, at time.Time) (string, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypeScheduleSubmission, taskPayload)

	info, err := client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.MaxRetry(3))
	if err != nil {
		return "", fmt.Errorf("schedule submission %s: %w", payload.SubmissionID, err)
	}

	slog.Info("submission scheduled", "submission_id", payload.SubmissionID, "at", at, "task_id", info.ID)
	return info.ID, nil
}
