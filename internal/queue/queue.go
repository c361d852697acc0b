// Package queue runs scheduled submissions through asynq: a task fires at the
// submission's scheduled time and puts it into the post queue.
package queue

import (
	"context"

	"github.com/maheshrc27/crosspost/internal/models"
)

const TaskTypeScheduleSubmission = "submission:post"

type ScheduleSubmissionPayload struct {
	SubmissionID string            `json:"submission_id"`
	ResumeMode   models.ResumeMode `json:"resume_mode,omitempty"`
}

// Enqueuer is the post queue entry point used by the task handler.
type Enqueuer interface {
	Enqueue(ctx context.Context, submissionIDs []string, mode models.ResumeMode) ([]string, error)
}

type Queue struct {
	posts Enqueuer
}

func NewQueue(posts Enqueuer) *Queue {
	return &Queue{posts: posts}
}
