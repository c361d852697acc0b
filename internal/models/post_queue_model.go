package models

import "time"

type PostQueueRecord struct {
	ID           string     `db:"id" json:"id"`
	SubmissionID string     `db:"submission_id" json:"submission_id"`
	Position     int        `db:"position" json:"position"`
	ResumeMode   ResumeMode `db:"resume_mode" json:"resume_mode"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
