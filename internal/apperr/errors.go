// Package apperr holds the error taxonomy shared by the posting engine.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrQueueBusy is returned when the queue cannot be reordered because a post is running.
	ErrQueueBusy = errors.New("queue cannot be reordered while a post is running")

	// ErrUnknownWebsite is returned when no adapter is registered for a website.
	ErrUnknownWebsite = errors.New("no adapter registered for website")

	// ErrInvalidResumeMode is returned for resume modes outside NEW, CONTINUE and CONTINUE_RETRY.
	ErrInvalidResumeMode = errors.New("invalid resume mode")
)

// Codes stored on ledger events.
const (
	CodeValidation          = "validation"
	CodeAccountNotReady     = "account_not_ready"
	CodeAdapter             = "adapter"
	CodeTimeout             = "timeout"
	CodeCancelled           = "cancelled"
	CodeInternalConsistency = "internal_consistency"
	CodeInterrupted         = "interrupted"
	CodePanic               = "panic"
	CodeUnknown             = "unknown"
)

// ValidationError blocks a submission from being enqueued.
type ValidationError struct {
	SubmissionID string
	Problems     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission %s is invalid: %s", e.SubmissionID, strings.Join(e.Problems, "; "))
}

// AccountNotReadyError is recorded when an account is not logged in.
type AccountNotReadyError struct {
	AccountID string
	Reason    string
}

func (e *AccountNotReadyError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("account %s is not logged in", e.AccountID)
	}
	return fmt.Sprintf("account %s is not ready: %s", e.AccountID, e.Reason)
}

// AdapterError wraps a failure reported or raised by a website adapter.
type AdapterError struct {
	Website string
	Op      string
	Timeout bool
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out: %v", e.Website, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Website, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// CancellationError is recorded when the user stops a running post.
type CancellationError struct {
	SubmissionID string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("posting of submission %s was cancelled", e.SubmissionID)
}

// InternalConsistencyError halts processing of a single submission.
type InternalConsistencyError struct {
	PostRecordID string
	Reason       string
}

func (e *InternalConsistencyError) Error() string {
	if e.PostRecordID == "" {
		return "internal consistency: " + e.Reason
	}
	return fmt.Sprintf("internal consistency in post record %s: %s", e.PostRecordID, e.Reason)
}

// PanicError carries a panic recovered from adapter code.
type PanicError struct {
	Website string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s adapter panicked: %v", e.Website, e.Value)
}

// Code maps an error to the stable code stored on ledger events.
func Code(err error) string {
	var (
		validation *ValidationError
		notReady   *AccountNotReadyError
		adapter    *AdapterError
		cancelled  *CancellationError
		internal   *InternalConsistencyError
		panicked   *PanicError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cancelled):
		return CodeCancelled
	case errors.As(err, &panicked):
		return CodePanic
	case errors.As(err, &notReady):
		return CodeAccountNotReady
	case errors.As(err, &adapter):
		if adapter.Timeout {
			return CodeTimeout
		}
		return CodeAdapter
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &internal):
		return CodeInternalConsistency
	}
	return CodeUnknown
}

// IsInternal reports whether err must halt the current submission.
func IsInternal(err error) bool {
	var internal *InternalConsistencyError
	return errors.As(err, &internal)
}
