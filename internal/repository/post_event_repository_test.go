package repository

import (
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEventArgs(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("absent payloads are NULL", func(t *testing.T) {
		args, err := appendEventArgs(&models.PostEvent{
			ID:           "e1",
			PostRecordID: "pr1",
			SubmissionID: "s1",
			Sequence:     1,
			EventType:    models.EventPostStarted,
			CreatedAt:    now,
		})
		require.NoError(t, err)
		require.Len(t, args, 11)

		// an untyped nil, not a nil []byte or an empty string
		assert.True(t, args[8] == nil, "error arg is %#v", args[8])
		assert.True(t, args[9] == nil, "metadata arg is %#v", args[9])
		assert.Equal(t, now, args[10])
	})

	t.Run("payloads are JSON text", func(t *testing.T) {
		args, err := appendEventArgs(&models.PostEvent{
			ID:           "e2",
			PostRecordID: "pr1",
			AccountID:    "acc-1",
			Sequence:     2,
			EventType:    models.EventPostAttemptFailed,
			Error:        &models.EventError{Code: "adapter", Message: "boom"},
			Metadata:     &models.EventMetadata{ResetProgress: true},
		})
		require.NoError(t, err)

		errArg, ok := args[8].(string)
		require.True(t, ok)
		assert.JSONEq(t, `{"code":"adapter","message":"boom"}`, errArg)

		metaArg, ok := args[9].(string)
		require.True(t, ok)
		assert.Contains(t, metaArg, `"reset_progress":true`)
		assert.Equal(t, "acc-1", args[3])
	})
}
