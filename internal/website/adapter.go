// Package website defines the contract between the posting engine and the
// per-website integrations. The engine only branches on Capabilities, never
// on a concrete adapter type.
package website

import (
	"context"
	"io"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// Capabilities are declared once per adapter.
type Capabilities struct {
	SupportsFile            bool
	SupportsMessage         bool
	SupportsAdditionalFiles bool

	// FileBatchSize is the most files one post call accepts. Zero means one.
	FileBatchSize int

	// AcceptedMimeTypes may hold exact types or "image/*" style wildcards.
	// Empty accepts everything.
	AcceptedMimeTypes []string

	// WaitBetweenPosts is the minimum gap between two posts to the same account.
	WaitBetweenPosts time.Duration

	// PostTimeout bounds a single post call. Zero uses the engine default.
	PostTimeout time.Duration

	// ConcurrentSafe adapters may be driven for several accounts at once.
	ConcurrentSafe bool
}

func (c Capabilities) BatchSize() int {
	if c.FileBatchSize < 1 {
		return 1
	}
	return c.FileBatchSize
}

// CancelSignal is checked by adapters between their own internal steps.
// It never interrupts a request already sent.
type CancelSignal interface {
	Cancelled() bool
}

// FileOpener gives adapters access to stored file content.
type FileOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// PostFile is one file of a batch.
type PostFile struct {
	models.SubmissionFile
}

type FilePostData struct {
	Submission  *models.Submission
	Account     *models.Account
	Options     map[string]any
	Files       []PostFile
	BatchNumber int
	Opener      FileOpener
}

type MessagePostData struct {
	Submission *models.Submission
	Account    *models.Account
	Options    map[string]any
}

// PostResult is returned by a successful post call.
type PostResult struct {
	SourceURL string
	Message   string
}

// ValidationResult lists blocking Errors and advisory Warnings.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (v ValidationResult) Blocking() bool { return len(v.Errors) > 0 }

type Adapter interface {
	Website() string
	Capabilities() Capabilities

	GetLoginState(ctx context.Context, account *models.Account) (models.LoginState, error)

	// OnPostFileSubmission posts one batch. It is called at most once per batch
	// per attempt; any returned error fails every file of the batch.
	OnPostFileSubmission(ctx context.Context, data FilePostData, cancel CancelSignal) (*PostResult, error)
	OnPostMessageSubmission(ctx context.Context, data MessagePostData, cancel CancelSignal) (*PostResult, error)

	OnValidateFileSubmission(ctx context.Context, data FilePostData) ValidationResult
	OnValidateMessageSubmission(ctx context.Context, data MessagePostData) ValidationResult
}
