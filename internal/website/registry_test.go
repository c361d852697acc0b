package website

import (
	"context"
	"testing"

	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name string
	caps Capabilities
}

func (s stubAdapter) Website() string            { return s.name }
func (s stubAdapter) Capabilities() Capabilities { return s.caps }
func (s stubAdapter) GetLoginState(ctx context.Context, account *models.Account) (models.LoginState, error) {
	return models.LoginState{LoggedIn: true}, nil
}
func (s stubAdapter) OnPostFileSubmission(ctx context.Context, data FilePostData, cancel CancelSignal) (*PostResult, error) {
	return &PostResult{}, nil
}
func (s stubAdapter) OnPostMessageSubmission(ctx context.Context, data MessagePostData, cancel CancelSignal) (*PostResult, error) {
	return &PostResult{}, nil
}
func (s stubAdapter) OnValidateFileSubmission(ctx context.Context, data FilePostData) ValidationResult {
	return ValidationResult{}
}
func (s stubAdapter) OnValidateMessageSubmission(ctx context.Context, data MessagePostData) ValidationResult {
	return ValidationResult{}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubAdapter{name: "youtube"}, stubAdapter{name: "bluesky"})

	a, err := r.Get("youtube")
	require.NoError(t, err)
	assert.Equal(t, "youtube", a.Website())

	_, err = r.Get("myspace")
	assert.ErrorIs(t, err, apperr.ErrUnknownWebsite)

	assert.Equal(t, []string{"bluesky", "youtube"}, r.Websites())
}

func TestCapabilities_BatchSize(t *testing.T) {
	assert.Equal(t, 1, Capabilities{}.BatchSize())
	assert.Equal(t, 1, Capabilities{FileBatchSize: -3}.BatchSize())
	assert.Equal(t, 4, Capabilities{FileBatchSize: 4}.BatchSize())
}

func TestCapabilities_AcceptsMime(t *testing.T) {
	caps := Capabilities{AcceptedMimeTypes: []string{"image/*", "video/mp4"}}

	assert.True(t, caps.AcceptsMime("image/png"))
	assert.True(t, caps.AcceptsMime("VIDEO/MP4"))
	assert.False(t, caps.AcceptsMime("video/quicktime"))
	assert.False(t, caps.AcceptsMime("imagex/png"))
	assert.True(t, Capabilities{}.AcceptsMime("application/zip"))
}

func TestFilesFor(t *testing.T) {
	sub := &models.Submission{Files: []models.SubmissionFile{
		{ID: "f3", Order: 2},
		{ID: "f1", Order: 0},
		{ID: "f2", Order: 1, IgnoredAccounts: []string{"acc-b"}},
	}}

	ids := func(files []models.SubmissionFile) []string {
		var out []string
		for _, f := range files {
			out = append(out, f.ID)
		}
		return out
	}

	multi := Capabilities{SupportsAdditionalFiles: true}
	assert.Equal(t, []string{"f1", "f2", "f3"}, ids(FilesFor(sub, "acc-a", multi)))
	assert.Equal(t, []string{"f1", "f3"}, ids(FilesFor(sub, "acc-b", multi)))
	assert.Equal(t, []string{"f1"}, ids(FilesFor(sub, "acc-a", Capabilities{})))
}

func TestBatches(t *testing.T) {
	files := make([]models.SubmissionFile, 5)

	batches := Batches(files, Capabilities{FileBatchSize: 2})
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)

	assert.Len(t, Batches(files, Capabilities{}), 5)
	assert.Empty(t, Batches(nil, Capabilities{}))
}
