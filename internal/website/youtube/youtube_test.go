package youtube

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/website"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeTokens struct {
	calls int
}

func (f *fakeTokens) SetToken(ctx context.Context, id string, oldAccessToken string, acc *models.Account) error {
	f.calls++
	return nil
}

type cancelled bool

func (c cancelled) Cancelled() bool { return bool(c) }

func sealed(t *testing.T, s string) string {
	t.Helper()
	out, err := utils.Encrypt([]byte(s), testKey)
	require.NoError(t, err)
	return out
}

func freshAccount(t *testing.T) *models.Account {
	return &models.Account{
		ID:             "acc-1",
		Website:        Website,
		Username:       "channel",
		AccessToken:    sealed(t, "access"),
		RefreshToken:   sealed(t, "refresh"),
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestCapabilities(t *testing.T) {
	caps := New(Config{SecretKey: testKey}, &fakeTokens{}).Capabilities()
	assert.True(t, caps.SupportsFile)
	assert.False(t, caps.SupportsMessage)
	assert.False(t, caps.SupportsAdditionalFiles)
	assert.Equal(t, 1, caps.BatchSize())
	assert.True(t, caps.AcceptsMime("video/mp4"))
	assert.False(t, caps.AcceptsMime("image/png"))
}

func TestGetLoginState(t *testing.T) {
	ctx := context.Background()

	t.Run("no refresh token", func(t *testing.T) {
		state, err := New(Config{SecretKey: testKey}, &fakeTokens{}).GetLoginState(ctx, &models.Account{ID: "acc-1"})
		require.NoError(t, err)
		assert.False(t, state.LoggedIn)
	})

	t.Run("valid stored token is not refreshed", func(t *testing.T) {
		tokens := &fakeTokens{}
		state, err := New(Config{SecretKey: testKey}, tokens).GetLoginState(ctx, freshAccount(t))
		require.NoError(t, err)
		assert.True(t, state.LoggedIn)
		assert.Equal(t, "channel", state.Username)
		assert.Zero(t, tokens.calls)
	})

	t.Run("undecryptable token", func(t *testing.T) {
		acc := freshAccount(t)
		acc.RefreshToken = "garbage"
		state, err := New(Config{SecretKey: testKey}, &fakeTokens{}).GetLoginState(ctx, acc)
		assert.Error(t, err)
		assert.False(t, state.LoggedIn)
	})
}

func TestVideoFor(t *testing.T) {
	sub := &models.Submission{Title: "Fallback"}

	video, err := videoFor(website.FilePostData{Submission: sub, Options: map[string]any{
		"description": "hello",
		"tags":        []any{"a", "", "b"},
		"privacy":     "unlisted",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Fallback", video.Snippet.Title)
	assert.Equal(t, "hello", video.Snippet.Description)
	assert.Equal(t, []string{"a", "b"}, video.Snippet.Tags)
	assert.Equal(t, "unlisted", video.Status.PrivacyStatus)

	video, err = videoFor(website.FilePostData{Submission: sub, Options: map[string]any{"title": "Own"}})
	require.NoError(t, err)
	assert.Equal(t, "Own", video.Snippet.Title)
	assert.Equal(t, "public", video.Status.PrivacyStatus)

	bad := []map[string]any{
		{"title": "  "},
		{"title": strings.Repeat("x", maxTitle+1)},
		{"title": "ok", "privacy": "friends"},
		{"title": "ok", "description": strings.Repeat("x", maxDescription+1)},
	}
	for _, opts := range bad {
		_, err := videoFor(website.FilePostData{Options: opts})
		assert.Error(t, err, "%v", opts)
	}
}

func TestValidate(t *testing.T) {
	a := New(Config{SecretKey: testKey}, &fakeTokens{})
	ctx := context.Background()

	result := a.OnValidateFileSubmission(ctx, website.FilePostData{Options: map[string]any{"title": "t"}})
	assert.False(t, result.Blocking())
	assert.Len(t, result.Warnings, 1)

	result = a.OnValidateFileSubmission(ctx, website.FilePostData{Options: map[string]any{}})
	assert.True(t, result.Blocking())

	assert.True(t, a.OnValidateMessageSubmission(ctx, website.MessagePostData{}).Blocking())
}

func TestOnPostFileSubmission_StopsBeforeUpload(t *testing.T) {
	a := New(Config{SecretKey: testKey}, &fakeTokens{})
	data := website.FilePostData{
		Account: freshAccount(t),
		Options: map[string]any{"title": "t"},
		Files:   []website.PostFile{{SubmissionFile: models.SubmissionFile{ID: "f1", StorageKey: "k"}}},
	}

	_, err := a.OnPostFileSubmission(context.Background(), data, cancelled(true))
	assert.ErrorContains(t, err, "cancelled")

	data.Files = nil
	_, err = a.OnPostFileSubmission(context.Background(), data, cancelled(false))
	assert.Error(t, err)
}
