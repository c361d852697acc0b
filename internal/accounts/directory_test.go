package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository/memory"
	"github.com/maheshrc27/crosspost/internal/website"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginAdapter struct {
	website string
	state   models.LoginState
	err     error
}

func (a *loginAdapter) Website() string                    { return a.website }
func (a *loginAdapter) Capabilities() website.Capabilities { return website.Capabilities{} }
func (a *loginAdapter) GetLoginState(ctx context.Context, acc *models.Account) (models.LoginState, error) {
	return a.state, a.err
}
func (a *loginAdapter) OnPostFileSubmission(ctx context.Context, d website.FilePostData, c website.CancelSignal) (*website.PostResult, error) {
	return nil, nil
}
func (a *loginAdapter) OnPostMessageSubmission(ctx context.Context, d website.MessagePostData, c website.CancelSignal) (*website.PostResult, error) {
	return nil, nil
}
func (a *loginAdapter) OnValidateFileSubmission(ctx context.Context, d website.FilePostData) website.ValidationResult {
	return website.ValidationResult{}
}
func (a *loginAdapter) OnValidateMessageSubmission(ctx context.Context, d website.MessagePostData) website.ValidationResult {
	return website.ValidationResult{}
}

func newDirectory(t *testing.T) (*Directory, *memory.Store) {
	store := memory.New()
	store.PutAccount(&models.Account{ID: "a1", Website: "youtube", Name: "Main"})
	store.PutAccount(&models.Account{ID: "a2", Website: "unknown"})
	d := NewDirectory(store.Accounts())
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return d, store
}

func TestDirectory_Get(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	acc, err := d.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Main", acc.Name)

	_, err = d.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDirectory_CheckLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("logged in is stored", func(t *testing.T) {
		d, store := newDirectory(t)
		acc, _ := d.Get(ctx, "a1")

		state, err := d.CheckLogin(ctx, acc, &loginAdapter{website: "youtube", state: models.LoginState{LoggedIn: true, Username: "me"}})
		require.NoError(t, err)
		assert.True(t, state.LoggedIn)

		stored, _ := store.Accounts().GetByID(ctx, "a1")
		assert.True(t, stored.LoginState.LoggedIn)
		assert.Equal(t, "me", stored.LoginState.Username)
		assert.Equal(t, 2026, stored.LoginState.CheckedAt.Year())
	})

	t.Run("logged out is not ready", func(t *testing.T) {
		d, _ := newDirectory(t)
		acc, _ := d.Get(ctx, "a1")

		_, err := d.CheckLogin(ctx, acc, &loginAdapter{website: "youtube"})
		var notReady *apperr.AccountNotReadyError
		require.ErrorAs(t, err, &notReady)
		assert.Equal(t, "a1", notReady.AccountID)
	})

	t.Run("adapter error is not ready", func(t *testing.T) {
		d, store := newDirectory(t)
		acc, _ := d.Get(ctx, "a1")

		_, err := d.CheckLogin(ctx, acc, &loginAdapter{website: "youtube", state: models.LoginState{LoggedIn: true}, err: errors.New("token revoked")})
		assert.Equal(t, apperr.CodeAccountNotReady, apperr.Code(err))

		stored, _ := store.Accounts().GetByID(ctx, "a1")
		assert.False(t, stored.LoginState.LoggedIn)
	})
}

func TestDirectory_Ready(t *testing.T) {
	ctx := context.Background()

	t.Run("logged in", func(t *testing.T) {
		d, store := newDirectory(t)
		acc, _ := d.Get(ctx, "a1")

		state, err := d.Ready(ctx, acc, &loginAdapter{website: "youtube", state: models.LoginState{LoggedIn: true, Username: "me"}})
		require.NoError(t, err)
		assert.True(t, state.LoggedIn)
		assert.Equal(t, 2026, state.CheckedAt.Year())

		stored, _ := store.Accounts().GetByID(ctx, "a1")
		assert.False(t, stored.LoginState.LoggedIn)
		assert.True(t, stored.LoginState.CheckedAt.IsZero())
		assert.False(t, acc.LoginState.LoggedIn)
	})

	t.Run("not ready is not stored", func(t *testing.T) {
		d, store := newDirectory(t)
		store.PutAccount(&models.Account{ID: "a1", Website: "youtube", LoginState: models.LoginState{LoggedIn: true}})
		acc, _ := d.Get(ctx, "a1")

		_, err := d.Ready(ctx, acc, &loginAdapter{website: "youtube", err: errors.New("token revoked")})
		assert.Equal(t, apperr.CodeAccountNotReady, apperr.Code(err))

		stored, _ := store.Accounts().GetByID(ctx, "a1")
		assert.True(t, stored.LoginState.LoggedIn)
	})
}

func TestDirectory_RefreshAll(t *testing.T) {
	d, _ := newDirectory(t)
	registry := website.NewRegistry(&loginAdapter{website: "youtube", state: models.LoginState{LoggedIn: true}})

	n, err := d.RefreshAll(context.Background(), registry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
