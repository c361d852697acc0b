// Package accounts is the Account Directory: account identity plus the login
// state last reported by the account's website adapter.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/apperr"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/website"
)

type Directory struct {
	repo repository.AccountRepository
	now  func() time.Time
}

func NewDirectory(repo repository.AccountRepository) *Directory {
	return &Directory{repo: repo, now: time.Now}
}

func (d *Directory) Get(ctx context.Context, id string) (*models.Account, error) {
	acc, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	return acc, nil
}

func (d *Directory) List(ctx context.Context) ([]*models.Account, error) {
	return d.repo.List(ctx)
}

// Ready asks the adapter whether the account can post right now. It only
// reads: the stored login state is left to CheckLogin.
func (d *Directory) Ready(ctx context.Context, acc *models.Account, adapter website.Adapter) (models.LoginState, error) {
	state, err := adapter.GetLoginState(ctx, acc)
	if err != nil {
		slog.Warn("login check failed", "account_id", acc.ID, "website", acc.Website, "error", err)
		return models.LoginState{LoggedIn: false, CheckedAt: d.now().UTC()}, &apperr.AccountNotReadyError{AccountID: acc.ID, Reason: err.Error()}
	}
	state.CheckedAt = d.now().UTC()
	if !state.LoggedIn {
		return state, &apperr.AccountNotReadyError{AccountID: acc.ID}
	}
	return state, nil
}

// CheckLogin refreshes the account's login state through the adapter and
// stores it. A failed check counts as logged out.
func (d *Directory) CheckLogin(ctx context.Context, acc *models.Account, adapter website.Adapter) (models.LoginState, error) {
	state, err := d.Ready(ctx, acc, adapter)
	if uerr := d.repo.UpdateLoginState(ctx, acc.ID, state); uerr != nil {
		slog.Warn("failed to store login state", "account_id", acc.ID, "error", uerr)
	}
	acc.LoginState = state
	return state, err
}

// RefreshAll re-checks every account whose website has an adapter and returns
// how many are logged in.
func (d *Directory) RefreshAll(ctx context.Context, registry *website.Registry) (int, error) {
	accounts, err := d.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	loggedIn := 0
	for _, acc := range accounts {
		adapter, err := registry.Get(acc.Website)
		if err != nil {
			slog.Debug("skipping account without adapter", "account_id", acc.ID, "website", acc.Website)
			continue
		}
		if _, err := d.CheckLogin(ctx, acc, adapter); err == nil {
			loggedIn++
		}
	}
	return loggedIn, nil
}
