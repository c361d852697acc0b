package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	UpdateLoginState(ctx context.Context, id string, state models.LoginState) error
	SetToken(ctx context.Context, id string, oldAccessToken string, acc *models.Account) error
}

const accountColumns = `id, website, account_name, account_username, access_token, refresh_token,
	token_expires_at, logged_in, login_username, login_checked_at, created_at, updated_at`

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var expires, checked sql.NullTime
	err := row.Scan(&a.ID, &a.Website, &a.Name, &a.Username, &a.AccessToken, &a.RefreshToken,
		&expires, &a.LoginState.LoggedIn, &a.LoginState.Username, &checked, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.TokenExpiresAt = expires.Time
	a.LoginState.CheckedAt = checked.Time
	return &a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, fmt.Errorf("query account: %w", err)
	}

	return acc, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY website, account_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) UpdateLoginState(ctx context.Context, id string, state models.LoginState) error {
	query := `
		UPDATE accounts
		SET logged_in = $1,
			login_username = $2,
			login_checked_at = $3,
			updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, state.LoggedIn, state.Username, state.CheckedAt, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetToken swaps the stored tokens only if the access token has not changed
// since it was read, so two concurrent refreshes cannot clobber each other.
func (r *accountRepository) SetToken(ctx context.Context, id string, oldAccessToken string, acc *models.Account) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2;
	`
	result, err := tx.ExecContext(ctx, query, id, oldAccessToken, acc.AccessToken, acc.RefreshToken, acc.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return fmt.Errorf("set token for account %s: token changed concurrently", id)
	}

	return tx.Commit()
}
