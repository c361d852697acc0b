package models

import "time"

type LoginState struct {
	LoggedIn  bool      `db:"logged_in" json:"logged_in"`
	Username  string    `db:"login_username" json:"username,omitempty"`
	CheckedAt time.Time `db:"login_checked_at" json:"checked_at"`
}

type Account struct {
	ID             string     `db:"id" json:"id"`
	Website        string     `db:"website" json:"website"`
	Name           string     `db:"account_name" json:"name"`
	Username       string     `db:"account_username" json:"username"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time  `db:"token_expires_at" json:"token_expires_at"`
	LoginState     LoginState `db:"-" json:"login_state"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// AccountSnapshot is the copy of an account embedded in ledger events so the
// history stays readable after the account row is deleted.
type AccountSnapshot struct {
	ID       string `json:"id"`
	Website  string `json:"website"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

func (a *Account) Snapshot() *AccountSnapshot {
	return &AccountSnapshot{
		ID:       a.ID,
		Website:  a.Website,
		Name:     a.Name,
		Username: a.Username,
	}
}
