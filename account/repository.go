package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyUsername     = errors.New("username field cannot be empty")
	ErrWeakPassword      = errors.New("password must be at least 8 characters")
	ErrDuplicateUsername = errors.New("username already exists")

	// Combined outcomes get their own errors so the caller can surface a
	// single message covering both failures at once.
	ErrDuplicateAndWeakPassword     = errors.New("username already exists and password must be at least 8 characters")
	ErrEmptyUsernameAndWeakPassword = errors.New("username field cannot be empty and password must be at least 8 characters")

	ErrInvalidCredentials = errors.New("invalid login credentials")
)

const minPasswordLength = 8

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

// Register validates the supplied credentials and appends a new account.
// Check order matters: a duplicate username combined with a weak password is
// reported as one combined failure, as is an empty username with an empty
// password; after that the checks run empty-username, duplicate, weak-password.
func (r *repository) Register(ctx context.Context, username, password string) (*Account, error) {
	existing, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	switch {
	case existing != nil && len(password) < minPasswordLength:
		return nil, ErrDuplicateAndWeakPassword
	case username == "" && password == "":
		return nil, ErrEmptyUsernameAndWeakPassword
	case username == "":
		return nil, ErrEmptyUsername
	case existing != nil:
		return nil, ErrDuplicateUsername
	case len(password) < minPasswordLength:
		return nil, ErrWeakPassword
	}

	acct := &Account{
		Username:  username,
		Password:  password,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO accounts (username, password, created_at) VALUES (?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, acct.Username, acct.Password, acct.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	return acct, nil
}

// Login succeeds only when the username exists and the stored password equals
// the supplied one. Unknown user and wrong password share one error so the
// response never confirms which usernames are taken.
func (r *repository) Login(ctx context.Context, username, password string) (*Account, error) {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Password != password {
		return nil, ErrInvalidCredentials
	}
	return acct, nil
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT username, password, created_at FROM accounts WHERE username = ?`

	var acct Account
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&acct.Username,
		&acct.Password,
		&acct.CreatedAt,
	)
	if err != nil && err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	return &acct, nil
}
