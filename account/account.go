package account

import (
	"context"
	"time"
)

type Account struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Register(ctx context.Context, username, password string) (*Account, error)
	Login(ctx context.Context, username, password string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
}
