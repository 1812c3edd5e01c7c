// Package settings holds the per-user budget singleton: at most one persisted
// budget row per user store, replaced wholesale on change.
package settings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/billbatista/finance-tracker/store"
)

// DefaultBudgetCents is the budget a new user starts with (10000, in cents).
const DefaultBudgetCents int64 = 10000 * 100

type Store struct {
	stores *store.Manager
}

func NewStore(stores *store.Manager) *Store {
	return &Store{stores: stores}
}

// Budget returns the user's monthly budget in cents. On first access the
// default is written through so exactly one settings row exists afterwards.
func (s *Store) Budget(ctx context.Context, username string) (int64, error) {
	us, err := s.stores.Open(username)
	if err != nil {
		return 0, err
	}
	us.Lock()
	defer us.Unlock()

	var cents int64
	err = us.DB().QueryRowContext(ctx, `SELECT budget_cents FROM settings WHERE id = 1`).Scan(&cents)
	if err == sql.ErrNoRows {
		query := `INSERT INTO settings (id, budget_cents) VALUES (1, ?)`
		if _, err := us.DB().ExecContext(ctx, query, DefaultBudgetCents); err != nil {
			return 0, fmt.Errorf("persisting default budget: %w", err)
		}
		return DefaultBudgetCents, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying budget: %w", err)
	}

	return cents, nil
}

// SetBudget atomically replaces the budget singleton.
func (s *Store) SetBudget(ctx context.Context, username string, cents int64) error {
	us, err := s.stores.Open(username)
	if err != nil {
		return err
	}
	us.Lock()
	defer us.Unlock()

	query := `
        INSERT INTO settings (id, budget_cents) VALUES (1, ?)
        ON CONFLICT (id) DO UPDATE SET budget_cents = excluded.budget_cents
    `
	if _, err := us.DB().ExecContext(ctx, query, cents); err != nil {
		return fmt.Errorf("replacing budget: %w", err)
	}
	return nil
}
