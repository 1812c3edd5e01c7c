package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/billbatista/finance-tracker/store"
)

// Repository is the record store: append-only rows in the owning user's
// database file, queried and grouped explicitly by the engine.
type Repository struct {
	stores *store.Manager
}

func NewRepository(stores *store.Manager) *Repository {
	return &Repository{stores: stores}
}

// OpenStore returns the user's store, creating it on first use.
func (r *Repository) OpenStore(username string) (*store.UserStore, error) {
	return r.stores.Open(username)
}

// LookupStore returns the user's store only if it already exists.
func (r *Repository) LookupStore(username string) (*store.UserStore, bool) {
	return r.stores.Lookup(username)
}

func (r *Repository) RecordsForDate(ctx context.Context, s *store.UserStore, date string) ([]Record, error) {
	query := `SELECT date, expense, amount_cents FROM transactions WHERE date = ? ORDER BY id`

	rows, err := s.DB().QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("querying records for date: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *Repository) AllRecords(ctx context.Context, s *store.UserStore) ([]Record, error) {
	query := `SELECT date, expense, amount_cents FROM transactions ORDER BY id`

	rows, err := s.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// AppendRecords inserts the whole batch in one transaction so a batch either
// lands completely or not at all.
func (r *Repository) AppendRecords(ctx context.Context, s *store.UserStore, records []Record) error {
	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO transactions (date, expense, amount_cents) VALUES (?, ?, ?)`
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query, rec.Date, rec.Expense, rec.AmountCents); err != nil {
			return fmt.Errorf("inserting record: %w", err)
		}
	}

	return tx.Commit()
}

// FindFirstMatch locates the lowest-id record whose name case-insensitively
// equals name and whose date exactly equals date. The natural key should make
// this unique in normal operation; on a pre-existing tie the first match wins.
func (r *Repository) FindFirstMatch(ctx context.Context, s *store.UserStore, name, date string) (int64, bool, error) {
	query := `SELECT id, expense FROM transactions WHERE date = ? ORDER BY id`

	rows, err := s.DB().QueryContext(ctx, query, date)
	if err != nil {
		return 0, false, fmt.Errorf("querying records for update: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var expense string
		if err := rows.Scan(&id, &expense); err != nil {
			return 0, false, err
		}
		if strings.EqualFold(expense, name) {
			return id, true, nil
		}
	}

	return 0, false, rows.Err()
}

// UpdateRecord replaces the name (and, when supplied, the amount) of one row.
func (r *Repository) UpdateRecord(ctx context.Context, s *store.UserStore, id int64, name string, amountCents int64, haveAmount bool) error {
	if haveAmount {
		query := `UPDATE transactions SET expense = ?, amount_cents = ? WHERE id = ?`
		_, err := s.DB().ExecContext(ctx, query, name, amountCents, id)
		return err
	}

	query := `UPDATE transactions SET expense = ? WHERE id = ?`
	_, err := s.DB().ExecContext(ctx, query, name, id)
	return err
}

// RecordByID reads back a single row, for returning the updated entry.
func (r *Repository) RecordByID(ctx context.Context, s *store.UserStore, id int64) (Record, error) {
	query := `SELECT date, expense, amount_cents FROM transactions WHERE id = ?`

	var rec Record
	err := s.DB().QueryRowContext(ctx, query, id).Scan(&rec.Date, &rec.Expense, &rec.AmountCents)
	if err != nil {
		return Record{}, fmt.Errorf("querying record by id: %w", err)
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Date, &rec.Expense, &rec.AmountCents); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
