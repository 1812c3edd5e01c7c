package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/billbatista/finance-tracker/store"
)

// Engine runs the validate/commit protocol over the record store. Every
// check-then-write sequence holds the owning user store's lock so the
// duplicate check, budget check and commit act as one critical section.
type Engine struct {
	repo *Repository
}

func NewEngine(repo *Repository) *Engine {
	return &Engine{repo: repo}
}

// DayReport lists a user's records for one date with their total.
type DayReport struct {
	Date       string   `json:"date"`
	Records    []Record `json:"records"`
	TotalCents int64    `json:"total_cents"`
}

// MonthReport groups a month's records by date in calendar order, with
// per-date subtotals and a grand total.
type MonthReport struct {
	MonthYear  string      `json:"month_year"`
	Days       []DayReport `json:"days"`
	TotalCents int64       `json:"total_cents"`
}

// Update describes an update-by-natural-key request. NewExpense and NewAmount
// are optional: an empty new name falls back to the old one, an empty amount
// leaves the stored amount untouched.
type Update struct {
	OldExpense string `json:"old_expense"`
	NewExpense string `json:"new_expense"`
	NewAmount  string `json:"new_amount"`
	Date       string `json:"date"`
}

// SubmitBatch validates and conditionally commits a batch of entries dated
// date against budgetCents. Either every surviving entry is appended or none
// is: amount parse errors, same-date name collisions and a blown budget all
// reject the batch wholesale. Returns the committed records.
func (e *Engine) SubmitBatch(ctx context.Context, username, date string, entries []BatchEntry, budgetCents int64) ([]Record, error) {
	if _, _, _, err := ParseDate(date); err != nil {
		return nil, err
	}

	batch, err := NormalizeBatch(date, entries)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	s, err := e.repo.OpenStore(username)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()

	existing, err := e.repo.RecordsForDate(ctx, s, date)
	if err != nil {
		return nil, err
	}
	for _, rec := range batch {
		for _, old := range existing {
			if strings.EqualFold(rec.Expense, old.Expense) {
				return nil, &DuplicateError{Name: rec.Expense}
			}
		}
	}

	existingTotal, err := e.monthTotal(ctx, s, MonthYear(date))
	if err != nil {
		return nil, err
	}
	if existingTotal+BatchTotal(batch) > budgetCents {
		return nil, ErrBudgetExceeded
	}

	if err := e.repo.AppendRecords(ctx, s, batch); err != nil {
		return nil, err
	}

	return batch, nil
}

// UpdateEntry rewrites the record matching (old name, date) with the supplied
// values and returns the stored result. Re-applying the same update is a
// no-op on the stored record.
func (e *Engine) UpdateEntry(ctx context.Context, username string, u Update) (Record, error) {
	oldName := strings.TrimSpace(u.OldExpense)
	date := strings.TrimSpace(u.Date)
	if oldName == "" || date == "" {
		return Record{}, ErrMissingFields
	}
	if _, _, _, err := ParseDate(date); err != nil {
		return Record{}, err
	}

	newName := strings.TrimSpace(u.NewExpense)
	if newName == "" {
		newName = oldName
	}

	var amountCents int64
	haveAmount := false
	if amount := strings.TrimSpace(u.NewAmount); amount != "" {
		var err error
		amountCents, err = ParseAmount(amount)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %q", ErrInvalidAmount, u.NewAmount)
		}
		haveAmount = true
	}

	s, ok := e.repo.LookupStore(username)
	if !ok {
		return Record{}, ErrNotFound
	}
	s.Lock()
	defer s.Unlock()

	id, found, err := e.repo.FindFirstMatch(ctx, s, oldName, date)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, ErrNotFound
	}

	if err := e.repo.UpdateRecord(ctx, s, id, newName, amountCents, haveAmount); err != nil {
		return Record{}, fmt.Errorf("updating record: %w", err)
	}

	return e.repo.RecordByID(ctx, s, id)
}

// MonthlyTotal sums the user's amounts whose derived month/year equals
// monthYear. Any lookup failure, including an absent user store, yields 0.
func (e *Engine) MonthlyTotal(ctx context.Context, username, monthYear string) int64 {
	s, ok := e.repo.LookupStore(username)
	if !ok {
		return 0
	}

	total, err := e.monthTotal(ctx, s, monthYear)
	if err != nil {
		slog.Error("monthly total failed", "username", username, "month_year", monthYear, "error", err)
		return 0
	}
	return total
}

// RecordsForDate reports the user's records dated exactly date. A missing or
// unreadable store degrades to an empty report.
func (e *Engine) RecordsForDate(ctx context.Context, username, date string) DayReport {
	report := DayReport{Date: date, Records: []Record{}}

	s, ok := e.repo.LookupStore(username)
	if !ok {
		return report
	}

	records, err := e.repo.RecordsForDate(ctx, s, date)
	if err != nil {
		slog.Error("records for date failed", "username", username, "date", date, "error", err)
		return report
	}

	for _, rec := range records {
		report.Records = append(report.Records, rec)
		report.TotalCents += rec.AmountCents
	}
	return report
}

// RecordsForMonth reports the user's records for monthYear grouped by date in
// calendar order. A missing or unreadable store degrades to an empty report.
func (e *Engine) RecordsForMonth(ctx context.Context, username, monthYear string) MonthReport {
	report := MonthReport{MonthYear: monthYear, Days: []DayReport{}}

	s, ok := e.repo.LookupStore(username)
	if !ok {
		return report
	}

	all, err := e.repo.AllRecords(ctx, s)
	if err != nil {
		slog.Error("records for month failed", "username", username, "month_year", monthYear, "error", err)
		return report
	}

	byDate := make(map[string][]Record)
	for _, rec := range all {
		if MonthYear(rec.Date) != monthYear {
			continue
		}
		byDate[rec.Date] = append(byDate[rec.Date], rec)
		report.TotalCents += rec.AmountCents
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dateLess(dates[i], dates[j])
	})

	for _, date := range dates {
		day := DayReport{Date: date, Records: byDate[date]}
		for _, rec := range byDate[date] {
			day.TotalCents += rec.AmountCents
		}
		report.Days = append(report.Days, day)
	}
	return report
}

func (e *Engine) monthTotal(ctx context.Context, s *store.UserStore, monthYear string) (int64, error) {
	all, err := e.repo.AllRecords(ctx, s)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, rec := range all {
		if MonthYear(rec.Date) == monthYear {
			total += rec.AmountCents
		}
	}
	return total, nil
}

// dateLess orders DD/MM/YYYY strings by calendar position, numerically rather
// than lexicographically. Unparseable dates sort last by raw string.
func dateLess(a, b string) bool {
	da, ma, ya, errA := ParseDate(a)
	db, mb, yb, errB := ParseDate(b)
	if errA != nil || errB != nil {
		if (errA != nil) != (errB != nil) {
			return errB != nil
		}
		return a < b
	}
	if ya != yb {
		return ya < yb
	}
	if ma != mb {
		return ma < mb
	}
	return da < db
}
