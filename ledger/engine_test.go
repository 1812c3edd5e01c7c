package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/billbatista/finance-tracker/store"
)

const testBudget int64 = 10000 * 100

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	stores := store.NewManager(t.TempDir())
	t.Cleanup(func() { stores.Close() })
	return NewEngine(NewRepository(stores))
}

func TestSubmitBatchCommits(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	records, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "Lunch", Amount: "12.50"},
		{Expense: "Taxi", Amount: "30"},
	}, testBudget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 committed records, got %d", len(records))
	}

	if got := engine.MonthlyTotal(ctx, "alice", "05/2024"); got != 4250 {
		t.Fatalf("monthly total = %d, want 4250", got)
	}

	day := engine.RecordsForDate(ctx, "alice", "01/05/2024")
	if len(day.Records) != 2 || day.TotalCents != 4250 {
		t.Fatalf("unexpected day report: %+v", day)
	}
}

func TestSubmitBatchBudgetExceeded(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	// budget=100, existing=80, batch sums to 30: rejected, total unchanged.
	budget := int64(100 * 100)
	if _, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "Groceries", Amount: "80"},
	}, budget); err != nil {
		t.Fatalf("seeding batch failed: %v", err)
	}

	_, err := engine.SubmitBatch(ctx, "alice", "02/05/2024", []BatchEntry{
		{Expense: "Dinner", Amount: "20"},
		{Expense: "Bus", Amount: "10"},
	}, budget)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	if got := engine.MonthlyTotal(ctx, "alice", "05/2024"); got != 8000 {
		t.Fatalf("monthly total = %d, want 8000 (nothing committed)", got)
	}
}

func TestSubmitBatchBudgetScopedToMonth(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	budget := int64(100 * 100)
	if _, err := engine.SubmitBatch(ctx, "alice", "30/04/2024", []BatchEntry{
		{Expense: "Rent", Amount: "90"},
	}, budget); err != nil {
		t.Fatalf("seeding batch failed: %v", err)
	}

	// April's spending must not count against May.
	if _, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "Groceries", Amount: "90"},
	}, budget); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmitBatchDuplicateForDateRejectsWholesale(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	if _, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "Lunch", Amount: "10"},
	}, testBudget); err != nil {
		t.Fatalf("seeding batch failed: %v", err)
	}

	_, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "lunch", Amount: "5"},
		{Expense: "Taxi", Amount: "7"},
	}, testBudget)

	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Name != "lunch" {
		t.Fatalf("duplicate name = %q, want %q", dup.Name, "lunch")
	}

	// The novel entry must not have landed either.
	day := engine.RecordsForDate(ctx, "alice", "01/05/2024")
	if len(day.Records) != 1 {
		t.Fatalf("expected 1 record after rejection, got %d", len(day.Records))
	}
}

func TestSubmitBatchSameNameOtherDateAllowed(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	for _, date := range []string{"01/05/2024", "02/05/2024"} {
		if _, err := engine.SubmitBatch(ctx, "alice", date, []BatchEntry{
			{Expense: "Lunch", Amount: "10"},
		}, testBudget); err != nil {
			t.Fatalf("submit on %s failed: %v", date, err)
		}
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	t.Run("empty batch", func(t *testing.T) {
		_, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
			{Expense: "Lunch", Amount: ""},
			{Expense: "", Amount: "5"},
		}, testBudget)
		if !errors.Is(err, ErrEmptyBatch) {
			t.Fatalf("expected ErrEmptyBatch, got %v", err)
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
			{Expense: "Lunch", Amount: "ten"},
		}, testBudget)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := engine.SubmitBatch(ctx, "alice", "2024-05-01", []BatchEntry{
			{Expense: "Lunch", Amount: "10"},
		}, testBudget)
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate, got %v", err)
		}
	})
}

func TestSubmitBatchRejectsUnpaddedDate(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	// An accepted "1/5/2024" would file spending under month key "5/2024",
	// invisible to the "05/2024" running total and hence to the budget check.
	budget := int64(100 * 100)
	_, err := engine.SubmitBatch(ctx, "alice", "1/5/2024", []BatchEntry{
		{Expense: "Rent", Amount: "90"},
	}, budget)
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if got := engine.MonthlyTotal(ctx, "alice", "05/2024"); got != 0 {
		t.Fatalf("monthly total = %d, want 0 (nothing committed)", got)
	}

	// With the malformed date out, May's budget accounting holds.
	if _, err := engine.SubmitBatch(ctx, "alice", "02/05/2024", []BatchEntry{
		{Expense: "Groceries", Amount: "90"},
	}, budget); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.SubmitBatch(ctx, "alice", "03/05/2024", []BatchEntry{
		{Expense: "Dinner", Amount: "90"},
	}, budget); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestUpdateEntry(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	if _, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "Lunch", Amount: "10"},
	}, testBudget); err != nil {
		t.Fatalf("seeding batch failed: %v", err)
	}

	t.Run("renames and reprices", func(t *testing.T) {
		rec, err := engine.UpdateEntry(ctx, "alice", Update{
			OldExpense: "lunch",
			NewExpense: "Team Lunch",
			NewAmount:  "15.25",
			Date:       "01/05/2024",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Expense != "Team Lunch" || rec.AmountCents != 1525 || rec.Date != "01/05/2024" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	t.Run("idempotent when re-applied", func(t *testing.T) {
		u := Update{OldExpense: "Team Lunch", NewExpense: "Team Lunch", NewAmount: "15.25", Date: "01/05/2024"}
		first, err := engine.UpdateEntry(ctx, "alice", u)
		if err != nil {
			t.Fatalf("first apply failed: %v", err)
		}
		second, err := engine.UpdateEntry(ctx, "alice", u)
		if err != nil {
			t.Fatalf("second apply failed: %v", err)
		}
		if first != second {
			t.Fatalf("updates differ: %+v vs %+v", first, second)
		}
	})

	t.Run("keeps amount when unset and falls back to old name", func(t *testing.T) {
		rec, err := engine.UpdateEntry(ctx, "alice", Update{
			OldExpense: "team lunch",
			Date:       "01/05/2024",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Expense != "team lunch" || rec.AmountCents != 1525 {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := engine.UpdateEntry(ctx, "alice", Update{OldExpense: "x"})
		if !errors.Is(err, ErrMissingFields) {
			t.Fatalf("expected ErrMissingFields, got %v", err)
		}
		_, err = engine.UpdateEntry(ctx, "alice", Update{Date: "01/05/2024"})
		if !errors.Is(err, ErrMissingFields) {
			t.Fatalf("expected ErrMissingFields, got %v", err)
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := engine.UpdateEntry(ctx, "alice", Update{
			OldExpense: "team lunch",
			NewAmount:  "abc",
			Date:       "01/05/2024",
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		// A malformed date is a validation error, not a failed lookup.
		_, err := engine.UpdateEntry(ctx, "alice", Update{
			OldExpense: "team lunch",
			Date:       "1/5/2024",
		})
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate, got %v", err)
		}
	})

	t.Run("no match", func(t *testing.T) {
		_, err := engine.UpdateEntry(ctx, "alice", Update{
			OldExpense: "does not exist",
			Date:       "01/05/2024",
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := engine.UpdateEntry(ctx, "nobody", Update{
			OldExpense: "Lunch",
			Date:       "01/05/2024",
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMonthlyTotalAbsentUser(t *testing.T) {
	engine := newTestEngine(t)
	if got := engine.MonthlyTotal(context.Background(), "nobody", "05/2024"); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestRecordsForDateAbsentUser(t *testing.T) {
	engine := newTestEngine(t)
	day := engine.RecordsForDate(context.Background(), "nobody", "01/05/2024")
	if len(day.Records) != 0 || day.TotalCents != 0 {
		t.Fatalf("expected empty report, got %+v", day)
	}
}

func TestRecordsForMonthOrdersByCalendar(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	// Stored out of calendar order on purpose.
	for _, b := range []struct {
		date    string
		expense string
		amount  string
	}{
		{"15/07/2024", "Cinema", "20"},
		{"02/07/2024", "Groceries", "45.50"},
		{"02/07/2024", "Bus", "2.50"},
		{"01/08/2024", "Rent", "900"},
	} {
		if _, err := engine.SubmitBatch(ctx, "alice", b.date, []BatchEntry{
			{Expense: b.expense, Amount: b.amount},
		}, testBudget); err != nil {
			t.Fatalf("submit %s failed: %v", b.date, err)
		}
	}

	report := engine.RecordsForMonth(ctx, "alice", "07/2024")
	if len(report.Days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(report.Days))
	}
	if report.Days[0].Date != "02/07/2024" || report.Days[1].Date != "15/07/2024" {
		t.Fatalf("days out of order: %s, %s", report.Days[0].Date, report.Days[1].Date)
	}
	if report.Days[0].TotalCents != 4800 {
		t.Fatalf("day subtotal = %d, want 4800", report.Days[0].TotalCents)
	}
	if report.TotalCents != 6800 {
		t.Fatalf("grand total = %d, want 6800", report.TotalCents)
	}
}

func TestRecordsForMonthAbsentUser(t *testing.T) {
	engine := newTestEngine(t)
	report := engine.RecordsForMonth(context.Background(), "nobody", "07/2024")
	if len(report.Days) != 0 || report.TotalCents != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestUsersDoNotShareStores(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	if _, err := engine.SubmitBatch(ctx, "alice", "01/05/2024", []BatchEntry{
		{Expense: "Lunch", Amount: "10"},
	}, testBudget); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same name, same date, different user: no collision.
	if _, err := engine.SubmitBatch(ctx, "bob", "01/05/2024", []BatchEntry{
		{Expense: "Lunch", Amount: "10"},
	}, testBudget); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := engine.MonthlyTotal(ctx, "bob", "05/2024"); got != 1000 {
		t.Fatalf("bob's total = %d, want 1000", got)
	}
}
