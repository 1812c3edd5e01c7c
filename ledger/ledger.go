// Package ledger implements the budget-enforcing transaction ledger: batches
// of expense entries are normalized, deduplicated, checked against the user's
// history and monthly budget, and committed atomically or not at all.
package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxBatchSize is the number of entries one submission may carry.
const MaxBatchSize = 5

// Record is one persisted expense. Within a user's store the de facto natural
// key is (date, case-insensitive expense name).
type Record struct {
	Date        string `json:"date"`
	Expense     string `json:"expense"`
	AmountCents int64  `json:"amount_cents"`
}

// BatchEntry is one raw name/amount pair as submitted, before normalization.
type BatchEntry struct {
	Expense string `json:"expense"`
	Amount  string `json:"amount"`
}

var (
	ErrEmptyBatch     = errors.New("please enter at least one expense and amount")
	ErrBatchTooLarge  = errors.New("a batch can hold at most 5 entries")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidDate    = errors.New("invalid date, expected DD/MM/YYYY")
	ErrBudgetExceeded = errors.New("monthly budget exceeded")
	ErrMissingFields  = errors.New("existing expense name and date are required")
	ErrNotFound       = errors.New("no matching expense found for the given date")
)

// DuplicateError reports the first batch entry whose name already exists
// among the records stored for the same date.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("transaction %q already exists for this date", e.Name)
}

// MonthYear derives the "MM/YYYY" budget key from a DD/MM/YYYY date string by
// dropping the day field. It is a pure string function: grouping and budget
// checks key on this value, never on the full date.
func MonthYear(date string) string {
	parts := strings.SplitN(date, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ParseDate validates a DD/MM/YYYY string and returns its numeric parts.
// Fields must be zero-padded to their full width: grouping and budget checks
// compare derived "MM/YYYY" keys as strings, so "1/5/2024" and "01/05/2024"
// must never both reach the store.
func ParseDate(date string) (day, month, year int, err error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return 0, 0, 0, ErrInvalidDate
	}
	day, err = dateField(parts[0], 2)
	if err != nil || day < 1 || day > 31 {
		return 0, 0, 0, ErrInvalidDate
	}
	month, err = dateField(parts[1], 2)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, 0, ErrInvalidDate
	}
	year, err = dateField(parts[2], 4)
	if err != nil || year < 1 {
		return 0, 0, 0, ErrInvalidDate
	}
	return day, month, year, nil
}

func dateField(s string, width int) (int, error) {
	if len(s) != width {
		return 0, ErrInvalidDate
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidDate
		}
	}
	return strconv.Atoi(s)
}

// NormalizeBatch applies the pre-validation rules to a raw batch: names and
// amounts are trimmed, entries with an empty name or empty amount are
// discarded, amounts must parse as non-negative numbers, and entries sharing
// a case-insensitive name collapse to the last one supplied. The surviving
// records keep first-appearance order.
func NormalizeBatch(date string, entries []BatchEntry) ([]Record, error) {
	if len(entries) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	keyed := make(map[string]Record)
	var order []string

	for _, e := range entries {
		name := strings.TrimSpace(e.Expense)
		amount := strings.TrimSpace(e.Amount)
		if name == "" || amount == "" {
			continue
		}

		cents, err := ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, e.Amount)
		}

		key := strings.ToLower(name)
		if _, seen := keyed[key]; !seen {
			order = append(order, key)
		}
		keyed[key] = Record{
			Date:        date,
			Expense:     name,
			AmountCents: cents,
		}
	}

	records := make([]Record, 0, len(order))
	for _, key := range order {
		records = append(records, keyed[key])
	}
	return records, nil
}

// BatchTotal sums the amounts of a normalized batch.
func BatchTotal(records []Record) int64 {
	var total int64
	for _, r := range records {
		total += r.AmountCents
	}
	return total
}

// ParseAmount converts a decimal string to cents. It accepts dot or comma as
// the decimal separator and half-up rounds the third decimal place. Zero is
// valid; signs are not.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	// Take the first two fractional digits, half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	return iv*100 + fracCents, nil
}
