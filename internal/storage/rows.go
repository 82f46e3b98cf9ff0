package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// Column layouts of the tabular backends (CSV files and spreadsheet tabs).
var (
	UserHeader    = []string{"username", "password_hash", "email"}
	ExpenseHeader = []string{"username", "description", "amount", "category", "date", "created_at"}
	BillHeader    = []string{
		"username", "description", "total_amount", "participants", "split_type",
		"amount_per_person", "date", "created_at", "due_date", "status",
	}
)

// legacyBillColumns is the bill row width before due_date and status.
const legacyBillColumns = 8

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// FormatTimestamp renders a created_at value in server-local time.
func FormatTimestamp(t time.Time) string { return t.In(time.Local).Format(core.TimestampLayout) }

// ParseTimestamp reads a created_at value. Blank is the zero time;
// RFC 3339 values from older JSON documents are accepted too.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(core.TimestampLayout, s, time.Local)
	if err == nil {
		return t, nil
	}
	if t, rfcErr := time.Parse(time.RFC3339Nano, s); rfcErr == nil {
		return t, nil
	}
	return time.Time{}, err
}

func UserRow(u core.User) []string {
	return []string{u.Username, u.PasswordHash, u.Email}
}

func ParseUserRow(row []string) (core.User, error) {
	if len(row) < len(UserHeader) {
		return core.User{}, fmt.Errorf("user row has %d columns, want %d", len(row), len(UserHeader))
	}
	return core.User{Username: row[0], PasswordHash: row[1], Email: row[2]}, nil
}

func ExpenseRow(e core.Expense) []string {
	return []string{
		e.Owner, e.Description, formatFloat(e.Amount), string(e.Category), e.Date, FormatTimestamp(e.CreatedAt),
	}
}

func ParseExpenseRow(row []string) (core.Expense, error) {
	if len(row) < len(ExpenseHeader) {
		return core.Expense{}, fmt.Errorf("expense row has %d columns, want %d", len(row), len(ExpenseHeader))
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", row[2], err)
	}
	created, err := ParseTimestamp(row[5])
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at %q: %w", row[5], err)
	}
	return core.Expense{
		Owner:       row[0],
		Description: row[1],
		Amount:      amount,
		Category:    core.Category(row[3]),
		Date:        row[4],
		CreatedAt:   created,
	}, nil
}

func BillRow(b core.Bill) []string {
	return []string{
		b.Owner, b.Description, formatFloat(b.TotalAmount), strings.Join(b.Participants, ","),
		string(b.SplitType), formatFloat(b.AmountPerPerson), b.Date, FormatTimestamp(b.CreatedAt),
		b.DueDate, string(b.Status),
	}
}

// ParseBillRow decodes a bill row. Rows written before due_date and status
// existed default to DueDate = Date and Status = open; split types are
// matched case-insensitively ("Equal" from the entry form).
func ParseBillRow(row []string) (core.Bill, error) {
	if len(row) < legacyBillColumns {
		return core.Bill{}, fmt.Errorf("bill row has %d columns, want %d", len(row), len(BillHeader))
	}
	total, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse total_amount %q: %w", row[2], err)
	}
	per, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse amount_per_person %q: %w", row[5], err)
	}
	split, err := core.ParseSplitType(row[4])
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse split_type: %w", err)
	}
	created, err := ParseTimestamp(row[7])
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse created_at %q: %w", row[7], err)
	}
	b := core.Bill{
		Owner:           row[0],
		Description:     row[1],
		TotalAmount:     total,
		Participants:    splitParticipants(row[3]),
		SplitType:       split,
		AmountPerPerson: per,
		Date:            row[6],
		CreatedAt:       created,
		DueDate:         row[6],
		Status:          core.StatusOpen,
	}
	if len(row) > 8 && row[8] != "" {
		b.DueDate = row[8]
	}
	if len(row) > 9 && row[9] != "" {
		b.Status = core.BillStatus(row[9])
	}
	return b, nil
}

func splitParticipants(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
