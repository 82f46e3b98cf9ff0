package core

import (
	"fmt"
	"strings"
	"time"
)

// ExpenseInput holds the raw fields of the expense form.
type ExpenseInput struct {
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// BillInput holds the raw fields of a bill submission.
type BillInput struct {
	Amount       string   `json:"amount"`
	Description  string   `json:"description"`
	DueDate      string   `json:"due_date"`
	Status       string   `json:"status"`
	Participants []string `json:"participants"`
	SplitType    string   `json:"split_type"`
	Date         string   `json:"date"`
}

// ValidExpense reports whether amount, category, description and date are
// present and the amount is a positive number.
func ValidExpense(in ExpenseInput) bool {
	return checkExpense(in) == nil
}

// ValidBill reports whether amount, description, due date and status are
// present and the amount is a positive number.
func ValidBill(in BillInput) bool {
	return checkBill(in) == nil
}

func checkExpense(in ExpenseInput) error {
	switch {
	case blank(in.Description):
		return ErrEmptyDescription
	case blank(in.Category):
		return ErrEmptyCategory
	case blank(in.Date):
		return ErrEmptyDate
	}
	_, err := positiveAmount(in.Amount)
	return err
}

func checkBill(in BillInput) error {
	switch {
	case blank(in.Description):
		return ErrEmptyDescription
	case blank(in.DueDate):
		return ErrEmptyDueDate
	case blank(in.Status):
		return ErrEmptyStatus
	}
	_, err := positiveAmount(in.Amount)
	return err
}

func positiveAmount(raw string) (float64, error) {
	v, err := ParseAmount(raw)
	if err != nil {
		return 0, err
	}
	if !positive(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// NewExpense validates in and builds the expense owned by owner.
func NewExpense(owner string, in ExpenseInput, now time.Time) (Expense, error) {
	if err := checkExpense(in); err != nil {
		return Expense{}, fmt.Errorf("new expense: %w", err)
	}
	amount, _ := positiveAmount(in.Amount)
	e := Expense{
		Owner:       strings.TrimSpace(owner),
		Description: strings.TrimSpace(in.Description),
		Amount:      amount,
		Category:    Category(strings.TrimSpace(in.Category)),
		Date:        strings.TrimSpace(in.Date),
		CreatedAt:   now.Truncate(time.Second),
	}
	if err := e.Validate(); err != nil {
		return Expense{}, fmt.Errorf("new expense: %w", err)
	}
	return e, nil
}

// NewBill validates in and builds the bill owned by owner. Equal splits
// get AmountPerPerson = total / len(participants); custom splits carry
// the type tag with no per-person amount.
func NewBill(owner string, in BillInput, now time.Time) (Bill, error) {
	if err := checkBill(in); err != nil {
		return Bill{}, fmt.Errorf("new bill: %w", err)
	}
	st, err := ParseSplitType(in.SplitType)
	if err != nil {
		return Bill{}, fmt.Errorf("new bill: %w: %w", ErrUnknownSplitType, err)
	}
	total, _ := positiveAmount(in.Amount)
	participants := make([]string, 0, len(in.Participants))
	for _, p := range in.Participants {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}
	b := Bill{
		Owner:        strings.TrimSpace(owner),
		Description:  strings.TrimSpace(in.Description),
		TotalAmount:  total,
		Participants: participants,
		SplitType:    st,
		Date:         strings.TrimSpace(in.Date),
		DueDate:      strings.TrimSpace(in.DueDate),
		Status:       BillStatus(strings.TrimSpace(in.Status)),
		CreatedAt:    now.Truncate(time.Second),
	}
	if st == Equal && len(participants) > 0 {
		b.AmountPerPerson = total / float64(len(participants))
	}
	if err := b.Validate(); err != nil {
		return Bill{}, fmt.Errorf("new bill: %w", err)
	}
	return b, nil
}
