package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	Equal  SplitType = "equal"
	Custom SplitType = "custom"

	StatusOpen BillStatus = "open"
	StatusPaid BillStatus = "paid"
)

const (
	// DateLayout is the layout of record dates as entered by users.
	DateLayout = "2006-01-02"
	// TimestampLayout is the layout of created_at columns.
	TimestampLayout = "2006-01-02 15:04:05"
)

type (
	SplitType  string
	BillStatus string
	Category   string

	User struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
		Email        string `json:"email"`
	}

	// UserInfo is the public view of a User.
	UserInfo struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}

	Expense struct {
		Owner       string    `json:"username"`
		Description string    `json:"description"`
		Amount      float64   `json:"amount"`
		Category    Category  `json:"category"`
		Date        string    `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Bill struct {
		Owner           string     `json:"username"`
		Description     string     `json:"description"`
		TotalAmount     float64    `json:"total_amount"`
		Participants    []string   `json:"participants"`
		SplitType       SplitType  `json:"split_type"`
		AmountPerPerson float64    `json:"amount_per_person"`
		Date            string     `json:"date"`
		DueDate         string     `json:"due_date"`
		Status          BillStatus `json:"status"`
		CreatedAt       time.Time  `json:"created_at"`
	}
)

// Error kinds shared by every layer. Callers match them with errors.Is.
var (
	ErrInvalidRecord  = errors.New("invalid record")
	ErrDuplicateUser  = errors.New("username already exists")
	ErrAuthFailure    = errors.New("invalid username or password")
	ErrInvalidInput   = errors.New("invalid input")
	ErrStorageFailure = errors.New("storage failure")
	ErrNotSupported   = errors.New("not yet supported")
)

var (
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be a positive number", ErrInvalidRecord)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrInvalidRecord)
	ErrEmptyCategory    = fmt.Errorf("%w: empty category", ErrInvalidRecord)
	ErrEmptyDate        = fmt.Errorf("%w: empty date", ErrInvalidRecord)
	ErrEmptyDueDate     = fmt.Errorf("%w: empty due date", ErrInvalidRecord)
	ErrEmptyStatus      = fmt.Errorf("%w: empty status", ErrInvalidRecord)
	ErrEmptyOwner       = fmt.Errorf("%w: empty owner", ErrInvalidRecord)
	ErrNoParticipants   = fmt.Errorf("%w: no participants", ErrInvalidRecord)
	ErrUnevenEqualSplit = fmt.Errorf("%w: per-person amount does not add up to total", ErrInvalidRecord)
	ErrUnknownSplitType = fmt.Errorf("%w: unknown split type", ErrInvalidRecord)
)

// Categories lists the fixed expense categories offered by the entry form.
var Categories = []Category{
	"Food", "Transportation", "Housing", "Utilities",
	"Entertainment", "Shopping", "Healthcare", "Other",
}

// Known reports whether c is one of the fixed Categories.
func (c Category) Known() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseSplitType maps form values like "Equal" or "custom" to a SplitType.
func ParseSplitType(s string) (SplitType, error) {
	switch SplitType(strings.ToLower(strings.TrimSpace(s))) {
	case Equal, "":
		return Equal, nil
	case Custom:
		return Custom, nil
	default:
		return "", fmt.Errorf("%w: unknown split type %q", ErrInvalidInput, s)
	}
}

// UnmarshalText normalizes the casing of decoded split types. Unknown
// values are kept as written and rejected later by Validate.
func (t *SplitType) UnmarshalText(b []byte) error {
	st, err := ParseSplitType(string(b))
	if err != nil {
		st = SplitType(b)
	}
	*t = st
	return nil
}

// Info returns the public fields of u.
func (u User) Info() UserInfo {
	return UserInfo{Username: u.Username, Email: u.Email}
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if !positive(e.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(string(e.Category)) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(e.Date) == "" {
		return ErrEmptyDate
	}
	return nil
}

// Value is the amount summed by ledger totals.
func (e Expense) Value() float64 { return e.Amount }

// Field exposes the filterable columns of an expense.
func (e Expense) Field(name string) (string, bool) {
	switch name {
	case "username", "owner":
		return e.Owner, true
	case "description":
		return e.Description, true
	case "category":
		return string(e.Category), true
	case "date":
		return e.Date, true
	default:
		return "", false
	}
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(b.Description) == "" {
		return ErrEmptyDescription
	}
	if !positive(b.TotalAmount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(b.DueDate) == "" {
		return ErrEmptyDueDate
	}
	if strings.TrimSpace(string(b.Status)) == "" {
		return ErrEmptyStatus
	}
	if len(b.Participants) == 0 {
		return ErrNoParticipants
	}
	switch b.SplitType {
	case Equal:
		if !nearlyEqual(b.AmountPerPerson*float64(len(b.Participants)), b.TotalAmount) {
			return ErrUnevenEqualSplit
		}
	case Custom:
	default:
		return ErrUnknownSplitType
	}
	return nil
}

// Value is the amount summed by ledger totals.
func (b Bill) Value() float64 { return b.TotalAmount }

// Field exposes the filterable columns of a bill.
func (b Bill) Field(name string) (string, bool) {
	switch name {
	case "username", "owner":
		return b.Owner, true
	case "description":
		return b.Description, true
	case "status":
		return string(b.Status), true
	case "due_date":
		return b.DueDate, true
	case "date":
		return b.Date, true
	case "split_type":
		return string(b.SplitType), true
	default:
		return "", false
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}

func nearlyEqual(a, b float64) bool {
	const tolerance = 1e-9
	diff := math.Abs(a - b)
	return diff <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
