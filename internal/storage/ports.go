// Package storage defines the persistence ports shared by every backend
// and the file helpers used by the flat-file adapters.
package storage

import (
	"context"
	"fmt"

	"conti/internal/core"
)

// UserRepository persists registered users. AppendUser must reject an
// existing username with core.ErrDuplicateUser.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]core.User, error)
	AppendUser(ctx context.Context, u core.User) error
}

// ExpenseRepository persists expenses. An empty owner lists every owner.
type ExpenseRepository interface {
	ListExpenses(ctx context.Context, owner string) ([]core.Expense, error)
	AppendExpense(ctx context.Context, e core.Expense) error
}

// BillRepository persists bills. An empty owner lists every owner.
type BillRepository interface {
	ListBills(ctx context.Context, owner string) ([]core.Bill, error)
	AppendBill(ctx context.Context, b core.Bill) error
}

// Backend is a complete persistence adapter.
type Backend interface {
	UserRepository
	ExpenseRepository
	BillRepository
	Close() error
}

// Failure wraps err as a core.ErrStorageFailure for operation op.
func Failure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrStorageFailure, err)
}
