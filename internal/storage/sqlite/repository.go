// Package sqlite is the transactional backend on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"conti/internal/core"
	"conti/internal/storage"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Backend = (*Repository)(nil)

func NewRepository(dbPath string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, storage.Failure("create db directory", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, storage.Failure("open sqlite database", err)
	}
	// One writer at a time; transactions queue on the pool instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storage.Failure("ping database", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, storage.Failure("migrate", err)
	}

	return &Repository{db: db, logger: logger.With("store", "sqlite")}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// inTx runs fn inside a transaction, committing only when fn succeeds.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Failure("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storage.Failure("commit", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	// The low byte carries the primary result code.
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT username, password_hash, email FROM users ORDER BY id`)
	if err != nil {
		return nil, storage.Failure("list users", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.Username, &u.PasswordHash, &u.Email); err != nil {
			return nil, storage.Failure("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Failure("list users", err)
	}
	return users, nil
}

func (r *Repository) AppendUser(ctx context.Context, u core.User) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, email) VALUES (?, ?, ?)`,
			u.Username, u.PasswordHash, u.Email)
		if isUniqueViolation(err) {
			return fmt.Errorf("append user %q: %w", u.Username, core.ErrDuplicateUser)
		}
		if err != nil {
			return storage.Failure("insert user", err)
		}
		return nil
	})
}

func (r *Repository) ListExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	q := `SELECT username, description, amount, category, date, created_at FROM expenses`
	var args []any
	if owner != "" {
		q += ` WHERE username = ?`
		args = append(args, owner)
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, storage.Failure("list expenses", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e                 core.Expense
			category, created string
		)
		if err := rows.Scan(&e.Owner, &e.Description, &e.Amount, &category, &e.Date, &created); err != nil {
			return nil, storage.Failure("scan expense", err)
		}
		e.Category = core.Category(category)
		if e.CreatedAt, err = storage.ParseTimestamp(created); err != nil {
			r.logger.WarnContext(ctx, "Unparseable created_at", "value", created, "error", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Failure("list expenses", err)
	}
	return out, nil
}

func (r *Repository) AppendExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("append expense: %w", err)
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (username, description, amount, category, date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.Owner, e.Description, e.Amount, string(e.Category), e.Date, storage.FormatTimestamp(e.CreatedAt))
		if err != nil {
			return storage.Failure("insert expense", err)
		}
		return nil
	})
}

func (r *Repository) ListBills(ctx context.Context, owner string) ([]core.Bill, error) {
	q := `SELECT username, description, total_amount, participants, split_type,
	             amount_per_person, date, created_at, due_date, status FROM bills`
	var args []any
	if owner != "" {
		q += ` WHERE username = ?`
		args = append(args, owner)
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, storage.Failure("list bills", err)
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		var (
			b                                    core.Bill
			participants, splitType, created, st string
		)
		if err := rows.Scan(&b.Owner, &b.Description, &b.TotalAmount, &participants, &splitType,
			&b.AmountPerPerson, &b.Date, &created, &b.DueDate, &st); err != nil {
			return nil, storage.Failure("scan bill", err)
		}
		if participants != "" {
			b.Participants = strings.Split(participants, ",")
		}
		if b.SplitType, err = core.ParseSplitType(splitType); err != nil {
			r.logger.WarnContext(ctx, "Unknown split type", "value", splitType)
			b.SplitType = core.SplitType(splitType)
		}
		b.Status = core.BillStatus(st)
		if b.CreatedAt, err = storage.ParseTimestamp(created); err != nil {
			r.logger.WarnContext(ctx, "Unparseable created_at", "value", created, "error", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Failure("list bills", err)
	}
	return out, nil
}

func (r *Repository) AppendBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("append bill: %w", err)
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bills (username, description, total_amount, participants, split_type,
			                    amount_per_person, date, created_at, due_date, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.Owner, b.Description, b.TotalAmount, strings.Join(b.Participants, ","), string(b.SplitType),
			b.AmountPerPerson, b.Date, storage.FormatTimestamp(b.CreatedAt), b.DueDate, string(b.Status))
		if err != nil {
			return storage.Failure("insert bill", err)
		}
		return nil
	})
}

