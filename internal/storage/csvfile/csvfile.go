// Package csvfile stores users, expenses and bills as CSV tables in a
// directory. Every call reads the whole table; every write rewrites it
// atomically while holding the table's lock.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"conti/internal/core"
	"conti/internal/storage"
)

const (
	UsersFile    = "users.csv"
	ExpensesFile = "expenses.csv"
	BillsFile    = "bills.csv"
)

// Store is the flat-file backend.
type Store struct {
	dir    string
	logger *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open prepares dir, creating missing tables with their header row.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storage.Failure("create data directory", err)
	}
	s := &Store{dir: dir, logger: logger.With("store", "csv")}
	for name, header := range map[string][]string{
		UsersFile:    storage.UserHeader,
		ExpensesFile: storage.ExpenseHeader,
		BillsFile:    storage.BillHeader,
	} {
		if err := s.ensure(name, header); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) ensure(name string, header []string) error {
	path := s.path(name)
	mu := storage.LockFile(path)
	mu.Lock()
	defer mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return storage.Failure("stat "+name, err)
	}
	if err := writeTable(path, header, nil); err != nil {
		return storage.Failure("create "+name, err)
	}
	return nil
}

// readTable returns the data rows of a table, without the header.
func readTable(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}

func writeTable(path string, header []string, rows [][]string) error {
	return storage.WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// appendRow performs the read-modify-write cycle for one new row. check
// runs on the current rows under the lock and may veto the write.
func (s *Store) appendRow(name string, header, row []string, check func(rows [][]string) error) error {
	path := s.path(name)
	mu := storage.LockFile(path)
	mu.Lock()
	defer mu.Unlock()

	rows, err := readTable(path)
	if err != nil {
		return storage.Failure("read "+name, err)
	}
	if check != nil {
		if err := check(rows); err != nil {
			return err
		}
	}
	if err := writeTable(path, header, append(rows, row)); err != nil {
		return storage.Failure("write "+name, err)
	}
	return nil
}

func (s *Store) load(name string) ([][]string, error) {
	path := s.path(name)
	mu := storage.LockFile(path)
	mu.Lock()
	defer mu.Unlock()
	rows, err := readTable(path)
	if err != nil {
		return nil, storage.Failure("read "+name, err)
	}
	return rows, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.load(UsersFile)
	if err != nil {
		return nil, err
	}
	users := make([]core.User, 0, len(rows))
	for i, row := range rows {
		u, err := storage.ParseUserRow(row)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed row", "file", UsersFile, "row", i+2, "error", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) AppendUser(ctx context.Context, u core.User) error {
	return s.appendRow(UsersFile, storage.UserHeader, storage.UserRow(u), func(rows [][]string) error {
		if slices.ContainsFunc(rows, func(r []string) bool { return len(r) > 0 && r[0] == u.Username }) {
			return fmt.Errorf("append user %q: %w", u.Username, core.ErrDuplicateUser)
		}
		return nil
	})
}

func (s *Store) ListExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	rows, err := s.load(ExpensesFile)
	if err != nil {
		return nil, err
	}
	var out []core.Expense
	for i, row := range rows {
		e, err := storage.ParseExpenseRow(row)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed row", "file", ExpensesFile, "row", i+2, "error", err)
			continue
		}
		if owner == "" || e.Owner == owner {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) AppendExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("append expense: %w", err)
	}
	return s.appendRow(ExpensesFile, storage.ExpenseHeader, storage.ExpenseRow(e), nil)
}

func (s *Store) ListBills(ctx context.Context, owner string) ([]core.Bill, error) {
	rows, err := s.load(BillsFile)
	if err != nil {
		return nil, err
	}
	var out []core.Bill
	for i, row := range rows {
		b, err := storage.ParseBillRow(row)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed row", "file", BillsFile, "row", i+2, "error", err)
			continue
		}
		if owner == "" || b.Owner == owner {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) AppendBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("append bill: %w", err)
	}
	return s.appendRow(BillsFile, storage.BillHeader, storage.BillRow(b), nil)
}
