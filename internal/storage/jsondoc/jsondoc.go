// Package jsondoc keeps every record in one JSON document. The document is
// loaded once into ledger books and rewritten in full after each append;
// entries the books cannot hold are carried through untouched.
package jsondoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/storage"
)

// document is the file as stored. Entries are kept raw so the ones this
// package cannot use (other shapes, missing owners) are written back
// unchanged on every rewrite.
type document struct {
	Users    []json.RawMessage `json:"users"`
	Expenses []json.RawMessage `json:"expenses"`
	Bills    []json.RawMessage `json:"bills"`
}

// expenseEntry and billEntry store created_at in the same layout as the
// tabular backends.
type expenseEntry struct {
	core.Expense
	CreatedAt string `json:"created_at"`
}

type billEntry struct {
	core.Bill
	CreatedAt string `json:"created_at"`
}

// Store is the single-document backend.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex // serializes appends with their rewrite
	doc      document
	users    []core.User
	expenses *ledger.ExpenseBook
	bills    *ledger.BillBook
}

var _ storage.Backend = (*Store)(nil)

// Open loads the document at path. A missing file starts empty. A file
// that does not decode is moved aside to path.corrupt, logged and treated
// as empty.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storage.Failure("create document directory", err)
	}
	s := &Store{path: path, logger: logger.With("store", "json")}
	s.expenses, _ = ledger.NewExpenseBook()
	s.bills, _ = ledger.NewBillBook()

	doc, err := s.read()
	if err != nil {
		s.logger.Error("Error reading document, using empty data", "path", path, "error", err)
		if err := os.Rename(path, path+".corrupt"); err != nil {
			return nil, storage.Failure("move corrupt document aside", err)
		}
		return s, nil
	}
	s.doc = doc
	for _, raw := range doc.Users {
		var u core.User
		if err := json.Unmarshal(raw, &u); err != nil || u.Username == "" {
			s.logger.Warn("Keeping unusable user entry as stored", "path", path, "error", err)
			continue
		}
		s.users = append(s.users, u)
	}
	for _, raw := range doc.Expenses {
		e, err := decodeExpense(raw)
		if err == nil {
			err = s.expenses.Add(e)
		}
		if err != nil {
			s.logger.Warn("Keeping unusable expense entry as stored", "path", path, "error", err)
		}
	}
	for _, raw := range doc.Bills {
		b, err := decodeBill(raw)
		if err == nil {
			err = s.bills.Add(b)
		}
		if err != nil {
			s.logger.Warn("Keeping unusable bill entry as stored", "path", path, "error", err)
		}
	}
	return s, nil
}

func decodeExpense(raw json.RawMessage) (core.Expense, error) {
	var entry expenseEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return core.Expense{}, err
	}
	created, err := storage.ParseTimestamp(entry.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at: %w", err)
	}
	entry.Expense.CreatedAt = created
	return entry.Expense, nil
}

func decodeBill(raw json.RawMessage) (core.Bill, error) {
	var entry billEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return core.Bill{}, err
	}
	created, err := storage.ParseTimestamp(entry.CreatedAt)
	if err != nil {
		return core.Bill{}, fmt.Errorf("parse created_at: %w", err)
	}
	entry.Bill.CreatedAt = created
	return entry.Bill, nil
}

func (s *Store) read() (document, error) {
	var doc document
	mu := storage.LockFile(s.path)
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("decode %s: %w", filepath.Base(s.path), err)
	}
	return doc, nil
}

// save rewrites the document from doc. Callers hold s.mu.
func (s *Store) save(doc document) error {
	mu := storage.LockFile(s.path)
	mu.Lock()
	defer mu.Unlock()

	err := storage.WriteFileAtomic(s.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
	if err != nil {
		return storage.Failure("save document", err)
	}
	return nil
}

// with returns the current document plus one entry. Absent tables are
// written as empty arrays.
func (s *Store) with(users, expenses, bills json.RawMessage) document {
	grow := func(list []json.RawMessage, entry json.RawMessage) []json.RawMessage {
		out := make([]json.RawMessage, 0, len(list)+1)
		out = append(out, list...)
		if entry != nil {
			out = append(out, entry)
		}
		return out
	}
	return document{
		Users:    grow(s.doc.Users, users),
		Expenses: grow(s.doc.Expenses, expenses),
		Bills:    grow(s.doc.Bills, bills),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users), nil
}

func (s *Store) AppendUser(ctx context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.users, func(x core.User) bool { return x.Username == u.Username }) {
		return fmt.Errorf("append user %q: %w", u.Username, core.ErrDuplicateUser)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return storage.Failure("encode user", err)
	}
	doc := s.with(raw, nil, nil)
	if err := s.save(doc); err != nil {
		return err
	}
	s.doc = doc
	s.users = append(s.users, u)
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	if owner == "" {
		return s.expenses.All(), nil
	}
	return s.expenses.ByOwner(owner), nil
}

// AppendExpense writes the document first so a failed save leaves the
// in-memory book unchanged.
func (s *Store) AppendExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("append expense: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(expenseEntry{Expense: e, CreatedAt: storage.FormatTimestamp(e.CreatedAt)})
	if err != nil {
		return storage.Failure("encode expense", err)
	}
	doc := s.with(nil, raw, nil)
	if err := s.save(doc); err != nil {
		return err
	}
	s.doc = doc
	return s.expenses.Add(e)
}

func (s *Store) ListBills(ctx context.Context, owner string) ([]core.Bill, error) {
	if owner == "" {
		return s.bills.All(), nil
	}
	return s.bills.ByOwner(owner), nil
}

func (s *Store) AppendBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("append bill: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(billEntry{Bill: b, CreatedAt: storage.FormatTimestamp(b.CreatedAt)})
	if err != nil {
		return storage.Failure("encode bill", err)
	}
	doc := s.with(nil, nil, raw)
	if err := s.save(doc); err != nil {
		return err
	}
	s.doc = doc
	return s.bills.Add(b)
}

// Totals returns the overall expense and bill totals held in the document.
func (s *Store) Totals() (expenses, bills float64) {
	return s.expenses.Total(), s.bills.Total()
}
