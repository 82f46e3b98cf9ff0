// Package services ties users, records, splits and event publishing into
// the operations the CLI and HTTP API expose.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"conti/internal/amqp"
	"conti/internal/auth"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/split"
	"conti/internal/storage"
)

// Publisher announces persisted records. *amqp.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev amqp.RecordEvent) error
}

// Session identifies the user a request acts for.
type Session struct {
	Username string
	Started  time.Time
}

// SplitRequest is a bill submission with participants still in their raw
// comma separated form.
type SplitRequest struct {
	Description  string `json:"description"`
	Total        string `json:"total"`
	Participants string `json:"participants"`
	SplitType    string `json:"split_type"`
	Date         string `json:"date"`
	DueDate      string `json:"due_date"`
	Status       string `json:"status"`
}

// LedgerService orchestrates user, expense and bill operations across a
// storage backend and an optional publisher.
type LedgerService struct {
	backend   storage.Backend
	users     *auth.UserStore
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
}

type Option func(*LedgerService)

func WithPublisher(p Publisher) Option { return func(s *LedgerService) { s.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *LedgerService) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *LedgerService) { s.now = now } }

// WithPasswordCost sets the bcrypt cost used for new users.
func WithPasswordCost(cost int) Option {
	return func(s *LedgerService) { s.users = s.users.WithCost(cost) }
}

func NewLedgerService(backend storage.Backend, logger *log.Logger, opts ...Option) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)
	s := &LedgerService{
		backend: backend,
		users:   auth.NewUserStore(backend, logger.WithComponent(log.ComponentAuth).Slog()),
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user. Errors are ErrInvalidInput, ErrDuplicateUser or
// ErrStorageFailure.
func (s *LedgerService) Register(ctx context.Context, username, password, email string) error {
	if err := s.users.Create(ctx, username, password, email); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	s.publish(ctx, amqp.NewUserEvent(core.UserInfo{
		Username: username,
		Email:    strings.TrimSpace(email),
	}))
	return nil
}

// Login checks the credentials and opens a session.
func (s *LedgerService) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.WarnContext(ctx, "Login failed", log.FieldUsername, username)
		return nil, fmt.Errorf("login: %w", err)
	}
	return &Session{Username: u.Username, Started: s.now()}, nil
}

// User returns the public view of the session's user.
func (s *LedgerService) User(ctx context.Context, sess *Session) (core.UserInfo, error) {
	if sess == nil {
		return core.UserInfo{}, core.ErrAuthFailure
	}
	info, ok := s.users.Info(ctx, sess.Username)
	if !ok {
		return core.UserInfo{}, core.ErrAuthFailure
	}
	return info, nil
}

// RecordExpense validates and stores an expense for the session's user.
func (s *LedgerService) RecordExpense(ctx context.Context, sess *Session, in core.ExpenseInput) (core.Expense, error) {
	if sess == nil {
		return core.Expense{}, core.ErrAuthFailure
	}
	e, err := core.NewExpense(sess.Username, in, s.now())
	if err != nil {
		s.countInvalid(amqp.KindExpense)
		return core.Expense{}, err
	}
	if err := s.backend.AppendExpense(ctx, e); err != nil {
		s.storageError(ctx, "Failed to save expense", log.OpAppend, err, sess.Username)
		return core.Expense{}, fmt.Errorf("record expense: %w", err)
	}
	s.recorded(ctx, amqp.KindExpense, e.Owner, e.Description, e.Amount)
	s.publish(ctx, amqp.NewExpenseEvent(e))
	return e, nil
}

// SplitBill computes an equal split, then records the bill. Nothing is
// stored when the split or the bill is rejected. The bill date defaults to
// today, the due date to the bill date and the status to open.
func (s *LedgerService) SplitBill(ctx context.Context, sess *Session, req SplitRequest) (core.Bill, split.Result, error) {
	if sess == nil {
		return core.Bill{}, split.Result{}, core.ErrAuthFailure
	}
	names, err := split.ParseParticipants(req.Participants)
	if err != nil {
		s.countInvalid(amqp.KindBill)
		return core.Bill{}, split.Result{}, fmt.Errorf("split bill: %w", err)
	}
	st, err := core.ParseSplitType(req.SplitType)
	if err != nil {
		s.countInvalid(amqp.KindBill)
		return core.Bill{}, split.Result{}, fmt.Errorf("split bill: %w", err)
	}
	total, err := core.ParseAmount(req.Total)
	if err != nil {
		s.countInvalid(amqp.KindBill)
		return core.Bill{}, split.Result{}, fmt.Errorf("split bill: %w: %w", core.ErrInvalidInput, err)
	}
	res, err := split.Compute(total, names, st)
	if err != nil {
		if !errors.Is(err, core.ErrNotSupported) {
			s.countInvalid(amqp.KindBill)
		}
		return core.Bill{}, split.Result{}, fmt.Errorf("split bill: %w", err)
	}

	now := s.now()
	in := core.BillInput{
		Amount:       req.Total,
		Description:  req.Description,
		Participants: names,
		SplitType:    string(st),
		Date:         orDefault(req.Date, now.Format(core.DateLayout)),
		Status:       orDefault(req.Status, string(core.StatusOpen)),
	}
	in.DueDate = orDefault(req.DueDate, in.Date)

	b, err := core.NewBill(sess.Username, in, now)
	if err != nil {
		s.countInvalid(amqp.KindBill)
		return core.Bill{}, split.Result{}, err
	}
	if err := s.backend.AppendBill(ctx, b); err != nil {
		s.storageError(ctx, "Failed to save bill", log.OpAppend, err, sess.Username)
		return core.Bill{}, split.Result{}, fmt.Errorf("split bill: %w", err)
	}
	s.recorded(ctx, amqp.KindBill, b.Owner, b.Description, b.TotalAmount)
	s.publish(ctx, amqp.NewBillEvent(b))
	return b, res, nil
}

// Expenses lists the session user's expenses in insertion order. A
// storage failure is logged and yields an empty list.
func (s *LedgerService) Expenses(ctx context.Context, sess *Session) []core.Expense {
	if sess == nil {
		return nil
	}
	list, err := s.backend.ListExpenses(ctx, sess.Username)
	if err != nil {
		s.storageError(ctx, "Failed to list expenses", log.OpList, err, sess.Username)
		return []core.Expense{}
	}
	return list
}

// ExpensesIn lists the session user's expenses in one category, the same
// rows Expenses returns.
func (s *LedgerService) ExpensesIn(ctx context.Context, sess *Session, category core.Category) []core.Expense {
	return ledger.Filter(s.Expenses(ctx, sess), "category", string(category))
}

// Bills lists the session user's bills in insertion order.
func (s *LedgerService) Bills(ctx context.Context, sess *Session) []core.Bill {
	if sess == nil {
		return nil
	}
	list, err := s.backend.ListBills(ctx, sess.Username)
	if err != nil {
		s.storageError(ctx, "Failed to list bills", log.OpList, err, sess.Username)
		return []core.Bill{}
	}
	return list
}

// BillsWithStatus lists the session user's bills with the given status.
func (s *LedgerService) BillsWithStatus(ctx context.Context, sess *Session, status core.BillStatus) []core.Bill {
	return ledger.Filter(s.Bills(ctx, sess), "status", string(status))
}

// Summary aggregates the session user's records.
func (s *LedgerService) Summary(ctx context.Context, sess *Session) core.Summary {
	if sess == nil {
		return core.Summary{}
	}
	return ledger.Summarize(sess.Username, s.Expenses(ctx, sess), s.Bills(ctx, sess))
}

func (s *LedgerService) publish(ctx context.Context, ev amqp.RecordEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		// The record is already stored; only the event is lost.
		s.logger.ErrorContext(ctx, "Failed to publish record event",
			log.FieldKind, ev.Kind,
			log.FieldUsername, ev.Username,
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
		if s.metrics != nil {
			s.metrics.PublishFailures.Inc()
		}
	}
}

func (s *LedgerService) recorded(ctx context.Context, kind amqp.Kind, username, description string, amount float64) {
	s.events.LogRecordCreated(ctx, string(kind), username, description, amount)
	if s.metrics != nil {
		s.metrics.RecordsCreated.WithLabelValues(string(kind)).Inc()
	}
}

func (s *LedgerService) countInvalid(kind amqp.Kind) {
	if s.metrics != nil {
		s.metrics.ValidationFails.WithLabelValues(string(kind)).Inc()
	}
}

func (s *LedgerService) storageError(ctx context.Context, msg, op string, err error, username string) {
	if errors.Is(err, core.ErrInvalidRecord) {
		return
	}
	s.events.LogError(ctx, msg, err, log.ComponentStorage, op, log.LogFields{log.FieldUsername: username})
}

// Close releases the backend and, when it holds one, the publisher.
func (s *LedgerService) Close() error {
	var errs []error
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
