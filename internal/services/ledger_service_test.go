package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/storage"
	"conti/internal/storage/csvfile"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.RecordEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev amqp.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []amqp.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.Kind
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

// brokenBackend fails every operation after the users table.
type brokenBackend struct {
	storage.Backend
}

func (brokenBackend) ListExpenses(context.Context, string) ([]core.Expense, error) {
	return nil, storage.Failure("read expenses", errors.New("disk gone"))
}

func (brokenBackend) AppendExpense(context.Context, core.Expense) error {
	return storage.Failure("append expense", errors.New("disk gone"))
}

func (brokenBackend) ListBills(context.Context, string) ([]core.Bill, error) {
	return nil, storage.Failure("read bills", errors.New("disk gone"))
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Format: log.FormatText, Output: buf})
}

func newService(t *testing.T, opts ...Option) (*LedgerService, storage.Backend) {
	t.Helper()
	backend, err := csvfile.Open(t.TempDir(), nil)
	require.NoError(t, err)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithPasswordCost(bcrypt.MinCost)}, opts...)
	s := NewLedgerService(backend, quietLogger(&bytes.Buffer{}), opts...)
	t.Cleanup(func() { s.Close() })
	return s, backend
}

func login(t *testing.T, s *LedgerService) *Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, "ann", "pw", "ann@example.com"))
	sess, err := s.Login(ctx, "ann", "pw")
	require.NoError(t, err)
	return sess
}

func TestRegisterAndLogin(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newService(t, WithPublisher(pub))
	ctx := context.Background()

	sess := login(t, s)
	assert.Equal(t, "ann", sess.Username)
	assert.Equal(t, fixedNow, sess.Started)

	err := s.Register(ctx, "ann", "other", "")
	assert.ErrorIs(t, err, core.ErrDuplicateUser)

	_, err = s.Login(ctx, "ann", "wrong")
	assert.ErrorIs(t, err, core.ErrAuthFailure)

	info, err := s.User(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", info.Email)

	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.KindUser, pub.events[0].Kind)
	assert.Equal(t, "ann@example.com", pub.events[0].User.Email)
}

func TestLogLinesCarryOneComponent(t *testing.T) {
	var buf bytes.Buffer
	backend, err := csvfile.Open(t.TempDir(), nil)
	require.NoError(t, err)
	s := NewLedgerService(backend, log.New(log.Config{Format: log.FormatJSON, Output: &buf}),
		WithPasswordCost(bcrypt.MinCost))
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "ann", "pw", ""))
	_, err = s.Login(ctx, "ann", "wrong")
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"component":`), line)
	}
	assert.Contains(t, buf.String(), `"component":"auth"`)
}

func TestRecordExpense(t *testing.T) {
	pub := &recordingPublisher{}
	m := metrics.New()
	s, _ := newService(t, WithPublisher(pub), WithMetrics(m))
	ctx := context.Background()
	sess := login(t, s)

	e, err := s.RecordExpense(ctx, sess, core.ExpenseInput{
		Amount: "12.50", Category: "Food", Description: "lunch", Date: "2024-03-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann", e.Owner)
	assert.Equal(t, 12.5, e.Amount)
	assert.Equal(t, fixedNow, e.CreatedAt)

	list := s.Expenses(ctx, sess)
	require.Len(t, list, 1)
	assert.Equal(t, e, list[0])

	assert.Equal(t, []amqp.Kind{amqp.KindUser, amqp.KindExpense}, pub.kinds())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsCreated.WithLabelValues("expense")))
}

func TestRecordExpenseRejectsInvalidInput(t *testing.T) {
	m := metrics.New()
	s, _ := newService(t, WithMetrics(m))
	ctx := context.Background()
	sess := login(t, s)

	tests := []struct {
		name string
		in   core.ExpenseInput
	}{
		{"zero amount", core.ExpenseInput{Amount: "0", Category: "Food", Description: "x", Date: "2024-03-01"}},
		{"negative amount", core.ExpenseInput{Amount: "-3", Category: "Food", Description: "x", Date: "2024-03-01"}},
		{"not a number", core.ExpenseInput{Amount: "abc", Category: "Food", Description: "x", Date: "2024-03-01"}},
		{"no category", core.ExpenseInput{Amount: "3", Description: "x", Date: "2024-03-01"}},
		{"no description", core.ExpenseInput{Amount: "3", Category: "Food", Date: "2024-03-01"}},
		{"no date", core.ExpenseInput{Amount: "3", Category: "Food", Description: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RecordExpense(ctx, sess, tt.in)
			assert.ErrorIs(t, err, core.ErrInvalidRecord)
		})
	}
	assert.Empty(t, s.Expenses(ctx, sess))
	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(m.ValidationFails.WithLabelValues("expense")))
}

func TestRequiresSession(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.RecordExpense(ctx, nil, core.ExpenseInput{Amount: "1", Category: "Food", Description: "x", Date: "d"})
	assert.ErrorIs(t, err, core.ErrAuthFailure)
	_, _, err = s.SplitBill(ctx, nil, SplitRequest{Total: "10", Participants: "A"})
	assert.ErrorIs(t, err, core.ErrAuthFailure)
	_, err = s.User(ctx, nil)
	assert.ErrorIs(t, err, core.ErrAuthFailure)
	assert.Nil(t, s.Expenses(ctx, nil))
	assert.Nil(t, s.Bills(ctx, nil))
	assert.Equal(t, core.Summary{}, s.Summary(ctx, nil))
}

func TestSplitBillEqual(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newService(t, WithPublisher(pub))
	ctx := context.Background()
	sess := login(t, s)

	b, res, err := s.SplitBill(ctx, sess, SplitRequest{
		Description: "dinner", Total: "90.00", Participants: "A, B ,C",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, b.Participants)
	assert.Equal(t, 30.0, b.AmountPerPerson)
	assert.Equal(t, core.Equal, b.SplitType)
	assert.Equal(t, "2024-03-01", b.Date)
	assert.Equal(t, "2024-03-01", b.DueDate)
	assert.Equal(t, core.StatusOpen, b.Status)
	assert.Equal(t, "30.00", res.Shares()[0].Amount.StringFixed(2))
	assert.True(t, res.Discrepancy().IsZero())

	bills := s.Bills(ctx, sess)
	require.Len(t, bills, 1)
	assert.Equal(t, b, bills[0])
	assert.Equal(t, []amqp.Kind{amqp.KindUser, amqp.KindBill}, pub.kinds())
}

func TestSplitBillSurfacesDiscrepancy(t *testing.T) {
	s, _ := newService(t)
	sess := login(t, s)

	_, res, err := s.SplitBill(context.Background(), sess, SplitRequest{
		Description: "taxi", Total: "100", Participants: "A,B,C", DueDate: "2024-04-01", Status: "paid",
	})
	require.NoError(t, err)
	assert.Equal(t, "33.33", res.Shares()[0].Amount.StringFixed(2))
	assert.Equal(t, "0.01", res.Discrepancy().StringFixed(2))
}

func TestSplitBillRejectsAndRecordsNothing(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	sess := login(t, s)

	tests := []struct {
		name string
		req  SplitRequest
		want error
	}{
		{"no participants", SplitRequest{Description: "d", Total: "10", Participants: " , ,"}, core.ErrInvalidInput},
		{"zero total", SplitRequest{Description: "d", Total: "0", Participants: "A"}, core.ErrInvalidInput},
		{"bad total", SplitRequest{Description: "d", Total: "ten", Participants: "A"}, core.ErrInvalidInput},
		{"unknown split", SplitRequest{Description: "d", Total: "10", Participants: "A", SplitType: "weighted"}, core.ErrInvalidInput},
		{"custom split", SplitRequest{Description: "d", Total: "10", Participants: "A", SplitType: "custom"}, core.ErrNotSupported},
		{"no description", SplitRequest{Total: "10", Participants: "A"}, core.ErrInvalidRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.SplitBill(ctx, sess, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, s.Bills(ctx, sess))
}

func TestFilteredListsAndSummary(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	sess := login(t, s)

	for _, in := range []core.ExpenseInput{
		{Amount: "10", Category: "Food", Description: "a", Date: "2024-03-02"},
		{Amount: "5", Category: "Transport", Description: "b", Date: "2024-03-01"},
		{Amount: "2.5", Category: "Food", Description: "c", Date: "2024-03-02"},
	} {
		_, err := s.RecordExpense(ctx, sess, in)
		require.NoError(t, err)
	}
	_, _, err := s.SplitBill(ctx, sess, SplitRequest{Description: "rent", Total: "900", Participants: "A,B"})
	require.NoError(t, err)
	_, _, err = s.SplitBill(ctx, sess, SplitRequest{Description: "gas", Total: "60", Participants: "A,B", Status: "paid"})
	require.NoError(t, err)

	assert.Len(t, s.ExpensesIn(ctx, sess, "Food"), 2)
	assert.Len(t, s.BillsWithStatus(ctx, sess, core.StatusPaid), 1)

	sum := s.Summary(ctx, sess)
	assert.Equal(t, 17.5, sum.Total)
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, "Food", sum.ByCategory[0].Name)
	assert.Equal(t, "2024-03-01", sum.Daily[0].Date)
	assert.Equal(t, 960.0, sum.BillsTotal)
	assert.Equal(t, 1, sum.OpenBills)
}

func TestListsKeepLegacyAndIncompleteRows(t *testing.T) {
	dir := t.TempDir()
	expenses := "username,description,amount,category,date,created_at\n" +
		"ann,lunch,12.5,Food,2024-01-02,2024-01-02 12:00:00\n" +
		"ann,,3,Food,2024-01-03,2024-01-03 12:00:00\n"
	bills := "username,description,total_amount,participants,split_type,amount_per_person,date,created_at\n" +
		"ann,rent,90.0,\"A,B,C\",Equal,30.0,2024-01-05,2024-01-05 10:00:00\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, csvfile.ExpensesFile), []byte(expenses), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, csvfile.BillsFile), []byte(bills), 0o644))

	backend, err := csvfile.Open(dir, nil)
	require.NoError(t, err)
	s := NewLedgerService(backend, quietLogger(&bytes.Buffer{}), WithPasswordCost(bcrypt.MinCost))
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	sess := login(t, s)

	assert.Len(t, s.Expenses(ctx, sess), 2)
	assert.Len(t, s.ExpensesIn(ctx, sess, "Food"), 2)
	assert.Len(t, s.Bills(ctx, sess), 1)
	open := s.BillsWithStatus(ctx, sess, core.StatusOpen)
	require.Len(t, open, 1)
	assert.Equal(t, core.Equal, open[0].SplitType)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &recordingPublisher{err: amqp.ErrCircuitOpen}
	m := metrics.New()
	s, _ := newService(t, WithPublisher(pub), WithMetrics(m))
	ctx := context.Background()
	sess := login(t, s)

	_, err := s.RecordExpense(ctx, sess, core.ExpenseInput{Amount: "1", Category: "Food", Description: "x", Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Len(t, s.Expenses(ctx, sess), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PublishFailures))
}

func TestStorageFailures(t *testing.T) {
	backend, err := csvfile.Open(t.TempDir(), nil)
	require.NoError(t, err)
	var logs bytes.Buffer
	s := NewLedgerService(brokenBackend{backend}, quietLogger(&logs), WithPasswordCost(bcrypt.MinCost))
	ctx := context.Background()
	sess := &Session{Username: "ann"}

	_, err = s.RecordExpense(ctx, sess, core.ExpenseInput{Amount: "1", Category: "Food", Description: "x", Date: "2024-03-01"})
	assert.ErrorIs(t, err, core.ErrStorageFailure)
	assert.Equal(t, []core.Expense{}, s.Expenses(ctx, sess))
	assert.Equal(t, []core.Bill{}, s.Bills(ctx, sess))
	assert.Contains(t, logs.String(), "Failed to save expense")
	assert.Contains(t, logs.String(), "Failed to list bills")
}
