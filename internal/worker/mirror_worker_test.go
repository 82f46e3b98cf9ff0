package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/storage"
	"conti/internal/storage/csvfile"
	"conti/internal/storage/storagetest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTarget struct {
	storage.Backend
}

func (failingTarget) AppendExpense(context.Context, core.Expense) error {
	return storage.Failure("append expense", errors.New("quota exceeded"))
}

func newWorker(t *testing.T) (*MirrorWorker, storage.Backend, *metrics.Metrics) {
	t.Helper()
	target, err := csvfile.Open(t.TempDir(), nil)
	require.NoError(t, err)
	m := metrics.New()
	var buf bytes.Buffer
	return NewMirrorWorker(target, m, log.New(log.Config{Output: &buf})), target, m
}

func TestMirrorAppliesEachKind(t *testing.T) {
	w, target, m := newWorker(t)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, amqp.NewUserEvent(core.UserInfo{Username: "ann", Email: "a@example.com"})))
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(storagetest.Expense("ann", 12))))
	require.NoError(t, w.HandleEvent(ctx, amqp.NewBillEvent(storagetest.Bill("ann"))))

	users, err := target.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "", users[0].PasswordHash)
	assert.Equal(t, "a@example.com", users[0].Email)

	expenses, err := target.ListExpenses(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, []core.Expense{storagetest.Expense("ann", 12)}, expenses)

	bills, err := target.ListBills(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, []core.Bill{storagetest.Bill("ann")}, bills)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsMirrored.WithLabelValues("expense", "applied")))
}

func TestMirrorIgnoresRedelivery(t *testing.T) {
	w, target, m := newWorker(t)
	ctx := context.Background()

	ev := amqp.NewExpenseEvent(storagetest.Expense("ann", 5))
	require.NoError(t, w.HandleEvent(ctx, ev))
	require.NoError(t, w.HandleEvent(ctx, ev))

	expenses, err := target.ListExpenses(ctx, "")
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsMirrored.WithLabelValues("expense", "duplicate")))
}

func TestMirrorTreatsExistingUserAsDone(t *testing.T) {
	w, target, _ := newWorker(t)
	ctx := context.Background()
	require.NoError(t, target.AppendUser(ctx, core.User{Username: "ann", PasswordHash: "h"}))

	assert.NoError(t, w.HandleEvent(ctx, amqp.NewUserEvent(core.UserInfo{Username: "ann"})))
	users, err := target.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestMirrorDropsInvalidRecords(t *testing.T) {
	w, target, m := newWorker(t)
	ctx := context.Background()

	bad := storagetest.Expense("ann", 5)
	bad.Amount = -1
	assert.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(bad)))
	assert.NoError(t, w.HandleEvent(ctx, amqp.RecordEvent{Kind: amqp.KindBill}))

	expenses, err := target.ListExpenses(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, expenses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsMirrored.WithLabelValues("expense", "rejected")))
}

func TestMirrorReturnsStorageFailures(t *testing.T) {
	target, err := csvfile.Open(t.TempDir(), nil)
	require.NoError(t, err)
	w := NewMirrorWorker(failingTarget{target}, nil, log.New(log.Config{Output: &bytes.Buffer{}}))

	ev := amqp.NewExpenseEvent(storagetest.Expense("ann", 5))
	err = w.HandleEvent(context.Background(), ev)
	assert.ErrorIs(t, err, core.ErrStorageFailure)

	// A failed event is not remembered, so the requeued copy is retried.
	_, seen := w.seen.Get(ev.ID.String())
	assert.False(t, seen)
}
