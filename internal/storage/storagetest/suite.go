// Package storagetest holds the behaviour every storage.Backend must share.
// Adapter packages embed BackendSuite in their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conti/internal/core"
	"conti/internal/storage"

	"github.com/stretchr/testify/suite"
)

// BackendSuite runs against a fresh backend per test. Open is called with
// a new temp directory; Reopen, if set, opens a second instance over the
// same directory to check durability.
type BackendSuite struct {
	suite.Suite
	Open   func(dir string) (storage.Backend, error)
	dir    string
	b      storage.Backend
	closed bool
}

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

func Expense(owner string, amount float64) core.Expense {
	return core.Expense{
		Owner: owner, Description: "groceries", Amount: amount,
		Category: "Food", Date: "2024-03-01", CreatedAt: created,
	}
}

func Bill(owner string) core.Bill {
	return core.Bill{
		Owner: owner, Description: "dinner", TotalAmount: 100,
		Participants: []string{"A", "B", "C"}, SplitType: core.Equal, AmountPerPerson: 100.0 / 3,
		Date: "2024-03-01", DueDate: "2024-03-15", Status: core.StatusOpen, CreatedAt: created,
	}
}

func (s *BackendSuite) SetupTest() {
	s.dir = s.T().TempDir()
	b, err := s.Open(s.dir)
	s.Require().NoError(err)
	s.b = b
	s.closed = false
}

func (s *BackendSuite) TearDownTest() {
	if !s.closed {
		s.b.Close()
	}
}

func (s *BackendSuite) reopen() storage.Backend {
	s.Require().NoError(s.b.Close())
	s.closed = true
	b, err := s.Open(s.dir)
	s.Require().NoError(err)
	s.T().Cleanup(func() { b.Close() })
	return b
}

func (s *BackendSuite) TestEmptyTables() {
	ctx := context.Background()
	users, err := s.b.ListUsers(ctx)
	s.Require().NoError(err)
	s.Empty(users)
	expenses, err := s.b.ListExpenses(ctx, "")
	s.Require().NoError(err)
	s.Empty(expenses)
	bills, err := s.b.ListBills(ctx, "")
	s.Require().NoError(err)
	s.Empty(bills)
}

func (s *BackendSuite) TestDuplicateUser() {
	ctx := context.Background()
	u := core.User{Username: "ann", PasswordHash: "h1", Email: "ann@example.com"}
	s.Require().NoError(s.b.AppendUser(ctx, u))

	u.PasswordHash = "h2"
	err := s.b.AppendUser(ctx, u)
	s.ErrorIs(err, core.ErrDuplicateUser)

	s.Require().NoError(s.b.AppendUser(ctx, core.User{Username: "Ann", PasswordHash: "h3"}))

	users, err := s.b.ListUsers(ctx)
	s.Require().NoError(err)
	s.Len(users, 2)
	s.Equal("h1", users[0].PasswordHash)
}

func (s *BackendSuite) TestExpenseRoundTrip() {
	ctx := context.Background()
	want := []core.Expense{Expense("ann", 12.5), Expense("bob", 0.1), Expense("ann", 1234.5678)}
	for _, e := range want {
		s.Require().NoError(s.b.AppendExpense(ctx, e))
	}

	got, err := s.reopen().ListExpenses(ctx, "")
	s.Require().NoError(err)
	s.Require().Len(got, len(want))
	for i := range want {
		s.Equal(want[i].Owner, got[i].Owner)
		s.Equal(want[i].Amount, got[i].Amount)
		s.Equal(want[i].Category, got[i].Category)
		s.Equal(want[i].Date, got[i].Date)
		s.True(want[i].CreatedAt.Equal(got[i].CreatedAt), "created_at %v != %v", want[i].CreatedAt, got[i].CreatedAt)
	}
}

func (s *BackendSuite) TestExpenseOwnerFilter() {
	ctx := context.Background()
	s.Require().NoError(s.b.AppendExpense(ctx, Expense("ann", 1)))
	s.Require().NoError(s.b.AppendExpense(ctx, Expense("bob", 2)))
	s.Require().NoError(s.b.AppendExpense(ctx, Expense("ann", 3)))

	got, err := s.b.ListExpenses(ctx, "ann")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(1.0, got[0].Amount)
	s.Equal(3.0, got[1].Amount)
}

func (s *BackendSuite) TestInvalidExpenseRejected() {
	ctx := context.Background()
	err := s.b.AppendExpense(ctx, Expense("ann", 0))
	s.ErrorIs(err, core.ErrInvalidRecord)
	got, err := s.b.ListExpenses(ctx, "")
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *BackendSuite) TestBillRoundTrip() {
	ctx := context.Background()
	want := Bill("ann")
	s.Require().NoError(s.b.AppendBill(ctx, want))
	s.Require().NoError(s.b.AppendBill(ctx, Bill("bob")))

	got, err := s.reopen().ListBills(ctx, "ann")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(want.Participants, got[0].Participants)
	s.Equal(want.AmountPerPerson, got[0].AmountPerPerson)
	s.Equal(want.SplitType, got[0].SplitType)
	s.Equal(want.DueDate, got[0].DueDate)
	s.Equal(want.Status, got[0].Status)
}

func (s *BackendSuite) TestConcurrentAppends() {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.NoError(s.b.AppendExpense(ctx, Expense(fmt.Sprintf("u%d", i), float64(i+1))))
		}(i)
	}
	wg.Wait()

	got, err := s.b.ListExpenses(ctx, "")
	s.Require().NoError(err)
	s.Len(got, n)
}
