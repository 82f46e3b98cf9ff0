package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"conti/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expense(owner, cat, date string, amount float64) core.Expense {
	return core.Expense{Owner: owner, Description: "item", Amount: amount, Category: core.Category(cat), Date: date}
}

func bill(owner, status, due string, total float64) core.Bill {
	return core.Bill{
		Owner: owner, Description: "bill", TotalAmount: total,
		Participants: []string{"A", "B"}, SplitType: core.Equal, AmountPerPerson: total / 2,
		Date: due, DueDate: due, Status: core.BillStatus(status),
	}
}

func TestAddThenAllAndTotal(t *testing.T) {
	b, err := NewExpenseBook()
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.Total())

	r := expense("ann", "Food", "2024-03-01", 12.5)
	require.NoError(t, b.Add(r))
	require.NoError(t, b.Add(expense("ann", "Housing", "2024-03-02", 7.5)))

	all := b.All()
	assert.Equal(t, 2, len(all))
	assert.Equal(t, r, all[0])
	assert.Equal(t, 20.0, b.Total())
}

func TestAddRejectsInvalidWithoutMutation(t *testing.T) {
	b, _ := NewExpenseBook(expense("ann", "Food", "2024-03-01", 5))
	bads := []core.Expense{
		expense("ann", "Food", "2024-03-01", 0),
		expense("ann", "Food", "2024-03-01", -1),
		expense("ann", "", "2024-03-01", 1),
		expense("ann", "Food", "", 1),
		{Owner: "ann", Amount: 1, Category: "Food", Date: "d"},
	}
	for i, r := range bads {
		err := b.Add(r)
		if !errors.Is(err, core.ErrInvalidRecord) {
			t.Fatalf("case %d expected ErrInvalidRecord, got %v", i, err)
		}
	}
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 5.0, b.Total())
}

func TestAllReturnsCopy(t *testing.T) {
	b, _ := NewExpenseBook(expense("ann", "Food", "2024-03-01", 5))
	all := b.All()
	all[0].Amount = 999
	assert.Equal(t, 5.0, b.All()[0].Amount)
}

func TestFilterKeepsOrder(t *testing.T) {
	b, _ := NewExpenseBook(
		expense("ann", "Food", "2024-03-01", 1),
		expense("bob", "Housing", "2024-03-01", 2),
		expense("ann", "Food", "2024-03-02", 3),
	)
	food := b.ByCategory("Food")
	require.Len(t, food, 2)
	assert.Equal(t, 1.0, food[0].Amount)
	assert.Equal(t, 3.0, food[1].Amount)

	assert.Len(t, b.ByDate("2024-03-01"), 2)
	assert.Len(t, b.ByOwner("bob"), 1)
	assert.Equal(t, 4.0, b.OwnerTotal("ann"))
	assert.Empty(t, b.Filter("nonexistent", "x"))
}

func TestAggregates(t *testing.T) {
	b, _ := NewExpenseBook(
		expense("ann", "Food", "2024-03-02", 1),
		expense("ann", "Housing", "2024-03-01", 10),
		expense("ann", "Food", "2024-03-02", 3),
	)
	cats := b.CategoryTotals()
	assert.Equal(t, []core.CategoryAmount{{Name: "Housing", Amount: 10}, {Name: "Food", Amount: 4}}, cats)

	days := b.DailyTotals()
	assert.Equal(t, []core.DayAmount{{Date: "2024-03-01", Amount: 10}, {Date: "2024-03-02", Amount: 4}}, days)
}

func TestBillBook(t *testing.T) {
	b, err := NewBillBook(
		bill("ann", "open", "2024-03-10", 90),
		bill("ann", "paid", "2024-03-11", 10),
		bill("bob", "open", "2024-03-10", 20),
	)
	require.NoError(t, err)
	assert.Len(t, b.ByStatus(core.StatusOpen), 2)
	assert.Len(t, b.ByDueDate("2024-03-10"), 2)
	assert.Len(t, b.ByOwner("ann"), 2)
	assert.Equal(t, 120.0, b.Total())

	_, err = NewBillBook(bill("ann", "", "2024-03-10", 90))
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

func TestSummarize(t *testing.T) {
	s := Summarize("ann",
		[]core.Expense{expense("ann", "Food", "2024-03-01", 2), expense("ann", "Food", "2024-03-01", 3)},
		[]core.Bill{bill("ann", "open", "2024-03-10", 90), bill("ann", "paid", "2024-03-10", 10)},
	)
	assert.Equal(t, 5.0, s.Total)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 100.0, s.BillsTotal)
	assert.Equal(t, 1, s.OpenBills)
	assert.Len(t, s.ByCategory, 1)
}

func TestConcurrentAdd(t *testing.T) {
	b, _ := NewExpenseBook()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Add(expense(fmt.Sprintf("u%d", i), "Food", "2024-03-01", 1))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
	assert.Equal(t, 50.0, b.Total())
}
