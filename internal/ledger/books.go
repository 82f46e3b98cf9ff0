package ledger

import (
	"sort"

	"conti/internal/core"
)

// ExpenseBook adds expense specific queries to a Book.
type ExpenseBook struct {
	*Book[core.Expense]
}

func NewExpenseBook(expenses ...core.Expense) (*ExpenseBook, error) {
	b, err := NewBook(expenses...)
	if err != nil {
		return nil, err
	}
	return &ExpenseBook{Book: b}, nil
}

func (b *ExpenseBook) ByCategory(c core.Category) []core.Expense {
	return b.Filter("category", string(c))
}

func (b *ExpenseBook) ByDate(date string) []core.Expense { return b.Filter("date", date) }

func (b *ExpenseBook) ByOwner(username string) []core.Expense {
	return b.Filter("username", username)
}

// OwnerTotal is the sum of all expenses recorded by username.
func (b *ExpenseBook) OwnerTotal(username string) float64 {
	return sum(b.ByOwner(username))
}

// CategoryTotals aggregates expenses by category, largest first. Ties keep
// the order in which categories were first seen.
func CategoryTotals(expenses []core.Expense) []core.CategoryAmount {
	idx := map[core.Category]int{}
	var out []core.CategoryAmount
	for _, e := range expenses {
		i, ok := idx[e.Category]
		if !ok {
			i = len(out)
			idx[e.Category] = i
			out = append(out, core.CategoryAmount{Name: string(e.Category)})
		}
		out[i].Amount += e.Amount
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out
}

// DailyTotals aggregates expenses by date, ascending.
func DailyTotals(expenses []core.Expense) []core.DayAmount {
	byDate := map[string]float64{}
	for _, e := range expenses {
		byDate[e.Date] += e.Amount
	}
	out := make([]core.DayAmount, 0, len(byDate))
	for d, v := range byDate {
		out = append(out, core.DayAmount{Date: d, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (b *ExpenseBook) CategoryTotals() []core.CategoryAmount { return CategoryTotals(b.All()) }

func (b *ExpenseBook) DailyTotals() []core.DayAmount { return DailyTotals(b.All()) }

// BillBook adds bill specific queries to a Book.
type BillBook struct {
	*Book[core.Bill]
}

func NewBillBook(bills ...core.Bill) (*BillBook, error) {
	b, err := NewBook(bills...)
	if err != nil {
		return nil, err
	}
	return &BillBook{Book: b}, nil
}

func (b *BillBook) ByStatus(s core.BillStatus) []core.Bill { return b.Filter("status", string(s)) }

func (b *BillBook) ByDueDate(date string) []core.Bill { return b.Filter("due_date", date) }

func (b *BillBook) ByOwner(username string) []core.Bill { return b.Filter("username", username) }

// Summarize builds the overview for one user's expenses and bills.
func Summarize(username string, expenses []core.Expense, bills []core.Bill) core.Summary {
	s := core.Summary{
		Username:   username,
		Total:      sum(expenses),
		Count:      len(expenses),
		ByCategory: CategoryTotals(expenses),
		Daily:      DailyTotals(expenses),
		BillsTotal: sum(bills),
		BillCount:  len(bills),
	}
	for _, b := range bills {
		if b.Status == core.StatusOpen {
			s.OpenBills++
		}
	}
	return s
}
