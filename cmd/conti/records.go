package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"conti/internal/core"
	"conti/internal/services"

	"github.com/google/subcommands"
)

type addExpenseCmd struct {
	*app
	user        string
	amount      string
	category    string
	description string
	date        string
}

func (*addExpenseCmd) Name() string     { return "add-expense" }
func (*addExpenseCmd) Synopsis() string { return "record an expense" }
func (*addExpenseCmd) Usage() string {
	return fmt.Sprintf(`add-expense -user <name> -amount <n> -category <c> -description <text> [-date YYYY-MM-DD]

  Records one expense for the user. The date defaults to today.
  Categories offered by the entry form: %s.
`, strings.Join(categoryNames(), ", "))
}

func (c *addExpenseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
	f.StringVar(&c.amount, "amount", "", "amount, e.g. 12.50 (required)")
	f.StringVar(&c.category, "category", "", "category (required)")
	f.StringVar(&c.description, "description", "", "what it was for (required)")
	f.StringVar(&c.date, "date", "", "date of the expense, defaults to today")
}

func (c *addExpenseCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date := c.date
	if date == "" {
		date = time.Now().Format(core.DateLayout)
	}
	in := core.ExpenseInput{Amount: c.amount, Category: c.category, Description: c.description, Date: date}
	if !core.ValidExpense(in) {
		fmt.Fprintln(c.stderr, "Error: -amount must be a positive number and -category, -description must be set")
		return subcommands.ExitUsageError
	}
	if !core.Category(strings.TrimSpace(c.category)).Known() {
		c.logger.Warn("Category is not one of the standard ones", "category", c.category)
	}

	return c.withSession(ctx, c.user, func(svc *services.LedgerService, sess *services.Session) error {
		e, err := svc.RecordExpense(ctx, sess, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Recorded %s for %s on %s (%s).\n", c.money(e.Amount), e.Description, e.Date, e.Category)
		return nil
	})
}

type expensesCmd struct {
	*app
	user     string
	category string
}

func (*expensesCmd) Name() string     { return "expenses" }
func (*expensesCmd) Synopsis() string { return "list a user's expenses" }
func (*expensesCmd) Usage() string {
	return `expenses -user <name> [-category <c>]
`
}

func (c *expensesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
	f.StringVar(&c.category, "category", "", "only this category")
}

func (c *expensesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withSession(ctx, c.user, func(svc *services.LedgerService, sess *services.Session) error {
		var list []core.Expense
		if c.category != "" {
			list = svc.ExpensesIn(ctx, sess, core.Category(strings.TrimSpace(c.category)))
		} else {
			list = svc.Expenses(ctx, sess)
		}
		if len(list) == 0 {
			fmt.Fprintln(c.stdout, "No expenses recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tCATEGORY\tDESCRIPTION\tAMOUNT")
		total := 0.0
		for _, e := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Date, e.Category, e.Description, c.money(e.Amount))
			total += e.Amount
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Total: %s (%d expenses)\n", c.money(total), len(list))
		return nil
	})
}

type summaryCmd struct {
	*app
	user string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "totals by category and bill counts" }
func (*summaryCmd) Usage() string {
	return `summary -user <name>
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withSession(ctx, c.user, func(svc *services.LedgerService, sess *services.Session) error {
		s := svc.Summary(ctx, sess)
		fmt.Fprintf(c.stdout, "Expenses: %d, total %s\n", s.Count, c.money(s.Total))
		tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		for _, ca := range s.ByCategory {
			fmt.Fprintf(tw, "  %s\t%s\n", ca.Name, c.money(ca.Amount))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Bills: %d (%d open), total %s\n", s.BillCount, s.OpenBills, c.money(s.BillsTotal))
		return nil
	})
}

type splitCmd struct {
	*app
	user         string
	description  string
	total        string
	participants string
	splitType    string
	date         string
	due          string
	status       string
}

func (*splitCmd) Name() string     { return "split" }
func (*splitCmd) Synopsis() string { return "split a bill and record it" }
func (*splitCmd) Usage() string {
	return `split -user <name> -description <text> -total <n> -participants "A, B, C" [-type equal]

  Divides the total among the comma separated participants, prints what
  each person should pay and records the bill. Shares are rounded to
  cents; any cent left over by rounding is reported.
`
}

func (c *splitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
	f.StringVar(&c.description, "description", "", "what the bill was for (required)")
	f.StringVar(&c.total, "total", "", "bill total (required)")
	f.StringVar(&c.participants, "participants", "", "comma separated names (required)")
	f.StringVar(&c.splitType, "type", string(core.Equal), "split type: equal or custom")
	f.StringVar(&c.date, "date", "", "bill date, defaults to today")
	f.StringVar(&c.due, "due", "", "due date, defaults to the bill date")
	f.StringVar(&c.status, "status", "", "bill status, defaults to open")
}

func (c *splitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	req := services.SplitRequest{
		Description:  c.description,
		Total:        c.total,
		Participants: c.participants,
		SplitType:    c.splitType,
		Date:         c.date,
		DueDate:      c.due,
		Status:       c.status,
	}
	return c.withSession(ctx, c.user, func(svc *services.LedgerService, sess *services.Session) error {
		b, res, err := svc.SplitBill(ctx, sess, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Bill %q recorded: %s split among %d.\n",
			b.Description, c.money(b.TotalAmount), len(b.Participants))
		fmt.Fprintln(c.stdout, "Each person should pay:")
		tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		for _, sh := range res.Shares() {
			fmt.Fprintf(tw, "  %s\t%s\n", sh.Name, c.money(sh.Amount.InexactFloat64()))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if d := res.Discrepancy(); !d.IsZero() {
			fmt.Fprintf(c.stdout, "Rounding leaves %s unassigned.\n", c.money(d.InexactFloat64()))
		}
		return nil
	})
}

type billsCmd struct {
	*app
	user   string
	status string
}

func (*billsCmd) Name() string     { return "bills" }
func (*billsCmd) Synopsis() string { return "list a user's bills, newest first" }
func (*billsCmd) Usage() string {
	return `bills -user <name> [-status open|paid]
`
}

func (c *billsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
	f.StringVar(&c.status, "status", "", "only bills with this status")
}

func (c *billsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withSession(ctx, c.user, func(svc *services.LedgerService, sess *services.Session) error {
		var list []core.Bill
		if c.status != "" {
			list = svc.BillsWithStatus(ctx, sess, core.BillStatus(strings.TrimSpace(c.status)))
		} else {
			list = svc.Bills(ctx, sess)
		}
		if len(list) == 0 {
			fmt.Fprintln(c.stdout, "No bills recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tDUE\tSTATUS\tDESCRIPTION\tTOTAL\tEACH\tPARTICIPANTS")
		for i := len(list) - 1; i >= 0; i-- {
			b := list[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				b.Date, b.DueDate, b.Status, b.Description,
				c.money(b.TotalAmount), c.money(b.AmountPerPerson), strings.Join(b.Participants, ", "))
		}
		return tw.Flush()
	})
}

func categoryNames() []string {
	out := make([]string, len(core.Categories))
	for i, cat := range core.Categories {
		out[i] = cat.String()
	}
	return out
}
