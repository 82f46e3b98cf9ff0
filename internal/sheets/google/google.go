// Package google stores users, expenses and bills as worksheets of one
// Google spreadsheet, using the same columns as the CSV backend.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"conti/internal/core"
	"conti/internal/storage"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Worksheet titles.
const (
	UsersSheet    = "Users"
	ExpensesSheet = "Expenses"
	BillsSheet    = "Bills"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *slog.Logger

	mu sync.Mutex // serializes the duplicate check with the user append
}

var _ storage.Backend = (*Client)(nil)

// Options configures New. Extra client options are appended after the
// credentials, which lets tests point the client at a local server.
type Options struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	ClientOptions   []goption.ClientOption
	Logger          *slog.Logger
}

// NewFromEnv creates a client from GOOGLE_SPREADSHEET_ID and service
// account credentials in GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return New(ctx, Options{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: file,
	})
}

// New builds the Sheets service and makes sure the three worksheets exist
// with their header rows.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts, err := credentialOptions(ctx, logger, opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, append(clientOpts, opts.ClientOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	c := &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, logger: logger.With("store", "sheets")}
	if err := c.ensureSheets(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func credentialOptions(ctx context.Context, logger *slog.Logger, opts Options) ([]goption.ClientOption, error) {
	var creds []byte
	switch {
	case opts.CredentialsJSON != "":
		logger.InfoContext(ctx, "Using inline JSON credentials")
		creds = []byte(opts.CredentialsJSON)
	case opts.CredentialsFile != "":
		logger.InfoContext(ctx, "Reading credentials from file", "path", opts.CredentialsFile)
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	case len(opts.ClientOptions) > 0:
		return nil, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

func (c *Client) Close() error { return nil }

// ensureSheets adds missing worksheets and writes headers on empty ones.
func (c *Client) ensureSheets(ctx context.Context) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return storage.Failure("read spreadsheet", err)
	}
	existing := map[string]bool{}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	tables := []struct {
		title  string
		header []string
	}{
		{UsersSheet, storage.UserHeader},
		{ExpensesSheet, storage.ExpenseHeader},
		{BillsSheet, storage.BillHeader},
	}

	var add []*gsheet.Request
	for _, t := range tables {
		if !existing[t.title] {
			add = append(add, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: t.title},
			}})
		}
	}
	if len(add) > 0 {
		_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: add}).
			Context(ctx).Do()
		if err != nil {
			return storage.Failure("add worksheets", err)
		}
		c.logger.InfoContext(ctx, "Created worksheets", "count", len(add))
	}

	for _, t := range tables {
		rng := t.title + "!A1:J1"
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return storage.Failure("read "+rng, err)
		}
		if len(resp.Values) > 0 {
			continue
		}
		vr := &gsheet.ValueRange{Values: [][]any{toValues(t.header)}}
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, t.title+"!A1", vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return storage.Failure("write header "+t.title, err)
		}
	}
	return nil
}

// readRows returns the data rows of a worksheet, skipping the header.
func (c *Client) readRows(ctx context.Context, sheet string) ([][]string, error) {
	rng := sheet + "!A:J"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, storage.Failure("read "+rng, err)
	}
	var out [][]string
	for i, row := range resp.Values {
		cols := toStrings(row)
		if i == 0 && len(cols) > 0 && cols[0] == "username" {
			continue
		}
		if len(cols) == 0 || slices.Equal(cols, make([]string, len(cols))) {
			continue
		}
		out = append(out, cols)
	}
	return out, nil
}

// appendRow adds row after the last row of sheet. RAW input keeps dates
// and amounts exactly as written instead of letting Sheets reformat them.
func (c *Client) appendRow(ctx context.Context, sheet string, row []string) error {
	vr := &gsheet.ValueRange{Values: [][]any{toValues(row)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return storage.Failure("append "+sheet, err)
	}
	return nil
}

func (c *Client) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := c.readRows(ctx, UsersSheet)
	if err != nil {
		return nil, err
	}
	users := make([]core.User, 0, len(rows))
	for _, row := range rows {
		// Sheets omits trailing empty cells, e.g. a mirrored user without hash or email.
		for len(row) < len(storage.UserHeader) {
			row = append(row, "")
		}
		u, err := storage.ParseUserRow(row)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping malformed row", "sheet", UsersSheet, "error", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// AppendUser checks for the username before appending. The check is only
// atomic within this process.
func (c *Client) AppendUser(ctx context.Context, u core.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	users, err := c.ListUsers(ctx)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(users, func(x core.User) bool { return x.Username == u.Username }) {
		return fmt.Errorf("append user %q: %w", u.Username, core.ErrDuplicateUser)
	}
	return c.appendRow(ctx, UsersSheet, storage.UserRow(u))
}

func (c *Client) ListExpenses(ctx context.Context, owner string) ([]core.Expense, error) {
	rows, err := c.readRows(ctx, ExpensesSheet)
	if err != nil {
		return nil, err
	}
	var out []core.Expense
	for _, row := range rows {
		e, err := storage.ParseExpenseRow(row)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping malformed row", "sheet", ExpensesSheet, "error", err)
			continue
		}
		if owner == "" || e.Owner == owner {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Client) AppendExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("append expense: %w", err)
	}
	return c.appendRow(ctx, ExpensesSheet, storage.ExpenseRow(e))
}

func (c *Client) ListBills(ctx context.Context, owner string) ([]core.Bill, error) {
	rows, err := c.readRows(ctx, BillsSheet)
	if err != nil {
		return nil, err
	}
	var out []core.Bill
	for _, row := range rows {
		b, err := storage.ParseBillRow(row)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping malformed row", "sheet", BillsSheet, "error", err)
			continue
		}
		if owner == "" || b.Owner == owner {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *Client) AppendBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("append bill: %w", err)
	}
	return c.appendRow(ctx, BillsSheet, storage.BillRow(b))
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toValues(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
