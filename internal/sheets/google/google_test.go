package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"conti/internal/core"
	"conti/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
)

// fakeSheets implements the handful of Sheets v4 endpoints the client uses,
// keeping every worksheet as a list of string rows.
type fakeSheets struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

func newFakeSheets(titles ...string) *fakeSheets {
	f := &fakeSheets{sheets: map[string][][]string{}}
	for _, t := range titles {
		f.sheets[t] = nil
	}
	return f
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	switch {
	case rest == "" && r.Method == http.MethodGet:
		var sheets []map[string]any
		for title := range f.sheets {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-id", "sheets": sheets})

	case rest == ":batchUpdate":
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct{ Title string } `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, q := range req.Requests {
			f.sheets[q.AddSheet.Properties.Title] = nil
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})

	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		if sheet, ok := strings.CutSuffix(rng, ":append"); ok {
			f.sheets[sheet] = append(f.sheets[sheet], decodeRows(r)...)
			writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})
			return
		}
		sheet, cells, _ := strings.Cut(rng, "!")
		rows, exists := f.sheets[sheet]
		if !exists {
			http.Error(w, `{"error":{"code":400,"message":"Unable to parse range"}}`, http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPut {
			f.sheets[sheet] = append(decodeRows(r), rows...)
			writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})
			return
		}
		if strings.HasSuffix(cells, "1") && len(rows) > 0 {
			rows = rows[:1]
		}
		values := make([][]any, len(rows))
		for i, row := range rows {
			for _, v := range row {
				values[i] = append(values[i], v)
			}
		}
		writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})

	default:
		http.NotFound(w, r)
	}
}

func decodeRows(r *http.Request) [][]string {
	var vr struct {
		Values [][]string `json:"values"`
	}
	json.NewDecoder(r.Body).Decode(&vr)
	return vr.Values
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-id",
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)
	return c
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	_, err := NewFromEnv(context.Background())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Options{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_CreatesWorksheetsAndHeaders(t *testing.T) {
	f := newFakeSheets("Sheet1")
	newTestClient(t, f)

	for _, title := range []string{UsersSheet, ExpensesSheet, BillsSheet} {
		rows, ok := f.sheets[title]
		require.True(t, ok, "worksheet %s not created", title)
		require.Len(t, rows, 1)
		assert.Equal(t, "username", rows[0][0])
	}
	assert.Len(t, f.sheets[BillsSheet][0], 10)
}

func TestAppendAndListRecords(t *testing.T) {
	f := newFakeSheets()
	c := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.AppendExpense(ctx, storagetest.Expense("ann", 12.5)))
	require.NoError(t, c.AppendExpense(ctx, storagetest.Expense("bob", 3)))
	require.NoError(t, c.AppendBill(ctx, storagetest.Bill("ann")))

	got, err := c.ListExpenses(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.5, got[0].Amount)
	assert.Equal(t, "2024-03-01", got[0].Date)

	bills, err := c.ListBills(ctx, "")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, []string{"A", "B", "C"}, bills[0].Participants)
	assert.Equal(t, 100.0/3, bills[0].AmountPerPerson)

	assert.ErrorIs(t, c.AppendExpense(ctx, storagetest.Expense("ann", -1)), core.ErrInvalidRecord)
}

func TestAppendUserRejectsDuplicate(t *testing.T) {
	f := newFakeSheets()
	c := newTestClient(t, f)
	ctx := context.Background()

	require.NoError(t, c.AppendUser(ctx, core.User{Username: "ann", PasswordHash: "h"}))
	assert.ErrorIs(t, c.AppendUser(ctx, core.User{Username: "ann", PasswordHash: "h2"}), core.ErrDuplicateUser)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestReadFailureIsStorageFailure(t *testing.T) {
	f := newFakeSheets()
	c := newTestClient(t, f)
	f.mu.Lock()
	delete(f.sheets, ExpensesSheet)
	f.mu.Unlock()

	_, err := c.ListExpenses(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrStorageFailure)
}
