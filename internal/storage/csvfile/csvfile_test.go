package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conti/internal/core"
	"conti/internal/storage"
	"conti/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestCSVBackend(t *testing.T) {
	suite.Run(t, &storagetest.BackendSuite{
		Open: func(dir string) (storage.Backend, error) { return Open(dir, nil) },
	})
}

func TestOpenWritesHeaders(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, ExpensesFile))
	require.NoError(t, err)
	assert.Equal(t, "username,description,amount,category,date,created_at\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, UsersFile))
	require.NoError(t, err)
	assert.Equal(t, "username,password_hash,email\n", string(data))
}

func TestRowLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.AppendBill(ctx, storagetest.Bill("ann")))
	data, err := os.ReadFile(filepath.Join(dir, BillsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		`ann,dinner,100,"A,B,C",equal,33.333333333333336,2024-03-01,2024-03-01 12:00:00,2024-03-15,open`,
		lines[1])
}

func TestLegacyBillRows(t *testing.T) {
	dir := t.TempDir()
	legacy := "username,description,total_amount,participants,split_type,amount_per_person,date,created_at\n" +
		"ann,rent,90.0,\"A,B,C\",Equal,30.0,2024-01-05,2024-01-05 10:00:00\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, BillsFile), []byte(legacy), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	bills, err := s.ListBills(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "2024-01-05", bills[0].DueDate)
	assert.Equal(t, core.StatusOpen, bills[0].Status)
	assert.Equal(t, []string{"A", "B", "C"}, bills[0].Participants)
	assert.Equal(t, 30.0, bills[0].AmountPerPerson)
	assert.Equal(t, core.Equal, bills[0].SplitType)
	assert.NoError(t, bills[0].Validate())
}

func TestMalformedRowsSkipped(t *testing.T) {
	dir := t.TempDir()
	content := "username,description,amount,category,date,created_at\n" +
		"ann,ok,5,Food,2024-01-01,2024-01-01 10:00:00\n" +
		"ann,bad,five,Food,2024-01-01,2024-01-01 10:00:00\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ExpensesFile), []byte(content), 0o644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	got, err := s.ListExpenses(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Description)
}

func TestNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendExpense(context.Background(), storagetest.Expense("ann", 3)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
	}
}
