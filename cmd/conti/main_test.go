package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conti/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv points the ledger at a fresh csv directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_BACKEND", "csv")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("CURRENCY_SYMBOL", "USD")
	return dir
}

func conti(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"-env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func register(t *testing.T, user, password string) {
	t.Helper()
	code, out, errOut := conti(t, password+"\n", "register", "-user", user, "-email", user+"@example.com")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Registered "+user)
}

func TestRegisterAndWhoami(t *testing.T) {
	setupEnv(t)
	register(t, "ann", "s3cret")

	code, _, errOut := conti(t, "other\n", "register", "-user", "ann")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "username already exists")

	code, out, _ := conti(t, "s3cret\n", "whoami", "-user", "ann")
	assert.Equal(t, 0, code)
	assert.Equal(t, "ann <ann@example.com>\n", out)

	code, _, errOut = conti(t, "wrong\n", "whoami", "-user", "ann")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid username or password")
}

func TestRequiresUser(t *testing.T) {
	setupEnv(t)
	for _, cmd := range []string{"register", "login", "expenses", "bills", "summary"} {
		code, _, errOut := conti(t, "", cmd)
		assert.Equal(t, 2, code, cmd)
		assert.Contains(t, errOut, "-user is required", cmd)
	}
}

func TestLoginPrintsToken(t *testing.T) {
	setupEnv(t)
	register(t, "ann", "pw")

	code, out, _ := conti(t, "pw\n", "login", "-user", "ann")
	require.Equal(t, 0, code)
	assert.Equal(t, "Logged in as ann.\n", out)

	t.Setenv("JWT_SECRET", "0123456789abcdef-test")
	code, out, _ = conti(t, "pw\n", "login", "-user", "ann")
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	username, err := auth.NewTokenManager("0123456789abcdef-test", time.Hour).Parse(lines[1])
	require.NoError(t, err)
	assert.Equal(t, "ann", username)
}

func TestExpenses(t *testing.T) {
	setupEnv(t)
	register(t, "ann", "pw")

	code, out, errOut := conti(t, "pw\n", "add-expense", "-user", "ann",
		"-amount", "12.50", "-category", "Food", "-description", "lunch", "-date", "2024-03-01")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Recorded $12.50 for lunch on 2024-03-01 (Food).\n", out)

	code, _, errOut = conti(t, "pw\n", "add-expense", "-user", "ann",
		"-amount", "7.25", "-category", "Transportation", "-description", "bus")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = conti(t, "pw\n", "add-expense", "-user", "ann",
		"-amount", "-3", "-category", "Food", "-description", "refund")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "positive number")

	code, out, _ = conti(t, "pw\n", "expenses", "-user", "ann")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "lunch")
	assert.Contains(t, out, "bus")
	assert.Contains(t, out, "Total: $19.75 (2 expenses)")

	code, out, _ = conti(t, "pw\n", "expenses", "-user", "ann", "-category", "Food")
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "bus")
	assert.Contains(t, out, "Total: $12.50 (1 expenses)")

	code, out, _ = conti(t, "pw\n", "summary", "-user", "ann")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Expenses: 2, total $19.75")
	assert.Contains(t, out, "Bills: 0 (0 open), total $0.00")
}

func TestSplitAndBills(t *testing.T) {
	setupEnv(t)
	register(t, "ann", "pw")

	code, out, errOut := conti(t, "pw\n", "split", "-user", "ann",
		"-description", "dinner", "-total", "100", "-participants", "A, B, C", "-date", "2024-03-01")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `Bill "dinner" recorded: $100.00 split among 3.`)
	assert.Contains(t, out, "Each person should pay:")
	assert.Equal(t, 3, strings.Count(out, "$33.33"))
	assert.Contains(t, out, "Rounding leaves $0.01 unassigned.")

	code, out, _ = conti(t, "pw\n", "split", "-user", "ann",
		"-description", "taxi", "-total", "90", "-participants", "A,B,C", "-status", "paid")
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "Rounding")

	code, _, errOut = conti(t, "pw\n", "split", "-user", "ann",
		"-description", "gift", "-total", "50", "-participants", "A,B", "-type", "custom")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "custom splits are not yet supported")

	code, _, errOut = conti(t, "pw\n", "split", "-user", "ann",
		"-description", "gift", "-total", "50", "-participants", " , ")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no participants")

	code, out, _ = conti(t, "pw\n", "bills", "-user", "ann")
	require.Equal(t, 0, code)
	assert.Less(t, strings.Index(out, "taxi"), strings.Index(out, "dinner"), "newest bill first")

	code, out, _ = conti(t, "pw\n", "bills", "-user", "ann", "-status", "paid")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "taxi")
	assert.NotContains(t, out, "dinner")
}

func TestBackendOverride(t *testing.T) {
	setupEnv(t)
	doc := filepath.Join(t.TempDir(), "ledger.json")
	t.Setenv("JSON_DOCUMENT_PATH", doc)

	code, _, errOut := conti(t, "pw\n", "-backend", "json", "register", "-user", "ann")
	require.Equal(t, 0, code, errOut)
	assert.FileExists(t, doc)

	code, _, errOut = conti(t, "", "-backend", "floppy", "commands")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid data backend")
}

func TestServeRequiresSecret(t *testing.T) {
	setupEnv(t)
	code, _, errOut := conti(t, "", "serve")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "JWT_SECRET is required")
}
