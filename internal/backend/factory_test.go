package backend

import (
	"context"
	"path/filepath"
	"testing"

	"conti/internal/config"
	"conti/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFileBackends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f := NewFactory(nil)

	configs := []Config{
		{Type: CSVBackend, DataDirectory: filepath.Join(dir, "csv")},
		{Type: JSONBackend, JSONDocumentPath: filepath.Join(dir, "doc", "data.json")},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "db", "conti.db")},
	}
	for _, cfg := range configs {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateBackend(ctx, cfg)
			require.NoError(t, err)
			require.NotNil(t, res.Cleanup)
			defer res.Cleanup()

			require.NoError(t, res.Backend.AppendExpense(ctx, storagetest.Expense("ann", 3)))
			list, err := res.Backend.ListExpenses(ctx, "ann")
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestCreateBackendRejectsBadConfig(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	_, err := f.CreateBackend(ctx, Config{Type: "memory"})
	assert.ErrorContains(t, err, "invalid backend type")

	_, err = f.CreateBackend(ctx, Config{Type: SheetsBackend, GoogleSpreadsheetID: "id"})
	assert.ErrorContains(t, err, "credentials are required")

	_, err = f.CreateBackend(ctx, Config{Type: SQLiteBackend})
	assert.ErrorContains(t, err, "SQLite database path is required")
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{DataDir: "d", JSONDocumentPath: "j", SQLiteDBPath: "s", GoogleSpreadsheetID: "g"}

	cfg, err := FromAppConfig(app, "json")
	require.NoError(t, err)
	assert.Equal(t, JSONBackend, cfg.Type)
	assert.Equal(t, "j", cfg.JSONDocumentPath)
	assert.Equal(t, "g", cfg.GoogleSpreadsheetID)

	_, err = FromAppConfig(app, "memory")
	assert.Error(t, err)
	_, err = FromAppConfig(nil, "csv")
	assert.Error(t, err)

	assert.Equal(t, config.Backends, GetBackendTypeStrings())
}
