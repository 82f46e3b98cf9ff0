package backend

import (
	"context"
	"fmt"
	"log/slog"

	gsheet "conti/internal/sheets/google"
	"conti/internal/storage/csvfile"
	"conti/internal/storage/jsondoc"
	"conti/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		store, err := csvfile.Open(config.DataDirectory, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open csv backend: %w", err)
		}
		f.logger.Info("Initialized csv backend", "data_directory", config.DataDirectory)
		return &BackendResult{Backend: store, Cleanup: store.Close}, nil

	case JSONBackend:
		store, err := jsondoc.Open(config.JSONDocumentPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open json backend: %w", err)
		}
		f.logger.Info("Initialized json backend", "path", config.JSONDocumentPath)
		return &BackendResult{Backend: store, Cleanup: store.Close}, nil

	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil

	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
			Logger:          f.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)
		return &BackendResult{Backend: cli, Cleanup: cli.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
