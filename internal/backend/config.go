package backend

import (
	"fmt"

	"conti/internal/config"
)

// FromAppConfig builds the backend config for the given backend type,
// typically cfg.DataBackend or cfg.MirrorBackend.
func FromAppConfig(appConfig *config.Config, backendType string) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	bt := BackendType(backendType)
	if !bt.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", backendType)
	}

	return Config{
		Type:                     bt,
		DataDirectory:            appConfig.DataDir,
		JSONDocumentPath:         appConfig.JSONDocumentPath,
		SQLiteDBPath:             appConfig.SQLiteDBPath,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case CSVBackend:
		if c.DataDirectory == "" {
			return fmt.Errorf("data directory is required for csv backend")
		}
	case JSONBackend:
		if c.JSONDocumentPath == "" {
			return fmt.Errorf("JSON document path is required for json backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("service account credentials are required for sheets backend")
		}
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{CSVBackend.String(), JSONBackend.String(), SQLiteBackend.String(), SheetsBackend.String()}
}
