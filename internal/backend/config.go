package backend

import (
	"errors"
	"fmt"

	"capex/internal/config"
)

// FromAppConfig converts the application config to the primary backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	return fromAppConfig(appConfig, appConfig.Backend)
}

// MirrorFromAppConfig is the config of the worker's mirror store. ok is false
// when no mirror is configured.
func MirrorFromAppConfig(appConfig *config.Config) (cfg Config, ok bool, err error) {
	if appConfig == nil {
		return Config{}, false, errors.New("app config is nil")
	}
	if appConfig.MirrorBackend == "" {
		return Config{}, false, nil
	}
	cfg, err = fromAppConfig(appConfig, appConfig.MirrorBackend)
	if err != nil {
		return Config{}, false, err
	}
	cfg.Breaker.Name = "mirror"
	return cfg, true, nil
}

func fromAppConfig(appConfig *config.Config, backend string) (Config, error) {
	backendType := BackendType(backend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", backend)
	}

	br := appConfig.Breaker()
	br.Name = backendType.String()
	return Config{
		Type: backendType,

		SeedFile:     appConfig.SeedFile,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresURL:  appConfig.PostgresURL,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,

		Calendar: appConfig.Calendar(),
		Breaker:  br,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresURL == "" {
			return errors.New("Postgres URL is required for postgres backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile == "" {
			return errors.New("service account credentials are required for sheets backend")
		}
	case MemoryBackend:
		// A missing seed file yields an empty store.
	}

	return c.Calendar.Validate()
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend, SheetsBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
