// Package config provides configuration management for chain-sync.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Odoo     OdooConfig
	Explorer ExplorerConfig
	Paths    PathsConfig
	Debug    bool
}

// OdooConfig represents the ledger connection.
type OdooConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

// ExplorerConfig represents the block explorer API.
type ExplorerConfig struct {
	APIURL   string
	APIKey   string
	ChainID  int64
	MinDelay time.Duration
	PageSize int
}

// PathsConfig represents local state locations.
type PathsConfig struct {
	DataRoot      string
	DBPath        string
	MirrorRoot    string
	AccountsFile  string
	TargetsFile   string
	OfflineLedger string // local ledger file used instead of Odoo
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Optional.
		_ = godotenv.Load()
	}

	chainID, err := parseInt64Env("EXPLORER_CHAIN_ID", 1)
	if err != nil {
		return nil, err
	}

	pageSize, err := parseInt64Env("EXPLORER_PAGE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	minDelay, err := parseDurationEnv("EXPLORER_MIN_DELAY", 250*time.Millisecond)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Odoo: OdooConfig{
			URL:      strings.TrimSuffix(os.Getenv("ODOO_URL"), "/"),
			Database: os.Getenv("ODOO_DB"),
			Username: os.Getenv("ODOO_USERNAME"),
			Password: os.Getenv("ODOO_PASSWORD"),
		},
		Explorer: ExplorerConfig{
			APIURL:   getEnvOrDefault("EXPLORER_API_URL", "https://api.etherscan.io/v2/api"),
			APIKey:   os.Getenv("EXPLORER_API_KEY"),
			ChainID:  chainID,
			MinDelay: minDelay,
			PageSize: int(pageSize),
		},
		Paths: PathsConfig{
			DataRoot:      getEnvOrDefault("DATA_ROOT", "./data"),
			DBPath:        os.Getenv("DB_PATH"),
			MirrorRoot:    os.Getenv("MIRROR_ROOT"),
			AccountsFile:  os.Getenv("MIRROR_ACCOUNTS_FILE"),
			TargetsFile:   os.Getenv("TARGETS_FILE"),
			OfflineLedger: os.Getenv("OFFLINE_LEDGER"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that every required field is set. Each path names a field as
// section and key, e.g. []string{"odoo", "url"}.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "odoo":
			switch path[1] {
			case "url":
				value = c.Odoo.URL
			case "database":
				value = c.Odoo.Database
			case "username":
				value = c.Odoo.Username
			case "password":
				value = c.Odoo.Password
			}
		case "explorer":
			switch path[1] {
			case "apiUrl":
				value = c.Explorer.APIURL
			case "apiKey":
				value = c.Explorer.APIKey
			case "chainId":
				if c.Explorer.ChainID != 0 {
					value = "set"
				}
			}
		case "paths":
			switch path[1] {
			case "dataRoot":
				value = c.Paths.DataRoot
			case "targetsFile":
				value = c.Paths.TargetsFile
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// OdooRequired lists the fields needed to talk to the ledger. An offline ledger needs none.
func (c *Config) OdooRequired() [][]string {
	if c.Paths.OfflineLedger != "" {
		return nil
	}
	return [][]string{
		{"odoo", "url"},
		{"odoo", "database"},
		{"odoo", "username"},
		{"odoo", "password"},
	}
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt64Env parses an int64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseInt64Env(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseDurationEnv accepts a Go duration ("250ms") or a bare number of milliseconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}

	return parsed, nil
}
