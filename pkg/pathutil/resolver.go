// Package pathutil provides centralized path management for the data root, the history
// database and the Beancount mirror.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver manages paths for the history database and mirror files.
type PathResolver struct {
	dataRoot     string
	databasePath string
	mirrorRoot   string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// DataRoot is the root directory for local state (e.g., ~/.odoo-web3)
	DataRoot string
	// DatabasePath is the path to the SQLite import history
	DatabasePath string
	// MirrorRoot is the root directory of the Beancount mirror
	MirrorRoot string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {DataRoot}/.sync/history.db
// If MirrorRoot is empty, it defaults to {DataRoot}/beancount
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.DataRoot, ".sync", "history.db")
	}

	mirrorRoot := config.MirrorRoot
	if mirrorRoot == "" {
		mirrorRoot = filepath.Join(config.DataRoot, "beancount")
	}

	return &PathResolver{
		dataRoot:     config.DataRoot,
		databasePath: dbPath,
		mirrorRoot:   mirrorRoot,
	}
}

// GetDataRoot returns the data root directory.
func (p *PathResolver) GetDataRoot() string {
	return p.dataRoot
}

// GetDatabasePath returns the database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetMirrorRoot returns the mirror root directory.
func (p *PathResolver) GetMirrorRoot() string {
	return p.mirrorRoot
}

// GetYearDir returns the mirror directory of a year.
// Example: ~/.odoo-web3/beancount/2024
func (p *PathResolver) GetYearDir(year string) string {
	return filepath.Join(p.mirrorRoot, year)
}

// GetMonthFilePath returns the mirror file of a month.
// yearMonth should be in YYYY-MM format.
// Example: ~/.odoo-web3/beancount/2024/2024-01.beancount
func (p *PathResolver) GetMonthFilePath(yearMonth string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}

	return filepath.Join(p.GetYearDir(parts[0]), yearMonth+".beancount"), nil
}

// EnsureDir creates a directory and its parents if they don't exist.
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
