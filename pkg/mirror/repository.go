package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opencollective/odoo-web3/pkg/pathutil"
)

// Repository defines the Beancount month file operations of the mirror.
type Repository interface {
	// AppendTransaction appends a transaction to a monthly file
	AppendTransaction(yearMonth, transaction string, comment ...string) error

	// ReadMonthFile reads the content of a monthly file
	ReadMonthFile(yearMonth string) (string, error)

	// MonthFilesInYear lists the months of a year that have a file
	MonthFilesInYear(year string) ([]string, error)
}

// FileSystemRepository keeps one file per month under the mirror root.
type FileSystemRepository struct {
	pathResolver *pathutil.PathResolver
	now          func() time.Time
}

// NewFileSystemRepository creates a new FileSystemRepository.
func NewFileSystemRepository(pathResolver *pathutil.PathResolver) *FileSystemRepository {
	return &FileSystemRepository{
		pathResolver: pathResolver,
		now:          time.Now,
	}
}

// AppendTransaction appends a transaction to a monthly file, creating the file if needed.
func (r *FileSystemRepository) AppendTransaction(yearMonth, transaction string, comment ...string) error {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return fmt.Errorf("failed to get month file path: %w", err)
	}

	if err := r.ensureMonthFile(yearMonth, filePath); err != nil {
		return fmt.Errorf("failed to ensure month file: %w", err)
	}

	var sb strings.Builder
	if len(comment) > 0 && comment[0] != "" {
		fmt.Fprintf(&sb, "; %s\n", comment[0])
	}
	sb.WriteString(transaction)
	if !strings.HasSuffix(transaction, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file for appending: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}

// ReadMonthFile reads the content of a monthly file.
// Returns empty string if file doesn't exist.
func (r *FileSystemRepository) ReadMonthFile(yearMonth string) (string, error) {
	filePath, err := r.pathResolver.GetMonthFilePath(yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to get month file path: %w", err)
	}

	if !r.pathResolver.FileExists(filePath) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return string(data), nil
}

// MonthFilesInYear returns the year-month keys with a file, e.g. ["2024-01", "2024-02"].
func (r *FileSystemRepository) MonthFilesInYear(year string) ([]string, error) {
	yearDir := r.pathResolver.GetYearDir(year)
	if !r.pathResolver.FileExists(yearDir) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(yearDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read year directory: %w", err)
	}

	var months []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); filepath.Ext(name) == ".beancount" {
			months = append(months, strings.TrimSuffix(name, ".beancount"))
		}
	}
	sort.Strings(months)

	return months, nil
}

func (r *FileSystemRepository) ensureMonthFile(yearMonth, filePath string) error {
	if r.pathResolver.FileExists(filePath) {
		return nil
	}

	if err := r.pathResolver.EnsureParentDir(filePath); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	header := fmt.Sprintf("; Token transfers for %s\n; Generated at %s\n\n", yearMonth, r.now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(filePath, []byte(header), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
