package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// MissingLog appends one "<year>_<MonthName>.html" line per failed period.
// Appends are serialised so concurrent workers never interleave lines.
type MissingLog struct {
	mu   sync.Mutex
	path string
}

// NewMissingLog prepares an append-only log at path, creating parent
// directories as needed. Existing content is preserved.
func NewMissingLog(path string) (*MissingLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("missing log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create missing log directory: %w", err)
	}
	return &MissingLog{path: path}, nil
}

// Path returns the log location.
func (l *MissingLog) Path() string {
	return l.path
}

// Append writes a single line for period.
func (l *MissingLog) Append(_ context.Context, period quake.Period) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open missing log: %w", err)
	}
	if _, err := f.WriteString(period.LogName() + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append missing log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close missing log: %w", err)
	}
	return nil
}
