// Package local implements shard storage and the missing-period log on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// Config captures the parameters for the local filesystem shard store.
type Config struct {
	// BaseDir is the root directory where shards will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ShardStore writes shard artifacts to the local filesystem.
type ShardStore struct {
	baseDir string
}

// New creates a new local filesystem-backed shard store.
func New(cfg Config) (*ShardStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ShardStore{baseDir: cfg.BaseDir}, nil
}

// Exists reports whether a shard with the given name is present.
func (s *ShardStore) Exists(_ context.Context, name string) (bool, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat shard: %w", err)
	}
	return true, nil
}

// Create writes data to a temporary file and hard-links it into place, so readers
// never observe a partial shard. It returns a file:// URI.
func (s *ShardStore) Create(_ context.Context, name string, data []byte) (string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(fullPath); err == nil {
		return "", fmt.Errorf("%s: %w", name, quake.ErrShardExists)
	}

	tmp, err := os.CreateTemp(s.baseDir, "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write shard: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync shard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close shard: %w", err)
	}
	// Link fails if the target appeared in the meantime, unlike Rename.
	if err := os.Link(tmpName, fullPath); err != nil {
		cleanup()
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%s: %w", name, quake.ErrShardExists)
		}
		return "", fmt.Errorf("publish shard: %w", err)
	}
	cleanup()
	return fmt.Sprintf("file://%s", fullPath), nil
}

// List returns the names of all shards in lexical order. Temporary files and
// subdirectories are skipped.
func (s *ShardStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a reader over a stored shard.
func (s *ShardStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to baseDir by resolve.
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, quake.ErrShardNotFound)
		}
		return nil, fmt.Errorf("open shard: %w", err)
	}
	return f, nil
}

func (s *ShardStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	fullPath := filepath.Join(s.baseDir, name)

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
