// Package state persists the last successfully observed fact per target as
// a durable key/value map. Values are opaque JSON; callers own the schema.
package state

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrNotExist is returned by Get for a key with no persisted value. A fresh
// target is in this state until its first successful observation seeds it.
var ErrNotExist = errors.New("state: key does not exist")

// Store is the durable key -> value map used to remember the last observed
// fact per target. Implementations must never report a partial write as
// success; a failed Set leaves the previous value readable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// objectName derives a stable, path-safe object name from a state key.
// Keys contain ':' and arbitrary target names, so they are hashed rather
// than sanitized.
func objectName(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("state-%x.json", h[:8])
}

// FileStore keeps one JSON file per key under a local directory. Used for
// development and for single-host deployments.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Get returns the stored value for key, or ErrNotExist.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, objectName(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

// Set writes the value for key. The write goes through a temp file and
// rename so a crash mid-write cannot leave a truncated value behind.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	path := filepath.Join(s.dir, objectName(key))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	s.logger.Debug("State saved", "key", key, "bytes", len(value))
	return nil
}
