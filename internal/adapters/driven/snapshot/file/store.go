// Package file provides a filesystem snapshot store.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.SnapshotStore = (*Store)(nil)

// DefaultFileName is the snapshot file name under the default data directory.
const DefaultFileName = "index.snapshot.json"

// Store writes snapshots to a single file. Saves go to a temporary file in
// the same directory and are renamed into place.
type Store struct {
	path string
}

// NewStore creates a store for path. If path is empty, defaults to
// ~/.exportrag/data/index.snapshot.json.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".exportrag", "data", DefaultFileName)
	}
	return &Store{path: path}, nil
}

// Location returns the snapshot file path.
func (s *Store) Location() string {
	return s.path
}

// Save streams the snapshot to a temp file and atomically renames it.
func (s *Store) Save(ctx context.Context, write func(w io.Writer) error) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing snapshot: %w", err)
	}
	committed = true
	return nil
}

// Open returns the snapshot file.
func (s *Store) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("snapshot %s: %w", s.path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	return f, nil
}
