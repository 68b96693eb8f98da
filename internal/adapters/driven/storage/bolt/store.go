// Package bolt provides a bbolt-backed snapshot store and embedding cache.
//
// Both live in one database file so a single path holds everything needed
// to restart the engine without calling the embedding provider.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/logger"
)

// Ensure Store implements the interfaces.
var (
	_ driven.SnapshotStore  = (*Store)(nil)
	_ driven.EmbeddingCache = (*Store)(nil)
)

var (
	bucketSnapshots  = []byte("snapshots")
	bucketEmbeddings = []byte("embeddings")

	keyCurrent = []byte("current")
	keySavedAt = []byte("saved_at")
)

// DefaultOpenTimeout bounds the wait for the file lock held by another process.
const DefaultOpenTimeout = 5 * time.Second

// Store wraps a bbolt database.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bolt: path is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: DefaultOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEmbeddings); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Location returns the database path.
func (s *Store) Location() string {
	return s.path
}

// Save buffers the snapshot and commits it in one transaction, so a failed
// write leaves the previous snapshot in place.
func (s *Store) Save(ctx context.Context, write func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if err := b.Put(keyCurrent, buf.Bytes()); err != nil {
			return err
		}
		return b.Put(keySavedAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	logger.Debug("bolt: saved %d byte snapshot to %s", buf.Len(), s.path)
	return nil
}

// Open returns a reader over the current snapshot.
func (s *Store) Open(_ context.Context) (io.ReadCloser, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get(keyCurrent)
		if v == nil {
			return fmt.Errorf("snapshot in %s: %w", s.path, domain.ErrNotFound)
		}
		// Values are only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Get returns the cached embedding for key.
func (s *Store) Get(_ context.Context, key string) ([]float32, bool, error) {
	var vec []float32
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketEmbeddings).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v)%4 != 0 {
			return fmt.Errorf("cache entry %s has %d bytes", key, len(v))
		}
		vec = decodeVector(v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return vec, vec != nil, nil
}

// Put stores an embedding under key.
func (s *Store) Put(_ context.Context, key string, vector []float32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put([]byte(key), encodeVector(vector))
	})
}

// CachedEmbeddings returns the number of cache entries.
func (s *Store) CachedEmbeddings() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
