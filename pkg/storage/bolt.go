package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timoknapp/gulfer/pkg/logger"
	"go.etcd.io/bbolt"
)

// BoltBackend implements Backend using BoltDB for persistence
type BoltBackend struct {
	db *bbolt.DB
}

// NewBoltBackend opens (or creates) a BoltDB file and makes sure every given
// bucket exists.
func NewBoltBackend(dbPath string, buckets ...string) (*BoltBackend, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	logger.Info("BoltDB store initialized at: %s", dbPath)
	return &BoltBackend{db: db}, nil
}

// Get retrieves a document by key. The returned slice is a copy and stays
// valid after the transaction.
func (s *BoltBackend) Get(bucket, key string) ([]byte, bool, error) {
	var value []byte
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil // bucket doesn't exist, return empty result
		}

		data := b.Get([]byte(key))
		if data == nil {
			return nil // key doesn't exist
		}

		found = true
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}

	return value, found, nil
}

// Put stores a document under the given key
func (s *BoltBackend) Put(bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
		}
		return b.Put([]byte(key), value)
	})
}

// Delete removes a document by key
func (s *BoltBackend) Delete(bucket, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil // bucket doesn't exist, nothing to delete
		}

		return b.Delete([]byte(key))
	})
}

// ForEach iterates over all entries of a bucket in key order
func (s *BoltBackend) ForEach(bucket string, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil // bucket doesn't exist, nothing to iterate
		}

		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), append([]byte(nil), v...))
		})
	})
}

// Buckets lists the bucket names in the file
func (s *BoltBackend) Buckets() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Close closes the BoltDB database
func (s *BoltBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
