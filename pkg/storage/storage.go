// Package storage is the local key-value persistence under every entity
// store. Values are JSON documents grouped into buckets and keyed by string.
package storage

import (
	"errors"
	"fmt"

	"github.com/timoknapp/gulfer/pkg/config"
)

// Logical buckets used by the application.
const (
	BucketCourses  = "courses"
	BucketHoles    = "holes"
	BucketUsers    = "users"
	BucketRounds   = "rounds"
	BucketSettings = "settings"
	BucketMerge    = "merge_registry"
)

// AllBuckets lists every bucket created on open.
var AllBuckets = []string{
	BucketCourses,
	BucketHoles,
	BucketUsers,
	BucketRounds,
	BucketSettings,
	BucketMerge,
}

// ErrStorage marks failures of the underlying engine that survived retries.
var ErrStorage = errors.New("storage error")

// ErrUnknownBucket is returned when writing to a bucket that was never created.
var ErrUnknownBucket = errors.New("unknown bucket")

// Backend provides the raw document operations the stores are built on.
type Backend interface {
	Get(bucket, key string) ([]byte, bool, error)
	Put(bucket, key string, value []byte) error
	Delete(bucket, key string) error
	// ForEach visits entries in ascending key order. Returning an error stops
	// the iteration and is passed through.
	ForEach(bucket string, fn func(key string, value []byte) error) error
	Buckets() ([]string, error)
	Close() error
}

// Open creates the backend selected by the configuration.
func Open(cfg config.DBConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverBolt, "":
		return NewBoltBackend(cfg.Path, AllBuckets...)
	case config.DriverSQLite:
		return NewSQLiteBackend(cfg.Path, AllBuckets...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
