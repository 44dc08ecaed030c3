package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/timoknapp/gulfer/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// kvEntry is one document row. Buckets share a single table.
type kvEntry struct {
	Bucket    string         `gorm:"column:bucket;primaryKey;type:varchar(64)"`
	Key       string         `gorm:"column:entry_key;primaryKey;type:varchar(255)"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLiteBackend implements Backend on a SQLite file through GORM.
type SQLiteBackend struct {
	db      *gorm.DB
	buckets map[string]struct{}
}

// NewSQLiteBackend opens the SQLite database at dsn. ":memory:" keeps the
// data in process.
func NewSQLiteBackend(dsn string, buckets ...string) (*SQLiteBackend, error) {
	if dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite at %s: %w", dsn, err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate kv_entries: %w", err)
	}

	known := make(map[string]struct{}, len(buckets))
	for _, b := range buckets {
		known[b] = struct{}{}
	}

	logger.Info("SQLite store initialized at: %s", dsn)
	return &SQLiteBackend{db: db, buckets: known}, nil
}

func (s *SQLiteBackend) Get(bucket, key string) ([]byte, bool, error) {
	var entry kvEntry
	err := s.db.Where("bucket = ? AND entry_key = ?", bucket, key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", bucket, key, err)
	}
	return []byte(entry.Value), true, nil
}

func (s *SQLiteBackend) Put(bucket, key string, value []byte) error {
	if _, ok := s.buckets[bucket]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	entry := &kvEntry{Bucket: bucket, Key: key, Value: datatypes.JSON(value)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
}

func (s *SQLiteBackend) Delete(bucket, key string) error {
	return s.db.Where("bucket = ? AND entry_key = ?", bucket, key).Delete(&kvEntry{}).Error
}

func (s *SQLiteBackend) ForEach(bucket string, fn func(key string, value []byte) error) error {
	var entries []kvEntry
	if err := s.db.Where("bucket = ?", bucket).Order("entry_key ASC").Find(&entries).Error; err != nil {
		return fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	for _, e := range entries {
		if err := fn(e.Key, []byte(e.Value)); err != nil {
			return err
		}
	}
	return nil
}

// Buckets returns the declared buckets plus any found in the table.
func (s *SQLiteBackend) Buckets() ([]string, error) {
	var stored []string
	if err := s.db.Model(&kvEntry{}).Distinct().Pluck("bucket", &stored).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(s.buckets)+len(stored))
	for b := range s.buckets {
		seen[b] = struct{}{}
	}
	for _, b := range stored {
		seen[b] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for b := range seen {
		names = append(names, b)
	}
	sort.Strings(names)
	return names, nil
}

func (s *SQLiteBackend) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
