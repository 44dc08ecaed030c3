// Package store holds the local entity stores for courses, users, rounds and
// the installation settings. Every store is a thin typed layer over a
// storage.Backend bucket of JSON documents.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/storage"
	"github.com/timoknapp/gulfer/pkg/util"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNameTaken = errors.New("name already in use")
	ErrInvalid   = errors.New("invalid entity")
)

const maxIDAttempts = 10

const (
	// reservedNameChars separate fields in exported rounds. Line breaks and
	// non-breaking spaces end a line once pasted text is normalized.
	reservedNameChars = ":|\r\n\u00a0"
	// reservedNameSuffix marks the winner on an exported player line.
	reservedNameSuffix = "(Winner)"
)

// ValidateName reports whether a user or player name survives an export and
// re-import unchanged.
func ValidateName(name string) error {
	n := util.TrimName(name)
	switch {
	case n == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case strings.ContainsAny(n, reservedNameChars):
		return fmt.Errorf("%w: name %q contains one of ':', '|' or a line break", ErrInvalid, n)
	case strings.HasSuffix(n, reservedNameSuffix):
		return fmt.Errorf("%w: name %q ends with %s", ErrInvalid, n, reservedNameSuffix)
	}
	return nil
}

// ReferenceRemover drops merge registry entries that point at a deleted
// local entity.
type ReferenceRemover interface {
	RemoveLocal(ctx context.Context, entityType models.EntityType, localID string) error
}

// Stores bundles the entity stores sharing one backend.
type Stores struct {
	Courses  *CourseStore
	Users    *UserStore
	Rounds   *RoundStore
	Settings *SettingsStore
}

// New wires all stores on the backend. refs may be nil.
func New(backend storage.Backend, policy storage.RetryPolicy, refs ReferenceRemover) *Stores {
	settings := &SettingsStore{
		records: collection[models.Settings]{backend: backend, bucket: storage.BucketSettings, policy: policy},
		users:   collection[userRecord]{backend: backend, bucket: storage.BucketUsers, policy: policy},
	}
	courses := &CourseStore{
		records: collection[courseRecord]{backend: backend, bucket: storage.BucketCourses, policy: policy},
		holes:   collection[holeRecord]{backend: backend, bucket: storage.BucketHoles, policy: policy},
		refs:    refs,
	}
	users := &UserStore{
		records:  collection[userRecord]{backend: backend, bucket: storage.BucketUsers, policy: policy},
		settings: settings,
		refs:     refs,
	}
	rounds := &RoundStore{
		records: collection[models.Round]{backend: backend, bucket: storage.BucketRounds, policy: policy},
		courses: courses,
	}
	return &Stores{Courses: courses, Users: users, Rounds: rounds, Settings: settings}
}

// collection is a typed view of one bucket.
type collection[T any] struct {
	backend storage.Backend
	bucket  string
	policy  storage.RetryPolicy
}

func (c collection[T]) get(id string) (T, bool, error) {
	var v T
	raw, found, err := c.backend.Get(c.bucket, id)
	if err != nil {
		return v, false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	if !found {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", c.bucket, id, err)
	}
	return v, true, nil
}

func (c collection[T]) exists(id string) (bool, error) {
	_, found, err := c.backend.Get(c.bucket, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return found, nil
}

// list decodes every document of the bucket in key order. Undecodable
// documents are logged and skipped.
func (c collection[T]) list() ([]T, error) {
	var out []T
	err := c.backend.ForEach(c.bucket, func(key string, value []byte) error {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			logger.Error("Failed to decode %s/%s: %v", c.bucket, key, err)
			return nil
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", storage.ErrStorage, c.bucket, err)
	}
	return out, nil
}

func (c collection[T]) keys() ([]string, error) {
	var keys []string
	err := c.backend.ForEach(c.bucket, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", storage.ErrStorage, c.bucket, err)
	}
	return keys, nil
}

func (c collection[T]) put(ctx context.Context, id string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c.bucket, id, err)
	}
	return storage.PutVerified(ctx, c.backend, c.bucket, id, raw, c.policy)
}

func (c collection[T]) remove(ctx context.Context, id string) error {
	return storage.DeleteVerified(ctx, c.backend, c.bucket, id, c.policy)
}

// newID returns a fresh identifier that is not used in the current snapshot
// of the bucket. Concurrent writers are not accounted for.
func (c collection[T]) newID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := uuid.NewString()
		taken, err := c.exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate a free id in %s", c.bucket)
}
