// Package merge maps entities imported from other installations onto their
// local copies so repeated imports resolve instead of duplicating.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/storage"
)

var ErrUnsupportedEntity = errors.New("unsupported entity type")

const keySep = "|"

// keyEscaper keeps a separator inside an id from shifting key parts.
var keyEscaper = strings.NewReplacer("%", "%25", keySep, "%7C")

// Registry persists (storageId, type, foreignId) -> localId mappings in the
// merge_registry bucket.
type Registry struct {
	mu      sync.Mutex
	backend storage.Backend
	policy  storage.RetryPolicy
	now     func() time.Time
}

func New(backend storage.Backend, policy storage.RetryPolicy) *Registry {
	return &Registry{backend: backend, policy: policy, now: time.Now}
}

func entryKey(storageID string, t models.EntityType, foreignID string) string {
	return strings.Join([]string{
		keyEscaper.Replace(storageID),
		keyEscaper.Replace(string(t)),
		keyEscaper.Replace(foreignID),
	}, keySep)
}

func checkType(t models.EntityType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedEntity, t)
	}
	return nil
}

func (r *Registry) get(key string) (models.MergeEntry, bool, error) {
	raw, found, err := r.backend.Get(storage.BucketMerge, key)
	if err != nil {
		return models.MergeEntry{}, false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	if !found {
		return models.MergeEntry{}, false, nil
	}
	var e models.MergeEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.MergeEntry{}, false, fmt.Errorf("decode merge entry %s: %w", key, err)
	}
	return e, true, nil
}

// GetLocalIDForForeign returns the local id a foreign entity was mapped to.
func (r *Registry) GetLocalIDForForeign(ctx context.Context, storageID, foreignID string, t models.EntityType) (string, bool, error) {
	if err := checkType(t); err != nil {
		return "", false, err
	}
	if storageID == "" || foreignID == "" {
		return "", false, nil
	}
	e, found, err := r.get(entryKey(storageID, t, foreignID))
	if err != nil || !found {
		return "", false, err
	}
	return e.LocalID, true, nil
}

// MapForeignToLocal records a mapping. Mapping the same triple to the same
// local id again is a no-op; a different local id replaces the old one.
func (r *Registry) MapForeignToLocal(ctx context.Context, storageID, foreignID, localID string, t models.EntityType) error {
	if err := checkType(t); err != nil {
		return err
	}
	if storageID == "" || foreignID == "" || localID == "" {
		return fmt.Errorf("merge mapping needs storage, foreign and local ids")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey(storageID, t, foreignID)
	prev, found, err := r.get(key)
	if err != nil {
		return err
	}
	if found && prev.LocalID == localID {
		return nil
	}
	if found {
		logger.WithFields(logrus.Fields{
			"storage_id": storageID,
			"foreign_id": foreignID,
			"entity":     string(t),
			"previous":   prev.LocalID,
			"local_id":   localID,
		}).Warn("Overwriting merge mapping")
	}

	raw, err := json.Marshal(models.MergeEntry{
		StorageID:  storageID,
		ForeignID:  foreignID,
		EntityType: t,
		LocalID:    localID,
		UpdatedAt:  r.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return storage.PutVerified(ctx, r.backend, storage.BucketMerge, key, raw, r.policy)
}

// Entries lists every mapping in key order.
func (r *Registry) Entries(ctx context.Context) ([]models.MergeEntry, error) {
	var out []models.MergeEntry
	err := r.backend.ForEach(storage.BucketMerge, func(key string, value []byte) error {
		var e models.MergeEntry
		if err := json.Unmarshal(value, &e); err != nil {
			logger.Error("Failed to decode merge entry %s: %v", key, err)
			return nil
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list merge entries: %v", storage.ErrStorage, err)
	}
	return out, nil
}

// RemoveLocal drops every mapping that points at the local entity.
func (r *Registry) RemoveLocal(ctx context.Context, t models.EntityType, localID string) error {
	if err := checkType(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.Entries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.EntityType != t || e.LocalID != localID {
			continue
		}
		key := entryKey(e.StorageID, e.EntityType, e.ForeignID)
		if err := storage.DeleteVerified(ctx, r.backend, storage.BucketMerge, key, r.policy); err != nil {
			return err
		}
		logger.Debug("Removed merge mapping %s", key)
	}
	return nil
}
