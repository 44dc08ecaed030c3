package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
)

const (
	settingsKey         = "app"
	DefaultDistanceUnit = "m"
)

// SettingsStore holds the per-installation record: storage id, current user
// and display preferences.
type SettingsStore struct {
	records collection[models.Settings]
	users   collection[userRecord]
}

// Load returns the settings, creating them with a fresh storage id on first
// use. A legacy isCurrentUser flag found on a user is carried over.
func (s *SettingsStore) Load(ctx context.Context) (models.Settings, error) {
	st, found, err := s.records.get(settingsKey)
	if err != nil {
		return models.Settings{}, err
	}
	if found && st.StorageID != "" {
		return st, nil
	}

	st.StorageID = uuid.NewString()
	if st.DistanceUnit == "" {
		st.DistanceUnit = DefaultDistanceUnit
	}
	if st.CurrentUserID == "" {
		users, err := s.users.list()
		if err != nil {
			return models.Settings{}, err
		}
		for _, u := range users {
			if u.IsCurrentUser {
				st.CurrentUserID = u.ID
				logger.Info("Migrated current user flag of %s into settings", u.ID)
				break
			}
		}
	}
	if err := s.records.put(ctx, settingsKey, st); err != nil {
		return models.Settings{}, err
	}
	logger.WithFields(logrus.Fields{"storage_id": st.StorageID}).Info("Initialized settings")
	return st, nil
}

func (s *SettingsStore) StorageID(ctx context.Context) (string, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return st.StorageID, nil
}

func (s *SettingsStore) CurrentUserID(ctx context.Context) (string, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return st.CurrentUserID, nil
}

// SetCurrentUser marks the device user. An empty id clears the marker.
func (s *SettingsStore) SetCurrentUser(ctx context.Context, userID string) error {
	if userID != "" {
		found, err := s.users.exists(userID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
	}
	st, err := s.Load(ctx)
	if err != nil {
		return err
	}
	st.CurrentUserID = userID
	return s.records.put(ctx, settingsKey, st)
}

func (s *SettingsStore) SetDistanceUnit(ctx context.Context, unit string) error {
	if unit != "m" && unit != "ft" {
		return fmt.Errorf("%w: distance unit %q", ErrInvalid, unit)
	}
	st, err := s.Load(ctx)
	if err != nil {
		return err
	}
	st.DistanceUnit = unit
	return s.records.put(ctx, settingsKey, st)
}

func (s *SettingsStore) clearCurrentUser(ctx context.Context, userID string) error {
	st, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if st.CurrentUserID != userID {
		return nil
	}
	st.CurrentUserID = ""
	return s.records.put(ctx, settingsKey, st)
}
