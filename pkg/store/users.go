package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/util"
)

// userRecord is the stored user document. IsCurrentUser is the flag older
// data used to mark the device user; it is migrated into the settings record
// and never written again.
type userRecord struct {
	models.User
	IsCurrentUser bool `json:"isCurrentUser,omitempty"`
}

// UserStore persists users, the profiles behind round players.
type UserStore struct {
	records  collection[userRecord]
	settings *SettingsStore
	refs     ReferenceRemover
}

func (s *UserStore) GetAll(ctx context.Context) ([]models.User, error) {
	recs, err := s.records.list()
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.User)
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := util.FoldName(users[i].Name), util.FoldName(users[j].Name)
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (models.User, bool, error) {
	rec, found, err := s.records.get(id)
	if err != nil || !found {
		return models.User{}, false, err
	}
	return rec.User, true, nil
}

// GetByName matches trimmed names ignoring case.
func (s *UserStore) GetByName(ctx context.Context, name string) (models.User, bool, error) {
	if util.TrimName(name) == "" {
		return models.User{}, false, nil
	}
	users, err := s.GetAll(ctx)
	if err != nil {
		return models.User{}, false, err
	}
	for _, u := range users {
		if util.SameName(u.Name, name) {
			return u, true, nil
		}
	}
	return models.User{}, false, nil
}

func (s *UserStore) IsNameAvailable(ctx context.Context, name, excludeID string) (bool, error) {
	recs, err := s.records.list()
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.ID != excludeID && util.SameName(rec.Name, name) {
			return false, nil
		}
	}
	return true, nil
}

func (s *UserStore) GenerateID(ctx context.Context) (string, error) {
	return s.records.newID()
}

// Save upserts a user. Names are unique ignoring case.
func (s *UserStore) Save(ctx context.Context, u models.User) (models.User, error) {
	u.Name = util.TrimName(u.Name)
	if err := ValidateName(u.Name); err != nil {
		return models.User{}, err
	}
	if u.ID == "" {
		id, err := s.GenerateID(ctx)
		if err != nil {
			return models.User{}, err
		}
		u.ID = id
	}
	ok, err := s.IsNameAvailable(ctx, u.Name, u.ID)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %q", ErrNameTaken, u.Name)
	}
	if err := s.records.put(ctx, u.ID, userRecord{User: u}); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Delete removes a user, its merge registry entries, and the current user
// marker when it points at this user.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	found, err := s.records.exists(id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err := s.records.remove(ctx, id); err != nil {
		return err
	}
	if s.refs != nil {
		if err := s.refs.RemoveLocal(ctx, models.EntityPlayer, id); err != nil {
			return err
		}
	}
	if s.settings != nil {
		if err := s.settings.clearCurrentUser(ctx, id); err != nil {
			return err
		}
	}
	logger.Info("Deleted user %s", id)
	return nil
}
