package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/util"
)

// SaveOptions controls RoundStore.Save.
type SaveOptions struct {
	// AllowRestore lets Save write a round whose id is not stored yet.
	AllowRestore bool
}

// RoundStore persists rounds with their embedded players and scores. Writes
// and deletes are serialized so the existence check of a save and its write
// cannot interleave with a delete.
type RoundStore struct {
	mu      sync.Mutex
	records collection[models.Round]
	courses *CourseStore
}

// GetAll returns every round ordered by date, then id.
func (s *RoundStore) GetAll(ctx context.Context) ([]models.Round, error) {
	rounds, err := s.records.list()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rounds, func(i, j int) bool {
		if rounds[i].Date != rounds[j].Date {
			return rounds[i].Date < rounds[j].Date
		}
		return rounds[i].ID < rounds[j].ID
	})
	return rounds, nil
}

func (s *RoundStore) GetByID(ctx context.Context, id string) (models.Round, bool, error) {
	return s.records.get(id)
}

// GetByName finds the first round with the trimmed title.
func (s *RoundStore) GetByName(ctx context.Context, title string) (models.Round, bool, error) {
	rounds, err := s.GetAll(ctx)
	if err != nil {
		return models.Round{}, false, err
	}
	want := util.TrimName(title)
	for _, r := range rounds {
		if util.TrimName(r.Title) == want {
			return r, true, nil
		}
	}
	return models.Round{}, false, nil
}

// IsNameAvailable reports whether no other round carries the title. Round
// titles are not required to be unique; this only backs UI hints.
func (s *RoundStore) IsNameAvailable(ctx context.Context, title, excludeID string) (bool, error) {
	rounds, err := s.records.list()
	if err != nil {
		return false, err
	}
	want := util.TrimName(title)
	for _, r := range rounds {
		if r.ID != excludeID && util.TrimName(r.Title) == want {
			return false, nil
		}
	}
	return true, nil
}

func (s *RoundStore) GenerateID(ctx context.Context) (string, error) {
	return s.records.newID()
}

func validateRound(r models.Round) error {
	players := make(map[string]struct{}, len(r.Players))
	names := make(map[string]struct{}, len(r.Players))
	for _, p := range r.Players {
		if p.ID == "" {
			return fmt.Errorf("%w: player %q has no id", ErrInvalid, p.Name)
		}
		if _, dup := players[p.ID]; dup {
			return fmt.Errorf("%w: duplicate player %s", ErrInvalid, p.ID)
		}
		players[p.ID] = struct{}{}
		if err := ValidateName(p.Name); err != nil {
			return fmt.Errorf("player %s: %w", p.ID, err)
		}
		name := util.TrimName(p.Name)
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate player name %q", ErrInvalid, name)
		}
		names[name] = struct{}{}
	}
	for _, sc := range r.Scores {
		if _, ok := players[sc.PlayerID]; !ok {
			return fmt.Errorf("%w: score for unknown player %s", ErrInvalid, sc.PlayerID)
		}
		if sc.HoleNumber < 1 {
			return fmt.Errorf("%w: hole number %d", ErrInvalid, sc.HoleNumber)
		}
		if sc.Throws < 0 {
			return fmt.Errorf("%w: negative throws on hole %d", ErrInvalid, sc.HoleNumber)
		}
	}
	return nil
}

// Save writes the round. Without AllowRestore a round whose id is not
// present is dropped and Save reports false, so a late auto-save cannot
// bring back a deleted round.
func (s *RoundStore) Save(ctx context.Context, r models.Round, opts SaveOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, r, opts)
}

func (s *RoundStore) save(ctx context.Context, r models.Round, opts SaveOptions) (bool, error) {
	if r.ID == "" {
		return false, fmt.Errorf("%w: round id is required", ErrInvalid)
	}
	if err := validateRound(r); err != nil {
		return false, err
	}
	if !opts.AllowRestore {
		found, err := s.records.exists(r.ID)
		if err != nil {
			return false, err
		}
		if !found {
			logger.WithRound(r.ID).Debug("Dropping save for missing round")
			return false, nil
		}
	}
	if err := s.records.put(ctx, r.ID, r); err != nil {
		return false, err
	}
	return true, nil
}

// Create stores a new round, generating its id when empty.
func (s *RoundStore) Create(ctx context.Context, r models.Round) (models.Round, error) {
	if r.ID == "" {
		id, err := s.GenerateID(ctx)
		if err != nil {
			return models.Round{}, err
		}
		r.ID = id
	}
	if r.Players == nil {
		r.Players = []models.Player{}
	}
	if r.Scores == nil {
		r.Scores = []models.Score{}
	}
	if _, err := s.Save(ctx, r, SaveOptions{AllowRestore: true}); err != nil {
		return models.Round{}, err
	}
	return r, nil
}

// SetScore records throws for one player on one hole of a stored round.
func (s *RoundStore) SetScore(ctx context.Context, roundID, playerID string, hole, throws int) (models.Round, error) {
	if throws < 0 {
		return models.Round{}, fmt.Errorf("%w: negative throws", ErrInvalid)
	}
	if hole < 1 {
		return models.Round{}, fmt.Errorf("%w: hole number %d", ErrInvalid, hole)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, found, err := s.records.get(roundID)
	if err != nil {
		return models.Round{}, err
	}
	if !found {
		return models.Round{}, fmt.Errorf("%w: round %s", ErrNotFound, roundID)
	}
	if _, ok := r.Player(playerID); !ok {
		return models.Round{}, fmt.Errorf("%w: player %s in round %s", ErrNotFound, playerID, roundID)
	}
	r.SetScore(playerID, hole, throws)
	saved, err := s.save(ctx, r, SaveOptions{})
	if err != nil {
		return models.Round{}, err
	}
	if !saved {
		return models.Round{}, fmt.Errorf("%w: round %s", ErrNotFound, roundID)
	}
	return r, nil
}

// FilterByCourseName returns the rounds played on the named course, matching
// either the stored course name or the name of the referenced course.
// Surrounding whitespace is ignored.
func (s *RoundStore) FilterByCourseName(ctx context.Context, name string) ([]models.Round, error) {
	want := util.TrimName(name)
	if want == "" {
		return nil, nil
	}
	rounds, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	courseNames := map[string]string{}
	if s.courses != nil {
		courses, err := s.courses.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range courses {
			courseNames[c.ID] = util.TrimName(c.Name)
		}
	}
	var out []models.Round
	for _, r := range rounds {
		if util.TrimName(r.CourseName) == want || (r.CourseID != "" && courseNames[r.CourseID] == want) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Delete removes a round. Pending saves for it become no-ops.
func (s *RoundStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.records.exists(id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: round %s", ErrNotFound, id)
	}
	if err := s.records.remove(ctx, id); err != nil {
		return err
	}
	logger.WithRound(id).Info("Deleted round")
	return nil
}
