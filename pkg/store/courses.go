package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/util"
)

// courseRecord is the stored course document. Holes is only present in data
// written by older versions, as a bare count or an embedded list.
type courseRecord struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Holes json.RawMessage `json:"holes,omitempty"`
}

type holeRecord struct {
	CourseID string `json:"courseId"`
	models.Hole
}

func holeKey(courseID string, number int) string {
	return fmt.Sprintf("%s/%04d", courseID, number)
}

// CourseStore persists courses and their holes.
type CourseStore struct {
	records collection[courseRecord]
	holes   collection[holeRecord]
	refs    ReferenceRemover
}

// resolve turns a stored record into a course. Hole records win over the
// legacy embedded field.
func (s *CourseStore) resolve(rec courseRecord, holes []models.Hole) (models.Course, error) {
	c := models.Course{ID: rec.ID, Name: rec.Name}
	if len(holes) > 0 {
		c.Holes = models.HoleList(holes).Resolve()
		return c, nil
	}
	data, err := models.DecodeHoleData(rec.Holes)
	if err != nil {
		return models.Course{}, fmt.Errorf("course %s: %w", rec.ID, err)
	}
	c.Holes = data.Resolve()
	return c, nil
}

func (s *CourseStore) holesByCourse() (map[string][]models.Hole, error) {
	recs, err := s.holes.list()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]models.Hole)
	for _, h := range recs {
		out[h.CourseID] = append(out[h.CourseID], h.Hole)
	}
	return out, nil
}

// GetAll returns every course ordered by name.
func (s *CourseStore) GetAll(ctx context.Context) ([]models.Course, error) {
	recs, err := s.records.list()
	if err != nil {
		return nil, err
	}
	holes, err := s.holesByCourse()
	if err != nil {
		return nil, err
	}
	courses := make([]models.Course, 0, len(recs))
	for _, rec := range recs {
		c, err := s.resolve(rec, holes[rec.ID])
		if err != nil {
			logger.Error("Skipping course: %v", err)
			continue
		}
		courses = append(courses, c)
	}
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := util.FoldName(courses[i].Name), util.FoldName(courses[j].Name)
		if a != b {
			return a < b
		}
		return courses[i].ID < courses[j].ID
	})
	return courses, nil
}

// GetByID loads a course with its holes.
func (s *CourseStore) GetByID(ctx context.Context, id string) (models.Course, bool, error) {
	rec, found, err := s.records.get(id)
	if err != nil || !found {
		return models.Course{}, false, err
	}
	recs, err := s.holes.list()
	if err != nil {
		return models.Course{}, false, err
	}
	var holes []models.Hole
	for _, h := range recs {
		if h.CourseID == id {
			holes = append(holes, h.Hole)
		}
	}
	c, err := s.resolve(rec, holes)
	if err != nil {
		return models.Course{}, false, err
	}
	return c, true, nil
}

// GetByName finds a course by trimmed, case-sensitive name.
func (s *CourseStore) GetByName(ctx context.Context, name string) (models.Course, bool, error) {
	want := util.TrimName(name)
	if want == "" {
		return models.Course{}, false, nil
	}
	courses, err := s.GetAll(ctx)
	if err != nil {
		return models.Course{}, false, err
	}
	for _, c := range courses {
		if util.TrimName(c.Name) == want {
			return c, true, nil
		}
	}
	return models.Course{}, false, nil
}

// FindByHoleCount returns the courses with exactly n holes.
func (s *CourseStore) FindByHoleCount(ctx context.Context, n int) ([]models.Course, error) {
	courses, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Course
	for _, c := range courses {
		if c.HoleCount() == n {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsNameAvailable reports whether no other course uses the trimmed name.
func (s *CourseStore) IsNameAvailable(ctx context.Context, name, excludeID string) (bool, error) {
	recs, err := s.records.list()
	if err != nil {
		return false, err
	}
	want := util.TrimName(name)
	for _, rec := range recs {
		if rec.ID != excludeID && util.TrimName(rec.Name) == want {
			return false, nil
		}
	}
	return true, nil
}

// GenerateID returns an id unused by any stored course.
func (s *CourseStore) GenerateID(ctx context.Context) (string, error) {
	return s.records.newID()
}

func validateHoles(holes []models.Hole) error {
	seen := make(map[int]struct{}, len(holes))
	for _, h := range holes {
		if h.Number < 1 {
			return fmt.Errorf("%w: hole number %d", ErrInvalid, h.Number)
		}
		if _, dup := seen[h.Number]; dup {
			return fmt.Errorf("%w: duplicate hole %d", ErrInvalid, h.Number)
		}
		if h.Par != nil && *h.Par < 1 {
			return fmt.Errorf("%w: hole %d par %d", ErrInvalid, h.Number, *h.Par)
		}
		if h.Distance != nil && *h.Distance < 0 {
			return fmt.Errorf("%w: hole %d distance %.1f", ErrInvalid, h.Number, *h.Distance)
		}
		seen[h.Number] = struct{}{}
	}
	return nil
}

// Save upserts a course and replaces its holes. An empty id gets a generated
// one. The name must be unique among courses.
func (s *CourseStore) Save(ctx context.Context, c models.Course) (models.Course, error) {
	c.Name = util.TrimName(c.Name)
	if c.Name == "" {
		return models.Course{}, fmt.Errorf("%w: course name is required", ErrInvalid)
	}
	if err := validateHoles(c.Holes); err != nil {
		return models.Course{}, err
	}
	if c.ID == "" {
		id, err := s.GenerateID(ctx)
		if err != nil {
			return models.Course{}, err
		}
		c.ID = id
	}
	ok, err := s.IsNameAvailable(ctx, c.Name, c.ID)
	if err != nil {
		return models.Course{}, err
	}
	if !ok {
		return models.Course{}, fmt.Errorf("%w: course %q", ErrNameTaken, c.Name)
	}

	if err := s.records.put(ctx, c.ID, courseRecord{ID: c.ID, Name: c.Name}); err != nil {
		return models.Course{}, err
	}

	keep := make(map[string]struct{}, len(c.Holes))
	for _, h := range c.Holes {
		key := holeKey(c.ID, h.Number)
		keep[key] = struct{}{}
		if err := s.holes.put(ctx, key, holeRecord{CourseID: c.ID, Hole: h}); err != nil {
			return models.Course{}, err
		}
	}
	if err := s.removeHoles(ctx, c.ID, keep); err != nil {
		return models.Course{}, err
	}

	c.Holes = models.HoleList(c.Holes).Resolve()
	return c, nil
}

func (s *CourseStore) removeHoles(ctx context.Context, courseID string, keep map[string]struct{}) error {
	keys, err := s.holes.keys()
	if err != nil {
		return err
	}
	prefix := courseID + "/"
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := keep[key]; ok {
			continue
		}
		if err := s.holes.remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a course together with its holes and any merge registry
// entries pointing at it.
func (s *CourseStore) Delete(ctx context.Context, id string) error {
	found, err := s.records.exists(id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: course %s", ErrNotFound, id)
	}
	if err := s.removeHoles(ctx, id, nil); err != nil {
		return err
	}
	if err := s.records.remove(ctx, id); err != nil {
		return err
	}
	if s.refs != nil {
		if err := s.refs.RemoveLocal(ctx, models.EntityCourse, id); err != nil {
			return err
		}
	}
	logger.Info("Deleted course %s", id)
	return nil
}
