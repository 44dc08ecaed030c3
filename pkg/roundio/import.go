package roundio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/metrics"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/store"
	"github.com/timoknapp/gulfer/pkg/util"
)

// Overrides maps foreign ids to local ids chosen by the user. They are
// consulted after the merge registry.
type Overrides struct {
	Courses map[string]string `json:"courses,omitempty"`
	Players map[string]string `json:"players,omitempty"`
}

type ImportOptions struct {
	Overrides Overrides
}

// courseStep is the planned outcome for the course of an import: an existing
// local course or one to create, and whether to record a mapping.
type courseStep struct {
	localID  string
	name     string
	create   *models.Course
	register bool
}

type playerStep struct {
	parsed   ParsedPlayer
	localID  string
	name     string
	create   *models.User
	register bool
}

type importPlan struct {
	storageID string
	course    *courseStep
	players   []playerStep
}

// Import creates a new local round from export text and returns its id.
// Every reference and new name is checked before anything is written, so a
// parse or resolution error leaves the stores untouched. A storage error while
// writing can leave created courses and users behind; a retry reuses them.
func (c *Codec) Import(ctx context.Context, text string, opts ImportOptions) (string, error) {
	id, err := c.importText(ctx, text, opts)
	metrics.ObserveImport(err)
	return id, err
}

func (c *Codec) importText(ctx context.Context, text string, opts ImportOptions) (string, error) {
	parsed, err := Parse(text)
	if err != nil {
		return "", err
	}
	localStorageID, err := c.stores.Settings.StorageID(ctx)
	if err != nil {
		return "", err
	}
	if parsed.StorageID != "" && parsed.StorageID == localStorageID {
		return "", ErrSelfImport
	}
	if err := parsed.CheckScores(); err != nil {
		return "", err
	}

	plan, err := c.plan(ctx, parsed, opts)
	if err != nil {
		return "", err
	}
	roundID, err := c.apply(ctx, parsed, plan)
	if err != nil {
		return "", err
	}
	logger.WithFields(logrus.Fields{
		"round_id":   roundID,
		"storage_id": parsed.StorageID,
		"players":    len(plan.players),
	}).Info("Imported round")
	return roundID, nil
}

func (c *Codec) plan(ctx context.Context, p *ParsedRound, opts ImportOptions) (*importPlan, error) {
	plan := &importPlan{storageID: p.StorageID}

	course, err := c.planCourse(ctx, p, opts.Overrides)
	if err != nil {
		return nil, err
	}
	plan.course = course

	seen := map[string]string{}
	for _, pp := range p.Players {
		step, err := c.planPlayer(ctx, p.StorageID, pp, opts.Overrides)
		if err != nil {
			return nil, err
		}
		key := step.localID
		if step.create != nil {
			key = "new:" + util.FoldName(step.name)
		}
		if other, dup := seen[key]; dup {
			return nil, &ResolutionError{Entity: "player", Name: pp.Name, Line: pp.Line,
				Msg: fmt.Sprintf("resolves to the same user as %q", other)}
		}
		seen[key] = pp.Name
		plan.players = append(plan.players, step)
	}
	return plan, nil
}

// lookupMapped returns a registry or override target after checking it still
// exists locally. Stale registry entries are ignored; a missing override
// target is an error.
func (c *Codec) lookupMapped(ctx context.Context, storageID, foreignID string, t models.EntityType, overrides map[string]string, exists func(string) (string, bool, error)) (string, string, bool, error) {
	if storageID != "" && c.registry != nil {
		localID, found, err := c.registry.GetLocalIDForForeign(ctx, storageID, foreignID, t)
		if err != nil {
			return "", "", false, err
		}
		if found {
			name, ok, err := exists(localID)
			if err != nil {
				return "", "", false, err
			}
			if ok {
				return localID, name, true, nil
			}
			logger.Warn("Merge mapping %s/%s points at missing %s %s", storageID, foreignID, t, localID)
		}
	}
	if localID, ok := overrides[foreignID]; ok && localID != "" {
		name, found, err := exists(localID)
		if err != nil {
			return "", "", false, err
		}
		if !found {
			return "", "", false, &ResolutionError{Entity: string(t), Name: localID, Msg: "override target not found"}
		}
		return localID, name, true, nil
	}
	return "", "", false, nil
}

func (c *Codec) courseExists(ctx context.Context) func(string) (string, bool, error) {
	return func(id string) (string, bool, error) {
		course, found, err := c.stores.Courses.GetByID(ctx, id)
		return course.Name, found, err
	}
}

func (c *Codec) userExists(ctx context.Context) func(string) (string, bool, error) {
	return func(id string) (string, bool, error) {
		u, found, err := c.stores.Users.GetByID(ctx, id)
		return u.Name, found, err
	}
}

func (c *Codec) planCourse(ctx context.Context, p *ParsedRound, overrides Overrides) (*courseStep, error) {
	if p.CourseID != "" {
		localID, name, found, err := c.lookupMapped(ctx, p.StorageID, p.CourseID, models.EntityCourse, overrides.Courses, c.courseExists(ctx))
		if err != nil {
			return nil, err
		}
		if found {
			return &courseStep{localID: localID, name: name, register: p.StorageID != ""}, nil
		}
	}
	if util.TrimName(p.CourseName) == "" {
		return nil, nil
	}
	register := p.CourseID != "" && p.StorageID != ""

	existing, found, err := c.stores.Courses.GetByName(ctx, p.CourseName)
	if err != nil {
		return nil, err
	}
	if found {
		return &courseStep{localID: existing.ID, name: existing.Name, register: register}, nil
	}
	course := &models.Course{Name: util.TrimName(p.CourseName), Holes: plannedHoles(p)}
	return &courseStep{name: course.Name, create: course, register: register}, nil
}

// plannedHoles builds the holes of a course created by import: the parsed
// hole data when present, else 1..N overlaid with score line annotations.
func plannedHoles(p *ParsedRound) []models.Hole {
	if len(p.Holes) > 0 {
		holes := make([]models.Hole, 0, len(p.Holes))
		for _, h := range p.Holes {
			holes = append(holes, models.Hole{Number: h.Number, Par: h.Par, Distance: h.Distance})
		}
		return holes
	}
	n := p.CourseHoles
	if n == 0 {
		n = p.MaxHole()
	}
	holes := models.SequentialHoles(n)
	for _, h := range p.ScoreHoles {
		if h.Number <= n {
			holes[h.Number-1].Par = h.Par
			holes[h.Number-1].Distance = h.Distance
		}
	}
	return holes
}

func (c *Codec) planPlayer(ctx context.Context, storageID string, pp ParsedPlayer, overrides Overrides) (playerStep, error) {
	register := pp.ID != "" && storageID != ""
	if pp.ID != "" {
		localID, name, found, err := c.lookupMapped(ctx, storageID, pp.ID, models.EntityPlayer, overrides.Players, c.userExists(ctx))
		if err != nil {
			return playerStep{}, err
		}
		if found {
			return playerStep{parsed: pp, localID: localID, name: name, register: register}, nil
		}
	}
	u, found, err := c.stores.Users.GetByName(ctx, pp.Name)
	if err != nil {
		return playerStep{}, err
	}
	if found {
		return playerStep{parsed: pp, localID: u.ID, name: u.Name, register: register}, nil
	}
	if err := store.ValidateName(pp.Name); err != nil {
		return playerStep{}, &ResolutionError{Entity: "player", Name: pp.Name, Line: pp.Line, Msg: "cannot be stored"}
	}
	return playerStep{parsed: pp, name: pp.Name, create: &models.User{Name: pp.Name}, register: register}, nil
}

func (c *Codec) apply(ctx context.Context, p *ParsedRound, plan *importPlan) (string, error) {
	round := models.Round{
		Title:   p.Title,
		Date:    p.Timestamp,
		Notes:   p.Notes,
		Players: make([]models.Player, 0, len(plan.players)),
		Scores:  make([]models.Score, 0, len(p.Scores)),
	}

	if cs := plan.course; cs != nil {
		if cs.create != nil {
			created, err := c.stores.Courses.Save(ctx, *cs.create)
			if err != nil {
				return "", err
			}
			cs.localID = created.ID
			logger.Info("Created course %s (%s) from import", created.Name, created.ID)
		}
		if cs.register && c.registry != nil {
			if err := c.registry.MapForeignToLocal(ctx, plan.storageID, p.CourseID, cs.localID, models.EntityCourse); err != nil {
				return "", err
			}
		}
		round.CourseID = cs.localID
		round.CourseName = cs.name
	}

	byName := make(map[string]string, len(plan.players))
	for i := range plan.players {
		ps := &plan.players[i]
		if ps.create != nil {
			created, err := c.stores.Users.Save(ctx, *ps.create)
			if err != nil {
				return "", err
			}
			ps.localID = created.ID
			ps.name = created.Name
		}
		if ps.register && c.registry != nil {
			if err := c.registry.MapForeignToLocal(ctx, plan.storageID, ps.parsed.ID, ps.localID, models.EntityPlayer); err != nil {
				return "", err
			}
		}
		round.Players = append(round.Players, models.Player{ID: ps.localID, Name: ps.name, UserID: ps.localID})
		byName[ps.parsed.Name] = ps.localID
	}

	for _, s := range p.Scores {
		round.SetScore(byName[s.Player], s.Hole, s.Throws)
	}

	created, err := c.stores.Rounds.Create(ctx, round)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
