package roundio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/metrics"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/store"
)

// Registry is the merge registry as the codec uses it.
type Registry interface {
	GetLocalIDForForeign(ctx context.Context, storageID, foreignID string, t models.EntityType) (string, bool, error)
	MapForeignToLocal(ctx context.Context, storageID, foreignID, localID string, t models.EntityType) error
}

// Codec exports and imports rounds against the local stores.
type Codec struct {
	stores   *store.Stores
	registry Registry
}

func NewCodec(stores *store.Stores, registry Registry) *Codec {
	return &Codec{stores: stores, registry: registry}
}

type exportPlayer struct {
	name   string
	id     string
	total  int
	winner bool
}

// Export renders a stored round as text. The output is re-parsed before it
// is returned and any inconsistency is reported as a ValidationError.
func (c *Codec) Export(ctx context.Context, roundID string) (string, error) {
	text, err := c.export(ctx, roundID)
	metrics.ObserveExport(err)
	return text, err
}

func (c *Codec) export(ctx context.Context, roundID string) (string, error) {
	round, found, err := c.stores.Rounds.GetByID(ctx, roundID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: round %s", store.ErrNotFound, roundID)
	}
	storageID, err := c.stores.Settings.StorageID(ctx)
	if err != nil {
		return "", err
	}
	course, haveCourse, err := c.resolveCourse(ctx, round)
	if err != nil {
		return "", err
	}
	players, err := c.resolvePlayers(ctx, round)
	if err != nil {
		return "", err
	}

	text := render(round, storageID, course, haveCourse, players)
	if err := selfCheck(text, players); err != nil {
		logger.WithRound(round.ID).Errorf("Export failed validation: %v", err)
		return "", err
	}
	logger.WithRound(round.ID).Debug("Exported round")
	return text, nil
}

// resolveCourse looks the course up by id, then by name. A round with no
// course reference at all gets the first course whose hole count equals the
// highest scored hole.
func (c *Codec) resolveCourse(ctx context.Context, r models.Round) (models.Course, bool, error) {
	if r.CourseID != "" {
		course, found, err := c.stores.Courses.GetByID(ctx, r.CourseID)
		if err != nil || found {
			return course, found, err
		}
	}
	if strings.TrimSpace(r.CourseName) != "" {
		return c.stores.Courses.GetByName(ctx, r.CourseName)
	}
	if r.CourseID != "" {
		return models.Course{}, false, nil
	}
	max := r.MaxHole()
	if max == 0 {
		return models.Course{}, false, nil
	}
	candidates, err := c.stores.Courses.FindByHoleCount(ctx, max)
	if err != nil || len(candidates) == 0 {
		return models.Course{}, false, err
	}
	return candidates[0], true, nil
}

// resolvePlayers prefers the name of the linked user over the name stored in
// the round. The exported id is the user id when there is one.
func (c *Codec) resolvePlayers(ctx context.Context, r models.Round) ([]exportPlayer, error) {
	winner := r.WinnerIndex()
	out := make([]exportPlayer, 0, len(r.Players))
	for i, p := range r.Players {
		ep := exportPlayer{name: singleLine(p.Name), id: p.ID, total: r.Total(p.ID), winner: i == winner}
		for _, candidate := range []string{p.UserID, p.ID} {
			if candidate == "" {
				continue
			}
			u, found, err := c.stores.Users.GetByID(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if found {
				ep.name = singleLine(u.Name)
				ep.id = u.ID
				break
			}
		}
		out = append(out, ep)
	}
	return out, nil
}

func render(r models.Round, storageID string, course models.Course, haveCourse bool, players []exportPlayer) string {
	var b strings.Builder
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", Banner)
	line("%s %s", prefixVersion, FormatVersion)
	line("%s %s", prefixStorageID, storageID)
	line("%s %s", prefixRoundID, r.ID)
	line("")
	line("%s %s", prefixRound, singleLine(r.Title))
	line("%s %s", prefixDate, time.UnixMilli(r.Date).UTC().Format(DateLayout))
	line("%s %d", prefixTimestamp, r.Date)

	courseName := singleLine(r.CourseName)
	if haveCourse {
		courseName = singleLine(course.Name)
	}
	if courseName != "" {
		line("%s %s", prefixCourse, courseName)
	}
	if haveCourse {
		line("%s %s", prefixCourseID, course.ID)
		line("%s %d", prefixCourseHoles, course.HoleCount())
	}

	if haveCourse && len(course.Holes) > 0 {
		line("")
		line("%s", prefixHolesData)
		for _, h := range course.Holes {
			s := fmt.Sprintf("  Hole %d:", h.Number)
			if h.Par != nil {
				s += fmt.Sprintf(" Par %d", *h.Par)
			}
			if h.Distance != nil {
				s += " Distance " + formatDistance(*h.Distance)
			}
			line("%s", s)
		}
	}

	line("")
	line("%s", prefixPlayers)
	for _, p := range players {
		s := fmt.Sprintf("  - Name: %s | ID: %s | Total: %d", p.name, p.id, p.total)
		if p.winner {
			s += " " + winnerMark
		}
		line("%s", s)
	}

	line("")
	line("%s", prefixScores)
	for n := 1; n <= r.MaxHole(); n++ {
		par, dist := unknown, unknown
		if haveCourse {
			if h, ok := course.Hole(n); ok {
				if h.Par != nil {
					par = strconv.Itoa(*h.Par)
				}
				if h.Distance != nil {
					dist = strconv.FormatFloat(*h.Distance, 'f', -1, 64)
				}
			}
		}
		s := fmt.Sprintf("  Hole %d (Par %s, %sm):", n, par, dist)
		for i, p := range r.Players {
			if throws, ok := r.Throws(p.ID, n); ok {
				s += fmt.Sprintf(" %s:%d", players[i].name, throws)
			}
		}
		line("%s", s)
	}

	if notes := singleLine(r.Notes); notes != "" {
		line("")
		line("%s %s", prefixNotes, notes)
	}
	return b.String()
}

// selfCheck re-parses exported text with the import parser.
func selfCheck(text string, players []exportPlayer) error {
	parsed, err := Parse(text)
	if err != nil {
		return &ValidationError{Msg: "output does not parse", Err: err}
	}
	if len(parsed.Players) == 0 {
		return &ValidationError{Msg: "round has no players"}
	}
	if len(parsed.Players) != len(players) {
		return &ValidationError{Msg: fmt.Sprintf("expected %d players, parsed %d", len(players), len(parsed.Players))}
	}
	if err := parsed.CheckScores(); err != nil {
		return &ValidationError{Msg: "score references unknown player", Err: err}
	}
	for _, p := range parsed.Players {
		if got := parsed.Total(p.Name); got != p.Total {
			return &ValidationError{Msg: fmt.Sprintf("total of %s is %d, scores sum to %d", p.Name, p.Total, got)}
		}
	}
	return nil
}
