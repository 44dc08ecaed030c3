package roundio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timoknapp/gulfer/pkg/models"
)

type counts struct {
	courses, users, rounds, mappings int
}

func (e *testEnv) counts(t *testing.T) counts {
	t.Helper()
	ctx := context.Background()
	courses, err := e.stores.Courses.GetAll(ctx)
	require.NoError(t, err)
	users, err := e.stores.Users.GetAll(ctx)
	require.NoError(t, err)
	rounds, err := e.stores.Rounds.GetAll(ctx)
	require.NoError(t, err)
	entries, err := e.registry.Entries(ctx)
	require.NoError(t, err)
	return counts{len(courses), len(users), len(rounds), len(entries)}
}

func TestImportCreatesEntities(t *testing.T) {
	ctx := context.Background()
	remote := newTestEnv(t, "local-storage")
	remote.seedRound(t)
	text, err := remote.codec.Export(ctx, "r1")
	require.NoError(t, err)

	local := newTestEnv(t, "other-device")
	id, err := local.codec.Import(ctx, text, ImportOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, "r1", id)

	round, found, err := local.stores.Rounds.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Sunday Doubles", round.Title)
	assert.Equal(t, int64(1700000000000), round.Date)
	assert.Equal(t, "Oak Hill", round.CourseName)
	assert.Equal(t, "windy", round.Notes)
	require.Len(t, round.Players, 2)
	assert.Equal(t, "Alice", round.Players[0].Name)
	assert.Equal(t, round.Players[0].ID, round.Players[0].UserID)
	assert.Equal(t, 10, round.Total(round.Players[0].ID))
	assert.Equal(t, 8, round.Total(round.Players[1].ID))
	assert.Equal(t, 1, round.WinnerIndex())

	course, found, err := local.stores.Courses.GetByID(ctx, round.CourseID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, course.Holes, 3)
	assert.Equal(t, 120.5, *course.Holes[1].Distance)

	courseID, found, err := local.registry.GetLocalIDForForeign(ctx, "local-storage", "c1", models.EntityCourse)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, course.ID, courseID)
	userID, found, err := local.registry.GetLocalIDForForeign(ctx, "local-storage", "u2", models.EntityPlayer)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, round.Players[1].ID, userID)
}

func TestImportTwiceResolvesOnce(t *testing.T) {
	ctx := context.Background()
	remote := newTestEnv(t, "local-storage")
	remote.seedRound(t)
	text, err := remote.codec.Export(ctx, "r1")
	require.NoError(t, err)

	local := newTestEnv(t, "other-device")
	first, err := local.codec.Import(ctx, text, ImportOptions{})
	require.NoError(t, err)
	second, err := local.codec.Import(ctx, text, ImportOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, counts{courses: 1, users: 2, rounds: 2, mappings: 3}, local.counts(t))

	a, _, err := local.stores.Rounds.GetByID(ctx, first)
	require.NoError(t, err)
	b, _, err := local.stores.Rounds.GetByID(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, a.CourseID, b.CourseID)
	assert.Equal(t, a.Players, b.Players)
}

func TestImportRejectsOwnExport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")

	text := `Storage ID: local-storage
Round: Mine
Timestamp: 1
Course: Nowhere
Course ID: c9

Players:
  - Name: Zed | ID: z1 | Total: 3

Scores:
  Hole 1: Zed:3
`
	_, err := env.codec.Import(ctx, text, ImportOptions{})
	assert.ErrorIs(t, err, ErrSelfImport)
	assert.Equal(t, counts{}, env.counts(t))
}

func TestImportUnknownScorePlayerWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")

	text := `Storage ID: remote
Round: Broken
Timestamp: 1
Course: Fresh Course
Course ID: c1

Players:
  - Name: Alice | ID: p1 | Total: 3

Scores:
  Hole 1: Alice:3 Carol:4
`
	_, err := env.codec.Import(ctx, text, ImportOptions{})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "Carol", rerr.Name)
	assert.Contains(t, err.Error(), "player not found")
	assert.Equal(t, counts{}, env.counts(t))
}

func TestImportLegacyMatchesByTrimmedName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")
	env.seedRound(t)
	before := env.counts(t)

	text := `Round: Old format
Timestamp: 1600000000000
Course: Oak Hill

Players:
  - Name: alice | Total: 3
  - Name: Dora | Total: 4

Scores:
  Hole 1: alice:3 Dora:4
`
	id, err := env.codec.Import(ctx, text, ImportOptions{})
	require.NoError(t, err)

	round, _, err := env.stores.Rounds.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "c1", round.CourseID)
	assert.Equal(t, "u1", round.Players[0].ID)
	assert.Equal(t, "Alice", round.Players[0].Name)

	after := env.counts(t)
	assert.Equal(t, before.courses, after.courses)
	assert.Equal(t, before.users+1, after.users)
	assert.Equal(t, before.mappings, after.mappings)
}

func TestImportLegacyCreatesCourseWithoutMapping(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")

	text := `Round: Old format
Timestamp: 1600000000000
Course: Pine Valley
Course Holes: 4

Players:
  - Name: Dora | Total: 7

Scores:
  Hole 1 (Par 3, 70m): Dora:3
  Hole 2 (Par 4, ?m): Dora:4
`
	id, err := env.codec.Import(ctx, text, ImportOptions{})
	require.NoError(t, err)

	round, _, err := env.stores.Rounds.GetByID(ctx, id)
	require.NoError(t, err)
	course, found, err := env.stores.Courses.GetByID(ctx, round.CourseID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Pine Valley", course.Name)
	require.Len(t, course.Holes, 4)
	assert.Equal(t, 3, *course.Holes[0].Par)
	assert.Equal(t, 70.0, *course.Holes[0].Distance)
	assert.Equal(t, 4, *course.Holes[1].Par)
	assert.Nil(t, course.Holes[3].Par)
	assert.Equal(t, 0, env.counts(t).mappings)
}

func TestImportOverrides(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")
	env.seedRound(t)

	text := `Storage ID: remote
Round: Overridden
Timestamp: 1
Course: Totally Different Name
Course ID: rc1

Players:
  - Name: Al | ID: rp1 | Total: 3

Scores:
  Hole 1: Al:3
`
	id, err := env.codec.Import(ctx, text, ImportOptions{Overrides: Overrides{
		Courses: map[string]string{"rc1": "c1"},
		Players: map[string]string{"rp1": "u1"},
	}})
	require.NoError(t, err)

	round, _, err := env.stores.Rounds.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "c1", round.CourseID)
	assert.Equal(t, "Oak Hill", round.CourseName)
	assert.Equal(t, "u1", round.Players[0].ID)

	mapped, found, err := env.registry.GetLocalIDForForeign(ctx, "remote", "rp1", models.EntityPlayer)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "u1", mapped)
}

func TestImportOverrideToMissingEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")

	text := `Storage ID: remote
Round: Overridden
Timestamp: 1

Players:
  - Name: Al | ID: rp1 | Total: 3
`
	_, err := env.codec.Import(ctx, text, ImportOptions{Overrides: Overrides{
		Players: map[string]string{"rp1": "ghost"},
	}})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "ghost", rerr.Name)
	assert.Equal(t, counts{}, env.counts(t))
}

func TestImportIgnoresStaleMapping(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")
	require.NoError(t, env.registry.MapForeignToLocal(ctx, "remote", "rp1", "deleted-user", models.EntityPlayer))

	text := `Storage ID: remote
Round: Stale
Timestamp: 1

Players:
  - Name: Al | ID: rp1 | Total: 2

Scores:
  Hole 1: Al:2
`
	id, err := env.codec.Import(ctx, text, ImportOptions{})
	require.NoError(t, err)

	round, _, err := env.stores.Rounds.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, round.Players, 1)
	assert.NotEqual(t, "deleted-user", round.Players[0].ID)

	mapped, _, err := env.registry.GetLocalIDForForeign(ctx, "remote", "rp1", models.EntityPlayer)
	require.NoError(t, err)
	assert.Equal(t, round.Players[0].ID, mapped)
}

func TestImportRejectsPlayersResolvingToSameUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")

	text := `Round: Twins
Timestamp: 1

Players:
  - Name: Sam | Total: 0
  - Name: SAM | Total: 0
`
	_, err := env.codec.Import(ctx, text, ImportOptions{})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "SAM", rerr.Name)
	assert.Equal(t, counts{}, env.counts(t))
}

func TestImportParseErrorWritesNothing(t *testing.T) {
	env := newTestEnv(t, "local-storage")
	_, err := env.codec.Import(context.Background(), "Round: Missing timestamp\n", ImportOptions{})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, counts{}, env.counts(t))
}

func TestImportRejectsUnstorableNameWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "local-storage")

	text := `Storage ID: remote
Round: Odd Names
Timestamp: 1
Course: Fresh Course
Course ID: c1

Players:
  - Name: Alice | ID: p1 | Total: 3
  - Name: A:B | ID: p2 | Total: 0

Scores:
  Hole 1: Alice:3
`
	_, err := env.codec.Import(ctx, text, ImportOptions{})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "A:B", rerr.Name)
	assert.Equal(t, 9, rerr.Line)
	assert.Equal(t, counts{}, env.counts(t))
}
