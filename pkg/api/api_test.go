package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timoknapp/gulfer/pkg/autosave"
	"github.com/timoknapp/gulfer/pkg/browser"
	"github.com/timoknapp/gulfer/pkg/merge"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/roundio"
	"github.com/timoknapp/gulfer/pkg/storage"
	"github.com/timoknapp/gulfer/pkg/store"
)

type testServer struct {
	router    *gin.Engine
	stores    *store.Stores
	debouncer *autosave.Debouncer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := storage.NewMemoryBackend(storage.AllBuckets...)
	require.NoError(t, backend.Put(storage.BucketSettings, "app",
		[]byte(`{"storageId":"local-storage","distanceUnit":"m"}`)))
	policy := storage.RetryPolicy{Attempts: 2, Delay: time.Millisecond}
	registry := merge.New(backend, policy)
	stores := store.New(backend, policy, registry)
	debouncer := autosave.New(stores.Rounds, time.Hour)
	t.Cleanup(func() { _ = debouncer.Stop(context.Background()) })

	r := gin.New()
	r.Use(Cors())
	Register(r, Deps{
		Backend:   backend,
		Stores:    stores,
		Codec:     roundio.NewCodec(stores, registry),
		Debouncer: debouncer,
	})
	return &testServer{router: r, stores: stores, debouncer: debouncer}
}

func (s *testServer) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createRound(t *testing.T) models.Round {
	t.Helper()
	_, err := s.stores.Users.Save(context.Background(), models.User{ID: "u1", Name: "Alice"})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/rounds", "application/json",
		`{"title":"Morning","date":1700000000000,"courseName":"Oak Hill","players":[{"name":"Alice","userId":"u1"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var round models.Round
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &round))
	return round
}

func TestCreateRoundAssignsPlayerIDs(t *testing.T) {
	s := newTestServer(t)
	round := s.createRound(t)

	assert.NotEmpty(t, round.ID)
	require.Len(t, round.Players, 1)
	assert.Equal(t, "u1", round.Players[0].ID)

	w := s.do(t, http.MethodPost, "/api/rounds", "application/json", `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateScoreIsDebounced(t *testing.T) {
	s := newTestServer(t)
	round := s.createRound(t)
	ctx := context.Background()

	path := "/api/rounds/" + round.ID
	w := s.do(t, http.MethodPut, path+"/scores", "application/json", `{"playerId":"u1","hole":1,"throws":3}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	w = s.do(t, http.MethodPut, path+"/scores", "application/json", `{"playerId":"u1","hole":2,"throws":4}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	stored, _, err := s.stores.Rounds.GetByID(ctx, round.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Scores)

	w = s.do(t, http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var pending models.Round
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, 7, pending.Total("u1"))

	w = s.do(t, http.MethodGet, path+"/export", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "- Name: Alice | ID: u1 | Total: 7 (Winner)")

	stored, _, err = s.stores.Rounds.GetByID(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Total("u1"))
}

func TestUpdateScoreRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	round := s.createRound(t)
	path := "/api/rounds/" + round.ID + "/scores"

	w := s.do(t, http.MethodPut, path, "application/json", `{"playerId":"u1","hole":1,"throws":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, path, "application/json", `{"playerId":"nobody","hole":1,"throws":2}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPut, "/api/rounds/missing/scores", "application/json", `{"playerId":"u1","hole":1,"throws":2}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRoundDropsPendingSave(t *testing.T) {
	s := newTestServer(t)
	round := s.createRound(t)
	path := "/api/rounds/" + round.ID

	w := s.do(t, http.MethodPut, path+"/scores", "application/json", `{"playerId":"u1","hole":1,"throws":3}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = s.do(t, http.MethodDelete, path, "", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	_, pending := s.debouncer.Pending(round.ID)
	assert.False(t, pending)

	require.NoError(t, s.debouncer.Flush(context.Background()))
	w = s.do(t, http.MethodGet, path, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

const remoteExport = `=== GULFER ROUND EXPORT ===
Version: 2.0
Storage ID: remote-storage
Round ID: r9

Round: Away Game
Timestamp: 1700000000000
Course: Pine Valley
Course ID: c9
Course Holes: 2

Players:
  - Name: Dora | ID: p9 | Total: 7 (Winner)

Scores:
  Hole 1: Dora:3
  Hole 2: Dora:4
`

func TestImportRoundPlainText(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/rounds/import", "text/plain", remoteExport)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	round, found, err := s.stores.Rounds.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Away Game", round.Title)
	assert.Equal(t, "Pine Valley", round.CourseName)
}

func TestImportRoundJSONWithOverrides(t *testing.T) {
	s := newTestServer(t)
	_, err := s.stores.Users.Save(context.Background(), models.User{ID: "u5", Name: "Dorothea"})
	require.NoError(t, err)

	body, err := json.Marshal(importRequest{
		Text:      remoteExport,
		Overrides: roundio.Overrides{Players: map[string]string{"p9": "u5"}},
	})
	require.NoError(t, err)
	w := s.do(t, http.MethodPost, "/api/rounds/import", "application/json", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	round, _, err := s.stores.Rounds.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "u5", round.Players[0].ID)
}

func TestImportRoundErrors(t *testing.T) {
	s := newTestServer(t)

	own := strings.Replace(remoteExport, "remote-storage", "local-storage", 1)
	w := s.do(t, http.MethodPost, "/api/rounds/import", "text/plain", own)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/rounds/import", "text/plain", "Round: no timestamp\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/rounds/import", "text/plain", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unknown := strings.Replace(remoteExport, "Hole 2: Dora:4", "Hole 2: Dora:4 Carol:5", 1)
	w = s.do(t, http.MethodPost, "/api/rounds/import", "text/plain", unknown)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "player", resp["entity"])
	assert.Equal(t, "Carol", resp["name"])
}

func TestListRoundsFiltersByCourse(t *testing.T) {
	s := newTestServer(t)
	s.createRound(t)

	w := s.do(t, http.MethodGet, "/api/rounds?course=Oak%20Hill%20", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rounds []models.Round
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rounds))
	assert.Len(t, rounds, 1)

	w = s.do(t, http.MethodGet, "/api/rounds?course=Elsewhere", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCourseEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/courses", "application/json",
		`{"name":"Oak Hill","holes":[{"number":1,"par":3},{"number":2,"par":4}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var course models.Course
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &course))
	assert.NotEmpty(t, course.ID)

	w = s.do(t, http.MethodPost, "/api/courses", "application/json", `{"name":"Oak Hill"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/courses", "application/json", `{"name":"Bad","holes":[{"number":0}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/courses/"+course.ID, "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/courses/"+course.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportScorecard(t *testing.T) {
	s := newTestServer(t)
	page := `<html><head><title>Birch Park</title></head><body>
<table>
<tr><th>Hole</th><th>Par</th><th>Distance</th></tr>
<tr><td>1</td><td>3</td><td>80</td></tr>
<tr><td>2</td><td>4</td><td>140</td></tr>
</table></body></html>`

	w := s.do(t, http.MethodPost, "/api/courses/scorecard?name=Birch", "text/html", page)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var course models.Course
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &course))
	assert.Equal(t, "Birch", course.Name)
	assert.Len(t, course.Holes, 2)

	w = s.do(t, http.MethodPost, "/api/courses/scorecard", "text/html", "<html><body><p>nothing</p></body></html>")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserEndpointsAndProfile(t *testing.T) {
	s := newTestServer(t)
	round := s.createRound(t)

	w := s.do(t, http.MethodPost, "/api/users", "application/json", `{"name":"alice"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/rounds/"+round.ID+"/scores", "application/json", `{"playerId":"u1","hole":1,"throws":1}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NoError(t, s.debouncer.Flush(context.Background()))

	w = s.do(t, http.MethodGet, "/api/users/u1/profile", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		User  models.User `json:"user"`
		Stats struct {
			RoundsPlayed int `json:"roundsPlayed"`
			Aces         int `json:"aces"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Alice", resp.User.Name)
	assert.Equal(t, 1, resp.Stats.RoundsPlayed)
	assert.Equal(t, 1, resp.Stats.Aces)

	w = s.do(t, http.MethodGet, "/api/users/ghost/profile", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	s := newTestServer(t)
	_, err := s.stores.Users.Save(context.Background(), models.User{ID: "u1", Name: "Alice"})
	require.NoError(t, err)

	w := s.do(t, http.MethodPut, "/api/settings/current-user", "application/json", `{"userId":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settings models.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "u1", settings.CurrentUserID)
	assert.Equal(t, "local-storage", settings.StorageID)

	w = s.do(t, http.MethodPut, "/api/settings/current-user", "application/json", `{"userId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/settings/distance-unit", "application/json", `{"unit":"yards"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, "/api/settings/distance-unit", "application/json", `{"unit":"ft"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDBBrowser(t *testing.T) {
	s := newTestServer(t)
	s.createRound(t)

	w := s.do(t, http.MethodGet, "/api/db/tables", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tables []browser.Table
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	assert.NotEmpty(t, tables)

	w = s.do(t, http.MethodGet, "/api/db/tables/"+storage.BucketRounds+"?limit=5", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page browser.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Contains(t, page.Columns, browser.KeyColumn)

	w = s.do(t, http.MethodGet, "/api/db/tables/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/api/db/tables/"+storage.BucketRounds+"?limit=x", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorsPreflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodOptions, "/api/rounds", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&roundio.ParseError{Line: 3, Msg: "bad"}, http.StatusBadRequest},
		{&roundio.ResolutionError{Entity: "player", Name: "x"}, http.StatusBadRequest},
		{&roundio.ValidationError{Msg: "mismatch"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", store.ErrInvalid), http.StatusBadRequest},
		{merge.ErrUnsupportedEntity, http.StatusBadRequest},
		{store.ErrNameTaken, http.StatusConflict},
		{roundio.ErrSelfImport, http.StatusConflict},
		{store.ErrNotFound, http.StatusNotFound},
		{browser.ErrUnknownTable, http.StatusNotFound},
		{storage.ErrStorage, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestImportRoundRejectsOversizedBody(t *testing.T) {
	s := newTestServer(t)
	filler := strings.Repeat("x", maxImportBytes+1)

	w := s.do(t, http.MethodPost, "/api/rounds/import", "text/plain", remoteExport+"\nNotes: "+filler)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/rounds/import", "application/json", `{"text":"`+filler+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	rounds, err := s.stores.Rounds.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestNamesThatBreakExportAreRejected(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"J:R", "Ann | Lee", "Bo (Winner)", ""} {
		body, err := json.Marshal(map[string]string{"name": name})
		require.NoError(t, err)
		w := s.do(t, http.MethodPost, "/api/users", "application/json", string(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	w := s.do(t, http.MethodPost, "/api/rounds", "application/json",
		`{"title":"Twins","players":[{"id":"a","name":"Sam"},{"id":"b","name":"Sam "}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/rounds", "application/json",
		`{"title":"Colon","players":[{"id":"a","name":"A:B"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestConcurrentScoreUpdatesAreAllKept(t *testing.T) {
	s := newTestServer(t)
	round := s.createRound(t)
	path := "/api/rounds/" + round.ID + "/scores"

	const holes = 18
	var wg sync.WaitGroup
	codes := make(chan int, holes)
	for hole := 1; hole <= holes; hole++ {
		wg.Add(1)
		go func(hole int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPut, path,
				strings.NewReader(fmt.Sprintf(`{"playerId":"u1","hole":%d,"throws":%d}`, hole, hole%4+2)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			codes <- w.Code
		}(hole)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusAccepted, code)
	}

	require.NoError(t, s.debouncer.Flush(context.Background()))
	stored, found, err := s.stores.Rounds.GetByID(context.Background(), round.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, stored.Scores, holes)
	for hole := 1; hole <= holes; hole++ {
		throws, ok := stored.Throws("u1", hole)
		require.True(t, ok, "hole %d", hole)
		assert.Equal(t, hole%4+2, throws)
	}
}
