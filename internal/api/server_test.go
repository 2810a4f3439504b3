package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
	"github.com/fieldtrack-data/fieldtrack.report/internal/trackdb"
)

func testServer(t *testing.T) (*Server, *pfe.Filter) {
	t.Helper()
	filter, err := pfe.New(pfe.InitData{
		MainRobotID:  1,
		NumParticles: 50,
		NumRobots:    2,
		RobotsUsed:   []bool{true, true},
		Seed:         1,
	})
	require.NoError(t, err)
	filter.Init()
	return NewServer(filter, nil, "run-test"), filter
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["initialized"])
}

func TestShowState(t *testing.T) {
	s, filter := testServer(t)
	filter.MeasurementsDoneTarget(0)

	rec := doRequest(t, s, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state stateAPI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, uint64(1), state.Iteration)
	assert.Equal(t, "run-test", state.RunID)
	require.Len(t, state.Robots, 2)
	require.Len(t, state.Spread, 2)
}

func TestShowStateRejectsPost(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/state", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShowParticles(t *testing.T) {
	s, filter := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/particles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body particlesAPI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, filter.Size(), body.Subsets)
	assert.Equal(t, 50, body.Particles)
	assert.Equal(t, 1, body.Stride)
	require.Len(t, body.Data, filter.Size())
}

func TestShowParticlesDownsampled(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/particles?max_particles=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body particlesAPI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Stride)
	assert.Equal(t, 10, body.Particles)
}

func TestShowParticlesBadQuery(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/particles?max_particles=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParamsRoundTrip(t *testing.T) {
	s, filter := testServer(t)

	patch := `{"resample_start_at": 0.3, "publish": false}`
	rec := doRequest(t, s, http.MethodPost, "/api/params", []byte(patch))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/params", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got paramsPatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.ResampleStartAt)
	assert.Equal(t, 0.3, *got.ResampleStartAt)
	require.NotNil(t, got.Publish)
	assert.False(t, *got.Publish)

	// The filter saw the queued update too.
	assert.Equal(t, 0.3, *filter.CurrentParams().ResampleStartAt)
}

func TestParamsValidation(t *testing.T) {
	s, _ := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/params", []byte(`{"resample_start_at": 2.0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/params", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRunsWithoutDB(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsWithDB(t *testing.T) {
	db, err := trackdb.Open(filepath.Join(t.TempDir(), "track.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.MigrateUp())

	runID, err := db.BeginRun(trackdb.RunMeta{
		StartedAt: time.Now(), NumRobots: 1, NumParticles: 10, MainRobotID: 1, Seed: 1,
	})
	require.NoError(t, err)

	filter, err := pfe.New(pfe.InitData{
		MainRobotID: 1, NumParticles: 10, NumRobots: 1, RobotsUsed: []bool{true}, Seed: 1,
	})
	require.NoError(t, err)

	s := NewServer(filter, db, runID)
	rec := doRequest(t, s, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []trackdb.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)
}
