package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairwater-data/encounter.report/internal/db"
	"github.com/fairwater-data/encounter.report/internal/tracker"
)

type fakeStore struct {
	encounters []db.Encounter
	levels     []db.WaterLevel
	err        error
}

func (f *fakeStore) RecentEncounters(limit int) ([]db.Encounter, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.encounters) {
		return f.encounters[:limit], nil
	}
	return f.encounters, nil
}

func (f *fakeStore) LatestWaterLevels() ([]db.WaterLevel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.levels, nil
}

type fakeStats struct{ stats tracker.Stats }

func (f *fakeStats) Stats() tracker.Stats { return f.stats }

type fakeDepth struct{ positions, encPositions int }

func (f *fakeDepth) Depth() (int, int) { return f.positions, f.encPositions }

func newTestServer(store *fakeStore) *Server {
	return NewServer("2f5b0d3e-test", store,
		&fakeStats{stats: tracker.Stats{ActiveVessels: 12, ActiveEncounters: 2, TotalEncounters: 7}},
		&fakeDepth{positions: 42, encPositions: 3})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestShowStats(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "2f5b0d3e-test", got["run_id"])
	assert.Equal(t, float64(12), got["active_vessels"])
	assert.Equal(t, float64(2), got["active_encounters"])
	assert.Equal(t, float64(7), got["total_encounters"])
	assert.Equal(t, float64(42), got["buffered_positions"])
	assert.Equal(t, float64(3), got["buffered_encounter_positions"])
	assert.NotEmpty(t, got["version"])
}

func TestStatsRejectsPost(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListEncounters(t *testing.T) {
	end := "2026-03-14T09:30:00Z"
	store := &fakeStore{encounters: []db.Encounter{
		{ID: 2, VesselA: "244010001", VesselB: "244020002", StartTime: "2026-03-14T09:05:00Z",
			MinDistanceM: 812.4, EncounterType: "head-on", CPAMeters: 95.1, TCPASeconds: 412.7},
		{ID: 1, VesselA: "244030003", VesselB: "244040004", StartTime: "2026-03-14T08:00:00Z",
			EndTime: &end, MinDistanceM: 2100.0, EncounterType: "crossing"},
	}}
	srv := newTestServer(store)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/encounters", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []encounterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, "head-on", got[0].EncounterType)
	assert.Nil(t, got[0].EndTime)
	require.NotNil(t, got[1].EndTime)
	assert.Equal(t, end, *got[1].EndTime)
}

func TestListEncountersLimit(t *testing.T) {
	store := &fakeStore{encounters: []db.Encounter{{ID: 3}, {ID: 2}, {ID: 1}}}
	srv := newTestServer(store)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/encounters?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []encounterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/encounters?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/encounters?limit=-5", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEncountersStoreError(t *testing.T) {
	srv := newTestServer(&fakeStore{err: errors.New("database is locked")})

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/encounters", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestShowWaterLevels(t *testing.T) {
	store := &fakeStore{levels: []db.WaterLevel{
		{StationID: "HOEKVHLD", StationName: "Hoek van Holland", Source: "rws",
			ReferenceDatum: "NAP", Timestamp: "2026-03-14T09:00:00Z", LevelCM: -37, Lat: 51.9775, Lon: 4.12},
	}}
	srv := newTestServer(store)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/water/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []waterLevelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "HOEKVHLD", got[0].StationID)
	assert.Equal(t, "NAP", got[0].ReferenceDatum)
	assert.Equal(t, -37.0, got[0].LevelCM)
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	srv := newTestServer(&fakeStore{})

	for _, path := range []string{"/api/encounters", "/api/water/latest"} {
		rec := httptest.NewRecorder()
		srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, "[]", rec.Body.String(), path)
	}
}
