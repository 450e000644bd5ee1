package db

import (
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestUpsertVesselCoalesces(t *testing.T) {
	db := newTestDB(t)

	// First sighting: name only.
	require.NoError(t, db.UpsertVessel("244660123", strPtr("MS HOLLAND"), nil, nil, nil))

	// Static data arrives with dimensions but no name.
	require.NoError(t, db.UpsertVessel("244660123", nil, intPtr(70), floatPtr(120), floatPtr(17)))

	v, err := db.GetVessel("244660123")
	require.NoError(t, err)

	want := Vessel{
		MMSI:     "244660123",
		Name:     strPtr("MS HOLLAND"),
		ShipType: intPtr(70),
		Length:   floatPtr(120),
		Width:    floatPtr(17),
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("vessel mismatch (-want +got):\n%s", diff)
	}

	// An absent name must never clear the stored one.
	require.NoError(t, db.UpsertVessel("244660123", nil, nil, nil, nil))
	v, err = db.GetVessel("244660123")
	require.NoError(t, err)
	require.NotNil(t, v.Name)
	assert.Equal(t, "MS HOLLAND", *v.Name)
}

func TestEncounterLifecycle(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CreateEncounter("111", "222", "2026-08-27T10:00:00Z", 5000, "head-on", 80, 240)
	require.NoError(t, err)
	require.Positive(t, id)

	e, err := db.GetEncounter(id)
	require.NoError(t, err)
	assert.Equal(t, "111", e.VesselA)
	assert.Equal(t, "222", e.VesselB)
	assert.Equal(t, "head-on", e.EncounterType)
	assert.Nil(t, e.EndTime)
	assert.Equal(t, 5000.0, e.MinDistanceM)

	// Partial update: tighten the minimum, leave end_time untouched.
	require.NoError(t, db.UpdateEncounter(id, EncounterUpdate{
		MinDistanceM: floatPtr(3200),
		CPAMeters:    floatPtr(60),
		TCPASeconds:  floatPtr(120),
	}))

	e, err = db.GetEncounter(id)
	require.NoError(t, err)
	assert.Equal(t, 3200.0, e.MinDistanceM)
	assert.Equal(t, 60.0, e.CPAMeters)
	assert.Nil(t, e.EndTime)

	// Close it.
	require.NoError(t, db.UpdateEncounter(id, EncounterUpdate{EndTime: strPtr("2026-08-27T10:30:00Z")}))
	e, err = db.GetEncounter(id)
	require.NoError(t, err)
	require.NotNil(t, e.EndTime)
	assert.Equal(t, "2026-08-27T10:30:00Z", *e.EndTime)

	// Empty update is a no-op, not an error.
	require.NoError(t, db.UpdateEncounter(id, EncounterUpdate{}))
}

func TestRecentEncounters(t *testing.T) {
	db := newTestDB(t)

	for i, start := range []string{"2026-08-27T09:00:00Z", "2026-08-27T10:00:00Z", "2026-08-27T11:00:00Z"} {
		_, err := db.CreateEncounter("111", "222", start, float64(1000+i), "crossing", 10, 20)
		require.NoError(t, err)
	}

	got, err := db.RecentEncounters(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-08-27T11:00:00Z", got[0].StartTime)
	assert.Equal(t, "2026-08-27T10:00:00Z", got[1].StartTime)
}

func TestBulkInserts(t *testing.T) {
	db := newTestDB(t)

	positions := []PositionRow{
		{MMSI: "111", Timestamp: "2026-08-27T10:00:00Z", Lat: 51.9, Lon: 3.9, SOG: 12, COG: 45, Heading: 44},
		{MMSI: "222", Timestamp: "2026-08-27T10:00:10Z", Lat: 52.0, Lon: 4.0, SOG: 10, COG: 225, Heading: -1},
	}
	require.NoError(t, db.InsertPositions(positions))

	n, err := db.CountPositions()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	id, err := db.CreateEncounter("111", "222", "2026-08-27T10:00:00Z", 5000, "head-on", 80, 240)
	require.NoError(t, err)

	encPositions := []EncounterPositionRow{
		{EncounterID: id, MMSI: "111", Timestamp: "2026-08-27T10:00:00Z", Lat: 51.9, Lon: 3.9},
		{EncounterID: id, MMSI: "222", Timestamp: "2026-08-27T10:00:00Z", Lat: 52.0, Lon: 4.0},
	}
	require.NoError(t, db.InsertEncounterPositions(encPositions))

	n, err = db.CountEncounterPositions(id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Empty batches are no-ops.
	require.NoError(t, db.InsertPositions(nil))
	require.NoError(t, db.InsertEncounterPositions(nil))
}

func TestWaterLevels(t *testing.T) {
	db := newTestDB(t)

	wl := WaterLevel{
		StationID:   "HOEKVHLD",
		StationName: "Hoek van Holland",
		Timestamp:   "2026-08-27T10:00:00Z",
		LevelCM:     -34,
		Lat:         51.977,
		Lon:         4.12,
	}
	require.NoError(t, db.UpsertWaterLevel(wl))

	// Same station+timestamp overwrites the value rather than duplicating.
	wl.LevelCM = -36
	require.NoError(t, db.UpsertWaterLevel(wl))

	// A newer observation supersedes it in the latest view.
	wl.Timestamp = "2026-08-27T10:10:00Z"
	wl.LevelCM = -40
	require.NoError(t, db.UpsertWaterLevel(wl))

	latest, err := db.LatestWaterLevels()
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "2026-08-27T10:10:00Z", latest[0].Timestamp)
	assert.Equal(t, -40.0, latest[0].LevelCM)
	assert.Equal(t, "rws", latest[0].Source)
	assert.Equal(t, "NAP", latest[0].ReferenceDatum)
}

func TestGetVesselUnknown(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetVessel("000000000")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
