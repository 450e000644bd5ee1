// Package db persists vessels, positions, encounters and water levels to
// sqlite, and provides the write buffering that decouples ingestion bursts
// from storage I/O.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS vessels (
		mmsi          TEXT PRIMARY KEY,
		name          TEXT,
		ship_type     INTEGER,
		length        REAL,
		width         REAL,
		updated_at    TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	);

	CREATE TABLE IF NOT EXISTS positions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		mmsi          TEXT NOT NULL,
		timestamp     TEXT NOT NULL,
		lat           REAL NOT NULL,
		lon           REAL NOT NULL,
		sog           REAL,
		cog           REAL,
		heading       REAL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_mmsi_ts ON positions(mmsi, timestamp);

	CREATE TABLE IF NOT EXISTS encounters (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		vessel_a_mmsi   TEXT NOT NULL,
		vessel_b_mmsi   TEXT NOT NULL,
		start_time      TEXT NOT NULL,
		end_time        TEXT,
		min_distance_m  REAL,
		encounter_type  TEXT,
		cpa_m           REAL,
		tcpa_s          REAL
	);
	CREATE INDEX IF NOT EXISTS idx_encounters_start ON encounters(start_time);

	CREATE TABLE IF NOT EXISTS encounter_positions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		encounter_id  INTEGER NOT NULL,
		mmsi          TEXT NOT NULL,
		timestamp     TEXT NOT NULL,
		lat           REAL NOT NULL,
		lon           REAL NOT NULL,
		sog           REAL,
		cog           REAL,
		heading       REAL,
		FOREIGN KEY (encounter_id) REFERENCES encounters(id)
	);
	CREATE INDEX IF NOT EXISTS idx_enc_pos_encounter ON encounter_positions(encounter_id);

	CREATE TABLE IF NOT EXISTS water_levels (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id       TEXT NOT NULL,
		station_name     TEXT,
		source           TEXT NOT NULL DEFAULT 'rws',
		reference_datum  TEXT DEFAULT 'NAP',
		timestamp        TEXT NOT NULL,
		water_level_cm   REAL,
		lat              REAL NOT NULL,
		lon              REAL NOT NULL,
		UNIQUE(source, station_id, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_wl_station_ts ON water_levels(station_id, timestamp);
`

// NewDB opens (or creates) the sqlite database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral database in tests.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set journal mode: %v", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %v", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &DB{sqlDB}, nil
}

// UpsertVessel inserts or updates vessel metadata. Nil fields never
// overwrite previously stored values (coalescing update).
func (db *DB) UpsertVessel(mmsi string, name *string, shipType *int, length, width *float64) error {
	_, err := db.Exec(
		`INSERT INTO vessels (mmsi, name, ship_type, length, width)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(mmsi) DO UPDATE SET
			name = COALESCE(excluded.name, vessels.name),
			ship_type = COALESCE(excluded.ship_type, vessels.ship_type),
			length = COALESCE(excluded.length, vessels.length),
			width = COALESCE(excluded.width, vessels.width),
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		mmsi, name, shipType, length, width,
	)
	return err
}

// Vessel is a stored vessels row.
type Vessel struct {
	MMSI     string
	Name     *string
	ShipType *int
	Length   *float64
	Width    *float64
}

// GetVessel returns a vessel by MMSI, or sql.ErrNoRows if unknown.
func (db *DB) GetVessel(mmsi string) (Vessel, error) {
	var v Vessel
	err := db.QueryRow(
		`SELECT mmsi, name, ship_type, length, width FROM vessels WHERE mmsi = ?`, mmsi,
	).Scan(&v.MMSI, &v.Name, &v.ShipType, &v.Length, &v.Width)
	return v, err
}

// CreateEncounter inserts a new encounter row and returns its id.
func (db *DB) CreateEncounter(vesselA, vesselB, startTime string, distanceM float64, encounterType string, cpaM, tcpaS float64) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO encounters
			(vessel_a_mmsi, vessel_b_mmsi, start_time, min_distance_m, encounter_type, cpa_m, tcpa_s)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		vesselA, vesselB, startTime, distanceM, encounterType, cpaM, tcpaS,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EncounterUpdate is a partial encounter update: only non-nil fields change.
type EncounterUpdate struct {
	EndTime      *string
	MinDistanceM *float64
	CPAMeters    *float64
	TCPASeconds  *float64
}

// UpdateEncounter applies a partial update to an encounter row. An update
// with no fields set is a no-op.
func (db *DB) UpdateEncounter(id int64, upd EncounterUpdate) error {
	var sets []string
	var args []any

	if upd.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, *upd.EndTime)
	}
	if upd.MinDistanceM != nil {
		sets = append(sets, "min_distance_m = ?")
		args = append(args, *upd.MinDistanceM)
	}
	if upd.CPAMeters != nil {
		sets = append(sets, "cpa_m = ?")
		args = append(args, *upd.CPAMeters)
	}
	if upd.TCPASeconds != nil {
		sets = append(sets, "tcpa_s = ?")
		args = append(args, *upd.TCPASeconds)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	_, err := db.Exec(
		fmt.Sprintf("UPDATE encounters SET %s WHERE id = ?", strings.Join(sets, ", ")),
		args...,
	)
	return err
}

// Encounter is a stored encounters row.
type Encounter struct {
	ID            int64
	VesselA       string
	VesselB       string
	StartTime     string
	EndTime       *string
	MinDistanceM  float64
	EncounterType string
	CPAMeters     float64
	TCPASeconds   float64
}

// GetEncounter returns an encounter by id, or sql.ErrNoRows if unknown.
func (db *DB) GetEncounter(id int64) (Encounter, error) {
	var e Encounter
	err := db.QueryRow(
		`SELECT id, vessel_a_mmsi, vessel_b_mmsi, start_time, end_time,
			min_distance_m, encounter_type, cpa_m, tcpa_s
		 FROM encounters WHERE id = ?`, id,
	).Scan(&e.ID, &e.VesselA, &e.VesselB, &e.StartTime, &e.EndTime,
		&e.MinDistanceM, &e.EncounterType, &e.CPAMeters, &e.TCPASeconds)
	return e, err
}

// RecentEncounters returns up to limit encounters, most recent start first.
func (db *DB) RecentEncounters(limit int) ([]Encounter, error) {
	rows, err := db.Query(
		`SELECT id, vessel_a_mmsi, vessel_b_mmsi, start_time, end_time,
			min_distance_m, encounter_type, cpa_m, tcpa_s
		 FROM encounters ORDER BY start_time DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Encounter
	for rows.Next() {
		var e Encounter
		if err := rows.Scan(&e.ID, &e.VesselA, &e.VesselB, &e.StartTime, &e.EndTime,
			&e.MinDistanceM, &e.EncounterType, &e.CPAMeters, &e.TCPASeconds); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertPositions bulk-inserts position rows in a single transaction.
func (db *DB) InsertPositions(batch []PositionRow) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO positions (mmsi, timestamp, lat, lon, sog, cog, heading)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range batch {
		if _, err := stmt.Exec(row.MMSI, row.Timestamp, row.Lat, row.Lon, row.SOG, row.COG, row.Heading); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertEncounterPositions bulk-inserts encounter position samples in a
// single transaction.
func (db *DB) InsertEncounterPositions(batch []EncounterPositionRow) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO encounter_positions (encounter_id, mmsi, timestamp, lat, lon, sog, cog, heading)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range batch {
		if _, err := stmt.Exec(row.EncounterID, row.MMSI, row.Timestamp, row.Lat, row.Lon, row.SOG, row.COG, row.Heading); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountPositions returns the number of stored position rows.
func (db *DB) CountPositions() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM positions`).Scan(&n)
	return n, err
}

// CountEncounterPositions returns the number of stored encounter position
// samples for one encounter.
func (db *DB) CountEncounterPositions(encounterID int64) (int64, error) {
	var n int64
	err := db.QueryRow(
		`SELECT COUNT(*) FROM encounter_positions WHERE encounter_id = ?`, encounterID,
	).Scan(&n)
	return n, err
}

// WaterLevel is a single water level observation.
type WaterLevel struct {
	StationID      string
	StationName    string
	Source         string
	ReferenceDatum string
	Timestamp      string
	LevelCM        float64
	Lat            float64
	Lon            float64
}

// UpsertWaterLevel inserts or refreshes a water level observation; repeat
// observations for the same station and timestamp overwrite the value.
func (db *DB) UpsertWaterLevel(wl WaterLevel) error {
	if wl.Source == "" {
		wl.Source = "rws"
	}
	if wl.ReferenceDatum == "" {
		wl.ReferenceDatum = "NAP"
	}
	_, err := db.Exec(
		`INSERT INTO water_levels
			(station_id, station_name, source, reference_datum, timestamp, water_level_cm, lat, lon)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source, station_id, timestamp) DO UPDATE SET
			water_level_cm = excluded.water_level_cm,
			station_name = excluded.station_name`,
		wl.StationID, wl.StationName, wl.Source, wl.ReferenceDatum,
		wl.Timestamp, wl.LevelCM, wl.Lat, wl.Lon,
	)
	return err
}

// LatestWaterLevels returns the most recent observation per station.
func (db *DB) LatestWaterLevels() ([]WaterLevel, error) {
	rows, err := db.Query(
		`SELECT station_id, station_name, source, reference_datum, timestamp, water_level_cm, lat, lon
		 FROM water_levels
		 WHERE id IN (SELECT MAX(id) FROM water_levels GROUP BY source, station_id)
		 ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WaterLevel
	for rows.Next() {
		var wl WaterLevel
		if err := rows.Scan(&wl.StationID, &wl.StationName, &wl.Source, &wl.ReferenceDatum,
			&wl.Timestamp, &wl.LevelCM, &wl.Lat, &wl.Lon); err != nil {
			return nil, err
		}
		out = append(out, wl)
	}
	return out, rows.Err()
}
