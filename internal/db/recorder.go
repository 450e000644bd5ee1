package db

// Recorder is the persistence surface handed to the encounter tracker:
// encounter lifecycle writes go straight to the database, high-volume
// position rows go through the write buffer.
type Recorder struct {
	db  *DB
	buf *Buffer
}

// NewRecorder binds a database and a write buffer into one persistence
// handle.
func NewRecorder(db *DB, buf *Buffer) *Recorder {
	return &Recorder{db: db, buf: buf}
}

func (r *Recorder) UpsertVessel(mmsi string, name *string, shipType *int, length, width *float64) error {
	return r.db.UpsertVessel(mmsi, name, shipType, length, width)
}

func (r *Recorder) InsertPosition(mmsi, timestamp string, lat, lon, sog, cog, heading float64) error {
	return r.buf.AddPosition(PositionRow{
		MMSI:      mmsi,
		Timestamp: timestamp,
		Lat:       lat,
		Lon:       lon,
		SOG:       sog,
		COG:       cog,
		Heading:   heading,
	})
}

func (r *Recorder) CreateEncounter(vesselA, vesselB, startTime string, distanceM float64, encounterType string, cpaM, tcpaS float64) (int64, error) {
	return r.db.CreateEncounter(vesselA, vesselB, startTime, distanceM, encounterType, cpaM, tcpaS)
}

func (r *Recorder) UpdateEncounter(id int64, upd EncounterUpdate) error {
	return r.db.UpdateEncounter(id, upd)
}

func (r *Recorder) InsertEncounterPosition(encounterID int64, mmsi, timestamp string, lat, lon, sog, cog, heading float64) error {
	return r.buf.AddEncounterPosition(EncounterPositionRow{
		EncounterID: encounterID,
		MMSI:        mmsi,
		Timestamp:   timestamp,
		Lat:         lat,
		Lon:         lon,
		SOG:         sog,
		COG:         cog,
		Heading:     heading,
	})
}
