// Package tracker maintains live per-vessel state and detects encounters:
// periods during which two moving vessels are close enough to pose a
// collision-avoidance situation. It owns the encounter lifecycle; the
// persisted rows are a projection of its in-memory state.
package tracker

import (
	"log"
	"sync"
	"time"

	"github.com/fairwater-data/encounter.report/internal/ais"
	"github.com/fairwater-data/encounter.report/internal/db"
	"github.com/fairwater-data/encounter.report/internal/geo"
	"github.com/fairwater-data/encounter.report/internal/units"
)

// Store is the persistence surface the tracker emits to. Writes are
// fire-and-forget for control flow: a failed write is logged and the
// in-memory view stays authoritative.
type Store interface {
	UpsertVessel(mmsi string, name *string, shipType *int, length, width *float64) error
	InsertPosition(mmsi, timestamp string, lat, lon, sog, cog, heading float64) error
	CreateEncounter(vesselA, vesselB, startTime string, distanceM float64, encounterType string, cpaM, tcpaS float64) (int64, error)
	UpdateEncounter(id int64, upd db.EncounterUpdate) error
	InsertEncounterPosition(encounterID int64, mmsi, timestamp string, lat, lon, sog, cog, heading float64) error
}

// Config holds the encounter detection thresholds.
type Config struct {
	// EngageDistanceNM opens an encounter; ReleaseDistanceNM closes it.
	// The gap provides hysteresis against flapping near the boundary.
	EngageDistanceNM  float64
	ReleaseDistanceNM float64

	// MinSpeedKn excludes stationary vessels from encounter logic.
	MinSpeedKn float64

	// StaleAfter drops vessels with no update and force-closes their
	// encounters.
	StaleAfter time.Duration

	// Classification boundaries, degrees of normalized course difference.
	HeadOnMinDeg     float64
	OvertakingMaxDeg float64
}

// DefaultConfig returns the production-default detection thresholds.
func DefaultConfig() Config {
	return Config{
		EngageDistanceNM:  3.0,
		ReleaseDistanceNM: 5.0,
		MinSpeedKn:        0.5,
		StaleAfter:        300 * time.Second,
		HeadOnMinDeg:      geo.DefaultHeadOnMinDeg,
		OvertakingMaxDeg:  geo.DefaultOvertakingMaxDeg,
	}
}

// ActiveEncounter is the live state for one vessel pair currently engaged.
type ActiveEncounter struct {
	ID           int64
	VesselA      string
	VesselB      string
	MinDistanceM float64
	LastUpdate   time.Time
}

// vesselState is the latest sighting of one vessel.
type vesselState struct {
	pos      ais.VesselPosition
	lastSeen time.Time
}

// pairKey is an unordered vessel pair, canonicalized so (A,B) and (B,A)
// address the same encounter.
type pairKey struct {
	a, b string
}

func keyFor(m1, m2 string) pairKey {
	if m1 < m2 {
		return pairKey{m1, m2}
	}
	return pairKey{m2, m1}
}

// Stats is a snapshot of tracker counters.
type Stats struct {
	ActiveVessels    int
	ActiveEncounters int
	TotalEncounters  int64
}

// Tracker is the per-pair encounter state machine. A single mutex guards
// the vessel and encounter maps: transitions are not commutative, so they
// must be serialized.
type Tracker struct {
	mu sync.Mutex

	cfg    Config
	store  Store
	logger *log.Logger

	vessels map[string]*vesselState
	active  map[pairKey]*ActiveEncounter

	totalEncounters int64

	now func() time.Time
}

// New creates a Tracker with the given thresholds. A nil logger falls back
// to log.Default().
func New(cfg Config, store Store, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		vessels: make(map[string]*vesselState),
		active:  make(map[pairKey]*ActiveEncounter),
		now:     time.Now,
	}
}

// HandleStatic persists vessel metadata. Absent fields are passed as nil so
// the coalescing upsert never clears stored values.
func (t *Tracker) HandleStatic(s ais.VesselStatic) {
	var name *string
	if s.Name != "" {
		name = &s.Name
	}
	var shipType *int
	if s.ShipType != 0 {
		shipType = &s.ShipType
	}
	var length, width *float64
	if s.Length > 0 {
		length = &s.Length
	}
	if s.Width > 0 {
		width = &s.Width
	}

	if err := t.store.UpsertVessel(s.MMSI, name, shipType, length, width); err != nil {
		t.logger.Printf("tracker: vessel upsert failed for %s: %v", s.MMSI, err)
	}
}

// HandlePosition processes one position report: it updates the vessel map,
// runs encounter transitions against every other tracked vessel, and sweeps
// stale entries.
func (t *Tracker) HandlePosition(pos ais.VesselPosition) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Even stationary vessels are tracked; they are just never the moving
	// party in encounter logic.
	t.vessels[pos.MMSI] = &vesselState{pos: pos, lastSeen: now}

	if pos.SOG < t.cfg.MinSpeedKn {
		return
	}

	if err := t.store.InsertPosition(pos.MMSI, pos.Timestamp, pos.Lat, pos.Lon, pos.SOG, pos.COG, pos.Heading); err != nil {
		t.logger.Printf("tracker: position insert failed for %s: %v", pos.MMSI, err)
	}

	if pos.Name != "" {
		if err := t.store.UpsertVessel(pos.MMSI, &pos.Name, nil, nil, nil); err != nil {
			t.logger.Printf("tracker: vessel upsert failed for %s: %v", pos.MMSI, err)
		}
	}

	t.checkEncountersLocked(pos, now)
	t.sweepStaleLocked(now)
}

func track(p ais.VesselPosition) geo.Track {
	return geo.Track{Lat: p.Lat, Lon: p.Lon, SOG: p.SOG, COG: p.COG}
}

func (t *Tracker) checkEncountersLocked(pos ais.VesselPosition, now time.Time) {
	engageM := units.NauticalMilesToMeters(t.cfg.EngageDistanceNM)
	releaseM := units.NauticalMilesToMeters(t.cfg.ReleaseDistanceNM)

	for otherMMSI, other := range t.vessels {
		if otherMMSI == pos.MMSI {
			continue
		}
		if other.pos.SOG < t.cfg.MinSpeedKn {
			continue
		}
		if now.Sub(other.lastSeen) > t.cfg.StaleAfter {
			continue
		}

		dist := geo.Distance(pos.Lat, pos.Lon, other.pos.Lat, other.pos.Lon)
		key := keyFor(pos.MMSI, otherMMSI)

		if enc, ok := t.active[key]; ok {
			if dist > releaseM {
				t.closeEncounterLocked(key, enc, pos.Timestamp)
				continue
			}

			if dist < enc.MinDistanceM {
				enc.MinDistanceM = dist
				cpa, tcpa := geo.ClosestApproach(track(pos), track(other.pos))
				if err := t.store.UpdateEncounter(enc.ID, db.EncounterUpdate{
					MinDistanceM: &dist,
					CPAMeters:    &cpa,
					TCPASeconds:  &tcpa,
				}); err != nil {
					t.logger.Printf("tracker: encounter %d update failed: %v", enc.ID, err)
				}
			}
			enc.LastUpdate = now

			if err := t.store.InsertEncounterPosition(enc.ID, pos.MMSI, pos.Timestamp, pos.Lat, pos.Lon, pos.SOG, pos.COG, pos.Heading); err != nil {
				t.logger.Printf("tracker: encounter %d position insert failed: %v", enc.ID, err)
			}
			continue
		}

		if dist < engageM {
			t.openEncounterLocked(key, pos, other.pos, dist, now)
		}
	}
}

func (t *Tracker) openEncounterLocked(key pairKey, pos, other ais.VesselPosition, dist float64, now time.Time) {
	cpa, tcpa := geo.ClosestApproach(track(pos), track(other))
	encType := geo.ClassifyWithBounds(pos.COG, other.COG, t.cfg.HeadOnMinDeg, t.cfg.OvertakingMaxDeg)

	id, err := t.store.CreateEncounter(key.a, key.b, pos.Timestamp, dist, string(encType), cpa, tcpa)
	if err != nil {
		// Without a store-assigned id there is nothing to track against;
		// the next position report retries the creation.
		t.logger.Printf("tracker: encounter create failed for %s <-> %s: %v", key.a, key.b, err)
		return
	}

	t.active[key] = &ActiveEncounter{
		ID:           id,
		VesselA:      key.a,
		VesselB:      key.b,
		MinDistanceM: dist,
		LastUpdate:   now,
	}
	t.totalEncounters++

	t.logger.Printf("encounter started: %s <-> %s (dist %.0f m, type %s, CPA %.0f m)",
		key.a, key.b, dist, encType, cpa)

	// The first encounter-position samples: both vessels' current fixes.
	if err := t.store.InsertEncounterPosition(id, pos.MMSI, pos.Timestamp, pos.Lat, pos.Lon, pos.SOG, pos.COG, pos.Heading); err != nil {
		t.logger.Printf("tracker: encounter %d position insert failed: %v", id, err)
	}
	if err := t.store.InsertEncounterPosition(id, other.MMSI, other.Timestamp, other.Lat, other.Lon, other.SOG, other.COG, other.Heading); err != nil {
		t.logger.Printf("tracker: encounter %d position insert failed: %v", id, err)
	}
}

func (t *Tracker) closeEncounterLocked(key pairKey, enc *ActiveEncounter, endTime string) {
	if err := t.store.UpdateEncounter(enc.ID, db.EncounterUpdate{EndTime: &endTime}); err != nil {
		t.logger.Printf("tracker: encounter %d close failed: %v", enc.ID, err)
	}
	t.logger.Printf("encounter ended: %s <-> %s (min dist %.0f m)", enc.VesselA, enc.VesselB, enc.MinDistanceM)
	delete(t.active, key)
}

// sweepStaleLocked drops vessels without updates inside the timeout window
// and force-closes any encounter referencing them, so encounters always end
// even without an explicit disengagement observation.
func (t *Tracker) sweepStaleLocked(now time.Time) {
	for mmsi, vs := range t.vessels {
		if now.Sub(vs.lastSeen) <= t.cfg.StaleAfter {
			continue
		}

		endTime := now.UTC().Format(time.RFC3339)
		for key, enc := range t.active {
			if key.a == mmsi || key.b == mmsi {
				t.closeEncounterLocked(key, enc, endTime)
			}
		}
		delete(t.vessels, mmsi)
	}
}

// Stats returns a snapshot of the tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		ActiveVessels:    len(t.vessels),
		ActiveEncounters: len(t.active),
		TotalEncounters:  t.totalEncounters,
	}
}
