// Package geo provides the collision geometry used by encounter detection:
// great-circle distance, closest point of approach, and COLREGS-style
// encounter classification. All functions are pure.
package geo

import (
	"math"

	"github.com/fairwater-data/encounter.report/internal/units"
)

// EncounterType categorises the geometry of a two-vessel encounter under
// right-of-way rules.
type EncounterType string

const (
	HeadOn     EncounterType = "head-on"
	Crossing   EncounterType = "crossing"
	Overtaking EncounterType = "overtaking"
)

// Classification boundaries in degrees of normalized course difference.
// The original detector mixed a 67.5° overtaking test with a documented 15°
// one; these defaults split the difference explicitly: head-on for
// near-reciprocal courses (>=165°), overtaking for near-parallel (<=30°).
const (
	DefaultHeadOnMinDeg     = 165.0
	DefaultOvertakingMaxDeg = 30.0
)

// minRelativeSpeedSq is the squared relative speed (m/s)² below which two
// vessels are treated as neither converging nor diverging.
const minRelativeSpeedSq = 1e-6

// Track is a vessel position plus velocity over ground, the inputs to the
// closest-approach computation.
type Track struct {
	Lat float64 // degrees
	Lon float64 // degrees
	SOG float64 // knots
	COG float64 // degrees, 0-360
}

// Distance returns the great-circle distance in meters between two points,
// using the haversine formula on a spherical earth.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	sinLat := math.Sin(dlat / 2)
	sinLon := math.Sin(dlon / 2)
	a := sinLat*sinLat + math.Cos(rlat1)*math.Cos(rlat2)*sinLon*sinLon
	return units.EarthRadiusMeters * 2 * math.Asin(math.Sqrt(a))
}

// ClosestApproach predicts the closest point of approach between two vessel
// tracks assuming constant velocity. It returns the CPA distance in meters
// and the time to CPA in seconds. A negative TCPA means the closest approach
// already occurred and the vessels are now diverging; it is returned as-is.
//
// Positions are projected onto a flat-earth tangent plane centered on the
// midpoint, which is adequate for the short ranges (tens of NM) the tracker
// operates over.
func ClosestApproach(a, b Track) (cpaMeters, tcpaSeconds float64) {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	mPerDegLat := units.MetersPerDegreeLat
	mPerDegLon := units.MetersPerDegreeLat * math.Cos(midLat)

	// Position of B relative to A, meters.
	dx := (b.Lon - a.Lon) * mPerDegLon
	dy := (b.Lat - a.Lat) * mPerDegLat

	// Velocity components in m/s; COG is degrees clockwise from north, so
	// east = sin, north = cos.
	vax := units.KnotsToMps(a.SOG) * math.Sin(a.COG*math.Pi/180)
	vay := units.KnotsToMps(a.SOG) * math.Cos(a.COG*math.Pi/180)
	vbx := units.KnotsToMps(b.SOG) * math.Sin(b.COG*math.Pi/180)
	vby := units.KnotsToMps(b.SOG) * math.Cos(b.COG*math.Pi/180)

	dvx := vbx - vax
	dvy := vby - vay

	dvSq := dvx*dvx + dvy*dvy
	if dvSq < minRelativeSpeedSq {
		// No resolvable relative motion: CPA is the current separation.
		return math.Sqrt(dx*dx + dy*dy), 0
	}

	tcpa := -(dx*dvx + dy*dvy) / dvSq

	cpaX := dx + dvx*tcpa
	cpaY := dy + dvy*tcpa
	return math.Sqrt(cpaX*cpaX + cpaY*cpaY), tcpa
}

// Classify categorises an encounter from the two courses over ground using
// the default boundaries. The result is symmetric in its arguments.
func Classify(cogA, cogB float64) EncounterType {
	return ClassifyWithBounds(cogA, cogB, DefaultHeadOnMinDeg, DefaultOvertakingMaxDeg)
}

// ClassifyWithBounds is Classify with explicit head-on and overtaking
// boundaries in degrees.
func ClassifyWithBounds(cogA, cogB, headOnMinDeg, overtakingMaxDeg float64) EncounterType {
	diff := math.Mod(math.Abs(cogA-cogB), 360)
	if diff > 180 {
		diff = 360 - diff
	}

	switch {
	case diff >= headOnMinDeg:
		return HeadOn
	case diff <= overtakingMaxDeg:
		return Overtaking
	default:
		return Crossing
	}
}
