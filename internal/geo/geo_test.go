package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceSymmetryAndIdentity(t *testing.T) {
	points := [][2]float64{
		{51.95, 3.90},
		{0, 0},
		{-33.86, 151.21},
		{59.33, 18.07},
	}

	for _, p := range points {
		assert.Zero(t, Distance(p[0], p[1], p[0], p[1]), "distance to self must be zero")
	}

	for i := range points {
		for j := range points {
			d1 := Distance(points[i][0], points[i][1], points[j][0], points[j][1])
			d2 := Distance(points[j][0], points[j][1], points[i][0], points[i][1])
			assert.InDelta(t, d1, d2, 1e-6, "distance must be symmetric")
		}
	}
}

func TestDistanceDegreeScale(t *testing.T) {
	// One degree of latitude is ~111.32 km anywhere.
	for _, lat := range []float64{-60, 0, 35, 52} {
		d := Distance(lat, 4.0, lat+1, 4.0)
		assert.InEpsilon(t, 111320.0, d, 0.01, "1 deg latitude at lat=%f", lat)
	}

	// One degree of longitude at the equator is ~111.32 km.
	d := Distance(0, 10, 0, 11)
	assert.InEpsilon(t, 111320.0, d, 0.01)
}

func TestClosestApproachConverging(t *testing.T) {
	// Two vessels on reciprocal courses along the same meridian, closing.
	a := Track{Lat: 52.00, Lon: 4.00, SOG: 10, COG: 0}   // northbound
	b := Track{Lat: 52.10, Lon: 4.00, SOG: 10, COG: 180} // southbound

	cpa, tcpa := ClosestApproach(a, b)
	assert.Less(t, cpa, 100.0, "reciprocal courses on the same line should nearly collide")
	assert.Greater(t, tcpa, 0.0, "closest approach lies in the future")
}

func TestClosestApproachStationary(t *testing.T) {
	a := Track{Lat: 52.00, Lon: 4.00}
	b := Track{Lat: 52.02, Lon: 4.03}

	cpa, tcpa := ClosestApproach(a, b)
	assert.Zero(t, tcpa)

	// With no relative motion the CPA equals the current separation
	// (flat-earth separation tracks haversine closely at this range).
	dist := Distance(a.Lat, a.Lon, b.Lat, b.Lon)
	assert.InEpsilon(t, dist, cpa, 0.01)
}

func TestClosestApproachDiverging(t *testing.T) {
	// Vessels that already passed each other: A north of B, both moving apart.
	a := Track{Lat: 52.10, Lon: 4.00, SOG: 10, COG: 0}   // northbound, ahead
	b := Track{Lat: 52.00, Lon: 4.00, SOG: 10, COG: 180} // southbound, behind

	_, tcpa := ClosestApproach(a, b)
	assert.Negative(t, tcpa, "diverging vessels must surface a negative TCPA")
}

func TestClosestApproachSameVelocity(t *testing.T) {
	// Identical velocity vectors: relative speed is zero, so TCPA is 0 and
	// the CPA is the current separation.
	a := Track{Lat: 52.00, Lon: 4.00, SOG: 12, COG: 45}
	b := Track{Lat: 52.01, Lon: 4.01, SOG: 12, COG: 45}

	cpa, tcpa := ClosestApproach(a, b)
	assert.Zero(t, tcpa)
	assert.Greater(t, cpa, 0.0)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		cogA float64
		cogB float64
		want EncounterType
	}{
		{"exact reciprocal", 0, 180, HeadOn},
		{"near reciprocal", 10, 185, HeadOn},
		{"boundary head-on", 0, 165, HeadOn},
		{"same course", 45, 45, Overtaking},
		{"nearly parallel", 45, 60, Overtaking},
		{"boundary overtaking", 0, 30, Overtaking},
		{"perpendicular", 0, 90, Crossing},
		{"oblique", 10, 100, Crossing},
		{"wraparound reciprocal", 350, 170, HeadOn},
		{"wraparound parallel", 355, 5, Overtaking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.cogA, tt.cogB)
			require.Equal(t, tt.want, got)

			// Classification is symmetric under swapping courses.
			assert.Equal(t, got, Classify(tt.cogB, tt.cogA))
		})
	}
}

func TestClassifySymmetryExhaustive(t *testing.T) {
	for a := 0.0; a < 360; a += 15 {
		for b := 0.0; b < 360; b += 15 {
			assert.Equal(t, Classify(a, b), Classify(b, a), "cogA=%f cogB=%f", a, b)
		}
	}
}

func TestDistanceMatchesHaversineReference(t *testing.T) {
	// Rotterdam approach to IJmuiden, reference value computed with the
	// standard haversine formula at R=6371km.
	d := Distance(51.98, 4.10, 52.46, 4.55)
	ref := haversineRef(51.98, 4.10, 52.46, 4.55)
	assert.InDelta(t, ref, d, 1e-6)
}

func haversineRef(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dlat := toRad(lat2 - lat1)
	dlon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dlon/2), 2)
	return 6371000.0 * 2 * math.Asin(math.Sqrt(a))
}
