// Package units provides shared conversion constants for marine quantities.
package units

const (
	// NauticalMileMeters is the length of one nautical mile in meters.
	NauticalMileMeters = 1852.0

	// KnotsToMetersPerSecond converts speed over ground from knots to m/s.
	KnotsToMetersPerSecond = 0.514444

	// MetersPerDegreeLat is the flat-earth approximation of one degree of
	// latitude. One degree of longitude is this value scaled by cos(lat).
	MetersPerDegreeLat = 111320.0

	// EarthRadiusMeters is the mean Earth radius used for haversine distance.
	EarthRadiusMeters = 6371000.0
)

// NauticalMilesToMeters converts a distance in nautical miles to meters.
func NauticalMilesToMeters(nm float64) float64 {
	return nm * NauticalMileMeters
}

// MetersToNauticalMiles converts a distance in meters to nautical miles.
func MetersToNauticalMiles(m float64) float64 {
	return m / NauticalMileMeters
}

// KnotsToMps converts a speed in knots to meters per second.
func KnotsToMps(kn float64) float64 {
	return kn * KnotsToMetersPerSecond
}

// MpsToKnots converts a speed in meters per second to knots.
func MpsToKnots(mps float64) float64 {
	return mps / KnotsToMetersPerSecond
}
