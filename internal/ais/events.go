// Package ais maintains the client connection to an aisstream.io-compatible
// feed and turns inbound messages into typed vessel events.
package ais

// HeadingUnavailable is the sentinel used when a position report carries no
// usable true heading.
const HeadingUnavailable = -1.0

// Event is a parsed feed message: either a VesselPosition or a VesselStatic.
type Event interface {
	event()
}

// VesselPosition is a single position report for one vessel.
type VesselPosition struct {
	MMSI      string
	Timestamp string // ISO-8601 UTC as carried by the feed
	Lat       float64
	Lon       float64
	SOG       float64 // knots
	COG       float64 // degrees, 0-360
	Heading   float64 // degrees, HeadingUnavailable if not reported
	Name      string
}

func (VesselPosition) event() {}

// VesselStatic carries vessel metadata from a ShipStaticData message.
// Length and width are derived from the reported bow/stern and
// port/starboard antenna offsets.
type VesselStatic struct {
	MMSI     string
	Name     string
	ShipType int
	Length   float64
	Width    float64
}

func (VesselStatic) event() {}
