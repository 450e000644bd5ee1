package ais

import (
	"strconv"
	"strings"
	"time"
)

// envelope mirrors the aisstream.io message shape: a MessageType
// discriminator, shared metadata, and one nested payload per type. Pointer
// fields make presence explicit so partial messages can be rejected without
// guessing at zero values.
type envelope struct {
	MessageType string   `json:"MessageType"`
	MetaData    *meta    `json:"MetaData"`
	Message     payloads `json:"Message"`
}

type meta struct {
	MMSI     *int64 `json:"MMSI"`
	ShipName string `json:"ShipName"`
	TimeUTC  string `json:"time_utc"`
}

type payloads struct {
	PositionReport *positionReport `json:"PositionReport"`
	ShipStaticData *shipStaticData `json:"ShipStaticData"`
}

type positionReport struct {
	Latitude    *float64 `json:"Latitude"`
	Longitude   *float64 `json:"Longitude"`
	Sog         *float64 `json:"Sog"`
	Cog         *float64 `json:"Cog"`
	TrueHeading *float64 `json:"TrueHeading"`
}

type shipStaticData struct {
	Name      string     `json:"Name"`
	Type      *int       `json:"Type"`
	Dimension *dimension `json:"Dimension"`
}

// dimension holds antenna offsets: A/B are distances to bow and stern,
// C/D to port and starboard.
type dimension struct {
	A float64 `json:"A"`
	B float64 `json:"B"`
	C float64 `json:"C"`
	D float64 `json:"D"`
}

// parsePosition extracts a VesselPosition from a PositionReport envelope.
// MMSI, latitude and longitude are required; everything else defaults.
func parsePosition(env *envelope) (VesselPosition, bool) {
	report := env.Message.PositionReport
	if report == nil || env.MetaData == nil || env.MetaData.MMSI == nil {
		return VesselPosition{}, false
	}
	if report.Latitude == nil || report.Longitude == nil {
		return VesselPosition{}, false
	}

	pos := VesselPosition{
		MMSI:      strconv.FormatInt(*env.MetaData.MMSI, 10),
		Timestamp: env.MetaData.TimeUTC,
		Lat:       *report.Latitude,
		Lon:       *report.Longitude,
		Heading:   HeadingUnavailable,
		Name:      strings.TrimSpace(env.MetaData.ShipName),
	}
	if pos.Timestamp == "" {
		pos.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if report.Sog != nil {
		pos.SOG = *report.Sog
	}
	if report.Cog != nil {
		pos.COG = *report.Cog
	}
	if report.TrueHeading != nil {
		pos.Heading = *report.TrueHeading
	}
	return pos, true
}

// parseStatic extracts a VesselStatic from a ShipStaticData envelope.
func parseStatic(env *envelope) (VesselStatic, bool) {
	static := env.Message.ShipStaticData
	if static == nil || env.MetaData == nil || env.MetaData.MMSI == nil {
		return VesselStatic{}, false
	}

	name := strings.TrimSpace(static.Name)
	if name == "" {
		name = strings.TrimSpace(env.MetaData.ShipName)
	}

	out := VesselStatic{
		MMSI: strconv.FormatInt(*env.MetaData.MMSI, 10),
		Name: name,
	}
	if static.Type != nil {
		out.ShipType = *static.Type
	}
	if dim := static.Dimension; dim != nil {
		out.Length = dim.A + dim.B
		out.Width = dim.C + dim.D
	}
	return out, true
}
