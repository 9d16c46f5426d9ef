// Package model contains domain models passed between layers.
package model

import "strconv"

// StandardGravity converts m/s² into g.
const StandardGravity = 9.8

// Position source labels.
const (
	PositionDevice   = "device"
	PositionFallback = "fallback"
)

// RawSample is one record delivered by the device transport.
// Every field is optional; absent fields stay nil.
type RawSample struct {
	ID       string   `json:"id,omitempty"`       // optional device id used for de-duplication
	AX       *float64 `json:"ax,omitempty"`       // acceleration x, m/s²
	AY       *float64 `json:"ay,omitempty"`       // acceleration y, m/s²
	AZ       *float64 `json:"az,omitempty"`       // acceleration z, m/s²
	Tilt     *float64 `json:"tilt,omitempty"`     // tilt angle, degrees
	Posture  *string  `json:"posture,omitempty"`  // posture label
	GPSSpeed *float64 `json:"gpsSpeed,omitempty"` // km/h
	IMUSpeed *float64 `json:"imuSpeed,omitempty"` // km/h
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// HasAcceleration reports whether at least one acceleration component is present.
func (r RawSample) HasAcceleration() bool {
	return r.AX != nil || r.AY != nil || r.AZ != nil
}

// HasPosition reports whether both coordinates are present.
func (r RawSample) HasPosition() bool {
	return r.Lat != nil && r.Lon != nil
}

// Position is a latitude/longitude pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Reading is the canonical, normalized form of a RawSample.
// It is treated as immutable once created; Amend returns a copy.
type Reading struct {
	Seq              uint64   `json:"seq"`
	AccelerationG    float64  `json:"accelerationG"`
	SpeedKmh         float64  `json:"speedKmh"`
	RideMode         RideMode `json:"rideMode"`
	Tilt             *float64 `json:"tilt,omitempty"`
	Posture          *string  `json:"posture,omitempty"`
	Lat              *float64 `json:"lat,omitempty"`
	Lon              *float64 `json:"lon,omitempty"`
	PositionSource   string   `json:"positionSource,omitempty"`
	CapturedAtMillis int64    `json:"capturedAtMillis"`
}

// HasPosition reports whether the reading carries coordinates.
func (r Reading) HasPosition() bool {
	return r.Lat != nil && r.Lon != nil
}

// WithFallbackPosition returns a copy of r enriched with pos.
// Readings that already carry a position are returned unchanged.
func (r Reading) WithFallbackPosition(pos Position) Reading {
	if r.HasPosition() {
		return r
	}
	lat, lon := pos.Lat, pos.Lon
	r.Lat = &lat
	r.Lon = &lon
	r.PositionSource = PositionFallback
	return r
}

// Field is one named, formatted column of a Reading.
type Field struct {
	Key   string
	Value string
}

// Fields returns the reading's present fields in a stable order.
// Optional fields that are absent are omitted, so the set of keys
// depends on the reading.
func (r Reading) Fields() []Field {
	fields := []Field{
		{Key: "seq", Value: strconv.FormatUint(r.Seq, 10)},
		{Key: "accelerationG", Value: formatFloat(r.AccelerationG)},
		{Key: "speedKmh", Value: formatFloat(r.SpeedKmh)},
		{Key: "rideMode", Value: string(r.RideMode)},
	}
	if r.Tilt != nil {
		fields = append(fields, Field{Key: "tilt", Value: formatFloat(*r.Tilt)})
	}
	if r.Posture != nil {
		fields = append(fields, Field{Key: "posture", Value: *r.Posture})
	}
	if r.HasPosition() {
		fields = append(fields,
			Field{Key: "lat", Value: formatFloat(*r.Lat)},
			Field{Key: "lon", Value: formatFloat(*r.Lon)},
			Field{Key: "positionSource", Value: r.PositionSource},
		)
	}
	fields = append(fields, Field{Key: "capturedAtMillis", Value: strconv.FormatInt(r.CapturedAtMillis, 10)})
	return fields
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
