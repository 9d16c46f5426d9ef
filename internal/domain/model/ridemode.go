package model

// RideMode is a coarse activity class derived from speed alone.
type RideMode string

// Ride modes, ordered by speed.
const (
	RideModeIdle       RideMode = "Idle"
	RideModeWalking    RideMode = "Walking"
	RideModeScooter    RideMode = "Scooter"
	RideModeMotorcycle RideMode = "Motorcycle"
)

// Upper speed bounds (km/h, exclusive) for each mode below Motorcycle.
const (
	IdleMaxKmh    = 1.7
	WalkingMaxKmh = 5.5
	ScooterMaxKmh = 9.6
)

// AllRideModes lists every mode in ascending speed order.
var AllRideModes = []RideMode{RideModeIdle, RideModeWalking, RideModeScooter, RideModeMotorcycle}

// ClassifyRideMode maps a speed in km/h to a ride mode.
func ClassifyRideMode(speedKmh float64) RideMode {
	switch {
	case speedKmh < IdleMaxKmh:
		return RideModeIdle
	case speedKmh < WalkingMaxKmh:
		return RideModeWalking
	case speedKmh < ScooterMaxKmh:
		return RideModeScooter
	default:
		return RideModeMotorcycle
	}
}

// ModeNames returns AllRideModes as strings.
func ModeNames() []string {
	names := make([]string, len(AllRideModes))
	for i, m := range AllRideModes {
		names[i] = string(m)
	}
	return names
}
