// Package feed defines the snapshot wire format shared by the broadcast
// publisher and its subscribers.
package feed

import "time"

// Position is a resolved global coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Velocity is the most recent ground or air velocity decoded for an aircraft.
// Type is "GS" for ground speed, "TAS"/"IAS" for airspeed variants.
type Velocity struct {
	Speed        float64 `json:"speed"`
	Track        float64 `json:"track"`
	VerticalRate int     `json:"verticalRate"`
	Type         string  `json:"type"`
}

// Aircraft is the per-aircraft wire object. Unknown fields marshal to null
// rather than being omitted, so subscribers can rely on key presence.
type Aircraft struct {
	Callsign   *string   `json:"callsign"`
	Position   *Position `json:"position"`
	Altitude   *int      `json:"altitude"`
	Velocity   *Velocity `json:"velocity"`
	LastUpdate float64   `json:"lastUpdate"`
	FirstSeen  float64   `json:"firstSeen"`
}

// Snapshot is one broadcast payload: every tracked aircraft keyed by its
// 24-bit hex address.
type Snapshot map[string]Aircraft

// EpochSeconds renders a time as fractional seconds since the Unix epoch,
// the timestamp convention used throughout the wire format.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpochSeconds is the inverse of EpochSeconds.
func FromEpochSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}
