package modes

import (
	"time"

	"github.com/yegors/skybridge/internal/feed"
)

// StandardDecoder adapts the package's frame functions to the narrow
// decoding interface the aggregator consumes.
type StandardDecoder struct{}

func (StandardDecoder) Valid(m Message) bool {
	return len(m) == frameLen && m.ChecksumOK()
}

func (StandardDecoder) DF(m Message) int { return m.DF() }

func (StandardDecoder) ICAO(m Message) string { return m.ICAO() }

func (StandardDecoder) Typecode(m Message) int { return m.Typecode() }

func (StandardDecoder) Callsign(m Message) (string, bool) { return m.Callsign() }

func (StandardDecoder) Altitude(m Message) (int, bool) { return m.Altitude() }

// CPRParity returns the even/odd flag of a position frame.
func (StandardDecoder) CPRParity(m Message) (odd, ok bool) {
	_, _, odd, ok = m.CPR()
	return odd, ok
}

func (StandardDecoder) Velocity(m Message) (*feed.Velocity, bool) {
	speed, track, verticalRate, vtype, ok := m.Velocity()
	if !ok {
		return nil, false
	}
	return &feed.Velocity{Speed: speed, Track: track, VerticalRate: verticalRate, Type: vtype}, true
}

func (StandardDecoder) SurfaceVelocity(m Message) (*feed.Velocity, bool) {
	speed, track, ok := m.SurfaceVelocity()
	if !ok {
		return nil, false
	}
	return &feed.Velocity{Speed: speed, Track: track, Type: "GS"}, true
}

func (StandardDecoder) ResolvePosition(even, odd Message, evenTS, oddTS time.Time) (*feed.Position, bool) {
	lat, lon, ok := ResolvePosition(even, odd, evenTS, oddTS)
	if !ok {
		return nil, false
	}
	return &feed.Position{Lat: lat, Lon: lon}, true
}
