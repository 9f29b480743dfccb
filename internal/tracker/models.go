package tracker

import (
	"time"

	"github.com/yegors/skybridge/internal/feed"
	"github.com/yegors/skybridge/internal/modes"
)

// Decoder is the narrow frame-decoding interface the tracker consumes. The
// production implementation is modes.StandardDecoder; tests substitute stubs.
type Decoder interface {
	Valid(m modes.Message) bool
	DF(m modes.Message) int
	ICAO(m modes.Message) string
	Typecode(m modes.Message) int
	Callsign(m modes.Message) (string, bool)
	Altitude(m modes.Message) (int, bool)
	CPRParity(m modes.Message) (odd, ok bool)
	Velocity(m modes.Message) (*feed.Velocity, bool)
	SurfaceVelocity(m modes.Message) (*feed.Velocity, bool)
	ResolvePosition(even, odd modes.Message, evenTS, oddTS time.Time) (*feed.Position, bool)
}

// record is the mutable per-aircraft state owned by the tracker. Optional
// fields hold fresh pointer values swapped wholesale on update, never mutated
// in place, so snapshot copies may share them.
type record struct {
	address  string
	callsign *string
	position *feed.Position
	altitude *int
	velocity *feed.Velocity

	distanceNM *float64
	distanceKM *float64

	firstSeen  time.Time
	lastUpdate time.Time

	// CPR parity slots: the most recent frame of each parity.
	evenFrame modes.Message
	evenTS    time.Time
	oddFrame  modes.Message
	oddTS     time.Time

	stalePairs int

	// lastDecodeLog throttles stale-pair and resolve-failure logging for
	// this aircraft; cleared on a successful resolution.
	lastDecodeLog time.Time

	// assemblySecs is set once, at the first instant callsign, position,
	// altitude, and velocity are all known. assemblyIncomplete is the
	// one-shot timeout flag.
	assemblySecs       *float64
	assemblyIncomplete bool
}

// Record is the rich per-aircraft view served by the live API. The broadcast
// wire format (feed.Aircraft) carries only a subset of these fields.
type Record struct {
	Address      string         `json:"address"`
	Callsign     *string        `json:"callsign"`
	Position     *feed.Position `json:"position"`
	Altitude     *int           `json:"altitude"`
	Velocity     *feed.Velocity `json:"velocity"`
	DistanceNM   *float64       `json:"distance_nm"`
	DistanceKM   *float64       `json:"distance_km"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastUpdate   time.Time      `json:"last_update"`
	AssemblySecs *float64       `json:"assembly_secs"`
	StalePairs   int            `json:"stale_pairs"`
}

// Stats are the cumulative decode-quality counters since process start.
type Stats struct {
	FramesReceived     int64 `json:"frames_received"`
	FramesDropped      int64 `json:"frames_dropped"`
	FramesAccepted     int64 `json:"frames_accepted"`
	PositionsResolved  int64 `json:"positions_resolved"`
	ResolveFailures    int64 `json:"resolve_failures"`
	StalePairs         int64 `json:"stale_pairs"`
	AssemblyCompleted  int64 `json:"assembly_completed"`
	AssemblyIncomplete int64 `json:"assembly_incomplete"`
	Aircraft           int   `json:"aircraft"`
}
