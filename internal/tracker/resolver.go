package tracker

import (
	"time"

	"github.com/yegors/skybridge/internal/geo"
	"github.com/yegors/skybridge/internal/modes"
	"github.com/yegors/skybridge/pkg/logger"
)

// updatePosition stores a position-bearing frame into the record's parity
// slot and attempts a global resolution. A slot is always overwritten by a
// newer frame of the same parity. A populated pair whose timestamps differ
// by more than the staleness window keeps only the frame that just arrived;
// a pair the decoder cannot resolve keeps both slots, since a transient
// decode failure is not staleness.
//
// Called with the tracker lock held.
func (t *Tracker) updatePosition(rec *record, m modes.Message, ts time.Time) {
	odd, ok := t.decoder.CPRParity(m)
	if !ok {
		return
	}
	if odd {
		rec.oddFrame, rec.oddTS = m, ts
	} else {
		rec.evenFrame, rec.evenTS = m, ts
	}
	if rec.evenFrame == nil || rec.oddFrame == nil {
		return
	}

	dt := rec.evenTS.Sub(rec.oddTS)
	if dt < 0 {
		dt = -dt
	}
	if dt > t.cprStale {
		if odd {
			rec.evenFrame, rec.evenTS = nil, time.Time{}
		} else {
			rec.oddFrame, rec.oddTS = nil, time.Time{}
		}
		rec.stalePairs++
		t.stats.StalePairs++
		t.logThrottled(rec, ts, "Discarded stale position pair",
			logger.String("address", rec.address),
			logger.Duration("pair_age", dt),
			logger.Int("stale_pairs", rec.stalePairs),
		)
		return
	}

	pos, ok := t.decoder.ResolvePosition(rec.evenFrame, rec.oddFrame, rec.evenTS, rec.oddTS)
	if !ok {
		t.stats.ResolveFailures++
		t.logThrottled(rec, ts, "Position resolution failed",
			logger.String("address", rec.address),
		)
		return
	}

	rec.position = pos
	rec.lastDecodeLog = time.Time{}
	t.stats.PositionsResolved++
	t.annotateDistance(rec)
}

// annotateDistance refreshes the great-circle distance from the station.
// Without a configured station the fields are cleared, not computed.
func (t *Tracker) annotateDistance(rec *record) {
	if !t.hasStation || rec.position == nil {
		rec.distanceNM, rec.distanceKM = nil, nil
		return
	}
	nm := geo.HaversineNM(t.stationLat, t.stationLon, rec.position.Lat, rec.position.Lon)
	km := geo.NMToKM(nm)
	rec.distanceNM, rec.distanceKM = &nm, &km
}

// logThrottled emits at most one debug line per aircraft per throttle window
// so a noisy decode path cannot flood the log.
func (t *Tracker) logThrottled(rec *record, now time.Time, msg string, fields ...logger.Field) {
	if !rec.lastDecodeLog.IsZero() && now.Sub(rec.lastDecodeLog) < t.resolveLogEvery {
		return
	}
	rec.lastDecodeLog = now
	t.logger.Debug(msg, fields...)
}
