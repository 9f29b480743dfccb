// Package tracker aggregates decoded frames into per-aircraft state: one
// mutable record per address, split-frame position resolution, and an
// immutable snapshot for the broadcast layer.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/feed"
	"github.com/yegors/skybridge/internal/modes"
	"github.com/yegors/skybridge/internal/source"
	"github.com/yegors/skybridge/pkg/logger"
)

// Tracker owns all aircraft records. Ingest is called from exactly one
// goroutine (the frame consumer); the mutex exists so Snapshot, Records,
// and Stats can read concurrently with it.
type Tracker struct {
	decoder Decoder
	frames  <-chan source.Frame
	logger  *logger.Logger

	cprStale        time.Duration
	resolveLogEvery time.Duration
	assemblyTimeout time.Duration
	statsInterval   time.Duration

	stationLat float64
	stationLon float64
	hasStation bool

	mu      sync.RWMutex
	records map[string]*record
	stats   Stats

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a tracker consuming the given frame channel.
func New(
	cfg config.TrackerConfig,
	station config.StationConfig,
	decoder Decoder,
	frames <-chan source.Frame,
	log *logger.Logger,
) *Tracker {
	t := &Tracker{
		decoder:         decoder,
		frames:          frames,
		logger:          log.Named("tracker"),
		cprStale:        cfg.CPRStale(),
		resolveLogEvery: cfg.ResolveLogInterval(),
		assemblyTimeout: cfg.AssemblyTimeout(),
		statsInterval:   cfg.StatsInterval(),
		records:         make(map[string]*record),
		stopCh:          make(chan struct{}),
	}
	t.stationLat, t.stationLon, t.hasStation = station.Coordinates()
	return t
}

// Start starts the frame consumer and the stats loop.
func (t *Tracker) Start(ctx context.Context) error {
	t.logger.Info("Starting tracker",
		logger.Duration("cpr_stale", t.cprStale),
		logger.Duration("assembly_timeout", t.assemblyTimeout),
		logger.Bool("station_configured", t.hasStation),
	)
	t.wg.Add(2)
	go t.consumeLoop(ctx)
	go t.statsLoop(ctx)
	return nil
}

// Stop stops both loops and waits for them to exit.
func (t *Tracker) Stop() {
	t.logger.Info("Stopping tracker")
	close(t.stopCh)
	t.wg.Wait()
	t.logger.Info("Tracker stopped")
}

// consumeLoop is the single Ingest caller.
func (t *Tracker) consumeLoop(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case fr := <-t.frames:
			t.Ingest(fr.Msg, fr.TS)
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// statsLoop periodically logs the quality counters and fires the assembly
// timeout diagnostic.
func (t *Tracker) statsLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweepAssembly(time.Now())
			s := t.Stats()
			t.logger.Info("Tracker stats",
				logger.Int("aircraft", s.Aircraft),
				logger.Int64("frames_received", s.FramesReceived),
				logger.Int64("frames_dropped", s.FramesDropped),
				logger.Int64("positions_resolved", s.PositionsResolved),
				logger.Int64("resolve_failures", s.ResolveFailures),
				logger.Int64("stale_pairs", s.StalePairs),
				logger.Int64("assembly_completed", s.AssemblyCompleted),
				logger.Int64("assembly_incomplete", s.AssemblyIncomplete),
			)
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Ingest classifies one frame and merges its fields into the record for the
// frame's address, creating the record on first sight. Frames that fail the
// integrity gate are expected broadcast noise and are dropped silently.
func (t *Tracker) Ingest(m modes.Message, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.FramesReceived++
	if !t.decoder.Valid(m) || t.decoder.DF(m) != modes.DF17 {
		t.stats.FramesDropped++
		return
	}
	addr := t.decoder.ICAO(m)
	if addr == "" {
		t.stats.FramesDropped++
		return
	}
	t.stats.FramesAccepted++

	rec := t.records[addr]
	if rec == nil {
		rec = &record{address: addr, firstSeen: ts}
		t.records[addr] = rec
	}
	rec.lastUpdate = ts

	switch tc := t.decoder.Typecode(m); {
	case tc >= 1 && tc <= 4:
		if cs, ok := t.decoder.Callsign(m); ok {
			rec.callsign = &cs
		}
	case tc >= 5 && tc <= 8:
		if vel, ok := t.decoder.SurfaceVelocity(m); ok {
			rec.velocity = vel
		}
		t.updatePosition(rec, m, ts)
	case tc >= 9 && tc <= 18:
		if alt, ok := t.decoder.Altitude(m); ok {
			rec.altitude = &alt
		}
		t.updatePosition(rec, m, ts)
	case tc == 19:
		if vel, ok := t.decoder.Velocity(m); ok {
			rec.velocity = vel
		}
	}

	t.checkAssembly(rec, ts)
}

// checkAssembly marks the record assembled the first time callsign,
// position, altitude, and velocity are all known at once.
func (t *Tracker) checkAssembly(rec *record, now time.Time) {
	if rec.assemblySecs != nil || rec.assemblyIncomplete {
		return
	}
	if rec.callsign == nil || rec.position == nil || rec.altitude == nil || rec.velocity == nil {
		return
	}
	secs := now.Sub(rec.firstSeen).Seconds()
	rec.assemblySecs = &secs
	t.stats.AssemblyCompleted++
	t.logger.Debug("Aircraft state assembled",
		logger.String("address", rec.address),
		logger.Float64("assembly_secs", secs),
	)
}

// sweepAssembly counts each aircraft that has gone the assembly timeout
// without a full state set, once.
func (t *Tracker) sweepAssembly(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range t.records {
		if rec.assemblySecs != nil || rec.assemblyIncomplete {
			continue
		}
		if now.Sub(rec.firstSeen) > t.assemblyTimeout {
			rec.assemblyIncomplete = true
			t.stats.AssemblyIncomplete++
		}
	}
}

// Snapshot returns the wire view of every record. The returned map is a
// fresh copy; the pointer fields are shared but never mutated after being
// swapped in, so it is safe to hand to a concurrently-running publisher.
func (t *Tracker) Snapshot() feed.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(feed.Snapshot, len(t.records))
	for addr, rec := range t.records {
		snap[addr] = feed.Aircraft{
			Callsign:   rec.callsign,
			Position:   rec.position,
			Altitude:   rec.altitude,
			Velocity:   rec.velocity,
			LastUpdate: feed.EpochSeconds(rec.lastUpdate),
			FirstSeen:  feed.EpochSeconds(rec.firstSeen),
		}
	}
	return snap
}

// Records returns the rich view of every record for the live API, sorted by
// address.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, Record{
			Address:      rec.address,
			Callsign:     rec.callsign,
			Position:     rec.position,
			Altitude:     rec.altitude,
			Velocity:     rec.velocity,
			DistanceNM:   rec.distanceNM,
			DistanceKM:   rec.distanceKM,
			FirstSeen:    rec.firstSeen,
			LastUpdate:   rec.lastUpdate,
			AssemblySecs: rec.assemblySecs,
			StalePairs:   rec.stalePairs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Stats returns the cumulative quality counters.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.stats
	s.Aircraft = len(t.records)
	return s
}
