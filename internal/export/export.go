// Package export renders the archive relations as CSV files: the full
// database dump used by cmd/export and the per-session download served
// by the recorder API.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/yegors/skybridge/internal/storage/sqlite"
	"github.com/yegors/skybridge/pkg/logger"
)

// AircraftRow is one aircraft.csv record.
type AircraftRow struct {
	Address   string  `csv:"address"`
	Callsign  *string `csv:"callsign"`
	FirstSeen float64 `csv:"first_seen"`
	LastSeen  float64 `csv:"last_seen"`
}

// SessionRow is one sessions.csv record. EndTime is empty while the
// session is still open.
type SessionRow struct {
	ID        string   `csv:"id"`
	Address   string   `csv:"aircraft_address"`
	StartTime float64  `csv:"start_time"`
	EndTime   *float64 `csv:"end_time"`
	Points    int      `csv:"points"`
}

// PathRow is one paths.csv record. The same layout backs the recorder
// API's path.csv endpoint.
type PathRow struct {
	ID           int64    `csv:"id"`
	SessionID    string   `csv:"session_id"`
	Address      string   `csv:"address"`
	TS           float64  `csv:"ts"`
	TSISO        *string  `csv:"ts_iso"`
	Lat          *float64 `csv:"lat"`
	Lon          *float64 `csv:"lon"`
	Alt          *float64 `csv:"alt"`
	Velocity     *float64 `csv:"velocity"`
	Track        *float64 `csv:"track"`
	VerticalRate *float64 `csv:"vertical_rate"`
	Type         *string  `csv:"type"`
}

// StatRow is one statistics.csv record.
type StatRow struct {
	Statistic string `csv:"statistic"`
	Value     string `csv:"value"`
}

// WriteAircraftCSV writes the aircraft registry columns.
func WriteAircraftCSV(w io.Writer, aircraft []sqlite.AircraftSummary) error {
	rows := make([]AircraftRow, 0, len(aircraft))
	for _, a := range aircraft {
		rows = append(rows, AircraftRow{
			Address:   a.Address,
			Callsign:  a.Callsign,
			FirstSeen: a.FirstSeen,
			LastSeen:  a.LastSeen,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WriteSessionsCSV writes flight session rows.
func WriteSessionsCSV(w io.Writer, sessions []sqlite.Session) error {
	rows := make([]SessionRow, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, SessionRow{
			ID:        sess.ID,
			Address:   sess.Address,
			StartTime: sess.StartTime,
			EndTime:   sess.EndTime,
			Points:    sess.Points,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WritePathCSV writes track point rows.
func WritePathCSV(w io.Writer, points []sqlite.PathPoint) error {
	rows := make([]PathRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, PathRow{
			ID:           p.ID,
			SessionID:    p.SessionID,
			Address:      p.Address,
			TS:           p.TS,
			TSISO:        p.TSISO,
			Lat:          p.Lat,
			Lon:          p.Lon,
			Alt:          p.Alt,
			Velocity:     p.Velocity,
			Track:        p.Track,
			VerticalRate: p.VerticalRate,
			Type:         p.Type,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WriteStatsCSV writes summary statistics for the archive.
func WriteStatsCSV(w io.Writer, dbPath string, stats sqlite.StoreStats) error {
	rows := []StatRow{
		{Statistic: "export_timestamp", Value: time.Now().UTC().Format(time.RFC3339)},
		{Statistic: "database_path", Value: dbPath},
		{Statistic: "aircraft", Value: strconv.Itoa(stats.Aircraft)},
		{Statistic: "total_sessions", Value: strconv.Itoa(stats.Sessions)},
		{Statistic: "open_sessions", Value: strconv.Itoa(stats.OpenSessions)},
		{Statistic: "completed_sessions", Value: strconv.Itoa(stats.Sessions - stats.OpenSessions)},
		{Statistic: "path_points", Value: strconv.Itoa(stats.PathPoints)},
	}
	if stats.FirstTS != nil {
		rows = append(rows, StatRow{Statistic: "first_record_ts", Value: formatEpoch(*stats.FirstTS)})
	}
	if stats.LastTS != nil {
		rows = append(rows, StatRow{Statistic: "last_record_ts", Value: formatEpoch(*stats.LastTS)})
	}
	if stats.FirstTS != nil && stats.LastTS != nil {
		rows = append(rows, StatRow{Statistic: "duration_secs", Value: formatEpoch(*stats.LastTS - *stats.FirstTS)})
	}
	return gocsv.Marshal(&rows, w)
}

func formatEpoch(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Counts reports how many rows each relation contributed to a dump.
type Counts struct {
	Aircraft int
	Sessions int
	Paths    int
}

// Exporter dumps archive relations into a directory of CSV files.
type Exporter struct {
	store  *sqlite.Store
	logger *logger.Logger
}

// New creates an Exporter over an open store.
func New(store *sqlite.Store, log *logger.Logger) *Exporter {
	return &Exporter{
		store:  store,
		logger: log.Named("export"),
	}
}

// ExportAll dumps every aircraft, session, and track point into
// aircraft.csv, sessions.csv, and paths.csv under dir.
func (e *Exporter) ExportAll(dir string) (Counts, error) {
	aircraft, err := e.store.AircraftSummaries()
	if err != nil {
		return Counts{}, err
	}
	sessions, err := e.store.Sessions()
	if err != nil {
		return Counts{}, err
	}
	paths, err := e.store.Paths()
	if err != nil {
		return Counts{}, err
	}
	return e.writeDump(dir, aircraft, sessions, paths)
}

// ExportAircraft dumps one aircraft's registry row, sessions, and track
// points. The address must exist in the archive.
func (e *Exporter) ExportAircraft(dir, address string) (Counts, error) {
	aircraft, err := e.store.AircraftByAddress(address)
	if err != nil {
		return Counts{}, err
	}
	if aircraft == nil {
		return Counts{}, fmt.Errorf("aircraft %s not found", address)
	}
	sessions, err := e.store.SessionsByAircraft(address)
	if err != nil {
		return Counts{}, err
	}
	paths, err := e.store.PathsByAircraft(address)
	if err != nil {
		return Counts{}, err
	}
	return e.writeDump(dir, []sqlite.AircraftSummary{*aircraft}, sessions, paths)
}

// ExportSession dumps one flight session, its aircraft, and its track.
func (e *Exporter) ExportSession(dir, id string) (Counts, error) {
	session, err := e.store.SessionByID(id)
	if err != nil {
		return Counts{}, err
	}
	if session == nil {
		return Counts{}, fmt.Errorf("session %s not found", id)
	}
	aircraft, err := e.store.AircraftByAddress(session.Address)
	if err != nil {
		return Counts{}, err
	}
	var registry []sqlite.AircraftSummary
	if aircraft != nil {
		registry = append(registry, *aircraft)
	}
	paths, err := e.store.SessionPath(id)
	if err != nil {
		return Counts{}, err
	}
	return e.writeDump(dir, registry, []sqlite.Session{*session}, paths)
}

// ExportStats writes statistics.csv under dir.
func (e *Exporter) ExportStats(dir, dbPath string) error {
	stats, err := e.store.Stats()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return e.writeFile(filepath.Join(dir, "statistics.csv"), func(w io.Writer) error {
		return WriteStatsCSV(w, dbPath, stats)
	})
}

func (e *Exporter) writeDump(dir string, aircraft []sqlite.AircraftSummary, sessions []sqlite.Session, paths []sqlite.PathPoint) (Counts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Counts{}, fmt.Errorf("creating output directory: %w", err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"aircraft.csv", func(w io.Writer) error { return WriteAircraftCSV(w, aircraft) }},
		{"sessions.csv", func(w io.Writer) error { return WriteSessionsCSV(w, sessions) }},
		{"paths.csv", func(w io.Writer) error { return WritePathCSV(w, paths) }},
	}
	for _, f := range files {
		if err := e.writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return Counts{}, err
		}
	}

	counts := Counts{
		Aircraft: len(aircraft),
		Sessions: len(sessions),
		Paths:    len(paths),
	}
	e.logger.Info("Export complete",
		logger.String("dir", dir),
		logger.Int("aircraft", counts.Aircraft),
		logger.Int("sessions", counts.Sessions),
		logger.Int("paths", counts.Paths))
	return counts, nil
}

func (e *Exporter) writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
