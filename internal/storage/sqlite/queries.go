package sqlite

import "fmt"

// AircraftSummary is one registry row joined with the aircraft's most recent
// track point. Pointer fields are NULL when the aircraft has no path rows.
type AircraftSummary struct {
	Address      string   `json:"address"`
	Callsign     *string  `json:"callsign"`
	FirstSeen    float64  `json:"first_seen"`
	LastSeen     float64  `json:"last_seen"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Alt          *float64 `json:"alt"`
	Velocity     *float64 `json:"velocity"`
	Track        *float64 `json:"track"`
	VerticalRate *float64 `json:"vertical_rate"`
	VelocityType *string  `json:"velocity_type"`
	PositionTS   *float64 `json:"position_ts"`
	PositionISO  *string  `json:"position_ts_iso"`
}

// Session is one flight_session row. EndTime is nil while the session is
// still open.
type Session struct {
	ID        string   `json:"id"`
	Address   string   `json:"aircraft_address"`
	StartTime float64  `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
	Points    int      `json:"points"`
}

// PathPoint is one path row.
type PathPoint struct {
	ID           int64    `json:"id"`
	SessionID    string   `json:"session_id"`
	Address      string   `json:"address"`
	TS           float64  `json:"ts"`
	TSISO        *string  `json:"ts_iso"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Alt          *float64 `json:"alt"`
	Velocity     *float64 `json:"velocity"`
	Track        *float64 `json:"track"`
	VerticalRate *float64 `json:"vertical_rate"`
	Type         *string  `json:"type"`
}

// StoreStats summarizes the durable relations.
type StoreStats struct {
	Aircraft     int      `json:"aircraft"`
	Sessions     int      `json:"sessions"`
	OpenSessions int      `json:"open_sessions"`
	PathPoints   int      `json:"path_points"`
	FirstTS      *float64 `json:"first_ts"`
	LastTS       *float64 `json:"last_ts"`
}

// summarySelect ranks each aircraft's path rows by recency and joins the
// newest one onto the registry row.
const summarySelect = `
	WITH latest_path AS (
		SELECT ranked.*
		FROM (
			SELECT p.*, ROW_NUMBER() OVER (PARTITION BY address ORDER BY ts DESC, id DESC) AS rn
			FROM path p
		) AS ranked
		WHERE ranked.rn = 1
	)
	SELECT
		a.address, a.callsign, a.first_seen, a.last_seen,
		lp.lat, lp.lon, lp.alt, lp.velocity, lp.track, lp.vertical_rate, lp.type,
		lp.ts, lp.ts_iso
	FROM aircraft a
	LEFT JOIN latest_path lp ON lp.address = a.address
`

// AircraftSummaries lists every known aircraft, most recently seen first.
func (s *Store) AircraftSummaries() ([]AircraftSummary, error) {
	return s.queryAircraft(summarySelect + "ORDER BY a.last_seen DESC")
}

// AircraftByAddress returns one aircraft summary, or nil when the address is
// unknown.
func (s *Store) AircraftByAddress(address string) (*AircraftSummary, error) {
	summaries, err := s.queryAircraft(summarySelect+"WHERE a.address = ?", address)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}

func (s *Store) queryAircraft(query string, args ...interface{}) ([]AircraftSummary, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft: %w", err)
	}
	defer rows.Close()

	var out []AircraftSummary
	for rows.Next() {
		var a AircraftSummary
		if err := rows.Scan(
			&a.Address, &a.Callsign, &a.FirstSeen, &a.LastSeen,
			&a.Lat, &a.Lon, &a.Alt, &a.Velocity, &a.Track, &a.VerticalRate,
			&a.VelocityType, &a.PositionTS, &a.PositionISO); err != nil {
			return nil, fmt.Errorf("failed to scan aircraft row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// sessionSelect joins each session with its path point count.
const sessionSelect = `
	SELECT fs.id, fs.aircraft_address, fs.start_time, fs.end_time, COUNT(p.id)
	FROM flight_session fs
	LEFT JOIN path p ON p.session_id = fs.id
`

// SessionsByAircraft lists an aircraft's flight sessions in start order.
func (s *Store) SessionsByAircraft(address string) ([]Session, error) {
	return s.querySessions(sessionSelect+`
		WHERE fs.aircraft_address = ?
		GROUP BY fs.id
		ORDER BY fs.start_time`, address)
}

// Sessions lists every flight session, newest first.
func (s *Store) Sessions() ([]Session, error) {
	return s.querySessions(sessionSelect + `
		GROUP BY fs.id
		ORDER BY fs.start_time DESC`)
}

// SessionByID returns one flight session, or nil when the ID is unknown.
func (s *Store) SessionByID(id string) (*Session, error) {
	sessions, err := s.querySessions(sessionSelect+`
		WHERE fs.id = ?
		GROUP BY fs.id`, id)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (s *Store) querySessions(query string, args ...interface{}) ([]Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Address, &sess.StartTime, &sess.EndTime, &sess.Points); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const pathSelect = `
	SELECT id, session_id, address, ts, ts_iso, lat, lon, alt, velocity, track, vertical_rate, type
	FROM path
`

// SessionPath returns a session's track points in timestamp order.
func (s *Store) SessionPath(sessionID string) ([]PathPoint, error) {
	return s.queryPaths(pathSelect+`
		WHERE session_id = ?
		ORDER BY ts, id`, sessionID)
}

// PathsByAircraft returns every track point recorded for one aircraft.
func (s *Store) PathsByAircraft(address string) ([]PathPoint, error) {
	return s.queryPaths(pathSelect+`
		WHERE address = ?
		ORDER BY ts, id`, address)
}

// Paths returns every track point in the archive in timestamp order.
func (s *Store) Paths() ([]PathPoint, error) {
	return s.queryPaths(pathSelect + "ORDER BY ts, id")
}

func (s *Store) queryPaths(query string, args ...interface{}) ([]PathPoint, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query path: %w", err)
	}
	defer rows.Close()

	var out []PathPoint
	for rows.Next() {
		var p PathPoint
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.Address, &p.TS, &p.TSISO,
			&p.Lat, &p.Lon, &p.Alt, &p.Velocity, &p.Track, &p.VerticalRate, &p.Type); err != nil {
			return nil, fmt.Errorf("failed to scan path row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats reports row counts and the covered time range.
func (s *Store) Stats() (StoreStats, error) {
	var st StoreStats
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM aircraft),
			(SELECT COUNT(*) FROM flight_session),
			(SELECT COUNT(*) FROM flight_session WHERE end_time IS NULL),
			(SELECT COUNT(*) FROM path),
			(SELECT MIN(ts) FROM path),
			(SELECT MAX(ts) FROM path)`).Scan(
		&st.Aircraft, &st.Sessions, &st.OpenSessions, &st.PathPoints, &st.FirstTS, &st.LastTS)
	if err != nil {
		return StoreStats{}, fmt.Errorf("failed to query store stats: %w", err)
	}
	return st, nil
}
