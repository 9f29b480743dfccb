package sqlite

import "database/sql"

// Task is one durable write handed to the worker queue. Each task carries its
// own statement, so the worker stays a plain FIFO executor.
type Task interface {
	kind() string
	apply(db *sql.DB) error
}

// UpsertAircraft inserts or refreshes one aircraft registry row.
type UpsertAircraft struct {
	Address   string
	Callsign  *string
	FirstSeen float64
	LastSeen  float64
}

func (t *UpsertAircraft) kind() string { return "upsert_aircraft" }

func (t *UpsertAircraft) apply(db *sql.DB) error {
	_, err := db.Exec(
		`INSERT INTO aircraft (address, callsign, first_seen, last_seen) VALUES (?, ?, ?, ?) `+
			`ON CONFLICT(address) DO UPDATE SET callsign=?, last_seen=?`,
		t.Address, t.Callsign, t.FirstSeen, t.LastSeen, t.Callsign, t.LastSeen,
	)
	return err
}

// StartSession records a new flight session; a duplicate id is a no-op.
type StartSession struct {
	ID        string
	Address   string
	StartTime float64
}

func (t *StartSession) kind() string { return "start_session" }

func (t *StartSession) apply(db *sql.DB) error {
	_, err := db.Exec(
		"INSERT OR IGNORE INTO flight_session (id, aircraft_address, start_time) VALUES (?, ?, ?)",
		t.ID, t.Address, t.StartTime,
	)
	return err
}

// EndSession stamps a session closed.
type EndSession struct {
	ID      string
	EndTime float64
}

func (t *EndSession) kind() string { return "end_session" }

func (t *EndSession) apply(db *sql.DB) error {
	_, err := db.Exec("UPDATE flight_session SET end_time=? WHERE id=?", t.EndTime, t.ID)
	return err
}

// InsertPath appends one track point to a session. Nil velocity fields are
// stored as NULL.
type InsertPath struct {
	SessionID    string
	Address      string
	TS           float64
	TSISO        string
	Lat          float64
	Lon          float64
	Alt          *int
	Speed        *float64
	Track        *float64
	VerticalRate *int
	VType        *string
}

func (t *InsertPath) kind() string { return "insert_path" }

func (t *InsertPath) apply(db *sql.DB) error {
	_, err := db.Exec(
		`INSERT INTO path (session_id, address, ts, ts_iso, lat, lon, alt, velocity, track, vertical_rate, type) `+
			`VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Address, t.TS, t.TSISO, t.Lat, t.Lon, t.Alt, t.Speed, t.Track, t.VerticalRate, t.VType,
	)
	return err
}
