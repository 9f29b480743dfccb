package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/pkg/logger"
)

func newMockWorker(t *testing.T, queueSize int) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.StorageConfig{
		Path:               ":memory:",
		QueueSize:          queueSize,
		SessionTimeoutSecs: 300,
		SweepIntervalSecs:  10,
	}
	store := &Store{db: db, logger: logger.NewNop()}
	return NewWorker(store, cfg, logger.NewNop()), mock
}

func TestWorker_ApplyUpsertAircraft(t *testing.T) {
	w, mock := newMockWorker(t, 8)

	callsign := "UAL123"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO aircraft")).
		WithArgs("a1b2c3", callsign, 100.0, 200.0, callsign, 200.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// A later sighting with no callsign overwrites it with NULL.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO aircraft")).
		WithArgs("a1b2c3", nil, 100.0, 250.0, nil, 250.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w.apply(&UpsertAircraft{Address: "a1b2c3", Callsign: &callsign, FirstSeen: 100, LastSeen: 200})
	w.apply(&UpsertAircraft{Address: "a1b2c3", FirstSeen: 100, LastSeen: 250})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if got := w.Stats().TasksApplied; got != 2 {
		t.Errorf("applied = %d, want 2", got)
	}
}

func TestWorker_ApplyInsertPath(t *testing.T) {
	w, mock := newMockWorker(t, 8)

	alt := 38000
	speed := 450.5
	track := 271.0
	vrate := -640
	vtype := "GS"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO path")).
		WithArgs("s1", "a1b2c3", 100.5, "2026-01-02T15:04:05Z", 47.45, -122.31,
			alt, speed, track, vrate, vtype).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// Velocity fields are NULL when the broadcast had no velocity.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO path")).
		WithArgs("s1", "a1b2c3", 101.5, "2026-01-02T15:04:06Z", 47.46, -122.32,
			nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))

	w.apply(&InsertPath{
		SessionID: "s1", Address: "a1b2c3", TS: 100.5, TSISO: "2026-01-02T15:04:05Z",
		Lat: 47.45, Lon: -122.31, Alt: &alt, Speed: &speed, Track: &track,
		VerticalRate: &vrate, VType: &vtype,
	})
	w.apply(&InsertPath{
		SessionID: "s1", Address: "a1b2c3", TS: 101.5, TSISO: "2026-01-02T15:04:06Z",
		Lat: 47.46, Lon: -122.32,
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWorker_FailedTaskIsSkipped(t *testing.T) {
	w, mock := newMockWorker(t, 8)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE flight_session")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO flight_session")).
		WithArgs("s2", "a1b2c3", 10.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w.apply(&EndSession{ID: "s1", EndTime: 300})
	w.apply(&StartSession{ID: "s2", Address: "a1b2c3", StartTime: 10})

	stats := w.Stats()
	if stats.TasksSkipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.TasksSkipped)
	}
	if stats.TasksApplied != 1 {
		t.Errorf("applied = %d, want 1", stats.TasksApplied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWorker_EnqueueDropsWhenFull(t *testing.T) {
	// The worker is never started, so the queue only fills.
	w, _ := newMockWorker(t, 2)

	if !w.Enqueue(&EndSession{ID: "1", EndTime: 1}) {
		t.Fatal("first enqueue rejected")
	}
	if !w.Enqueue(&EndSession{ID: "2", EndTime: 2}) {
		t.Fatal("second enqueue rejected")
	}
	if w.Enqueue(&EndSession{ID: "3", EndTime: 3}) {
		t.Error("enqueue succeeded on a full queue")
	}

	stats := w.Stats()
	if stats.TasksDropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.TasksDropped)
	}
	if stats.QueueDepth != 2 {
		t.Errorf("queue depth = %d, want 2", stats.QueueDepth)
	}
}

func TestWorker_StopDrainsQueue(t *testing.T) {
	w, mock := newMockWorker(t, 8)

	mock.ExpectExec(regexp.QuoteMeta("INSERT OR IGNORE INTO flight_session")).
		WithArgs("s1", "a1b2c3", 10.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE flight_session")).
		WithArgs(300.0, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Enqueue(&StartSession{ID: "s1", Address: "a1b2c3", StartTime: 10})
	w.Enqueue(&EndSession{ID: "s1", EndTime: 300})
	w.Stop()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if got := w.Stats().TasksApplied; got != 2 {
		t.Errorf("applied = %d, want 2", got)
	}
}
