package subscriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/feed"
	"github.com/yegors/skybridge/internal/storage/sqlite"
	"github.com/yegors/skybridge/pkg/logger"
)

type captureQueue struct {
	mu    sync.Mutex
	tasks []sqlite.Task
}

func (q *captureQueue) Enqueue(task sqlite.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return true
}

func (q *captureQueue) counts() (upserts, starts, paths, ends int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, task := range q.tasks {
		switch task.(type) {
		case *sqlite.UpsertAircraft:
			upserts++
		case *sqlite.StartSession:
			starts++
		case *sqlite.InsertPath:
			paths++
		case *sqlite.EndSession:
			ends++
		}
	}
	return
}

func (q *captureQueue) pathTasks() []*sqlite.InsertPath {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*sqlite.InsertPath
	for _, task := range q.tasks {
		if p, ok := task.(*sqlite.InsertPath); ok {
			out = append(out, p)
		}
	}
	return out
}

func intPtr(i int) *int { return &i }

func newIdleSubscriber(queue TaskQueue) *Subscriber {
	cfg := config.SubscriberConfig{
		URL:                 "ws://localhost:0/ws",
		BackoffBaseSecs:     5,
		BackoffMaxSecs:      60,
		PersistIntervalSecs: 10,
	}
	return New(cfg, queue, logger.NewNop())
}

func setMirror(s *Subscriber, snap feed.Snapshot) {
	s.mu.Lock()
	s.mirror = snap
	s.mu.Unlock()
}

func TestPersistPass_SameSnapshotTwice(t *testing.T) {
	q := &captureQueue{}
	sub := newIdleSubscriber(q)

	callsign := "UAL123"
	setMirror(sub, feed.Snapshot{
		"a1b2c3": {
			Callsign:   &callsign,
			Position:   &feed.Position{Lat: 47.45, Lon: -122.31},
			Altitude:   intPtr(38000),
			Velocity:   &feed.Velocity{Speed: 450, Track: 271, VerticalRate: -640, Type: "GS"},
			LastUpdate: 100.5,
			FirstSeen:  90,
		},
	})

	sub.persistPass()
	sub.persistPass()

	upserts, starts, paths, ends := q.counts()
	// The registry refreshes every pass; movement without a lastUpdate
	// advance must not add sessions or points.
	if upserts != 2 {
		t.Errorf("upserts = %d, want 2", upserts)
	}
	if starts != 1 {
		t.Errorf("session starts = %d, want 1", starts)
	}
	if paths != 1 {
		t.Errorf("path inserts = %d, want 1", paths)
	}
	if ends != 0 {
		t.Errorf("session ends = %d, want 0 (subscriber never closes sessions)", ends)
	}

	point := q.pathTasks()[0]
	if point.TS != 100.5 {
		t.Errorf("ts = %v, want 100.5", point.TS)
	}
	want := feed.FromEpochSeconds(100.5).UTC().Format(time.RFC3339)
	if point.TSISO != want {
		t.Errorf("ts_iso = %q, want %q", point.TSISO, want)
	}
	if point.Speed == nil || *point.Speed != 450 {
		t.Errorf("speed = %v, want 450", point.Speed)
	}
	if point.VType == nil || *point.VType != "GS" {
		t.Errorf("velocity type = %v, want GS", point.VType)
	}
}

func TestPersistPass_AdvancingUpdateAppendsToSameSession(t *testing.T) {
	q := &captureQueue{}
	sub := newIdleSubscriber(q)

	setMirror(sub, feed.Snapshot{
		"a1b2c3": {
			Position:   &feed.Position{Lat: 47.45, Lon: -122.31},
			LastUpdate: 100,
			FirstSeen:  90,
		},
	})
	sub.persistPass()

	setMirror(sub, feed.Snapshot{
		"a1b2c3": {
			Position:   &feed.Position{Lat: 47.46, Lon: -122.32},
			LastUpdate: 110,
			FirstSeen:  90,
		},
	})
	sub.persistPass()

	_, starts, paths, _ := q.counts()
	if starts != 1 {
		t.Errorf("session starts = %d, want 1", starts)
	}
	if paths != 2 {
		t.Fatalf("path inserts = %d, want 2", paths)
	}
	points := q.pathTasks()
	if points[0].SessionID != points[1].SessionID {
		t.Errorf("points landed in different sessions: %s vs %s", points[0].SessionID, points[1].SessionID)
	}
	if points[0].TS >= points[1].TS {
		t.Errorf("points out of order: %v then %v", points[0].TS, points[1].TS)
	}
	// No velocity in the broadcast, so the velocity columns stay NULL.
	if points[0].Speed != nil || points[0].Track != nil || points[0].VerticalRate != nil || points[0].VType != nil {
		t.Error("expected nil velocity fields")
	}
}

func TestPersistPass_NoPositionMeansNoSession(t *testing.T) {
	q := &captureQueue{}
	sub := newIdleSubscriber(q)

	setMirror(sub, feed.Snapshot{
		"a1b2c3": {LastUpdate: 100, FirstSeen: 90},
	})
	sub.persistPass()
	setMirror(sub, feed.Snapshot{
		"a1b2c3": {LastUpdate: 110, FirstSeen: 90},
	})
	sub.persistPass()

	upserts, starts, paths, _ := q.counts()
	if upserts != 2 {
		t.Errorf("upserts = %d, want 2", upserts)
	}
	if starts != 0 || paths != 0 {
		t.Errorf("starts = %d, paths = %d, want 0, 0 without a position", starts, paths)
	}

	// Once a position shows up the session opens and the point lands.
	setMirror(sub, feed.Snapshot{
		"a1b2c3": {
			Position:   &feed.Position{Lat: 1, Lon: 2},
			LastUpdate: 120,
			FirstSeen:  90,
		},
	})
	sub.persistPass()

	_, starts, paths, _ = q.counts()
	if starts != 1 || paths != 1 {
		t.Errorf("starts = %d, paths = %d, want 1, 1 after position appears", starts, paths)
	}
}

func TestBackoff_DoublesToCeiling(t *testing.T) {
	sub := newIdleSubscriber(&captureQueue{})

	got := sub.backoffBase
	var steps []time.Duration
	for i := 0; i < 6; i++ {
		steps = append(steps, got)
		got = sub.nextBackoff(got)
	}
	want := []time.Duration{5, 10, 20, 40, 60, 60}
	for i, w := range want {
		if steps[i] != w*time.Second {
			t.Errorf("step %d = %v, want %v", i, steps[i], w*time.Second)
		}
	}
}

func newTestFeeder(t *testing.T) (string, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func acceptConn(t *testing.T, conns chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber never dialed in")
		return nil
	}
}

func TestSubscriber_MirrorFollowsStream(t *testing.T) {
	url, conns := newTestFeeder(t)

	cfg := config.SubscriberConfig{
		URL:                 url,
		BackoffBaseSecs:     1,
		BackoffMaxSecs:      2,
		PersistIntervalSecs: 60,
	}
	sub := New(cfg, &captureQueue{}, logger.NewNop())
	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sub.Stop()

	conn := acceptConn(t, conns)
	defer conn.Close()

	waitFor(t, "connected state", func() bool { return sub.State() == "connected" })

	snapshot := `{"a1b2c3":{"callsign":"UAL123","position":{"lat":1,"lon":2},"altitude":38000,"velocity":null,"lastUpdate":100.5,"firstSeen":90}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(snapshot)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "mirror update", func() bool { return len(sub.Snapshot()) == 1 })

	// Malformed payloads are counted and must not disturb the mirror.
	for _, bad := range []string{`[1,2,3]`, `null`, `{broken`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(bad)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	waitFor(t, "malformed counter", func() bool { return sub.MalformedCount() == 3 })
	if got := len(sub.Snapshot()); got != 1 {
		t.Errorf("mirror size = %d after malformed payloads, want 1", got)
	}

	// A valid snapshot replaces the mirror wholesale.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"ffffff":{"callsign":null,"position":null,"altitude":null,"velocity":null,"lastUpdate":200,"firstSeen":199}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "mirror replacement", func() bool {
		snap := sub.Snapshot()
		_, ok := snap["ffffff"]
		return ok && len(snap) == 1
	})
}

func TestSubscriber_RedialsAfterDisconnect(t *testing.T) {
	url, conns := newTestFeeder(t)

	cfg := config.SubscriberConfig{
		URL:                 url,
		BackoffBaseSecs:     1,
		BackoffMaxSecs:      2,
		PersistIntervalSecs: 60,
	}
	sub := New(cfg, &captureQueue{}, logger.NewNop())
	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sub.Stop()

	first := acceptConn(t, conns)
	waitFor(t, "connected state", func() bool { return sub.State() == "connected" })

	first.Close()

	second := acceptConn(t, conns)
	defer second.Close()
	waitFor(t, "reconnected state", func() bool { return sub.State() == "connected" })
}
