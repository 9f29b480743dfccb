// Package subscriber maintains a local mirror of a feeder's broadcast
// snapshots and turns observed movement into durable task-queue writes.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/feed"
	"github.com/yegors/skybridge/internal/storage/sqlite"
	"github.com/yegors/skybridge/pkg/logger"
)

const dialTimeout = 10 * time.Second

// connState tracks where the subscriber is in its dial/read cycle.
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TaskQueue is the persistence boundary. Enqueue must never block.
type TaskQueue interface {
	Enqueue(task sqlite.Task) bool
}

// Subscriber dials the feeder, mirrors its snapshots, and on a fixed cadence
// persists registry rows plus path points for aircraft that moved. It opens
// flight sessions but never closes them; the worker's sweep owns that.
type Subscriber struct {
	url             string
	backoffBase     time.Duration
	backoffMax      time.Duration
	persistInterval time.Duration
	queue           TaskQueue
	logger          *logger.Logger

	mu     sync.RWMutex
	mirror feed.Snapshot

	// watermarks and sessions belong to the persist loop alone.
	watermarks map[string]float64
	sessions   map[string]string

	state     atomic.Int32
	malformed atomic.Int64

	connMu sync.Mutex
	conn   *websocket.Conn

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a subscriber that feeds the given task queue.
func New(cfg config.SubscriberConfig, queue TaskQueue, log *logger.Logger) *Subscriber {
	return &Subscriber{
		url:             cfg.URL,
		backoffBase:     cfg.BackoffBase(),
		backoffMax:      cfg.BackoffMax(),
		persistInterval: cfg.PersistInterval(),
		queue:           queue,
		logger:          log.Named("subscriber"),
		mirror:          make(feed.Snapshot),
		watermarks:      make(map[string]float64),
		sessions:        make(map[string]string),
		stopCh:          make(chan struct{}),
	}
}

// Start launches the receive and persist loops.
func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting subscriber",
		logger.String("url", s.url),
		logger.Duration("persist_interval", s.persistInterval))
	s.wg.Add(2)
	go s.receiveLoop(ctx)
	go s.persistLoop(ctx)
	return nil
}

// Stop halts both loops and closes any open connection.
func (s *Subscriber) Stop() {
	s.logger.Info("Stopping subscriber")
	close(s.stopCh)
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	s.logger.Info("Subscriber stopped")
}

// State reports the connection state for the status API.
func (s *Subscriber) State() string {
	return connState(s.state.Load()).String()
}

// MalformedCount reports how many broadcast payloads were rejected.
func (s *Subscriber) MalformedCount() int64 {
	return s.malformed.Load()
}

// Snapshot returns the current mirror.
func (s *Subscriber) Snapshot() feed.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror
}

func (s *Subscriber) setState(st connState) {
	s.state.Store(int32(st))
}

// receiveLoop dials the feeder and reads snapshots until stopped. The
// backoff doubles on each failed dial and resets once a dial succeeds.
func (s *Subscriber) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	backoff := s.backoffBase
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.setState(stateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.setState(stateDisconnected)
			s.logger.Warn("Failed to connect to feeder",
				logger.String("url", s.url),
				logger.Duration("retry_in", backoff),
				logger.Error(err))
			if !s.sleep(ctx, backoff) {
				return
			}
			backoff = s.nextBackoff(backoff)
			continue
		}

		backoff = s.backoffBase
		s.setState(stateConnected)
		s.logger.Info("Connected to feeder", logger.String("url", s.url))

		s.readSnapshots(conn)
		conn.Close()
		s.setState(stateDisconnected)

		// Pause before redialing so a feeder that drops us immediately
		// does not turn this into a hot loop.
		if !s.sleep(ctx, backoff) {
			return
		}
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	// Stop may have fired between the dial and the store above.
	select {
	case <-s.stopCh:
		conn.Close()
		return nil, errors.New("subscriber stopped")
	default:
	}
	return conn, nil
}

// readSnapshots consumes one connection until it fails. A payload that is
// not a JSON object is counted and skipped; the mirror is only ever replaced
// wholesale by a valid snapshot.
func (s *Subscriber) readSnapshots(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				s.logger.Warn("Feeder stream closed", logger.Error(err))
			}
			return
		}

		var snap feed.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil || snap == nil {
			s.malformed.Add(1)
			s.logger.Warn("Discarding malformed snapshot",
				logger.Int("bytes", len(payload)),
				logger.Error(err))
			continue
		}

		s.mu.Lock()
		s.mirror = snap
		s.mu.Unlock()
	}
}

func (s *Subscriber) persistLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.persistPass()
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// persistPass walks the mirror once. Every aircraft gets a registry upsert.
// A path point is written only when lastUpdate advanced past the local
// watermark and a position is attached; the first such point for an aircraft
// also opens its flight session.
func (s *Subscriber) persistPass() {
	mirror := s.Snapshot()

	for address, ac := range mirror {
		s.queue.Enqueue(&sqlite.UpsertAircraft{
			Address:   address,
			Callsign:  ac.Callsign,
			FirstSeen: ac.FirstSeen,
			LastSeen:  ac.LastUpdate,
		})

		if ac.Position == nil || ac.LastUpdate <= s.watermarks[address] {
			continue
		}

		sessionID, ok := s.sessions[address]
		if !ok {
			sessionID = uuid.New().String()
			s.sessions[address] = sessionID
			s.queue.Enqueue(&sqlite.StartSession{
				ID:        sessionID,
				Address:   address,
				StartTime: ac.LastUpdate,
			})
			s.logger.Info("Started flight session",
				logger.String("address", address),
				logger.String("session_id", sessionID))
		}

		task := &sqlite.InsertPath{
			SessionID: sessionID,
			Address:   address,
			TS:        ac.LastUpdate,
			TSISO:     feed.FromEpochSeconds(ac.LastUpdate).UTC().Format(time.RFC3339),
			Lat:       ac.Position.Lat,
			Lon:       ac.Position.Lon,
			Alt:       ac.Altitude,
		}
		if ac.Velocity != nil {
			speed := ac.Velocity.Speed
			track := ac.Velocity.Track
			vrate := ac.Velocity.VerticalRate
			vtype := ac.Velocity.Type
			task.Speed = &speed
			task.Track = &track
			task.VerticalRate = &vrate
			task.VType = &vtype
		}
		s.queue.Enqueue(task)
		s.watermarks[address] = ac.LastUpdate
	}
}

func (s *Subscriber) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > s.backoffMax {
		next = s.backoffMax
	}
	return next
}

func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
