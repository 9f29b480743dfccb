package sqlite

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/feed"
	"github.com/yegors/skybridge/pkg/logger"
)

// Worker is the sole writer to the durable store. Tasks arrive on a bounded
// queue and are applied in FIFO order by one goroutine; the session-expiry
// sweep runs on that same goroutine, so writes never overlap.
type Worker struct {
	store          *Store
	queue          chan Task
	sessionTimeout time.Duration
	sweepInterval  time.Duration
	logger         *logger.Logger

	applied atomic.Int64
	skipped atomic.Int64
	dropped atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// WorkerStats reports queue depth and task counters for the status API.
type WorkerStats struct {
	QueueDepth   int   `json:"queue_depth"`
	TasksApplied int64 `json:"tasks_applied"`
	TasksSkipped int64 `json:"tasks_skipped"`
	TasksDropped int64 `json:"tasks_dropped"`
}

// NewWorker creates the persistence worker on top of an open store.
func NewWorker(store *Store, cfg config.StorageConfig, log *logger.Logger) *Worker {
	return &Worker{
		store:          store,
		queue:          make(chan Task, cfg.QueueSize),
		sessionTimeout: cfg.SessionTimeout(),
		sweepInterval:  cfg.SweepInterval(),
		logger:         log.Named("db-worker"),
		stopCh:         make(chan struct{}),
	}
}

// Enqueue hands a task to the worker without blocking. It reports false when
// the queue is full and the task was dropped.
func (w *Worker) Enqueue(task Task) bool {
	select {
	case w.queue <- task:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("Task queue full, dropping task",
			logger.String("kind", task.kind()))
		return false
	}
}

// Start launches the writer goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting persistence worker",
		logger.Int("queue_size", cap(w.queue)),
		logger.Duration("session_timeout", w.sessionTimeout),
		logger.Duration("sweep_interval", w.sweepInterval))
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop halts the writer after one drain pass and closes the store.
func (w *Worker) Stop() {
	w.logger.Info("Stopping persistence worker")
	close(w.stopCh)
	w.wg.Wait()
	if err := w.store.Close(); err != nil {
		w.logger.Error("Failed to close store", logger.Error(err))
	}
	w.logger.Info("Persistence worker stopped",
		logger.Int64("applied", w.applied.Load()),
		logger.Int64("skipped", w.skipped.Load()),
		logger.Int64("dropped", w.dropped.Load()))
}

// Stats returns the current queue depth and task counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		QueueDepth:   len(w.queue),
		TasksApplied: w.applied.Load(),
		TasksSkipped: w.skipped.Load(),
		TasksDropped: w.dropped.Load(),
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case task := <-w.queue:
			w.apply(task)
		case <-ticker.C:
			w.sweep(time.Now())
		case <-w.stopCh:
			w.drain()
			return
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

// apply executes one task. A failed statement is logged and skipped; the feed
// is lossy by nature, so the worker never retries.
func (w *Worker) apply(task Task) {
	if err := task.apply(w.store.db); err != nil {
		w.skipped.Add(1)
		w.logger.Error("Task failed",
			logger.String("kind", task.kind()),
			logger.Error(err))
		return
	}
	w.applied.Add(1)
}

// drain applies whatever is already queued, once.
func (w *Worker) drain() {
	for {
		select {
		case task := <-w.queue:
			w.apply(task)
		default:
			return
		}
	}
}

// sweep closes every open session whose latest path point (or start time,
// when the session has no points) is older than the inactivity threshold.
// Liveness is derived from durable rows, so the sweep works across restarts
// of the ingesting process.
func (w *Worker) sweep(now time.Time) {
	cutoff := feed.EpochSeconds(now.Add(-w.sessionTimeout))

	rows, err := w.store.db.Query(`
		SELECT fs.id, COALESCE(MAX(p.ts), fs.start_time) AS last_activity
		FROM flight_session fs
		LEFT JOIN path p ON p.session_id = fs.id
		WHERE fs.end_time IS NULL
		GROUP BY fs.id
		HAVING last_activity < ?`, cutoff)
	if err != nil {
		w.logger.Error("Session sweep query failed", logger.Error(err))
		return
	}

	type idle struct {
		id           string
		lastActivity float64
	}
	var expired []idle
	for rows.Next() {
		var s idle
		if err := rows.Scan(&s.id, &s.lastActivity); err != nil {
			rows.Close()
			w.logger.Error("Session sweep scan failed", logger.Error(err))
			return
		}
		expired = append(expired, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		w.logger.Error("Session sweep failed", logger.Error(err))
		return
	}
	rows.Close()

	endTime := feed.EpochSeconds(now)
	for _, s := range expired {
		if _, err := w.store.db.Exec(
			"UPDATE flight_session SET end_time=? WHERE id=?", endTime, s.id); err != nil {
			w.logger.Error("Failed to close session",
				logger.String("session_id", s.id),
				logger.Error(err))
			continue
		}
		w.logger.Info("Closed idle session",
			logger.String("session_id", s.id),
			logger.Float64("last_activity", s.lastActivity))
	}
}
