package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/feed"
	"github.com/yegors/skybridge/pkg/logger"
)

// Broadcaster is the hub surface the publisher drives.
type Broadcaster interface {
	ClientCount() int
	Broadcast(payload []byte)
}

// SnapshotSource supplies the aircraft view to broadcast.
type SnapshotSource interface {
	Snapshot() feed.Snapshot
}

// Publisher serializes the tracker snapshot once per interval and hands the
// payload to the hub. With no clients connected the snapshot is skipped
// entirely, so an idle feeder does no serialization work.
type Publisher struct {
	source   SnapshotSource
	hub      Broadcaster
	interval time.Duration
	marshal  func(feed.Snapshot) ([]byte, error)
	logger   *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPublisher creates the periodic snapshot publisher.
func NewPublisher(cfg config.PublisherConfig, source SnapshotSource, hub Broadcaster, log *logger.Logger) *Publisher {
	return &Publisher{
		source:   source,
		hub:      hub,
		interval: cfg.Interval(),
		marshal: func(snap feed.Snapshot) ([]byte, error) {
			return json.Marshal(snap)
		},
		logger: log.Named("publisher"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the broadcast loop.
func (p *Publisher) Start(ctx context.Context) error {
	p.logger.Info("Starting snapshot publisher", logger.Duration("interval", p.interval))
	p.wg.Add(1)
	go p.broadcastLoop(ctx)
	return nil
}

// Stop halts the broadcast loop.
func (p *Publisher) Stop() {
	p.logger.Info("Stopping snapshot publisher")
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("Snapshot publisher stopped")
}

func (p *Publisher) broadcastLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.publish()
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// publish takes one snapshot, serializes it once, and fans it out.
func (p *Publisher) publish() {
	if p.hub.ClientCount() == 0 {
		return
	}

	snap := p.source.Snapshot()
	payload, err := p.marshal(snap)
	if err != nil {
		p.logger.Error("Failed to serialize snapshot", Error(err))
		return
	}

	p.hub.Broadcast(payload)
	p.logger.Debug("Broadcast snapshot",
		logger.Int("aircraft", len(snap)),
		logger.Int("bytes", len(payload)))
}
