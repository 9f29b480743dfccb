// Package source reads AVR-framed messages from a dump1090-style raw TCP
// feed and hands them to the tracker over a buffered channel.
package source

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/internal/modes"
	"github.com/yegors/skybridge/pkg/logger"
)

// dialTimeout bounds a single connection attempt.
const dialTimeout = 10 * time.Second

// Frame is one parsed message with its arrival timestamp.
type Frame struct {
	Msg modes.Message
	TS  time.Time
}

// Client maintains the TCP connection to the raw feed, redialing after
// failures, and delivers frames until stopped.
type Client struct {
	host      string
	port      int
	reconnect time.Duration
	logger    *logger.Logger

	frames  chan Frame
	dropped atomic.Int64

	mu     sync.Mutex
	conn   net.Conn
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new raw feed client.
func New(cfg config.SourceConfig, log *logger.Logger) *Client {
	return &Client{
		host:      cfg.Host,
		port:      cfg.Port,
		reconnect: cfg.ReconnectInterval(),
		logger:    log.Named("source"),
		frames:    make(chan Frame, cfg.BufferSize),
		stopCh:    make(chan struct{}),
	}
}

// Frames returns the channel frames are delivered on. The channel is never
// closed; consumers stop via their own stop signal.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Dropped returns the number of frames discarded because the channel was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// Start starts the connect-and-read loop.
func (c *Client) Start(ctx context.Context) error {
	c.logger.Info("Starting raw frame source",
		logger.String("addr", c.addr()),
		logger.Duration("reconnect_interval", c.reconnect),
	)
	c.wg.Add(1)
	go c.readLoop(ctx)
	return nil
}

// Stop closes the connection so a blocked read unblocks, then waits for the
// read loop to exit.
func (c *Client) Stop() {
	c.logger.Info("Stopping raw frame source")
	close(c.stopCh)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Info("Raw frame source stopped")
}

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// readLoop dials the feed and reads frames until stopped, waiting out the
// reconnect interval between attempts.
func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("Failed to connect to raw feed",
				logger.String("addr", c.addr()),
				logger.Error(err),
			)
		} else {
			c.logger.Info("Connected to raw feed", logger.String("addr", c.addr()))
			c.readFrames(conn)
		}

		select {
		case <-time.After(c.reconnect):
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Stop may have run between its close of the previous connection and
	// this dial completing; don't start reading a connection Stop will
	// never close.
	select {
	case <-c.stopCh:
		conn.Close()
		return nil, fmt.Errorf("source stopped")
	default:
	}
	return conn, nil
}

// readFrames reads lines until the connection fails or is closed by Stop.
// Lines that do not parse as 112-bit frames are routine noise (Mode A/C
// replies, MLAT lines) and are skipped without logging.
func (c *Client) readFrames(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		msg, err := modes.ParseAVR(scanner.Text())
		if err != nil {
			continue
		}
		select {
		case c.frames <- Frame{Msg: msg, TS: time.Now()}:
		default:
			c.dropped.Add(1)
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-c.stopCh:
			// Closed by Stop; not a fault.
		default:
			c.logger.Warn("Raw feed read error, reconnecting", logger.Error(err))
		}
	} else {
		c.logger.Warn("Raw feed closed by remote, reconnecting")
	}
}
