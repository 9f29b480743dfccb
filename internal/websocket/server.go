// Package websocket implements the snapshot fan-out: a hub of connected
// subscribers and the publisher that feeds it. Payloads are opaque bytes;
// every client receives the identical serialized snapshot.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yegors/skybridge/pkg/logger"
)

// sendBufferSize is the per-client payload buffer. A client that falls this
// far behind is dropped rather than allowed to stall the hub.
const sendBufferSize = 256

// Client represents one connected subscriber. The hub owns its lifecycle:
// a client is registered exactly while its send channel is open, and only
// the hub closes the channel.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Server is the WebSocket hub: it owns the set of connected clients and
// fans broadcast payloads out to all of them.
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewServer creates a new WebSocket server
func NewServer(logger *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: logger.Named("web-socket"),
		stopCh: make(chan struct{}),
	}
}

// Start starts the hub loop.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting WebSocket server")
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop exits the hub loop and closes every connected client. Each client's
// write pump flushes its queued payloads and sends a close frame.
func (s *Server) Stop() {
	s.logger.Info("Stopping WebSocket server")
	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
	}
	s.mu.Unlock()
	s.logger.Info("WebSocket server stopped")
}

// run processes register, unregister, and broadcast events. All send-channel
// closes happen here or in Stop after the loop has exited, always guarded by
// map membership.
func (s *Server) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", String("client_count", fmt.Sprintf("%d", clientCount)))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", String("client_count", fmt.Sprintf("%d", clientCount)))

		case payload := <-s.broadcast:
			s.mu.RLock()
			var slow []*Client
			for client := range s.clients {
				select {
				case client.send <- payload:
					// Payload queued for this client
				default:
					// Channel is full, mark for removal
					slow = append(slow, client)
				}
			}
			s.mu.RUnlock()

			// Clean up clients that fell behind
			if len(slow) > 0 {
				s.mu.Lock()
				for _, client := range slow {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						close(client.send)
					}
				}
				s.mu.Unlock()
				s.logger.Debug("Dropped slow clients", String("count", fmt.Sprintf("%d", len(slow))))
			}

		case <-s.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection handles a WebSocket connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	// Upgrade HTTP connection to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	// Create client
	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		server: s,
	}

	// Register client
	select {
	case s.register <- client:
	case <-s.stopCh:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.readPump()
	go client.writePump()
}

// Broadcast hands one payload to the hub for fan-out. During shutdown the
// payload is discarded.
func (s *Server) Broadcast(payload []byte) {
	select {
	case s.broadcast <- payload:
	case <-s.stopCh:
	}
}

// readPump reads from the connection until it fails. The feed is one-way;
// inbound frames only serve disconnect detection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.stopCh:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Debug("WebSocket read error", Error(err))
			}
			return
		}
	}
}

// writePump pumps payloads from the hub to the WebSocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	// Channel closed by the hub
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)
