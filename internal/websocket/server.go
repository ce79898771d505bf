package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/adsbtools/skybridge/pkg/logger"
)

// MessageHandler defines the interface for handling incoming client
// messages: subscriptions and correlated requests
type MessageHandler interface {
	HandleMessage(client *Client, msg IncomingMessage) error
}

// Client represents one downstream WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan any
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server is the downstream WebSocket hub. Clients register on connect,
// receive broadcasts through a buffered per-client channel, and are
// dropped when their channel backs up.
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan any
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewServer creates a new WebSocket hub
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan any, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Origin policy enforced by the CORS layer
			},
		},
		logger: log.Named("ws-hub"),
		stopCh: make(chan struct{}),
	}
}

// SetMessageHandler sets the handler for incoming client messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// Run starts the hub loop
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket hub")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				// Mark closed before closing the channel so no sender
				// races the close
				client.mu.Lock()
				client.closed = true
				client.mu.Unlock()
				close(client.send)
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			var clientsToRemove []*Client
			for client := range s.clients {
				client.mu.Lock()
				if client.closed {
					clientsToRemove = append(clientsToRemove, client)
					client.mu.Unlock()
					continue
				}
				client.mu.Unlock()

				select {
				case client.send <- message:
				default:
					// Channel full: the client cannot keep up, drop it
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				s.mu.Unlock()
			}

		case <-s.stopCh:
			return
		}
	}
}

// Stop terminates the hub loop and disconnects all clients
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades an HTTP request and registers the client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Client connected", logger.String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:      conn,
		send:      make(chan any, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.stopCh:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(message any) {
	select {
	case s.broadcast <- message:
	case <-s.stopCh:
	}
}

// readPump reads client frames and hands them to the message handler
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		// Once the run loop has stopped nobody drains unregister
		select {
		case c.server.unregister <- c:
		case <-c.server.stopCh:
		}
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.server.logger.Warn("Failed to parse client message", logger.Error(err))
			continue
		}

		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, msg); err != nil {
				c.server.logger.Error("Failed to handle client message",
					logger.Error(err),
					logger.String("type", msg.Type))
			}
		}
	}
}

// writePump writes queued messages to the connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.server.logger.Debug("Write to client failed", logger.Error(err))
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage queues a message for this specific client. Returns false
// when the client is closed or its channel is full.
func (c *Client) SendMessage(message any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}
