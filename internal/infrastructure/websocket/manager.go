package websocket

import (
	"context"
	"sync"
	"time"

	"freelancehub/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
	sendBuffer     = 64
)

// Client is one websocket session. A user may hold several.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
	state  []byte
	notify chan struct{}
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue queues a reply frame. It reports false when the client is gone or
// too slow to keep up.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		logger.Warn("WebSocket send buffer full for session %s, dropping frame", c.ID)
		return false
	}
}

// PushState replaces any state frame that has not been written yet. Only
// the latest view matters to the client.
func (c *Client) PushState(frame []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = frame
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) takeState() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := c.state
	c.state = nil
	return frame
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Manager tracks every live session by user.
type Manager struct {
	clients    map[string]map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				sessions, ok := m.clients[client.UserID]
				if !ok {
					sessions = make(map[string]*Client)
					m.clients[client.UserID] = sessions
				}
				sessions[client.ID] = client
				m.mutex.Unlock()
				logger.Info("WebSocket session %s registered for %s", client.ID, client.UserID)

			case client := <-m.Unregister:
				m.remove(client)
				logger.Info("WebSocket session %s unregistered for %s", client.ID, client.UserID)

			case <-ctx.Done():
				m.mutex.Lock()
				for _, sessions := range m.clients {
					for _, client := range sessions {
						client.close()
					}
				}
				m.clients = make(map[string]map[string]*Client)
				m.mutex.Unlock()
				return
			}
		}
	}()
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	sessions, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := sessions[client.ID]; ok {
		delete(sessions, client.ID)
		client.close()
	}
	if len(sessions) == 0 {
		delete(m.clients, client.UserID)
	}
}

// Attach registers client unless the manager has stopped.
func (m *Manager) Attach(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// Detach unregisters client. It is a no-op after the manager has stopped.
func (m *Manager) Detach(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

// SendToUser queues frame on every session of userID and returns how many
// accepted it.
func (m *Manager) SendToUser(userID string, frame []byte) int {
	m.mutex.RLock()
	sessions := make([]*Client, 0, len(m.clients[userID]))
	for _, client := range m.clients[userID] {
		sessions = append(sessions, client)
	}
	m.mutex.RUnlock()

	sent := 0
	for _, client := range sessions {
		if client.Enqueue(frame) {
			sent++
		}
	}
	return sent
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	n := 0
	for _, sessions := range m.clients {
		n += len(sessions)
	}
	return n
}

// ReadPump feeds every inbound frame to handle until the connection drops,
// then calls onClose and unregisters the client.
func (c *Client) ReadPump(m *Manager, handle func([]byte), onClose func()) {
	defer func() {
		if onClose != nil {
			onClose()
		}
		m.Detach(c)
		c.close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error for %s: %v", c.UserID, err)
			}
			return
		}
		handle(message)
	}
}

// WritePump writes queued frames and pings until Send is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket write error for %s: %v", c.UserID, err)
				return
			}

		case <-c.notify:
			frame := c.takeState()
			if frame == nil {
				continue
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("WebSocket write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
