package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/broadcast"
	"github.com/mcdev12/gambit/go/internal/match/events"
)

// ConnectionManager bridges websocket clients to hub topics. Each connection
// subscribes to one topic, a match or a clock session, and receives every
// event published there.
type ConnectionManager struct {
	hub      *broadcast.Hub[events.Event]
	upgrader websocket.Upgrader
	config   ConnectionConfig

	mu          sync.RWMutex
	connections map[*Connection]struct{}
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID     string
	UserID string
	Topic  string
	Conn   *websocket.Conn

	sub     *broadcast.Subscription[events.Event]
	manager *ConnectionManager
	once    sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

func NewConnectionManager(hub *broadcast.Hub[events.Event], config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		connections: make(map[*Connection]struct{}),
	}
}

// UpgradeConnection upgrades the request and streams topic to it. initial,
// when set, is written before any live event so the client can render
// without waiting for the next change.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, topic string, initial *events.Event) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Topic:       topic,
		Conn:        conn,
		sub:         cm.hub.Subscribe(topic),
		manager:     cm,
		ConnectedAt: time.Now(),
	}
	cm.register(connection)

	go connection.writePump(initial)
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("topic", topic).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = struct{}{}
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	_, ok := cm.connections[conn]
	delete(cm.connections, conn)
	cm.mu.Unlock()

	if ok {
		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Str("topic", conn.Topic).
			Msg("connection unregistered")
	}
}

// ConnectionStats summarises open connections and hub traffic.
type ConnectionStats struct {
	TotalConnections int             `json:"total_connections"`
	ActiveTopics     int             `json:"active_topics"`
	Topics           map[string]int  `json:"topics"`
	Hub              broadcast.Stats `json:"hub"`
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	topics := make(map[string]int)
	for conn := range cm.connections {
		topics[conn.Topic]++
	}
	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveTopics:     len(topics),
		Topics:           topics,
		Hub:              cm.hub.Stats(),
	}
}

// close tears the connection down once, whichever pump notices first.
func (c *Connection) close() {
	c.once.Do(func() {
		c.sub.Close()
		c.Conn.Close()
		c.manager.unregister(c)
	})
}

// writePump sends hub events and keepalive pings to the client.
func (c *Connection) writePump(initial *events.Event) {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	if initial != nil {
		if err := c.writeEvent(*initial); err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write initial state")
			return
		}
	}

	for {
		select {
		case evt, ok := <-c.sub.C:
			if !ok {
				// hub closed or connection torn down
				c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeEvent(evt); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) writeEvent(evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// readPump keeps the read deadline alive and notices client disconnects.
func (c *Connection) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		// commands travel over the RPC surface; anything sent here is only logged
		log.Debug().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Bytes("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
