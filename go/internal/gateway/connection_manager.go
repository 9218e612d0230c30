// Package gateway exposes the tracker over HTTP: a JSON control API, a
// websocket status stream, and health/metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flaglights/go/internal/trackstatus"
)

// MessageTypeStatus tags status frames sent to websocket clients.
const MessageTypeStatus = "status"

// StatusMessage is the frame pushed to every websocket client.
type StatusMessage struct {
	Type      string               `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Data      trackstatus.Snapshot `json:"data"`
}

// SnapshotSource supplies the current status for newly connected clients.
type SnapshotSource interface {
	Snapshot() trackstatus.Snapshot
}

// ConnectionManager fans status snapshots out to websocket clients.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	source   SnapshotSource

	broadcastCh chan []byte

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
}

// Connection is a single websocket client.
type Connection struct {
	ID       string
	ClientID string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// ConnectionStats summarizes the client pool.
type ConnectionStats struct {
	TotalConnections int    `json:"total_connections"`
	Broadcasts       uint64 `json:"broadcasts"`
	Dropped          uint64 `json:"dropped_connections"`
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, source SnapshotSource) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		source:      source,
		broadcastCh: make(chan []byte, 256),
	}
}

// Start processes broadcasts until ctx is cancelled, then closes every
// client.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case frame := <-cm.broadcastCh:
			cm.handleBroadcast(frame)
		}
	}
}

// UpgradeConnection upgrades the request and queues the current status as
// the first frame.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, clientID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	if frame, err := cm.currentFrame(); err == nil {
		connection.Send <- frame
	} else {
		log.Error().Err(err).Msg("failed to encode initial status")
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("client_id", clientID).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) currentFrame() ([]byte, error) {
	return encodeStatus(cm.source.Snapshot())
}

func encodeStatus(snap trackstatus.Snapshot) ([]byte, error) {
	return json.Marshal(StatusMessage{
		Type:      MessageTypeStatus,
		Timestamp: time.Now().UTC(),
		Data:      snap,
	})
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.connections[conn]; ok {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("client_id", conn.ClientID).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// BroadcastSnapshot queues snap for every connected client. It never
// blocks; a full queue drops the frame.
func (cm *ConnectionManager) BroadcastSnapshot(snap trackstatus.Snapshot) {
	frame, err := encodeStatus(snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal status for broadcast")
		return
	}
	select {
	case cm.broadcastCh <- frame:
	default:
		log.Warn().Msg("broadcast channel full, dropping status")
	}
}

// handleBroadcast sends while holding the read lock so a concurrent
// unregister cannot close a Send channel mid-write. Slow clients are
// collected and dropped afterwards.
func (cm *ConnectionManager) handleBroadcast(frame []byte) {
	var slow []*Connection

	cm.mu.RLock()
	sent := 0
	for conn := range cm.connections {
		select {
		case conn.Send <- frame:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.dropped.Add(1)
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	cm.broadcasts.Add(1)
	log.Debug().Int("connections", sent).Msg("status broadcasted")
}

// sendTo queues the current status for a single client.
func (cm *ConnectionManager) sendTo(conn *Connection) {
	frame, err := cm.currentFrame()
	if err != nil {
		log.Error().Err(err).Msg("failed to encode status")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.connections[conn] {
		return
	}
	select {
	case conn.Send <- frame:
	default:
	}
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	return ConnectionStats{
		TotalConnections: total,
		Broadcasts:       cm.broadcasts.Load(),
		Dropped:          cm.dropped.Load(),
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// handleClientMessage answers {"type":"refresh"} with the current status.
// Anything else is logged and ignored.
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Str("connection_id", c.ID).Msg("ignoring non-JSON client message")
		return
	}

	switch msg.Type {
	case "refresh":
		c.Manager.sendTo(c)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("received client message")
	}
}
