package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/election/events"
	"github.com/rumahkita/pemilu/internal/metrics"
)

// PresenceNotifier is told when a viewer session connects or disconnects.
// Presence is display-only; failures here never affect event delivery.
type PresenceNotifier interface {
	Joined(electionID uuid.UUID, participantID, connectionID string)
	Left(electionID uuid.UUID, participantID, connectionID string)
}

// ConnectionManager fans events out to all websocket viewers of an
// election and tracks which participants are connected.
type ConnectionManager struct {
	electionConnections map[uuid.UUID]map[*Connection]bool
	mu                  sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	presence PresenceNotifier

	broadcastCh chan BroadcastMessage
}

// Connection represents one websocket viewer session.
type Connection struct {
	ID            string
	ParticipantID string
	ElectionID    uuid.UUID
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage routes one envelope to an election's connections.
type BroadcastMessage struct {
	ElectionID uuid.UUID
	Event      *events.Envelope
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, presence PresenceNotifier) *ConnectionManager {
	return &ConnectionManager{
		electionConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		presence:    presence,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket viewer session.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantID string, electionID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		ElectionID:    electionID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Str("election_id", electionID.String()).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	if cm.electionConnections[conn.ElectionID] == nil {
		cm.electionConnections[conn.ElectionID] = make(map[*Connection]bool)
	}
	cm.electionConnections[conn.ElectionID][conn] = true
	cm.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	if cm.presence != nil {
		cm.presence.Joined(conn.ElectionID, conn.ParticipantID, conn.ID)
	}
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.electionConnections[conn.ElectionID]
	removed := false
	if exists {
		if _, ok := connections[conn]; ok {
			delete(connections, conn)
			close(conn.Send)
			removed = true
			if len(connections) == 0 {
				delete(cm.electionConnections, conn.ElectionID)
			}
		}
	}
	cm.mu.Unlock()

	if removed {
		metrics.WebsocketConnections.Dec()
		if cm.presence != nil {
			cm.presence.Left(conn.ElectionID, conn.ParticipantID, conn.ID)
		}
		log.Info().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID).
			Str("election_id", conn.ElectionID.String()).
			Msg("connection unregistered")
	}
}

// BroadcastToElection queues an envelope for every viewer of the election.
func (cm *ConnectionManager) BroadcastToElection(electionID uuid.UUID, event *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{ElectionID: electionID, Event: event}:
	default:
		log.Warn().Str("election_id", electionID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.electionConnections[message.ElectionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Slow or dead client; evict it rather than stall the fan-out.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", message.Event.EventType).
		Str("election_id", message.ElectionID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// OnlineParticipants lists the distinct participant IDs currently connected
// to an election, for the "online" indicator.
func (cm *ConnectionManager) OnlineParticipants(electionID uuid.UUID) []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	seen := make(map[string]bool)
	for conn := range cm.electionConnections[electionID] {
		seen[conn.ParticipantID] = true
	}
	online := make([]string, 0, len(seen))
	for id := range seen {
		online = append(online, id)
	}
	sort.Strings(online)
	return online
}

// ConnectionStats summarizes active connections per election.
func (cm *ConnectionManager) ConnectionStats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perElection := make(map[string]int)
	for electionID, connections := range cm.electionConnections {
		perElection[electionID.String()] = len(connections)
		total += len(connections)
	}
	return map[string]any{
		"total_connections":    total,
		"active_elections":     len(cm.electionConnections),
		"election_connections": perElection,
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
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		// Viewers are read-only; inbound client frames are logged and ignored.
		log.Debug().
			Str("connection_id", c.ID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
