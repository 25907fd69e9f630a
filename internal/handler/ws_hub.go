package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types sent over WebSocket.
const (
	EventBattleScheduled    = "battle_scheduled"
	EventBattleResolved     = "battle_resolved"
	EventTerritoryUpdated   = "territory_updated"
	EventTerritoryFallen    = "territory_fallen"
	EventTerritoryReclaimed = "territory_reclaimed"
	EventWarDeclared        = "war_declared"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type        string `json:"type"`
	TerritoryID string `json:"territory_id"`
	Data        any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action      string `json:"action"` // "subscribe" or "unsubscribe"
	TerritoryID string `json:"territory_id"`
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub manages WebSocket connections and territory-channel subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	territories map[string]map[*WSConn]bool // territoryID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		territories: make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for territoryID, conns := range h.territories {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.territories, territoryID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a territory channel.
func (h *Hub) Subscribe(c *WSConn, territoryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.territories[territoryID] == nil {
		h.territories[territoryID] = make(map[*WSConn]bool)
	}
	h.territories[territoryID][c] = true
}

// Unsubscribe removes a connection from a territory channel.
func (h *Hub) Unsubscribe(c *WSConn, territoryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.territories[territoryID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.territories, territoryID)
		}
	}
}

// BroadcastToTerritory sends an event to all connections watching a territory.
func (h *Hub) BroadcastToTerritory(territoryID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("territoryId", territoryID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.territories[territoryID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("territoryId", territoryID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// BroadcastToUser sends an event to a specific user across all their connections.
func (h *Hub) BroadcastToUser(userID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.connections {
		if c.userID == userID {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// TerritorySubscriberCount returns the number of connections watching a territory.
func (h *Hub) TerritorySubscriberCount(territoryID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.territories[territoryID])
}
