package handler

// BroadcastTerritoryEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastTerritoryEvent(territoryID string, eventType string, data any) {
	h.BroadcastToTerritory(territoryID, WSEvent{
		Type:        eventType,
		TerritoryID: territoryID,
		Data:        data,
	})
}

// NotifyUser implements the fire-and-forget user notification side of
// service.Broadcaster.
func (h *Hub) NotifyUser(userID string, eventType string, data any) {
	h.BroadcastToUser(userID, WSEvent{
		Type: eventType,
		Data: data,
	})
}
