package service

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastTerritoryEvent(territoryID string, eventType string, data any)
	NotifyUser(userID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastTerritoryEvent(string, string, any) {}

func (NoopBroadcaster) NotifyUser(string, string, any) {}
