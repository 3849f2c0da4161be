package operations

// WebSocketHub handles state broadcasts to connected clients. Satisfied
// by the websocket package's Hub; a nil hub is tolerated everywhere so
// CLI runs work without a server.
type WebSocketHub interface {
	BroadcastUpdate(eventType, subtype, action string, payload interface{})
}
