package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"featcli/internal/infrastructure"
	"featcli/pkg/contracts/events"
)

// Hub maintains the set of active clients and fans broadcast messages out
// to them. Operation state travels as full operation:snapshot frames, so a
// client that connects mid-run is caught up by the next broadcast.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages to fan out
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex

	logger *slog.Logger

	// Counters, guarded by mu
	totalConnections int64
	messagesSent     int64
	droppedClients   int64

	// Control
	quit        chan struct{}
	running     bool
	metricsQuit chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		logger:      logger,
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start starts the hub's goroutines
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run drives the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.totalConnections++
			h.mu.Unlock()

			ctx := context.Background()
			if client.traceID != "" {
				ctx = infrastructure.WithTraceID(ctx, client.traceID)
			}

			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			GetMetrics().RecordConnection()
			if om := GetOTelMetrics(); om != nil {
				om.RecordConnection(ctx)
				om.RecordClientCount(ctx, int64(count))
			}

			h.sendWelcome(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				ctx := context.Background()
				if client.traceID != "" {
					ctx = infrastructure.WithTraceID(ctx, client.traceID)
				}

				h.logger.InfoContext(ctx, "client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))

				GetMetrics().RecordDisconnection(time.Since(client.connectedAt))
				if om := GetOTelMetrics(); om != nil {
					om.RecordDisconnection(ctx, time.Since(client.connectedAt), "normal")
					om.RecordClientCount(ctx, int64(count))
				}
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// sendWelcome greets a newly registered client so it can confirm the
// stream is live and learn its client id.
func (h *Hub) sendWelcome(ctx context.Context, client *Client) {
	welcome := map[string]interface{}{
		"type": string(events.MessageTypeConnect),
		"data": map[string]interface{}{
			"status":    "connected",
			"message":   "Connected to featcli event stream",
			"client_id": client.id,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if client.traceID != "" {
		welcome["trace_id"] = client.traceID
	}

	jsonData, err := json.Marshal(welcome)
	if err != nil {
		return
	}

	select {
	case client.send <- jsonData:
	default:
		h.logger.WarnContext(ctx, "welcome dropped, client buffer full",
			slog.String("client_id", client.id))
	}
}

// fanOut delivers one frame to every client. A client whose send buffer is
// full is evicted rather than allowed to stall the loop.
func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	successCount := 0
	failCount := 0

	for _, client := range clients {
		select {
		case client.send <- message:
			successCount++
			GetMetrics().RecordMessage(int64(len(message)))
		default:
			failCount++
			h.mu.Lock()
			close(client.send)
			delete(h.clients, client)
			h.droppedClients++
			h.mu.Unlock()

			GetMetrics().RecordDroppedClient()
			if om := GetOTelMetrics(); om != nil {
				om.RecordDroppedMessage(context.Background(), "client_buffer_full")
			}
			h.logger.Warn("client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}

	h.mu.Lock()
	h.messagesSent += int64(successCount)
	h.mu.Unlock()

	h.logger.Debug("broadcast delivered",
		slog.Int("client_count", len(clients)),
		slog.Int("success_count", successCount),
		slog.Int("fail_count", failCount),
		slog.Int("message_size", len(message)))

	if om := GetOTelMetrics(); om != nil {
		om.RecordBroadcast(context.Background(), int64(len(clients)), int64(successCount), int64(failCount))
	}
}

// BroadcastUpdate sends an event to all connected clients. It satisfies the
// hub interface the operation manager broadcasts through.
func (h *Hub) BroadcastUpdate(eventType, subtype, action string, data interface{}) {
	h.BroadcastUpdateWithTrace(eventType, subtype, action, data, "")
}

// BroadcastUpdateWithTrace sends an event carrying a trace id. For
// operation:snapshot the payload already holds the complete run state; the
// legacy subtype/action fields are only attached to other event types.
func (h *Hub) BroadcastUpdateWithTrace(eventType, subtype, action string, data interface{}, traceID string) {
	message := map[string]interface{}{
		"type":      eventType,
		"data":      data,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if traceID != "" {
		message["trace_id"] = traceID
	}
	if eventType != string(events.MessageTypeOperationSnapshot) && eventType != "" {
		message["subtype"] = subtype
		message["action"] = action
	}

	h.broadcastJSON(message)
}

// Broadcast sends an event without subtype or action. Satisfies the service
// layer's hub interface.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	h.BroadcastUpdate(messageType, "", "", data)
}

// BroadcastFeaturesUpdate announces freshly derived feature artifacts.
func (h *Hub) BroadcastFeaturesUpdate(symbol string, rows, columns int) {
	h.broadcastJSON(map[string]interface{}{
		"type": string(events.MessageTypeFeaturesUpdate),
		"data": map[string]interface{}{
			"symbol":       symbol,
			"rows":         rows,
			"columns":      columns,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Hub) broadcastJSON(message map[string]interface{}) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		msgType, _ := message["type"].(string)
		h.logger.Error("marshaling broadcast message",
			slog.String("error", err.Error()),
			slog.String("message_type", msgType))
		return
	}

	h.broadcast <- jsonData
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Stop gracefully stops the hub and closes every client channel
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// reportMetrics periodically logs hub health
func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			return

		case <-ticker.C:
			h.mu.RLock()
			activeClients := len(h.clients)
			totalConnections := h.totalConnections
			messagesSent := h.messagesSent
			h.mu.RUnlock()

			GetMetrics().RecordQueueDepth(int64(len(h.broadcast)))
			if om := GetOTelMetrics(); om != nil {
				om.RecordQueueDepth(context.Background(), int64(len(h.broadcast)))
			}

			h.logger.Info("websocket hub metrics",
				slog.Int("active_clients", activeClients),
				slog.Int64("total_connections", totalConnections),
				slog.Int64("messages_sent", messagesSent),
				slog.Int("broadcast_queue", len(h.broadcast)))
		}
	}
}

// GetHubMetrics returns current hub counters
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"dropped_clients":   h.droppedClients,
	}
}
