package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/services/ingest"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local front-end only
	},
}

// WebSocketHandler fans ingestion progress events out to connected
// front-end clients. Publishing is best-effort: a slow or dead client is
// dropped, never waited on.
type WebSocketHandler struct {
	logger  arbor.ILogger
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan ingest.ProgressEvent
}

func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan ingest.ProgressEvent),
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	events := make(chan ingest.ProgressEvent, 64)
	h.mu.Lock()
	h.clients[conn] = events
	h.mu.Unlock()
	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	go h.writeLoop(conn, events)
	h.readLoop(conn)
}

// Publish implements ingest.ProgressPublisher.
func (h *WebSocketHandler) Publish(event ingest.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, events := range h.clients {
		select {
		case events <- event:
		default:
			h.logger.Debug().Str("remote", conn.RemoteAddr().String()).
				Msg("Dropping progress event for slow WebSocket client")
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, events chan ingest.ProgressEvent) {
	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			h.remove(conn)
			return
		}
	}
}

// readLoop drains client frames so pings and close frames are processed;
// returning unregisters the client.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) remove(conn *websocket.Conn) {
	h.mu.Lock()
	events, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(events)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.logger.Debug().Msg("WebSocket client disconnected")
	}
}

var _ ingest.ProgressPublisher = (*WebSocketHandler)(nil)
