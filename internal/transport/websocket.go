package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/websocket"

	"github.com/gateway-fm/dcaload/pkg/types"
)

const (
	writeTimeout     = 5 * time.Second
	burstQueueLength = 64
)

// Stream message types.
const (
	MessageStatus = "status"
	MessageBurst  = "burst"
)

// StreamMessage is the envelope written to websocket clients. A client
// receives the current status on connect, then one message per burst.
type StreamMessage struct {
	Type   string              `json:"type"`
	Status *types.RunStatus    `json:"status,omitempty"`
	Burst  *types.BurstSummary `json:"burst,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // same-origin or direct client
		}

		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if originURL.Host == r.Host {
			return true
		}
		if originURL.Hostname() == "localhost" || originURL.Hostname() == "127.0.0.1" {
			return true
		}
		return false
	},
}

// WebSocketServer streams burst reports to connected clients.
type WebSocketServer struct {
	api    RunAPI
	logger *slog.Logger

	clients   map[*websocket.Conn]*sync.Mutex // per-connection write lock
	clientsMu sync.RWMutex

	bursts chan types.BurstSummary
	sub    event.Subscription

	done     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketServer creates a new WebSocket server.
func NewWebSocketServer(api RunAPI, logger *slog.Logger) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketServer{
		api:     api,
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		bursts:  make(chan types.BurstSummary, burstQueueLength),
		done:    make(chan struct{}),
	}
}

// Handler returns the WebSocket HTTP handler.
func (ws *WebSocketServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ws.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		lock := &sync.Mutex{}
		status := ws.api.Status()
		ws.write(conn, lock, StreamMessage{Type: MessageStatus, Status: &status})

		ws.clientsMu.Lock()
		ws.clients[conn] = lock
		total := len(ws.clients)
		ws.clientsMu.Unlock()
		ws.logger.Debug("WebSocket client connected", slog.Int("total_clients", total))

		defer func() {
			ws.clientsMu.Lock()
			delete(ws.clients, conn)
			total := len(ws.clients)
			ws.clientsMu.Unlock()
			conn.Close()
			ws.logger.Debug("WebSocket client disconnected", slog.Int("total_clients", total))
		}()

		// Read until the client goes away (pings, close frames)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					ws.logger.Debug("WebSocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}
}

// Start subscribes to the burst feed and begins broadcasting.
func (ws *WebSocketServer) Start() {
	ws.sub = ws.api.SubscribeBursts(ws.bursts)
	go ws.broadcastLoop()
}

// Stop unsubscribes and closes all client connections.
func (ws *WebSocketServer) Stop() {
	ws.stopOnce.Do(func() {
		if ws.sub != nil {
			ws.sub.Unsubscribe()
		}
		close(ws.done)

		ws.clientsMu.Lock()
		for conn := range ws.clients {
			conn.Close()
		}
		ws.clients = make(map[*websocket.Conn]*sync.Mutex)
		ws.clientsMu.Unlock()
	})
}

// broadcastLoop drains the burst feed. It never blocks on a slow client
// for longer than writeTimeout, so the driver is not held up.
func (ws *WebSocketServer) broadcastLoop() {
	var subErr <-chan error
	if ws.sub != nil {
		subErr = ws.sub.Err()
	}
	for {
		select {
		case <-ws.done:
			return
		case <-subErr:
			// Feed closed when the run ended; keep draining queued bursts
			subErr = nil
		case burst := <-ws.bursts:
			ws.broadcast(StreamMessage{Type: MessageBurst, Burst: &burst})
		}
	}
}

func (ws *WebSocketServer) broadcast(msg StreamMessage) {
	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()

	for conn, lock := range ws.clients {
		ws.write(conn, lock, msg)
	}
}

func (ws *WebSocketServer) write(conn *websocket.Conn, lock *sync.Mutex, msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		ws.logger.Error("Failed to marshal stream message", slog.String("error", err.Error()))
		return
	}

	lock.Lock()
	defer lock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Cleaned up by the read loop
		ws.logger.Debug("Failed to write to WebSocket", slog.String("error", err.Error()))
	}
}

// ClientCount returns the number of connected clients.
func (ws *WebSocketServer) ClientCount() int {
	ws.clientsMu.RLock()
	defer ws.clientsMu.RUnlock()
	return len(ws.clients)
}
