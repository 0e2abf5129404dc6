// Package transport provides the optional HTTP status API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/dcaload/internal/storage"
	"github.com/gateway-fm/dcaload/pkg/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
	readyTimeout        = 5 * time.Second
)

// RunAPI is the live run the handlers report on.
type RunAPI interface {
	Status() types.RunStatus
	SubscribeBursts(ch chan<- types.BurstSummary) event.Subscription
}

// HistoryStore serves persisted runs. Nil when persistence is disabled.
type HistoryStore interface {
	GetRun(ctx context.Context, id string) (*types.RunSummary, error)
	ListRuns(ctx context.Context, limit, offset int) (*types.PaginatedRuns, error)
	GetBlockSamples(ctx context.Context, runID string) ([]types.BurstSummary, error)
	DeleteRun(ctx context.Context, id string) error
}

// HealthChecker defines the interface for readiness checking.
type HealthChecker interface {
	CheckNode(ctx context.Context) error
}

// Server handles HTTP requests for the status API.
type Server struct {
	api       RunAPI
	history   HistoryStore
	health    HealthChecker
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	corsAllowedOrigins []string
	corsAllowAll       bool // "*" or empty
}

// NewServer creates a new HTTP server. history and health may be nil.
// The burst stream starts immediately; call Close on shutdown.
func NewServer(api RunAPI, history HistoryStore, health HealthChecker, logger *slog.Logger, corsAllowedOrigins string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	wsServer := NewWebSocketServer(api, logger)
	wsServer.Start()

	s := &Server{
		api:       api,
		history:   history,
		health:    health,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	origins := strings.TrimSpace(corsAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Close stops the burst stream and disconnects websocket clients.
func (s *Server) Close() {
	s.wsServer.Stop()
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/history", s.corsMiddleware(s.handleHistory))
	mux.HandleFunc("/v1/history/", s.corsMiddleware(s.handleHistoryDetail))
	mux.HandleFunc("/v1/ws", s.wsServer.Handler())

	// Health endpoints (unversioned, standard Kubernetes probes)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// handleStatus returns the live run status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.api.Status())
}

// handleHistory returns run history with optional pagination.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.writeJSONError(w, "History is disabled (no database configured)", http.StatusServiceUnavailable)
		return
	}

	limit := defaultHistoryLimit
	offset := 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxHistoryLimit {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	result, err := s.history.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list runs", slog.String("error", err.Error()))
		s.writeJSONError(w, "Failed to get history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleHistoryDetail handles GET and DELETE /v1/history/{id}.
func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSONError(w, "History is disabled (no database configured)", http.StatusServiceUnavailable)
		return
	}

	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/history/"), "/")
	if runID == "" || strings.Contains(runID, "/") {
		s.writeJSONError(w, "Missing run ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.history.DeleteRun(r.Context(), runID); err != nil {
			s.writeStoreError(w, "Failed to delete run", err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	case http.MethodGet:
		run, err := s.history.GetRun(r.Context(), runID)
		if err != nil {
			s.writeStoreError(w, "Failed to get run", err)
			return
		}
		samples, err := s.history.GetBlockSamples(r.Context(), runID)
		if err != nil {
			s.writeStoreError(w, "Failed to get block samples", err)
			return
		}
		s.writeJSON(w, http.StatusOK, types.RunDetail{Run: *run, Samples: samples})

	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.api.Status()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"state":          status.State,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"ws_clients":     s.wsServer.ClientCount(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok" or "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleReady reports whether the node still answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []ReadinessCheck{}
	allHealthy := true

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		start := time.Now()
		err := s.health.CheckNode(ctx)
		check := ReadinessCheck{
			Name:      "node-rpc",
			LatencyMs: time.Since(start).Milliseconds(),
			Status:    "ok",
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		}
		checks = append(checks, check)
	}

	code := http.StatusOK
	if !allHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, prefix string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	}
	s.logger.Error(prefix, slog.String("error", err.Error()))
	s.writeJSONError(w, prefix+": "+err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, map[string]string{"error": message})
}
