package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/Indy1131/kotoba/internal/config"
	"github.com/Indy1131/kotoba/internal/metrics"
	"github.com/Indy1131/kotoba/internal/reference"
	"github.com/Indy1131/kotoba/internal/stream"
)

// Version is reported by /health and /.
const Version = "1.0.0"

// HTTPServer provides the reference API, monitoring endpoints and the
// streaming channel upgrade route
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	streamMgr *stream.Manager
	wsServer  *WebSocketServer
	catalog   *reference.Catalog
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	startTime time.Time
}

// referenceResponse is the body of the formant references endpoint
type referenceResponse struct {
	VowelReferences []reference.Vowel    `json:"vowel_references"`
	PlotConfig      reference.PlotConfig `json:"plot_config"`
	SpeakerType     string               `json:"speaker_type"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, streamMgr *stream.Manager,
	wsServer *WebSocketServer, catalog *reference.Catalog, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		streamMgr: streamMgr,
		wsServer:  wsServer,
		catalog:   catalog,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.handler = cors.New(cors.Options{
		AllowedOrigins: appConfig.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(mux)

	// No WriteTimeout: it would cut off upgraded streaming connections.
	h.server = &http.Server{
		Addr:              appConfig.HTTP.Addr(),
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes. Fixed routes must be listed in
// config.ReservedPaths so the stream path cannot collide with them.
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/api/audio/formant-references", h.withMetrics("/api/audio/formant-references", h.handleFormantReferences))

	mux.HandleFunc("/streams", h.withMetrics("/streams", h.handleStreams))
	mux.HandleFunc("/streams/", h.withMetrics("/streams/{id}", h.handleStreamDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// The upgrade needs the raw ResponseWriter, so it bypasses withMetrics.
	mux.Handle(h.config.Stream.Path, h.wsServer)

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the root handler including CORS, for tests and embedding.
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// Start starts the HTTP server. It returns once the listener is bound.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
		slog.String("stream_path", h.config.Stream.Path),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and its streaming connections
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	// Hijacked connections are not tracked by Shutdown.
	if err := h.wsServer.Stop(ctx); err != nil {
		h.logger.Warn("WebSocket shutdown incomplete", slog.String("error", err.Error()))
	}

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         h.config.Server.Name,
		"version":         Version,
		"timestamp":       time.Now().UTC(),
		"uptime":          time.Since(h.startTime).String(),
		"active_sessions": h.streamMgr.GetActiveSessionCount(),
	})
}

// handleFormantReferences implements the /api/audio/formant-references endpoint
func (h *HTTPServer) handleFormantReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	speaker := reference.DefaultSpeaker
	if query.Has("speaker_type") {
		speaker = query.Get("speaker_type")
	}

	profile, err := h.catalog.Lookup(speaker)
	if err != nil {
		h.logger.Debug("Rejected reference lookup",
			slog.String("speaker_type", speaker),
		)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid speaker type"})
		return
	}

	writeJSON(w, http.StatusOK, referenceResponse{
		VowelReferences: profile.Vowels,
		PlotConfig:      profile.Plot,
		SpeakerType:     speaker,
	})
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.streamMgr.GetAllSessions()
	sessionInfos := make([]stream.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		sessionInfos = append(sessionInfos, session.GetSessionInfo())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_streams": len(sessionInfos),
		"timestamp":     time.Now().UTC(),
		"streams":       sessionInfos,
	})
}

// handleStreamDetail implements the /streams/{session_id} endpoint
func (h *HTTPServer) handleStreamDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/streams/")
	if id == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	session, exists := h.streamMgr.GetSession(id)
	if !exists {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, session.GetSessionInfo())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The configuration holds no credentials, so it is served as loaded.
	writeJSON(w, http.StatusOK, h.config)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"streams":   h.streamMgr.Stats(),
		"gate":      h.streamMgr.Pipeline().Gate().GetStats(),
		"websocket": h.wsServer.GetStatistics(),
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": h.config.Server.Name,
		"version": Version,
		"endpoints": map[string]any{
			"GET /":                                          "API documentation",
			"GET /health":                                    "Service health check",
			"GET /api/audio/formant-references?speaker_type": "Vowel reference formants and plot axes",
			"GET /streams":                                   "List all active streaming sessions",
			"GET /streams/{session_id}":                      "Get detailed session information",
			"GET /config":                                    "Get service configuration",
			"GET /stats":                                     "Get service statistics",
			"GET /metrics":                                   "Prometheus metrics",
			"GET " + h.config.Stream.Path:                    "WebSocket streaming channel",
		},
		"timestamp": time.Now().UTC(),
	})
}
