package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/config"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/metrics"
)

const maxRequestBody = 4096

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	engine    Engine
	udpServer *UDPServer
	events    *EventHub
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	startTime time.Time
}

// sourceRequest is the body of POST /sources
type sourceRequest struct {
	Path string `json:"path"`
}

// NewHTTPServer creates a new HTTP API server. udpServer and events may be nil
// when the control server or event feed are disabled.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, engine Engine,
	udpServer *UDPServer, events *EventHub, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		engine:    engine,
		udpServer: udpServer,
		events:    events,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/sources", h.withMetrics("/sources", h.handleSources))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	if h.events != nil {
		mux.HandleFunc("/events", h.withMetrics("/events", h.events.ServeHTTP))
	}

	// Prometheus metrics endpoint (not instrumented itself)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

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

// Hijack lets WebSocket upgrades through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	// Hijacked WebSocket connections are not tracked by Shutdown
	if h.events != nil {
		h.events.Close()
	}

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
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

	stats := h.engine.Stats()

	components := map[string]interface{}{
		"scheduler": map[string]interface{}{
			"running":        stats.Scheduler.Running,
			"cycles":         stats.Scheduler.Cycles,
			"active_sources": stats.ActiveSources,
		},
	}
	if h.udpServer != nil {
		udpStats := h.udpServer.GetStatistics()
		components["control_server"] = map[string]interface{}{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
		}
	}

	status := "healthy"
	if !stats.Scheduler.Running {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(h.startTime).String(),
		"components": components,
	})
}

// handleSources implements GET, POST and DELETE on /sources
func (h *HTTPServer) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources := h.engine.Sources()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_sources": len(sources),
			"timestamp":     time.Now().UTC(),
			"sources":       sources,
		})

	case http.MethodPost:
		var req sourceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Path == "" {
			http.Error(w, "Source path required", http.StatusBadRequest)
			return
		}

		if !h.engine.Register(req.Path) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"path":       req.Path,
				"registered": false,
				"error":      "source is already active or could not be loaded",
			})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"path":       req.Path,
			"registered": true,
		})

	case http.MethodDelete:
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "Source path required", http.StatusBadRequest)
			return
		}

		if !h.engine.Unregister(path) {
			http.Error(w, "Source not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"path":         path,
			"unregistered": true,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine": map[string]interface{}{
			"sample_rate":    h.config.Engine.SampleRate,
			"channels":       h.config.Engine.Channels,
			"chunk_duration": h.config.Engine.ChunkDuration,
			"stall_timeout":  h.config.Engine.StallTimeout,
			"stall_policy":   h.config.Engine.StallPolicy,
			"stream_name":    h.config.Engine.StreamName,
		},
		"control": map[string]interface{}{
			"enabled":      h.config.Control.Enabled,
			"udp_port":     h.config.Control.UDPPort,
			"bind_address": h.config.Control.BindAddress,
			"workers":      h.config.Control.Workers,
		},
		"sink": map[string]interface{}{
			"outputs":    h.config.Sink.Outputs,
			"wav_dir":    h.config.Sink.WAVDir,
			"volume":     h.config.Sink.Volume,
			"queue_size": h.config.Sink.QueueSize,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"engine":    h.engine.Stats(),
	}
	if h.udpServer != nil {
		stats["control"] = h.udpServer.GetStatistics()
	}
	if h.events != nil {
		stats["events"] = h.events.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
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

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "PCM fan-in mixer",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /sources":             "List active sources",
			"POST /sources":            "Register a source: {\"path\": \"...\"}",
			"DELETE /sources?path=...": "Unregister a source",
			"GET /stats":               "Engine, control server and event feed statistics",
			"GET /config":              "Service configuration",
			"GET /metrics":             "Prometheus metrics",
			"GET /events":              "WebSocket feed of engine events",
		},
		"timestamp": time.Now().UTC(),
	})
}
