// Package http serves health checks, Prometheus metrics and the resolve API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trackmirror/internal/core"
	"trackmirror/pkg/mirror"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// maxRequestBodySize caps the size of a resolve request.
	maxRequestBodySize = 64 << 10
	// shutdownTimeout is how long in-flight requests get on shutdown.
	shutdownTimeout = 10 * time.Second
)

// Resolver resolves reference tracks.
type Resolver interface {
	Resolve(ctx context.Context, ref mirror.ReferenceTrack) (mirror.Resolution, bool)
}

// Limiter decides whether a client may send another request.
type Limiter interface {
	Allow(key string) bool
}

// retryAfterer is implemented by limiters that know when a denied client may retry.
type retryAfterer interface {
	RetryAfter(key string) time.Duration
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	resolver Resolver
	limiter  Limiter

	statsMutex sync.RWMutex
	stats      map[string]func() any
}

// NewServer creates the HTTP server. limiter may be nil to disable per-client limits.
func NewServer(config *core.ServerConfig, logger *zap.Logger, resolver Resolver, metrics *Metrics, limiter Limiter) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		metrics:  metrics,
		resolver: resolver,
		limiter:  limiter,
		stats:    make(map[string]func() any),
	}
	s.server = createHTTPServer(config, s.setupRoutes())
	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

// AddStats publishes the result of fn under name on the readiness endpoint.
func (s *Server) AddStats(name string, fn func() any) {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	s.stats[name] = fn
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "trackmirror"})
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /v1/resolve", s.handleResolve)
	mux.HandleFunc("GET /{$}", handleIndex)

	return s.withRequestID(mux)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ready", "service": "trackmirror"}

	s.statsMutex.RLock()
	for name, fn := range s.stats {
		body[name] = fn()
	}
	s.statsMutex.RUnlock()

	writeJSON(w, http.StatusOK, body)
}

type resolveRequest struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	DurationMs int64  `json:"duration_ms"`
	ISRC       string `json:"isrc"`
	URI        string `json:"uri"`
}

type trackResponse struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	DurationMs int64  `json:"duration_ms"`
	Identifier string `json:"identifier"`
	URI        string `json:"uri"`
	ISRC       string `json:"isrc,omitempty"`
	Source     string `json:"source"`
}

type resolveResponse struct {
	RequestID  string         `json:"request_id"`
	Matched    bool           `json:"matched"`
	Track      *trackResponse `json:"track,omitempty"`
	Identifier string         `json:"identifier,omitempty"`
	Fallback   bool           `json:"fallback"`
}

type errorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get(RequestIDHeader)

	if client := clientIP(r); s.limiter != nil && !s.limiter.Allow(client) {
		s.logger.Warn("Client rate limited",
			zap.String("request_id", requestID),
			zap.String("client", client))
		if ra, ok := s.limiter.(retryAfterer); ok {
			seconds := int(math.Ceil(ra.RetryAfter(client).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
		}
		writeJSON(w, http.StatusTooManyRequests, errorResponse{RequestID: requestID, Error: "rate limit exceeded"})
		return
	}

	var req resolveRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{RequestID: requestID, Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{RequestID: requestID, Error: "title is required"})
		return
	}
	if req.DurationMs < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{RequestID: requestID, Error: "duration_ms must not be negative"})
		return
	}

	ref := req.toReference()
	s.logger.Debug("Resolving reference track",
		zap.String("request_id", requestID),
		zap.String("title", ref.Title),
		zap.String("author", ref.Author))

	resolution, ok := s.resolver.Resolve(r.Context(), ref)

	resp := resolveResponse{RequestID: requestID, Matched: ok}
	if ok {
		resp.Track = toTrackResponse(resolution.Track)
		resp.Identifier = resolution.Identifier
		resp.Fallback = resolution.Fallback
	}
	writeJSON(w, http.StatusOK, resp)
}

func (req resolveRequest) toReference() mirror.ReferenceTrack {
	author := req.Author
	if author == "" {
		author = mirror.UnknownAuthor
	}
	return mirror.ReferenceTrack{
		Title:    req.Title,
		Author:   author,
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
		ISRC:     req.ISRC,
		URI:      req.URI,
	}
}

func toTrackResponse(track mirror.Track) *trackResponse {
	return &trackResponse{
		Title:      track.Title,
		Author:     track.Author,
		DurationMs: track.Duration.Milliseconds(),
		Identifier: track.Identifier,
		URI:        track.URI,
		ISRC:       track.ISRC,
		Source:     track.Source,
	}
}

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>trackmirror</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
        code { background: #f4f4f4; padding: 2px 4px; }
    </style>
</head>
<body>
    <h1 class="header">trackmirror</h1>
    <p>Finds the best playable mirror of a catalog track on secondary search providers.</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><code>POST /v1/resolve</code> - Resolve a reference track</div>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`))
}

// withRequestID assigns every request an id, echoes it back and counts the response.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.metrics.HTTPRequestsTotal.WithLabelValues(metricPath(r), strconv.Itoa(rec.status)).Inc()
		s.logger.Debug("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// metricPath limits the path label to known routes.
func metricPath(r *http.Request) string {
	switch r.URL.Path {
	case "/", "/healthz", "/readyz", "/metrics", "/v1/resolve":
		return r.URL.Path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
