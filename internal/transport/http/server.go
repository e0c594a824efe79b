package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"storychain/internal/app"
	"storychain/internal/config"
	"storychain/internal/transport/ws"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  *httprouter.Router
	hub     *app.Hub
	config  *config.Config
	logger  *slog.Logger
	version string
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, hub *app.Hub, logger *slog.Logger, version string) *Server {
	s := &Server{
		router:  httprouter.New(),
		hub:     hub,
		config:  cfg,
		logger:  logger,
		version: version,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.GetAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	prefix := s.config.BasePath()

	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error("handler panic", "path", r.URL.Path, "panic", v)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}

	// API routes
	s.router.GET(prefix+"/api/health", s.handleHealth)
	s.router.GET(prefix+"/api/stats", s.handleStats)
	s.router.GET(prefix+"/api/rooms/:code", s.handleGetRoom)
	s.router.GET(prefix+"/api/rooms/:code/qr", s.handleRoomQR)
	s.router.GET(prefix+"/api/rooms/:code/transcript", s.handleTranscript)
	s.router.GET(prefix+"/version", s.handleVersion)

	// WebSocket
	s.router.Handler(http.MethodGet, prefix+"/ws", ws.NewHandler(s.hub, s.logger))

	if s.config.Server.Profile {
		s.registerProfileHandlers(prefix)
	}
}

func (s *Server) registerProfileHandlers(prefix string) {
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		s.router.Handler(http.MethodGet, prefix+"/pprof/"+name, pprof.Handler(name))
	}
	s.router.HandlerFunc(http.MethodGet, prefix+"/pprof/cmdline", pprof.Cmdline)
	s.router.HandlerFunc(http.MethodGet, prefix+"/pprof/profile", pprof.Profile)
	s.router.HandlerFunc(http.MethodGet, prefix+"/pprof/symbol", pprof.Symbol)
	s.router.HandlerFunc(http.MethodGet, prefix+"/pprof/trace", pprof.Trace)
}

// Handler returns the routed handler wrapped in middleware
func (s *Server) Handler() http.Handler {
	return s.middleware(s.router)
}

// middleware wraps the handler with logging and security headers
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.securityHeaders(w)

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// Health probes are noise outside development
		if s.config.IsDevelopment() || !isProbeRequest(r.URL.Path) {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"remoteAddr", realIP(r),
				"duration", time.Since(start),
			)
		}
	})
}

func (s *Server) securityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if s.config.Scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr, "scheme", s.config.Scheme(), "prefix", s.config.BasePath())

	var err error
	if s.config.Scheme() == "https" {
		err = s.server.ListenAndServeTLS(s.config.Server.TLSCert, s.config.Server.TLSKey)
	} else {
		err = s.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
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

// Hijack implements http.Hijacker for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// isProbeRequest checks if the request is a health or stats probe
func isProbeRequest(path string) bool {
	return strings.HasSuffix(path, "/api/health") || strings.HasSuffix(path, "/api/stats")
}

// realIP prefers proxy-supplied client addresses when they parse
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, header := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := r.Header.Get(header); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}
	return host
}
