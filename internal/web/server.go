// Package web exposes analysis runs over HTTP: an SSE stream, a WebSocket
// stream, session lookup and cancellation, spreadsheet download and health.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"goa.design/clue/log"

	"github.com/ratemysite/backend/internal/analysis"
	"github.com/ratemysite/backend/internal/monitor"
	"github.com/ratemysite/backend/internal/session"
)

const AppName = "RateMySite Analysis"

type Server struct {
	logCtx    context.Context
	store     *session.Store
	orch      *analysis.Orchestrator
	health    *monitor.Health
	sampler   session.MemorySampler
	keepAlive time.Duration
	now       func() time.Time
}

// NewServer builds the HTTP surface. logCtx carries the clue logger that
// request contexts inherit.
func NewServer(logCtx context.Context, store *session.Store, orch *analysis.Orchestrator) *Server {
	return &Server{
		logCtx:    logCtx,
		store:     store,
		orch:      orch,
		keepAlive: 15 * time.Second,
		now:       time.Now,
	}
}

// SetHealth configures the scorer health tracker reported by /health.
// Must be called before SetupRoutes.
func (s *Server) SetHealth(h *monitor.Health) {
	s.health = h
}

// SetMemorySampler configures the RSS reading reported by /health.
// Must be called before SetupRoutes.
func (s *Server) SetMemorySampler(m session.MemorySampler) {
	s.sampler = m
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	// Streaming routes skip the request logger: they hold the response open
	// and flush per frame.
	mux.Handle("GET /stream", s.streaming(http.HandlerFunc(s.handleStream)))
	mux.Handle("GET /ws/stream", s.streaming(http.HandlerFunc(s.handleWSStream)))

	logged := log.HTTP(s.logCtx)
	mux.Handle("GET /api/sessions/{id}", logged(http.HandlerFunc(s.handleSession)))
	mux.Handle("POST /api/sessions/{id}/cancel", logged(http.HandlerFunc(s.handleCancel)))
	mux.Handle("GET /api/cache/{id}", logged(http.HandlerFunc(s.handleSession)))
	mux.Handle("GET /download/excel/{id}", logged(http.HandlerFunc(s.handleDownload)))
	mux.Handle("GET /health", logged(http.HandlerFunc(s.handleHealth)))
}

// Handler returns mux wrapped with the middleware every route shares.
func Handler(mux *http.ServeMux) http.Handler {
	return securityHeaders(mux)
}

// streaming attaches the server's logger to the request context.
func (s *Server) streaming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithContext(r.Context(), s.logCtx)
		ctx = log.With(ctx, log.KV{K: "remote", V: r.RemoteAddr}, log.KV{K: "path", V: r.URL.Path})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// inputError maps a rejected submission to the message shown to the client.
func inputError(err error) string {
	if errors.Is(err, analysis.ErrNoURLs) {
		return "Need at least one ?u= parameter"
	}
	return err.Error()
}

// ListenAndServe serves handler until ctx is done, then shuts down
// gracefully, giving open streams up to grace to finish.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler, grace time.Duration) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Printf(ctx, "shutting down server at %s", addr)
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
