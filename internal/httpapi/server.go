package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxBodySize = 1 << 20 // 1MB

// Handler is the endpoint signature shared by every adapter endpoint. The
// raw, unparsed body bytes are captured once before dispatch so signature
// checks can run over exactly what arrived on the wire.
type Handler func(w http.ResponseWriter, r *http.Request, rawBody []byte)

// Server owns the HTTP mux all clients mount their namespaces on.
type Server struct {
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a server listening on addr once Start is called.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

// Namespace returns a route group mounted under /<name>. Registering the
// same pattern twice panics (ServeMux semantics); attaching one client to
// the same server twice is not guarded against.
func (s *Server) Namespace(name string) *Namespace {
	name = strings.Trim(name, "/")
	return &Namespace{server: s, name: name}
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Namespace registers endpoints under a shared path prefix.
type Namespace struct {
	server *Server
	name   string
}

// Name reports the namespace path segment.
func (n *Namespace) Name() string { return n.name }

func (n *Namespace) Get(path string, h Handler) { n.handle(http.MethodGet, path, h) }

func (n *Namespace) Post(path string, h Handler) { n.handle(http.MethodPost, path, h) }

func (n *Namespace) handle(method, path string, h Handler) {
	pattern := fmt.Sprintf("%s /%s%s", method, n.name, path)
	logger := n.server.logger
	n.server.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		var rawBody []byte
		if r.Body != nil && method != http.MethodGet {
			var err error
			rawBody, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				logger.Warn("failed to read request body", "path", r.URL.Path, "err", err)
				Error(w, http.StatusBadRequest, "unreadable body")
				return
			}
			r.Body.Close()
		}
		h(w, r, rawBody)
	})
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error body with the given status.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}
