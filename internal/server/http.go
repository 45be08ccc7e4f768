package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	jsonwriter "github.com/dgellow/statusboard/internal/json"
	"github.com/dgellow/statusboard/internal/log"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	idleTimeout       = 2 * time.Minute

	// DefaultWriteTimeout applies when the caller has no request budget of
	// its own.
	DefaultWriteTimeout = time.Minute
)

// HTTPServer owns the listener and the http.Server serving the board
type HTTPServer struct {
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServer creates a server for handler on addr. writeTimeout must cover
// the longest request the handler serves, including one that waits for an
// operator authorization; zero selects DefaultWriteTimeout. Nothing is bound
// until Listen or Start.
func NewHTTPServer(handler http.Handler, addr string, writeTimeout time.Duration) *HTTPServer {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Listen binds the configured address. With port 0 the kernel picks one;
// Addr reports it.
func (h *HTTPServer) Listen() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()
	return nil
}

// Addr is the bound address, or the configured one before Listen
func (h *HTTPServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.server.Addr
}

// Serve accepts connections on the bound listener until Stop
func (h *HTTPServer) Serve() error {
	h.mu.Lock()
	ln := h.listener
	h.mu.Unlock()
	if ln == nil {
		return errors.New("http server is not listening")
	}

	log.LogInfoWithFields("http", "HTTP server listening", map[string]any{
		"addr": ln.Addr().String(),
	})
	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start binds and serves, blocking until Stop
func (h *HTTPServer) Start() error {
	if err := h.Listen(); err != nil {
		return err
	}
	return h.Serve()
}

// Stop drains in-flight requests until ctx expires
func (h *HTTPServer) Stop(ctx context.Context) error {
	addr := h.Addr()
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{
		"addr": addr,
	})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": addr,
	})
	return nil
}

// HealthHandler answers liveness checks with the providers this instance
// serves. It touches neither the store nor any provider.
type HealthHandler struct {
	providers []string
}

func NewHealthHandler(providers []string) *HealthHandler {
	return &HealthHandler{providers: providers}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providers := h.providers
	if providers == nil {
		providers = []string{}
	}
	w.Header().Set("Cache-Control", "no-store")
	_ = jsonwriter.Write(w, map[string]any{
		"status":    "ok",
		"providers": providers,
	})
}
