// Package server runs the live preview HTTP server: it renders registered
// templates on request and pushes reload notifications to connected
// browsers over a websocket whenever the registry changes.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/engine"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
)

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves rendered templates with live reload.
type PreviewServer struct {
	config      *config.Config
	engine      *engine.Engine
	diagnostics *errors.ErrorCollector
	logger      logging.Logger

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a preview server over eng. diagnostics, when non-nil, feeds
// the error overlay shown on failed renders.
func New(cfg *config.Config, eng *engine.Engine, diagnostics *errors.ErrorCollector, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.Discard()
	}
	if diagnostics == nil {
		diagnostics = errors.NewErrorCollector()
	}
	return &PreviewServer{
		config:      cfg,
		engine:      eng,
		diagnostics: diagnostics,
		logger:      logger.WithComponent("server"),
		clients:     make(map[*websocket.Conn]*Client),
		broadcast:   make(chan []byte, 16),
		register:    make(chan *Client),
		unregister:  make(chan *websocket.Conn),
	}
}

// Handler returns the routes of the server.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /templates", s.handleTemplates)
	mux.HandleFunc("GET /render/{name}", s.handleRender)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s.logRequests(mux)
}

// Start serves on the configured address until ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return errors.NewIOError(errors.ErrCodeInternalError, "failed to listen on "+s.config.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *PreviewServer) Serve(ctx context.Context, ln net.Listener) error {
	go s.runWebSocketHub(ctx)
	go s.forwardRegistryEvents(ctx, s.engine.Registry().Watch())

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Preview server listening", "address", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.NewIOError(errors.ErrCodeInternalError, "server error", err)
	}
	return nil
}

// Shutdown closes every websocket client and stops the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			delete(s.clients, conn)
		}
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			err = server.Shutdown(ctx)
		}
	})
	return err
}

// forwardRegistryEvents turns registry changes into reload messages.
func (s *PreviewServer) forwardRegistryEvents(ctx context.Context, events <-chan registry.TemplateEvent) {
	defer s.engine.Registry().UnWatch(events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.logger.Debug(ctx, "Template changed", "template", ev.Name, "event", ev.Type.String())
			s.Broadcast(UpdateMessage{Type: "reload", Target: ev.Name, Timestamp: ev.Timestamp})
		}
	}
}

// Broadcast queues msg for every connected client. Messages are dropped
// when the hub is saturated.
func (s *PreviewServer) Broadcast(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Warn(context.Background(), nil, "Dropped reload message", "target", msg.Target)
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}
