package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/nasbridge/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler. Must be <= shutdown timeout.
	sseWriteTimeout = 5 * time.Second

	// pressTimeout bounds a button request to the NAS.
	pressTimeout = 30 * time.Second

	defaultTitle = "UGREEN NAS"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Presser triggers a button entity.
type Presser interface {
	Press(ctx context.Context, key string) error
}

// Option configures optional server features.
type Option func(*Server)

// WithPresser enables POST /api/press/{key}.
func WithPresser(p Presser) Option {
	return func(s *Server) {
		s.presser = p
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// Server handles HTTP requests for the dashboard and API.
type Server struct {
	store      store.Store
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
	presser    Presser
	metrics    http.Handler
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding entity states
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "UGREEN NAS" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, assets fs.FS, title string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		store:  st,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/entities", s.handleEntities)
	mux.HandleFunc("GET /api/entities/{key}", s.handleEntity)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	if s.presser != nil {
		mux.HandleFunc("POST /api/press/{key}", s.handlePress)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.assets != nil {
		mux.HandleFunc("GET /", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// shuts down gracefully, with a 5-second timeout, when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	// bind first so port errors surface synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	state, ok := s.store.Get(r.PathValue("key"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown entity"})
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

type pressBody struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

// handlePress triggers a button. Only keys stored as buttons are accepted.
func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	state, ok := s.store.Get(key)
	if !ok || state.Kind != "button" {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("unknown button %q", key)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pressTimeout)
	defer cancel()

	if err := s.presser.Press(ctx, key); err != nil {
		s.logger.Warn("button press failed", "key", key, "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}

	s.logger.Info("button pressed", "key", key, "remote", r.RemoteAddr)
	s.writeJSON(w, http.StatusOK, pressBody{Key: key, Status: "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams entity batches via Server-Sent Events. The first event
// is the full snapshot; each following event is one poll cycle's batch.
//
// Writes carry a deadline so a slow or vanished client cannot block the
// handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// some ResponseWriter implementations do not support deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	if snapshot := s.store.GetAll(); len(snapshot) > 0 {
		data, err := json.Marshal(snapshot)
		if err == nil {
			if err := writeAndFlush(data); err != nil {
				return
			}
		}
	}

	for {
		select {
		case batch, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(batch)
			if err != nil {
				s.logger.Warn("failed to encode sse batch", "error", err)
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and, via BaseContext, on shutdown
			return
		}
	}
}
