// Package dashboard exposes the run's live state over plain HTTP: a
// point-in-time JSON snapshot, a health check, and a server-sent-events
// feed of progress.Event as they happen.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/illustra/internal/entities"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/state"
	"github.com/jackzampolin/illustra/internal/tokens"
)

// Config configures a Server.
type Config struct {
	Addr          string
	Logger        *slog.Logger
	State         *state.Store
	Entities      *entities.Registry
	Ledger        *tokens.CostLedger
	DashboardSink *progress.DashboardSink
	BookTitle     string
	StartTime     time.Time
}

// Server serves the dashboard's HTTP API. It owns no pipeline state;
// it only reads from the stores and sink it was given, plus the
// current phase/chapter it tracks by subscribing to the Progress Bus.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server

	mu      sync.Mutex
	running bool

	posMu          sync.RWMutex
	currentPhase   string
	currentChapter int
}

// New builds a Server from cfg. The HTTP handler tree is wired eagerly
// so Start only has to bind the listener.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withLogging(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming endpoint must not be cut off
	}
	return s, nil
}

// Start binds the listener and serves until ctx is canceled, then
// performs a graceful shutdown. It blocks until shutdown completes.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("dashboard server already running")
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting dashboard server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("dashboard shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down dashboard server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("dashboard HTTP server shutdown error", "error", err)
		return err
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Addr returns the address the server is configured to bind.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Publish implements progress.Sink, letting the Server track the
// current phase/chapter for its snapshots by subscribing directly to
// the Progress Bus alongside the DashboardSink that fans events out to
// connected clients.
func (s *Server) Publish(evt progress.Event) {
	switch evt.Kind {
	case progress.KindPhaseStart:
		s.posMu.Lock()
		s.currentPhase = evt.Phase
		s.currentChapter = 0
		s.posMu.Unlock()
	case progress.KindChapterStart:
		s.posMu.Lock()
		s.currentPhase = evt.Phase
		s.currentChapter = evt.Chapter
		s.posMu.Unlock()
	}
}

var _ progress.Sink = (*Server)(nil)

// position returns the currently tracked phase and chapter.
func (s *Server) position() (string, int) {
	s.posMu.RLock()
	defer s.posMu.RUnlock()
	return s.currentPhase, s.currentChapter
}

// withLogging wraps a handler to log each request's method, path,
// status, and duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("dashboard request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code
// written, for the logging middleware above.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// stateSnapshot is the JSON shape served by /api/state and sent as the
// "initial-state" message's data on every new dashboard connection.
type stateSnapshot struct {
	BookTitle      string                          `json:"bookTitle"`
	CurrentPhase   string                          `json:"currentPhase"`
	CurrentChapter *int                            `json:"currentChapter,omitempty"`
	Stats          map[string]tokens.ProviderTotal `json:"stats"`
	StartTime      time.Time                       `json:"startTime"`
}

func (s *Server) snapshot() stateSnapshot {
	phase, chapter := s.position()
	snap := stateSnapshot{
		BookTitle:    s.cfg.BookTitle,
		CurrentPhase: phase,
		StartTime:    s.cfg.StartTime,
		Stats:        map[string]tokens.ProviderTotal{},
	}
	if chapter != 0 {
		snap.CurrentChapter = &chapter
	}
	if s.cfg.Ledger != nil {
		snap.Stats = s.cfg.Ledger.Totals()
	}
	return snap
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.logger.Error("encode state snapshot", "error", err)
	}
}

// handleEvents streams progress events as server-sent events. Each
// connection gets its own DashboardSink subscription and is dropped if
// the client disconnects or falls too far behind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DashboardSink == nil {
		http.Error(w, "dashboard feed not configured", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsubscribe := s.cfg.DashboardSink.Subscribe()
	defer unsubscribe()

	// Every new connection is stateless from the server's perspective
	// and gets a fresh initial-state message first, so a reconnecting
	// client never has to guess what it missed.
	if err := s.writeEnvelope(w, flusher, wireEnvelope{Type: progress.KindInitialState, Data: s.snapshot()}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			wire := evt.ToWire()
			if err := s.writeEnvelope(w, flusher, wireEnvelope{Type: wire.Type, Data: wire.Data}); err != nil {
				return
			}
		}
	}
}

// wireEnvelope is the {type, data} shape every dashboard message is
// sent as; data varies (a progress.WirePayload for bus events, a
// stateSnapshot for initial-state).
type wireEnvelope struct {
	Type progress.Kind `json:"type"`
	Data any           `json:"data"`
}

func (s *Server) writeEnvelope(w http.ResponseWriter, flusher http.Flusher, env wireEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
