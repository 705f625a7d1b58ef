package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/events"
	"github.com/cuemby/wikifeed/pkg/ingest"
	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/cuemby/wikifeed/pkg/storage"
	"github.com/cuemby/wikifeed/pkg/types"
	"github.com/rs/zerolog"
)

// Registry is the subscription registry as seen by the API
type Registry interface {
	Snapshot() []types.Subscription
	Get(id types.SubscriberID) (types.Subscription, bool)
	Upsert(sub types.Subscription) error
	Remove(id types.SubscriberID) bool
}

// StatsSource reports ingest counters
type StatsSource interface {
	Stats() ingest.Stats
}

// Options wires the server to the rest of the process. Only Registry is
// required; the other collaborators are optional.
type Options struct {
	Registry Registry
	Store    storage.Store
	Stats    StatsSource
	Broker   *events.Broker
	Version  string

	// SubscriptionsFile is set when subscriptions are loaded from a file.
	// The write routes then answer 409, since the next reload would
	// discard their changes.
	SubscriptionsFile string
}

// Server is the admin HTTP server
type Server struct {
	opts   Options
	mux    *http.ServeMux
	logger zerolog.Logger

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewServer creates the server and registers its routes
func NewServer(opts Options) *Server {
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}

	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /ready", s.readyHandler)
	s.mux.HandleFunc("GET /live", metrics.LivenessHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /stats", s.statsHandler)
	s.mux.HandleFunc("GET /events", s.eventsHandler)

	s.mux.HandleFunc("GET /subscriptions", s.listSubscriptions)
	s.mux.HandleFunc("GET /subscriptions/{id}", s.getSubscription)
	s.mux.HandleFunc("PUT /subscriptions/{id}", s.putSubscription)
	s.mux.HandleFunc("DELETE /subscriptions/{id}", s.deleteSubscription)

	return s
}

// Start listens on addr and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.server = server
	s.mu.Unlock()

	metrics.RegisterComponent(metrics.ComponentAPI, true, "listening on "+addr)
	s.logger.Info().Str("addr", addr).Msg("Admin API listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. A later Start returns at once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (s *Server) GetHandler() http.Handler {
	return s.mux
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "ingest engine not running")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Stats.Stats())
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Broker == nil {
		writeJSON(w, http.StatusOK, []*events.Event{})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.opts.Broker.Recent(limit))
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
