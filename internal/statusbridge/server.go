// Package statusbridge serves chain status, segment listings, overrides and
// metrics over HTTP.
package statusbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/fabricator"
	"github.com/kingrea/chainforge/internal/work"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrServerDisabled is returned by Start when settings disable the server.
var ErrServerDisabled = errors.New("statusbridge: server disabled")

// Backend is what the bridge reads and steers.
type Backend interface {
	Status(ctx context.Context) ([]work.ChainStatus, error)
	Segments(ctx context.Context, chainID string) ([]chain.Segment, error)
	Override(ctx context.Context, chainID string, req work.OverrideRequest) error
}

// Logger matches logging.Logger's Printf.
type Logger interface {
	Printf(format string, args ...any)
}

// Server wraps the HTTP listener and handlers.
type Server struct {
	settings Settings
	backend  Backend
	metrics  http.Handler
	logger   Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithMetrics mounts a handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.metrics = h
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a status server over backend.
func NewServer(settings Settings, backend Backend, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		backend:  backend,
		metrics:  http.NotFoundHandler(),
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /chains", s.handleChains)
	mux.HandleFunc("GET /chains/{id}/segments", s.handleSegments)
	mux.HandleFunc("POST /chains/{id}/override", s.handleOverride)
	mux.Handle("/metrics", s.metrics)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("statusbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("statusbridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("statusbridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("statusbridge: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// BaseURL returns the HTTP base URL for the running server.
func (s *Server) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.settings.URL()
	}
	return "http://" + s.listener.Addr().String()
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type chainResponse struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Type                string         `json:"type"`
	State               string         `json:"state"`
	TemplateKey         string         `json:"template"`
	Paused              bool           `json:"paused,omitempty"`
	Segments            map[string]int `json:"segments"`
	FabricatedToSeconds float64        `json:"fabricated_to_seconds"`
	CursorSeconds       float64        `json:"cursor_seconds"`
}

type segmentResponse struct {
	ID             int      `json:"id"`
	Type           string   `json:"type"`
	State          string   `json:"state"`
	BeginSeconds   float64  `json:"begin_seconds"`
	LengthSeconds  float64  `json:"length_seconds"`
	Total          int      `json:"total_bars"`
	Delta          int      `json:"delta"`
	Tempo          float64  `json:"tempo"`
	Key            string   `json:"key,omitempty"`
	Intensity      float64  `json:"intensity"`
	Choices        int      `json:"choices"`
	Picks          int      `json:"picks"`
	Memes          []string `json:"memes,omitempty"`
	Missing        []string `json:"missing,omitempty"`
	OutputPath     string   `json:"output_path,omitempty"`
	FailureMessage string   `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.mu.RLock()
	resp := healthResponse{Status: string(s.status)}
	if !s.startTime.IsZero() {
		resp.UptimeSeconds = int64(s.clock().Sub(s.startTime).Seconds())
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.backend.Status(r.Context())
	if err != nil {
		s.logger.Printf("statusbridge: status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	out := make([]chainResponse, 0, len(statuses))
	for _, st := range statuses {
		counts := make(map[string]int, len(st.Segments))
		for state, n := range st.Segments {
			counts[string(state)] = n
		}
		out = append(out, chainResponse{
			ID:                  st.Chain.ID,
			Name:                st.Chain.Name,
			Type:                string(st.Chain.Type),
			State:               string(st.Chain.State),
			TemplateKey:         st.Chain.TemplateKey,
			Paused:              st.Paused,
			Segments:            counts,
			FabricatedToSeconds: fabricator.ChainSeconds(st.FabricatedToMicros),
			CursorSeconds:       fabricator.ChainSeconds(st.CursorMicros),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	segs, err := s.backend.Segments(r.Context(), id)
	if err != nil {
		if errors.Is(err, chain.ErrChainNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "chain not found"})
			return
		}
		s.logger.Printf("statusbridge: segments of %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "segments unavailable"})
		return
	}
	out := make([]segmentResponse, 0, len(segs))
	for _, seg := range segs {
		resp := segmentResponse{
			ID:             seg.ID,
			Type:           string(seg.Type),
			State:          string(seg.State),
			BeginSeconds:   fabricator.ChainSeconds(seg.BeginAtChainMicros),
			LengthSeconds:  fabricator.ChainSeconds(seg.DurationMicros),
			Total:          seg.Total,
			Delta:          seg.Delta,
			Tempo:          seg.Tempo,
			Key:            seg.Key,
			Intensity:      seg.Intensity,
			Choices:        len(seg.Choices),
			Picks:          len(seg.Picks),
			Memes:          seg.Memes,
			Missing:        seg.Missing,
			FailureMessage: seg.Error,
		}
		if seg.Output != nil {
			resp.OutputPath = seg.Output.Path
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return
	}
	var req work.OverrideRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := s.backend.Override(r.Context(), id, req); err != nil {
		switch {
		case errors.Is(err, chain.ErrChainNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "chain not found"})
		case errors.Is(err, work.ErrChainNotFabricating):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}
	s.logger.Printf("statusbridge: override accepted for %s", id)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "server_time": s.clock().UTC()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
