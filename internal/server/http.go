package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/auth"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/config"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

// StatusReader serves room summaries to the HTTP API. The redis status
// board implements it, and so does the engine for deployments without redis.
type StatusReader interface {
	ListRooms(ctx context.Context) ([]store.RoomStatus, error)
	GetRoom(ctx context.Context, name string) (*store.RoomStatus, error)
}

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

type Server struct {
	cfg     *config.Config
	hub     *Hub
	rooms   StatusReader
	metrics *Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
	limiter *RateLimiter
	checks  map[string]HealthCheck
	now     func() time.Time
}

func New(cfg *config.Config, hub *Hub, rooms StatusReader, metrics *Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		rooms:   rooms,
		metrics: metrics,
		logger:  logger,
		mux:     http.NewServeMux(),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		checks:  make(map[string]HealthCheck),
		now:     time.Now,
	}
	s.routes()
	return s
}

// AddHealthCheck registers a dependency reported by GET /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.ServeHTTP)
	if s.hub != nil {
		s.mux.Handle("GET /ws", s.hub)
	}

	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /api/rooms/{name}", s.handleGetRoom)

	if s.cfg.IsDevelopment() {
		s.mux.HandleFunc("POST /api/join-tokens", s.handleIssueToken)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("health check failed", "check", name, "err", err)
			status[name] = "down"
			status["status"] = "degraded"
		} else {
			status[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("write json", "err", err)
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		writeJSON(w, []store.RoomStatus{})
		return
	}
	rooms, err := s.rooms.ListRooms(r.Context())
	if err != nil {
		s.logger.Error("list rooms", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rooms == nil {
		rooms = []store.RoomStatus{}
	}
	writeJSON(w, rooms)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	status, err := s.rooms.GetRoom(r.Context(), r.PathValue("name"))
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, room.ErrRoomNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get room", "room", r.PathValue("name"), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req auth.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}
	cond := room.ConditionKey{
		Generation: req.Generation,
		Variation:  req.Variation,
		KTF:        req.KTF,
		NearMiss:   req.NearMiss,
	}
	if _, err := room.FlowsFor(cond); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ttl := s.cfg.JoinTokenTTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	now := s.now()
	token, err := auth.Issue([]byte(s.cfg.JoinTokenSecret), req, ttl, now)
	if err != nil {
		s.logger.Error("issue join token", "participant", req.ParticipantID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"token":      token,
		"expires_at": now.Add(ttl).UTC(),
	})
}

func (s *Server) Handler() http.Handler {
	return ChainMiddleware(s.mux,
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
	)
}

// Run evicts idle rate limiter buckets until ctx ends.
func (s *Server) Run(ctx context.Context) {
	s.limiter.Run(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
