package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"semaphore/posts/internal/auth"
	"semaphore/posts/internal/clients"
	"semaphore/posts/internal/config"
	"semaphore/posts/internal/db"
	"semaphore/posts/internal/events"
	"semaphore/posts/internal/metrics"
)

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (auth.Identity, error)
}

type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (clients.User, error)
}

type Server struct {
	cfg      config.Config
	store    db.Store
	verifier TokenVerifier
	users    UserLookup
	events   events.Publisher
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewServer(cfg config.Config, store db.Store, verifier TokenVerifier, users UserLookup, publisher events.Publisher, logger *zap.Logger, m *metrics.Metrics) *Server {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		users:    users,
		events:   publisher,
		logger:   logger,
		metrics:  m,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(s.cfg.CORSAllowedOrigins))
	if s.cfg.RateLimitRPM > 0 {
		r.Use(rateLimit(s.cfg.RateLimitRPM))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", s.handleListPosts)
		r.Get("/{id}", s.handleGetPost)
		r.With(s.authenticate).Post("/", s.handleCreatePost)
		r.With(s.authenticate).Put("/{id}", s.handleUpdatePost)
		r.With(s.authenticate).Delete("/{id}", s.handleDeletePost)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publish(r *http.Request, evt events.Event) {
	if err := s.events.Publish(r.Context(), evt); err != nil {
		s.logger.Warn("post event not published",
			zap.String("type", string(evt.Type)),
			zap.String("post_id", evt.PostID),
			zap.Error(err),
		)
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

var errInvalidBody = errors.New("invalid request body")

// decodeJSON treats an empty body as an empty object.
func decodeJSON(r *http.Request, out interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeServerError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: message, Error: err.Error()})
}
