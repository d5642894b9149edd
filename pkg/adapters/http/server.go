package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/runner"
	"github.com/aretw0/twin3/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves the session API.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	metrics      http.Handler
	maxInputSize int
	version      string
	logger       *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreams shares a StreamManager, typically one also registered as the
// session manager's observer.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxInputSize limits the size of free text in actions.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		s.maxInputSize = n
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the API server.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		version:  "dev",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the session manager.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(sessions, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	r.Use(s.requestLogger)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/inventory", s.GetInventory)
	r.Get("/methods", s.GetMethods)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/actions", s.SendAction)
			r.Post("/reset", s.ResetSession)
			r.Post("/verifications", s.CompleteVerification)
			r.Get("/score", s.GetScore)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	eng := s.Sessions.Engine()
	writeJSON(w, http.StatusOK, map[string]any{
		"app":             "twin3-http",
		"version":         strings.TrimSpace(s.version),
		"inventory_nodes": eng.Inventory().Len(),
		"generator":       eng.GeneratorAvailable(),
	})
}

// GetInventory handles the GET /inventory request.
func (s *Server) GetInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions.Engine().Inventory().Nodes())
}

// GetMethods handles the GET /methods request.
func (s *Server) GetMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions.Methods())
}

type createSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CreateSession handles POST /sessions. Without a session_id a fresh one is generated.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	var (
		conv *domain.Conversation
		err  error
	)
	if body.SessionID == "" {
		conv, err = s.Sessions.Create(r.Context())
	} else {
		conv, err = s.Sessions.Start(r.Context(), body.SessionID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	conv, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actionRequest is the inbound action. A suggestion click may be sent as-is
// and is mapped to an explicit node or to free text.
type actionRequest struct {
	Text            string             `json:"text,omitempty"`
	NodeID          string             `json:"node_id,omitempty"`
	ShowUserMessage *bool              `json:"show_user_message,omitempty"`
	Suggestion      *domain.Suggestion `json:"suggestion,omitempty"`
}

func (s *Server) toAction(body actionRequest) (domain.Action, error) {
	if body.Suggestion != nil {
		return s.Sessions.Engine().Inventory().ActionFor(*body.Suggestion), nil
	}

	action := domain.Action{
		ExplicitNodeID:  body.NodeID,
		ShowUserMessage: body.Text != "",
	}
	if body.ShowUserMessage != nil {
		action.ShowUserMessage = *body.ShowUserMessage
	}
	if body.Text != "" {
		clean, err := runner.SanitizeInputLimit(body.Text, s.maxInputSize)
		if err != nil {
			return domain.Action{}, err
		}
		action.FreeText = clean
	}
	return action, nil
}

// SendAction handles POST /sessions/{id}/actions.
func (s *Server) SendAction(w http.ResponseWriter, r *http.Request) {
	var body actionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	action, err := s.toAction(body)
	if err != nil {
		s.logger.Warn("SendAction: Input rejected", "err", err, "size", len(body.Text))
		s.fail(w, r, err)
		return
	}

	result, err := s.Sessions.Send(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResetSession handles POST /sessions/{id}/reset.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.Sessions.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type verificationRequest struct {
	MethodID string `json:"method_id"`
}

// CompleteVerification handles POST /sessions/{id}/verifications.
func (s *Server) CompleteVerification(w http.ResponseWriter, r *http.Request) {
	var body verificationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	report, err := s.Sessions.CompleteMethod(r.Context(), chi.URLParam(r, "id"), body.MethodID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetScore handles GET /sessions/{id}/score.
func (s *Server) GetScore(w http.ResponseWriter, r *http.Request) {
	report, err := s.Sessions.Score(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

var errBadRequest = errors.New("invalid request body")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, runner.ErrInputTooLarge),
		errors.Is(err, runner.ErrInvalidUTF8),
		errors.Is(err, session.ErrUnknownMethod):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
