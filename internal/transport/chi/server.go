// Package chi exposes the classification pipeline over HTTP: one-shot
// classification, the multi-turn clarification loop, health and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clearfreight/hscodex/internal/domain"
	"github.com/clearfreight/hscodex/internal/metrics"
	conversationuc "github.com/clearfreight/hscodex/internal/usecase/conversation"
	healthuc "github.com/clearfreight/hscodex/internal/usecase/health"
)

const maxDescriptionLen = 2000

// ErrorCode identifies the machine-readable error category.
type ErrorCode string

const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeValidationFailed    ErrorCode = "validation_failed"
	ErrorCodeNotFound            ErrorCode = "conversation_not_found"
	ErrorCodeConversationClosed  ErrorCode = "conversation_closed"
	ErrorCodeRateLimited         ErrorCode = "rate_limited"
	ErrorCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrorCodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Status  string    `json:"status,omitempty"`
}

// classifier is the consumer interface over the classification pipeline.
type classifier interface {
	Classify(ctx context.Context, description, country string, answers map[string]string) ([]domain.ClassificationResult, error)
}

// conversations is the consumer interface over the clarification loop.
type conversations interface {
	Start(ctx context.Context, description, sessionID, country string) (conversationuc.Response, error)
	Answer(ctx context.Context, conversationID string, answers map[string]string, skip bool) (conversationuc.Response, error)
	Cancel(ctx context.Context, conversationID string) (conversationuc.Response, error)
}

// healthChecker reports aggregated component health.
type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	classifier    classifier
	conversations conversations
	health        healthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	classifier classifier,
	conversations conversations,
	health healthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		classifier:    classifier,
		conversations: conversations,
		health:        health,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		conversationStateHandler,
		sentinelHandler(domain.ErrConversationNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, ErrorCodeProviderUnavailable),
		sentinelHandler(domain.ErrCompletionFailure, http.StatusBadGateway, ErrorCodeProviderUnavailable),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, ErrorCodeProviderUnavailable),
	}
	return s
}

// Router builds the chi router. Extra middleware (recovery, request
// logging) is installed ahead of auth and metrics.
func (s *Server) Router(apiKeys []string, extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	for _, mw := range extra {
		r.Use(mw)
	}
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", s.Classify)
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.StartConversation)
			r.Post("/{conversation}/answers", s.AnswerConversation)
			r.Delete("/{conversation}", s.CancelConversation)
		})
	})

	return r
}

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Description string            `json:"description"`
	Country     string            `json:"country,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
}

// ClassifyResponse is the body of a successful classification.
type ClassifyResponse struct {
	Results []domain.ClassificationResult `json:"results"`
}

// Classify handles POST /api/v1/classify: a single pipeline pass with no
// conversation, optional pre-supplied answers included.
func (s *Server) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if msg, ok := validateDescription(req.Description); !ok {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, msg)
		return
	}

	results, err := s.classifier.Classify(r.Context(), req.Description, req.Country, req.Answers)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{Results: results})
}

// StartConversationRequest is the body of POST /api/v1/conversations.
type StartConversationRequest struct {
	Description string `json:"description"`
	SessionID   string `json:"session_id,omitempty"`
	Country     string `json:"country,omitempty"`
}

// StartConversation handles POST /api/v1/conversations. A confident
// classification returns results immediately without opening a conversation.
func (s *Server) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if msg, ok := validateDescription(req.Description); !ok {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, msg)
		return
	}

	resp, err := s.conversations.Start(r.Context(), req.Description, req.SessionID, req.Country)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Type == conversationuc.ResponseQuestions {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// AnswerRequest is the body of POST /api/v1/conversations/{conversation}/answers.
type AnswerRequest struct {
	Answers map[string]string `json:"answers,omitempty"`
	Skip    bool              `json:"skip,omitempty"`
}

// AnswerConversation handles POST /api/v1/conversations/{conversation}/answers.
// Skip or an empty answer set closes the conversation with the best guess.
func (s *Server) AnswerConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.conversations.Answer(r.Context(), id, req.Answers, req.Skip)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CancelConversation handles DELETE /api/v1/conversations/{conversation}.
func (s *Server) CancelConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation")

	resp, err := s.conversations.Cancel(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func validateDescription(desc string) (string, bool) {
	if strings.TrimSpace(desc) == "" {
		return "Product description is required", false
	}
	if len(desc) > maxDescriptionLen {
		return "Product description is too long", false
	}
	return "", true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrConversationNotFound,
		domain.ErrInvalidConversationState,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionFailure,
		domain.ErrRetrievalUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// conversationStateHandler handles ErrInvalidConversationState, reporting the
// status the conversation is actually in.
func conversationStateHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrInvalidConversationState) {
		return false
	}
	resp := ErrorResponse{
		Code:    ErrorCodeConversationClosed,
		Message: msg,
	}
	var cse *domain.ConversationStateError
	if errors.As(err, &cse) {
		resp.Status = string(cse.Status)
	}
	writeJSON(w, http.StatusConflict, resp)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
