// Package server exposes the engine over HTTP. Clarifications and rejections
// are payloads, not errors: a clarification returns 200, a domain rejection
// 422, and only backend trouble surfaces as 5xx.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/internal/app"
	"github.com/plumeline/plumeline/models"
	"github.com/plumeline/plumeline/storage"
)

// Server is the HTTP front of the engine
type Server struct {
	engine *app.Engine
	log    *zap.Logger
	mux    *http.ServeMux
}

// New builds the server and registers its routes
func New(engine *app.Engine, log *zap.Logger) *Server {
	s := &Server{engine: engine, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/ask", s.handleAsk)
	s.mux.HandleFunc("POST /v1/clarify", s.handleClarify)
	s.mux.HandleFunc("POST /v1/expand", s.handleExpand)
	s.mux.HandleFunc("POST /v1/perf", s.handlePerf)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler with request logging attached
func (s *Server) Handler() http.Handler {
	return s.logging(s.mux)
}

type askRequest struct {
	Question       string `json:"question"`
	Language       string `json:"language,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.engine.Ask(r.Context(), &models.Query{
		Text:           req.Question,
		Language:       req.Language,
		ConversationID: req.ConversationID,
		TenantID:       req.TenantID,
	})
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeResult(w, result)
}

type clarifyRequest struct {
	ConversationID string            `json:"conversation_id"`
	Answers        map[string]string `json:"answers"`
}

func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	var req clarifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == "" {
		s.writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	result, err := s.engine.AnswerClarification(r.Context(), req.ConversationID, req.Answers)
	if err != nil {
		if errors.Is(err, storage.ErrNoPendingClarification) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeBackendError(w, r, err)
		return
	}
	s.writeResult(w, result)
}

type expandRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	report, err := s.engine.ExpandKnowledge(r.Context(), req.Topic)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	var q models.PerfQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid performance query")
		return
	}

	result, err := s.engine.PerfLookup(r.Context(), q)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())
	status := http.StatusOK
	for _, componentStatus := range report.Components {
		if componentStatus == models.StatusDown {
			status = http.StatusServiceUnavailable
			break
		}
	}
	s.writeJSON(w, status, report)
}

// writeResult maps the ask outcome union: answers and clarifications are 200,
// a domain rejection is 422.
func (s *Server) writeResult(w http.ResponseWriter, result *models.AskResult) {
	status := http.StatusOK
	if result.Type == models.OutcomeRejection {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	status := models.HTTPStatus(err)
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	s.writeError(w, status, "request failed")
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}
