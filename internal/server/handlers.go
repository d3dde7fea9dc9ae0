package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/nearest/internal/models"
	"github.com/hyperjump/nearest/internal/search"
	"github.com/hyperjump/nearest/internal/vector"
)

// neighborsRequest accepts either a structured query or an expression such as
// "king - man + woman".
type neighborsRequest struct {
	models.Query
	Expression string `json:"expression,omitempty"`
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	var req neighborsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := req.Query
	if req.Expression != "" {
		parsed, err := models.ParseExpression(strings.Fields(req.Expression))
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		parsed.K, parsed.Compare = req.K, req.Compare
		query = *parsed
	}
	if s.config.Search.Compare {
		query.Compare = true
	}

	s.logger.Debug("neighbors request",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("query", query.String()),
		zap.Int("k", query.K))
	resp, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondSearchError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWord(w http.ResponseWriter, r *http.Request) {
	info := s.engine.Info(chi.URLParam(r, "word"))
	status := http.StatusOK
	if !info.Found {
		status = http.StatusNotFound
	}
	s.respondJSON(w, status, info)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	st.Source = s.config.Embedding.Source()
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondSearchError(w http.ResponseWriter, err error) {
	var nf *search.WordNotFoundError
	switch {
	case errors.As(err, &nf):
		s.respondJSON(w, http.StatusNotFound, map[string]any{
			"error":       err.Error(),
			"suggestions": nf.Suggestions,
		})
	case errors.Is(err, models.ErrInvalidQuery):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		code := vector.CodeOf(err)
		s.logger.Error("search failed", zap.Stringer("code", code), zap.Error(err))
		status := http.StatusInternalServerError
		switch code {
		case vector.CodeUnavailable:
			status = http.StatusServiceUnavailable
		case vector.CodeInvalidQuery:
			status = http.StatusBadRequest
		}
		s.respondError(w, status, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
