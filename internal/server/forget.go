package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"go.uber.org/zap"
)

type forgetRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Path       string `json:"path,omitempty"`
	Sender     string `json:"sender,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// forgetHandler decodes a forget request, requires the field picked by
// target, and runs do with it.
func (s *Server) forgetHandler(field string, target func(forgetRequest) string, do func(r *http.Request, value, reason string) *models.ForgetResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		value := strings.TrimSpace(target(req))
		if value == "" {
			s.respondError(w, http.StatusBadRequest, field+" is required")
			return
		}
		if err := rag.ValidateReason(req.Reason); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Debug("forget request", zap.String("field", field))
		res := do(r, value, req.Reason)
		if !res.Success {
			s.respondJSON(w, http.StatusBadGateway, res)
			return
		}
		s.respondJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleForgetDocument(w http.ResponseWriter, r *http.Request) {
	s.forgetHandler("document_id",
		func(req forgetRequest) string { return req.DocumentID },
		func(r *http.Request, id, reason string) *models.ForgetResult {
			return s.forget.ForgetDocument(r.Context(), id, reason)
		})(w, r)
}

func (s *Server) handleForgetFile(w http.ResponseWriter, r *http.Request) {
	s.forgetHandler("path",
		func(req forgetRequest) string { return req.Path },
		func(r *http.Request, path, reason string) *models.ForgetResult {
			return s.forget.ForgetByFilePath(r.Context(), path, reason)
		})(w, r)
}

func (s *Server) handleForgetSender(w http.ResponseWriter, r *http.Request) {
	s.forgetHandler("sender",
		func(req forgetRequest) string { return req.Sender },
		func(r *http.Request, sender, reason string) *models.ForgetResult {
			return s.forget.ForgetSender(r.Context(), sender, reason)
		})(w, r)
}

func (s *Server) handleForgetSource(w http.ResponseWriter, r *http.Request) {
	s.forgetHandler("source_type",
		func(req forgetRequest) string { return req.SourceType },
		func(r *http.Request, sourceType, reason string) *models.ForgetResult {
			return s.forget.ForgetBySourceType(r.Context(), sourceType, reason)
		})(w, r)
}

func (s *Server) handleDeletionReport(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	report, err := s.forget.DeletionReport(r.Context(), days)
	if err != nil {
		s.fail(w, "deletion report failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}
