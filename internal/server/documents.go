package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultListLimit = 100

// queryLimit reads a positive limit query parameter.
func queryLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		s.respondError(w, http.StatusNotImplemented, "document registry not enabled")
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	status := models.DocumentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusActive, models.StatusDeleted, models.StatusArchived:
	default:
		s.respondError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}
	docs, err := s.documents.ListDocuments(r.Context(), status, r.URL.Query().Get("source_type"), limit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.TrackedDocument{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

type flagRequest struct {
	Value *bool `json:"value"`
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request, flag string, update func(id string, value bool) (int, error)) {
	if s.documents == nil {
		s.respondError(w, http.StatusNotImplemented, "document registry not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		s.respondError(w, http.StatusBadRequest, "value is required")
		return
	}
	s.logger.Debug("update document flag", zap.String("document_id", id), zap.String("flag", flag), zap.Bool("value", *req.Value))
	n, err := update(id, *req.Value)
	if err != nil {
		s.fail(w, "update "+flag+" failed", err)
		return
	}
	if n == 0 {
		s.respondError(w, http.StatusNotFound, "document has no indexed chunks")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"document_id":    id,
		flag:             *req.Value,
		"chunks_updated": n,
	})
}

func (s *Server) handlePinDocument(w http.ResponseWriter, r *http.Request) {
	s.handleFlag(w, r, "pinned", func(id string, v bool) (int, error) {
		return s.documents.UpdatePinned(r.Context(), id, v)
	})
}

func (s *Server) handleApproveDocument(w http.ResponseWriter, r *http.Request) {
	s.handleFlag(w, r, "approved", func(id string, v bool) (int, error) {
		return s.documents.UpdateApproved(r.Context(), id, v)
	})
}

func conversationID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		s.respondError(w, http.StatusNotImplemented, "chat history not enabled")
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	convs, err := s.conversations.ListConversations(r.Context(), limit)
	if err != nil {
		s.fail(w, "list conversations failed", err)
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		s.respondError(w, http.StatusNotImplemented, "chat history not enabled")
		return
	}
	id, ok := conversationID(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, err := s.conversations.GetConversation(r.Context(), id)
	if err != nil {
		s.fail(w, "get conversation failed", err)
		return
	}
	msgs, err := s.conversations.Messages(r.Context(), id)
	if err != nil {
		s.fail(w, "get messages failed", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversation": conv, "messages": msgs})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		s.respondError(w, http.StatusNotImplemented, "chat history not enabled")
		return
	}
	id, ok := conversationID(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	deleted, err := s.conversations.DeleteConversation(r.Context(), id)
	if err != nil {
		s.fail(w, "delete conversation failed", err)
		return
	}
	if !deleted {
		s.respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": "deleted"})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		s.respondError(w, http.StatusNotImplemented, "provider listing not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"providers": s.providers()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if s.documents != nil {
		stats, err := s.documents.GetStats(r.Context())
		if err != nil {
			s.fail(w, "registry stats failed", err)
			return
		}
		resp["registry"] = stats
	}
	if s.indexStats != nil {
		resp["index"] = s.indexStats()
	}
	if len(s.dataPaths) > 0 {
		sizes, total, err := storage.PathSizes(s.dataPaths)
		if err != nil {
			s.logger.Warn("stats: disk usage failed", zap.Error(err))
		} else {
			resp["disk_usage_bytes"] = sizes
			resp["disk_usage_total_bytes"] = total
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}
