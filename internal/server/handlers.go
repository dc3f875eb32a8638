package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
	"go.uber.org/zap"
)

type queryRequest struct {
	Question       string            `json:"question"`
	ConversationID int64             `json:"conversation_id,omitempty"`
	TopK           int               `json:"top_k,omitempty"`
	Explain        bool              `json:"explain,omitempty"`
	UsePriority    *bool             `json:"use_priority,omitempty"`
	SourceType     string            `json:"source_type,omitempty"`
	Sender         string            `json:"sender,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
}

func (q queryRequest) validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return rag.ErrEmptyQuestion
	}
	if q.TopK < 0 {
		return errors.New("top_k must not be negative")
	}
	if q.ConversationID < 0 {
		return errors.New("conversation_id must not be negative")
	}
	return nil
}

func (q queryRequest) filters() search.Filters {
	return search.Filters{SourceType: q.SourceType, Sender: q.Sender, Equals: q.Filters}
}

func (q queryRequest) request() rag.QueryRequest {
	return rag.QueryRequest{
		Question:       q.Question,
		ConversationID: q.ConversationID,
		TopK:           q.TopK,
		Explain:        q.Explain,
		UsePriority:    q.UsePriority,
		Filters:        q.filters(),
	}
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := req.validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.logger.Debug("query request",
		zap.Int("question_len", len(req.Question)),
		zap.Int64("conversation_id", req.ConversationID),
		zap.Int("top_k", req.TopK))
	resp, err := s.engine.Query(r.Context(), req.request())
	if err != nil {
		s.fail(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.logger.Debug("search request", zap.Int("question_len", len(req.Question)), zap.Int("top_k", req.TopK))
	resp, err := s.engine.Search(r.Context(), req.Question, req.TopK, req.filters())
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleQueryStream answers as server-sent events: one "chunk" event per
// generated piece, then a "done" event carrying the grounded response. A
// failure before the first chunk is a plain JSON error; after it, an "error"
// event.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	resp, err := s.engine.Stream(r.Context(), req.request(), func(chunk string) error {
		begin()
		if err := writeEvent(w, "chunk", chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			s.fail(w, "stream failed", err)
			return
		}
		s.logger.Error("stream failed", zap.Error(err))
		_ = writeEvent(w, "error", map[string]string{"error": err.Error()})
		flusher.Flush()
		return
	}
	begin()
	if err := writeEvent(w, "done", resp); err != nil {
		s.logger.Warn("failed to write stream result", zap.Error(err))
	}
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	var upstream *rag.UpstreamError
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion), errors.Is(err, rag.ErrInvalidReason):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
