package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/config"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"go.uber.org/zap"
)

// maxForgetOnUnwatch bounds how many registered documents one unwatch call
// may forget.
const maxForgetOnUnwatch = 10000

type watchRequest struct {
	Path string `json:"path"`
	// Sync indexes the files already in the directory (add only, default true).
	Sync *bool `json:"sync,omitempty"`
	// Forget removes every indexed document under the directory (remove only).
	Forget bool   `json:"forget,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) watchEnabled(w http.ResponseWriter) bool {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return false
	}
	return true
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if !s.watchEnabled(w) {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if !s.watchEnabled(w) {
		return
	}
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dir, err := absPath(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.respondError(w, http.StatusNotFound, "directory not found")
		return
	case err != nil:
		s.fail(w, "stat watch directory", err)
		return
	case !info.IsDir():
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(dir, syncExisting); err != nil {
		s.fail(w, "add watch directory", err)
		return
	}
	s.logger.Info("watching directory", zap.String("path", dir), zap.Bool("sync_existing", syncExisting))
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": dir, "status": "added"})
}

// handleWatchDirectoriesRemove stops watching a directory. The path comes
// from the query string or the body; with forget set, documents indexed
// from under the directory are forgotten as well.
func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if !s.watchEnabled(w) {
		return
	}
	req := watchRequest{Path: r.URL.Query().Get("path")}
	if v := r.URL.Query().Get("forget"); v != "" {
		req.Forget, _ = strconv.ParseBool(v)
	}
	if req.Path == "" {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	dir, err := absPath(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Forget && s.documents == nil {
		s.respondError(w, http.StatusNotImplemented, "document registry not enabled")
		return
	}
	if err := rag.ValidateReason(req.Reason); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.watch.RemoveDirectory(dir); err != nil {
		s.fail(w, "remove watch directory", err)
		return
	}
	s.logger.Info("stopped watching directory", zap.String("path", dir))
	s.persistWatchDirectories()

	out := map[string]interface{}{"path": dir, "status": "removed"}
	if req.Forget {
		reason := req.Reason
		if reason == "" {
			reason = rag.ReasonUserRequest
		}
		forgotten, failed, err := s.forgetUnder(r, dir, reason)
		if err != nil {
			s.fail(w, "list documents under directory", err)
			return
		}
		out["forgotten"] = forgotten
		out["failed"] = failed
	}
	s.respondJSON(w, http.StatusOK, out)
}

// forgetUnder forgets every active document whose file lives under dir.
func (s *Server) forgetUnder(r *http.Request, dir, reason string) (forgotten, failed int, err error) {
	docs, err := s.documents.ListDocuments(r.Context(), models.StatusActive, "", maxForgetOnUnwatch)
	if err != nil {
		return 0, 0, err
	}
	prefix := dir + string(filepath.Separator)
	for _, doc := range docs {
		if !strings.HasPrefix(doc.FilePath, prefix) {
			continue
		}
		if res := s.forget.ForgetByFilePath(r.Context(), doc.FilePath, reason); res.Success {
			forgotten++
		} else {
			failed++
			s.logger.Warn("failed to forget unwatched document",
				zap.String("document_id", doc.ID), zap.String("error", res.Error))
		}
	}
	return forgotten, failed, nil
}

func absPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.New("invalid path")
	}
	return abs, nil
}

// persistWatchDirectories writes the current directory list back to the
// config file, when one is known. Failures only warn.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.watchConfig == nil {
		return
	}
	s.watchConfigMu.Lock()
	defer s.watchConfigMu.Unlock()
	s.watchConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.watchConfig); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}
