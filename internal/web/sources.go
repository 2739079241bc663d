package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type sourceResponse struct {
	ID          int64   `json:"id"`
	Path        string  `json:"path"`
	Type        string  `json:"type"`
	LastScanned *string `json:"lastScanned,omitempty"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	list, err := s.syncer.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]sourceResponse, 0, len(list))
	for _, src := range list {
		item := sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type}
		if src.LastScanned.Valid {
			ts := src.LastScanned.Time.UTC().Format(time.RFC3339)
			item.LastScanned = &ts
		}
		resp = append(resp, item)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeObject(r)
	if err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	path, _ := raw["path"].(string)
	if path == "" {
		badRequest(w, "Path cannot be empty")
		return
	}
	src, err := s.syncer.AddSource(r.Context(), path)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "Invalid source ID")
		return
	}
	if err := s.syncer.RemoveSource(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync runs a sync in the foreground and reports what it did.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.syncer.Sync(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"sources": report.Sources,
		"files":   report.Files,
		"added":   report.Added,
		"skipped": report.Skipped,
		"errors":  report.Errors,
	})
}
