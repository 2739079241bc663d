package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/listing"
	"github.com/conorfennell/qbank/internal/transfer"
	"github.com/conorfennell/qbank/internal/validation"
)

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	order, err := listing.ParseSortOrder(r.URL.Query().Get("sort"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	qs, err := s.bank.List(r.Context(), r.URL.Query().Get("q"), order)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, qs)
}

// questionFromBody validates a request body the same way imported records
// are validated.
func questionFromBody(r *http.Request) (domain.Question, error) {
	raw, err := decodeObject(r)
	if err != nil {
		return domain.Question{}, err
	}
	q, res := validation.Validate(raw)
	if err := res.Err(); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := questionFromBody(r)
	if err != nil {
		s.respondBodyError(w, r, err)
		return
	}
	q.ID = ""
	id, err := s.bank.Save(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	q.ID = id
	respondJSON(w, http.StatusCreated, q)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := questionFromBody(r)
	if err != nil {
		s.respondBodyError(w, r, err)
		return
	}
	q.ID = chi.URLParam(r, "id")
	if _, err := s.bank.Save(r.Context(), q); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := s.bank.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleClearQuestions(w http.ResponseWriter, r *http.Request) {
	if err := s.bank.ClearAll(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleAllReview(w http.ResponseWriter, r *http.Request) {
	show, n, err := s.bank.ToggleAllReview(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"showInReview": show, "updated": n})
}

func (s *Server) formatParam(r *http.Request) (transfer.Format, error) {
	name := r.URL.Query().Get("format")
	if name == "" {
		return s.exportFormat, nil
	}
	return transfer.ParseFormat(name)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := s.formatParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if _, err := s.bank.Export(r.Context(), &buf, format); err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "questions."+format.Extension()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	format := transfer.JSON
	if name := r.URL.Query().Get("format"); name != "" {
		f, err := transfer.ParseFormat(name)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		format = f
	}
	n, err := s.bank.Import(r.Context(), r.Body, format)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// respondBodyError reports a malformed body as 400 and invalid fields as 422.
func (s *Server) respondBodyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrValidation) {
		respondError(w, r, err)
		return
	}
	badRequest(w, "invalid request body: "+err.Error())
}
