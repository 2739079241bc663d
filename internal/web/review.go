package web

import (
	"context"
	"net/http"

	"github.com/conorfennell/qbank/internal/review"
)

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Status() == review.StatusLoading {
		if err := s.session.Load(r.Context(), nil); err != nil {
			respondError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, s.session.View())
}

// reviewAction runs a session transition under the session lock and responds
// with the resulting view.
func (s *Server) reviewAction(action func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := action(r.Context()); err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, s.session.View())
	}
}

func (s *Server) loadSession(ctx context.Context) error {
	return s.session.Load(ctx, nil)
}

func (s *Server) toggleReveal(context.Context) error {
	s.session.ToggleReveal()
	return nil
}

func (s *Server) beginEdit(context.Context) error {
	return s.session.BeginEdit()
}

func (s *Server) cancelEdit(context.Context) error {
	s.session.CancelEdit()
	return nil
}

// handleSaveEdit replaces the staged copy with the request body and saves it.
func (s *Server) handleSaveEdit(w http.ResponseWriter, r *http.Request) {
	q, err := questionFromBody(r)
	if err != nil {
		s.respondBodyError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.SetDraft(q); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.session.SaveEdit(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.session.View())
}
