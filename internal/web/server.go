// Package web serves the question bank and the review session as a local
// JSON API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conorfennell/qbank/internal/bank"
	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/review"
	"github.com/conorfennell/qbank/internal/sources"
	"github.com/conorfennell/qbank/internal/transfer"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	bank   *bank.Service
	syncer *sources.Syncer
	router chi.Router

	exportFormat transfer.Format

	// mu guards session; handlers run concurrently.
	mu      sync.Mutex
	session *review.Session
}

// Option configures a Server.
type Option func(*Server)

// WithExportFormat sets the format used by /api/export when the request
// names none.
func WithExportFormat(f transfer.Format) Option {
	return func(s *Server) { s.exportFormat = f }
}

// NewServer creates and configures a new server.
func NewServer(svc *bank.Service, session *review.Session, syncer *sources.Syncer, opts ...Option) *Server {
	s := &Server{
		bank:         svc,
		syncer:       syncer,
		session:      session,
		exportFormat: transfer.JSON,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/questions", func(r chi.Router) {
			r.Get("/", s.handleListQuestions)
			r.Post("/", s.handleCreateQuestion)
			r.Delete("/", s.handleClearQuestions)
			r.Post("/review-visibility", s.handleToggleAllReview)
			r.Put("/{id}", s.handleUpdateQuestion)
			r.Delete("/{id}", s.handleDeleteQuestion)
		})
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Route("/review", func(r chi.Router) {
			r.Get("/", s.handleGetReview)
			r.Post("/load", s.reviewAction(s.loadSession))
			r.Post("/next", s.reviewAction(s.session.Advance))
			r.Post("/prev", s.reviewAction(s.session.Retreat))
			r.Post("/reveal", s.reviewAction(s.toggleReveal))
			r.Post("/random", s.reviewAction(s.session.ToggleRandomOrder))
			r.Post("/hide", s.reviewAction(s.session.HideCurrent))
			r.Post("/reset", s.reviewAction(s.session.Restart))
			r.Post("/edit", s.reviewAction(s.beginEdit))
			r.Put("/edit", s.handleSaveEdit)
			r.Delete("/edit", s.reviewAction(s.cancelEdit))
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleAddSource)
			r.Delete("/{id}", s.handleDeleteSource)
		})
		r.Post("/sync", s.handleSync)
	})
	s.router = r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError maps an error to a status code. Unexpected errors are logged
// and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Fields: verr.Errors})
	case errors.Is(err, domain.ErrImportFormat):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNoQuestions),
		errors.Is(err, domain.ErrNotEditing),
		errors.Is(err, sources.ErrSourceExists),
		errors.Is(err, transfer.ErrMarkdownAmbiguous):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

// decodeObject reads a JSON object body without typing its fields, so that
// type mismatches are reported by validation rather than the decoder.
func decodeObject(r *http.Request) (map[string]any, error) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return raw, nil
}
