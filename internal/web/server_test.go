package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/qbank/internal/bank"
	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/review"
	"github.com/conorfennell/qbank/internal/sources"
	"github.com/conorfennell/qbank/internal/storage"
	"github.com/conorfennell/qbank/internal/transfer"
)

func newTestServer(t *testing.T, seed ...domain.Question) (*Server, *storage.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "qbank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.ClearAll(ctx))
	for _, q := range seed {
		_, err := db.Add(ctx, q)
		require.NoError(t, err)
	}

	session, err := review.NewSession(ctx, db, db, review.WithShuffle(func([]domain.Question) {}))
	require.NoError(t, err)
	syncer := sources.NewSyncer(db, t.TempDir(), nil)
	return NewServer(bank.NewService(db), session, syncer, WithExportFormat(transfer.YAML)), db
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestQuestionCRUD(t *testing.T) {
	s, db := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/questions", `{"question":"What is chi?","answer":"A router"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Question](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.ShowInReview)

	rec = do(t, s, http.MethodPut, "/api/questions/"+created.ID, `{"question":"What is chi?","answer":"A lightweight router","showInReview":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := db.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A lightweight router", got.Answer)
	assert.False(t, got.ShowInReview)

	rec = do(t, s, http.MethodGet, "/api/questions?q=LIGHTWEIGHT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Question](t, rec), 1)

	rec = do(t, s, http.MethodDelete, "/api/questions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/questions/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code, "deleting twice is not an error")

	rec = do(t, s, http.MethodGet, "/api/questions", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListSorting(t *testing.T) {
	s, _ := newTestServer(t,
		domain.Question{Question: "beta", ShowInReview: true},
		domain.Question{Question: "Alpha", ShowInReview: true},
	)

	rec := do(t, s, http.MethodGet, "/api/questions?sort=asc", "")
	qs := decode[[]domain.Question](t, rec)
	require.Len(t, qs, 2)
	assert.Equal(t, "Alpha", qs[0].Question)

	rec = do(t, s, http.MethodGet, "/api/questions?sort=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRejectsInvalidFields(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/questions", `{"question":1,"showInReview":"yes"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorResponse](t, rec)
	require.Len(t, body.Fields, 2)
	assert.Equal(t, "question", body.Fields[0].Field)
	assert.Equal(t, "showInReview", body.Fields[1].Field)

	rec = do(t, s, http.MethodPost, "/api/questions", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAndToggleVisibility(t *testing.T) {
	s, db := newTestServer(t,
		domain.Question{Question: "1", ShowInReview: true},
		domain.Question{Question: "2", ShowInReview: true},
	)

	rec := do(t, s, http.MethodPost, "/api/questions/review-visibility", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"showInReview":false,"updated":2}`, rec.Body.String())

	rec = do(t, s, http.MethodDelete, "/api/questions", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	qs, err := db.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestImportExport(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/import", `{"questions":[{"question":"Q1","answer":"A1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imported":1}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/import?format=yaml", "- question: Q2\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/import", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/import", `[{"question":"Q","answer":3}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/yaml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "questions.yaml")
	assert.Contains(t, rec.Body.String(), "question: Q2")

	rec = do(t, s, http.MethodGet, "/api/export?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Question](t, rec), 2)

	rec = do(t, s, http.MethodGet, "/api/export?format=csv", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportMarkdownConflict(t *testing.T) {
	s, _ := newTestServer(t, domain.Question{Question: "Q", Answer: "line1\n---\nline2", ShowInReview: true})

	rec := do(t, s, http.MethodGet, "/api/export?format=markdown", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot be written as markdown")

	rec = do(t, s, http.MethodGet, "/api/export?format=json", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReviewFlow(t *testing.T) {
	s, db := newTestServer(t,
		domain.Question{Question: "Q1", Answer: "A1", ShowInReview: true},
		domain.Question{Question: "Q2", Answer: "A2", ShowInReview: false},
		domain.Question{Question: "Q3", Answer: "A3", ShowInReview: true},
	)

	rec := do(t, s, http.MethodGet, "/api/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[review.View](t, rec)
	assert.Equal(t, review.StatusReady, view.Status)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, "Q1", view.Current.Question)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/reveal", ""))
	assert.True(t, view.Revealed)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/next", ""))
	assert.Equal(t, 1, view.Position)
	assert.False(t, view.Revealed)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/next", ""))
	assert.Equal(t, review.StatusComplete, view.Status)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/reset", ""))
	assert.Equal(t, review.StatusReady, view.Status)
	assert.Equal(t, 0, view.Position)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/hide", ""))
	assert.Len(t, view.HiddenDuringSession, 1)
	assert.Equal(t, 1, view.Position)

	qs, err := db.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, domain.Visible(qs), 1)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/load", ""))
	assert.Equal(t, 1, view.Total)
	assert.Equal(t, "Q3", view.Current.Question)

	view = decode[review.View](t, do(t, s, http.MethodPost, "/api/review/prev", ""))
	assert.Equal(t, 0, view.Position)
}

func TestReviewEdit(t *testing.T) {
	s, db := newTestServer(t, domain.Question{Question: "Q1", Answer: "A1", ShowInReview: true})
	do(t, s, http.MethodPost, "/api/review/load", "")

	rec := do(t, s, http.MethodPut, "/api/review/edit", `{"question":"Q1","answer":"edited"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "saving before editing")

	view := decode[review.View](t, do(t, s, http.MethodPost, "/api/review/edit", ""))
	require.True(t, view.Editing)
	id := view.Current.ID

	rec = do(t, s, http.MethodPut, "/api/review/edit", `{"question":"Q1","answer":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[review.View](t, rec)
	assert.False(t, view.Editing)
	assert.Equal(t, "edited", view.Current.Answer)

	got, err := db.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Answer)

	do(t, s, http.MethodPost, "/api/review/edit", "")
	view = decode[review.View](t, do(t, s, http.MethodDelete, "/api/review/edit", ""))
	assert.False(t, view.Editing)
	assert.Nil(t, view.Draft)
}

func TestReviewOnEmptyBank(t *testing.T) {
	s, _ := newTestServer(t)

	view := decode[review.View](t, do(t, s, http.MethodGet, "/api/review", ""))
	assert.Equal(t, review.StatusEmpty, view.Status)

	rec := do(t, s, http.MethodPost, "/api/review/next", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/review/hide", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSources(t *testing.T) {
	s, db := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.md"), []byte("Q: Synced?\nA: Yes\n"), 0o644))

	body, err := json.Marshal(map[string]string{"path": dir})
	require.NoError(t, err)
	rec := do(t, s, http.MethodPost, "/api/sources", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[sourceResponse](t, rec)
	assert.Equal(t, storage.SourceLocal, created.Type)

	rec = do(t, s, http.MethodPost, "/api/sources", string(body))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sources", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sources":1,"files":1,"added":1,"skipped":0,"errors":0}`, rec.Body.String())

	qs, err := db.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "Synced?", qs[0].Question)

	listed := decode[[]sourceResponse](t, do(t, s, http.MethodGet, "/api/sources", ""))
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].LastScanned)

	rec = do(t, s, http.MethodDelete, "/api/sources/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/sources/"+strconv.FormatInt(created.ID, 10), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
