// Package bank implements the operations of the question list: browsing,
// editing, bulk visibility changes, import and export.
package bank

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/listing"
	"github.com/conorfennell/qbank/internal/transfer"
	"github.com/conorfennell/qbank/internal/validation"
)

// Store is the persistence the bank works on.
type Store interface {
	GetAll(ctx context.Context) ([]domain.Question, error)
	Add(ctx context.Context, q domain.Question) (string, error)
	Update(ctx context.Context, q domain.Question) (string, error)
	Delete(ctx context.Context, id string) (string, error)
	ClearAll(ctx context.Context) error
}

// Service holds the list-view operations over a Store.
type Service struct {
	store Store
}

// NewService returns a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the questions matching term, in the given order.
func (s *Service) List(ctx context.Context, term string, order listing.SortOrder) ([]domain.Question, error) {
	qs, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return listing.Sort(listing.Filter(qs, term), order), nil
}

// Save adds q when it has no id yet and replaces the stored record otherwise.
// It returns the id the question is stored under.
func (s *Service) Save(ctx context.Context, q domain.Question) (string, error) {
	if q.ID == "" {
		return s.store.Add(ctx, q)
	}
	return s.store.Update(ctx, q)
}

// Delete removes a question. Unknown ids are ignored.
func (s *Service) Delete(ctx context.Context, id string) (string, error) {
	return s.store.Delete(ctx, id)
}

// ClearAll removes every question.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}

// ToggleAllReview shows every question in review when all of them are
// hidden, and hides every question otherwise. Writes are issued one by one;
// on failure the questions already written keep their new flag. It returns
// the flag that was applied and the number of questions written.
func (s *Service) ToggleAllReview(ctx context.Context) (bool, int, error) {
	qs, err := s.store.GetAll(ctx)
	if err != nil {
		return false, 0, err
	}
	show := true
	for _, q := range qs {
		if q.ShowInReview {
			show = false
			break
		}
	}

	written := 0
	for _, q := range qs {
		q.ShowInReview = show
		if _, err := s.store.Update(ctx, q); err != nil {
			return show, written, fmt.Errorf("failed to update question %s: %w", q.ID, err)
		}
		written++
	}
	return show, written, nil
}

// Prepare validates decoded records and fills their defaults. Every record is
// checked, lengths included, before any is returned, so a bad file writes
// nothing. Identifiers in the file are ignored since imports always get fresh
// ones.
func Prepare(recs []map[string]any) ([]domain.Question, error) {
	qs := make([]domain.Question, 0, len(recs))
	var fieldErrs []domain.FieldError
	addErrs := func(i int, errs []domain.FieldError) {
		for _, fe := range errs {
			fieldErrs = append(fieldErrs, domain.FieldError{
				Field:   fmt.Sprintf("questions[%d].%s", i, fe.Field),
				Message: fe.Message,
			})
		}
	}
	for i, rec := range recs {
		fields := maps.Clone(rec)
		delete(fields, validation.FieldID)

		q, res := validation.Validate(fields)
		if !res.Valid {
			addErrs(i, res.Errors)
			continue
		}
		checked := q
		checked.ID = importID
		addErrs(i, validation.ValidateQuestion(checked).Errors)
		qs = append(qs, q)
	}
	if len(fieldErrs) > 0 {
		return nil, &domain.ValidationError{Errors: fieldErrs}
	}
	return qs, nil
}

// importID stands in for the identifier the store assigns on insert.
const importID = "import"

// Import reads a collection in the given format and adds every question
// under a fresh id. The payload is fully decoded and validated before the
// first write; the writes themselves are not atomic as a batch. It returns
// the number of questions added.
func (s *Service) Import(ctx context.Context, r io.Reader, format transfer.Format) (int, error) {
	recs, err := transfer.Decode(r, format)
	if err != nil {
		return 0, err
	}
	qs, err := Prepare(recs)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, q := range qs {
		if _, err := s.store.Add(ctx, q); err != nil {
			return added, fmt.Errorf("failed to import question %d: %w", added+1, err)
		}
		added++
	}
	slog.Info("imported questions", "format", format, "count", added)
	return added, nil
}

// Export writes the full collection in the given format and returns the
// number of questions written.
func (s *Service) Export(ctx context.Context, w io.Writer, format transfer.Format) (int, error) {
	qs, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := transfer.Encode(w, format, qs); err != nil {
		return 0, fmt.Errorf("failed to export questions: %w", err)
	}
	return len(qs), nil
}
