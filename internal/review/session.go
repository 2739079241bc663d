// Package review holds the state of a review session: a working list of the
// questions marked for review, the position within it, and whether the
// current answer is revealed. Part of the state survives restarts.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/conorfennell/qbank/internal/domain"
)

// Store is the part of the persistence store a session reads and writes.
type Store interface {
	GetAll(ctx context.Context) ([]domain.Question, error)
	Update(ctx context.Context, q domain.Question) (string, error)
	LastModifiedAt(ctx context.Context) (int64, error)
	WasModifiedSince(ctx context.Context, marker int64) (bool, error)
}

// StateStore keeps the persisted half of a session between runs.
type StateStore interface {
	LoadSessionState(ctx context.Context) ([]byte, error)
	SaveSessionState(ctx context.Context, state []byte) error
}

// Status is the coarse state of a session.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusEmpty    Status = "empty"
	StatusReady    Status = "ready"
	StatusComplete Status = "complete"
)

// PersistedState is the part of a session that survives restarts.
type PersistedState struct {
	WorkingList         []domain.Question `json:"workingList"`
	Position            int               `json:"position"`
	RandomOrder         bool              `json:"randomOrder"`
	HiddenDuringSession []string          `json:"hiddenDuringSession"`
	LastSyncMarker      int64             `json:"lastSyncMarker"`
}

// TransientState is reset on every start.
type TransientState struct {
	Loaded   bool
	Revealed bool
	Complete bool
	Editing  bool
	Draft    *domain.Question
}

// Session is a review session over the questions of a Store.
// It is not safe for concurrent use.
type Session struct {
	store     Store
	states    StateStore
	shuffle   func([]domain.Question)
	persisted PersistedState
	transient TransientState
}

// Option configures a Session.
type Option func(*Session)

// WithShuffle replaces the function used to shuffle the working list in
// random order.
func WithShuffle(shuffle func([]domain.Question)) Option {
	return func(s *Session) { s.shuffle = shuffle }
}

func shuffleQuestions(qs []domain.Question) {
	rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

// NewSession restores the persisted part of the last session, if any. The
// working list is not refreshed until Load is called.
func NewSession(ctx context.Context, store Store, states StateStore, opts ...Option) (*Session, error) {
	s := &Session{
		store:   store,
		states:  states,
		shuffle: shuffleQuestions,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := states.LoadSessionState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load review session: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &s.persisted); err != nil {
			slog.Warn("discarding unreadable review session", "error", err)
			s.persisted = PersistedState{}
			raw = nil
		}
	}
	if raw == nil {
		marker, err := store.LastModifiedAt(ctx)
		if err != nil {
			return nil, err
		}
		s.persisted.LastSyncMarker = marker
	}
	if s.persisted.HiddenDuringSession == nil {
		s.persisted.HiddenDuringSession = []string{}
	}
	s.clampPosition()
	return s, nil
}

func (s *Session) save(ctx context.Context) error {
	raw, err := json.Marshal(s.persisted)
	if err != nil {
		return fmt.Errorf("failed to encode review session: %w", err)
	}
	if err := s.states.SaveSessionState(ctx, raw); err != nil {
		return err
	}
	return nil
}

func (s *Session) clampPosition() {
	n := len(s.persisted.WorkingList)
	switch {
	case n == 0 || s.persisted.Position < 0:
		s.persisted.Position = 0
	case s.persisted.Position > n-1:
		s.persisted.Position = n - 1
	}
}

// Load refreshes the working list from the store. When the store changed
// since the last sync the list is rebuilt from scratch and progress restarts.
// Otherwise a random-order session is reshuffled unless target is given.
// A non-nil target moves the position there, clamped to the list.
func (s *Session) Load(ctx context.Context, target *int) error {
	modified, err := s.store.WasModifiedSince(ctx, s.persisted.LastSyncMarker)
	if err != nil {
		return fmt.Errorf("failed to check for edits: %w", err)
	}
	marker := s.persisted.LastSyncMarker
	if modified {
		if marker, err = s.store.LastModifiedAt(ctx); err != nil {
			return err
		}
	}

	all, err := s.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}
	qs := domain.Visible(all)

	switch {
	case modified:
		if s.persisted.RandomOrder {
			s.shuffle(qs)
		}
		s.persisted.Position = 0
		s.persisted.HiddenDuringSession = []string{}
		s.persisted.LastSyncMarker = marker
		slog.Debug("review list rebuilt after edits", "questions", len(qs))
	case s.persisted.RandomOrder && target == nil:
		s.shuffle(qs)
	}
	s.persisted.WorkingList = qs
	s.transient.Revealed = false
	s.transient.Loaded = true

	if target != nil {
		s.persisted.Position = *target
	}
	s.clampPosition()
	return s.save(ctx)
}

// Advance moves to the next question, or marks the session complete when the
// current question is the last one.
func (s *Session) Advance(ctx context.Context) error {
	n := len(s.persisted.WorkingList)
	if n == 0 {
		return domain.ErrNoQuestions
	}
	if s.persisted.Position < n-1 {
		s.persisted.Position++
		s.transient.Revealed = false
		return s.save(ctx)
	}
	s.transient.Complete = true
	return nil
}

// Retreat moves to the previous question. It does nothing on the first one.
func (s *Session) Retreat(ctx context.Context) error {
	if s.persisted.Position == 0 {
		return nil
	}
	s.persisted.Position--
	s.transient.Revealed = false
	return s.save(ctx)
}

// Reveal shows or hides the answer of the current question.
func (s *Session) Reveal(show bool) {
	s.transient.Revealed = show
}

// ToggleReveal flips whether the answer of the current question is shown.
func (s *Session) ToggleReveal() {
	s.transient.Revealed = !s.transient.Revealed
}

// ResetProgress returns to the first question and forgets what was hidden
// during the session. The working list itself is kept.
func (s *Session) ResetProgress(ctx context.Context) error {
	marker, err := s.store.LastModifiedAt(ctx)
	if err != nil {
		return err
	}
	s.persisted.Position = 0
	s.persisted.HiddenDuringSession = []string{}
	s.persisted.LastSyncMarker = marker
	s.transient.Revealed = false
	s.transient.Complete = false
	return s.save(ctx)
}

// Restart resets progress and reloads the working list.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.ResetProgress(ctx); err != nil {
		return err
	}
	return s.Load(ctx, nil)
}

// ToggleRandomOrder switches between sequential and random order. The
// session always restarts from the first question.
func (s *Session) ToggleRandomOrder(ctx context.Context) error {
	s.persisted.RandomOrder = !s.persisted.RandomOrder
	return s.Restart(ctx)
}

// HideCurrent marks the current question as excluded from review in the
// store and moves on. The working list only shrinks on the next reload.
func (s *Session) HideCurrent(ctx context.Context) error {
	q, ok := s.Current()
	if !ok {
		return domain.ErrNoQuestions
	}
	q.ShowInReview = false
	if _, err := s.store.Update(ctx, q); err != nil {
		return fmt.Errorf("failed to hide question %s: %w", q.ID, err)
	}
	s.persisted.HiddenDuringSession = append(s.persisted.HiddenDuringSession, q.ID)
	if err := s.save(ctx); err != nil {
		return err
	}
	return s.Advance(ctx)
}

// BeginEdit stages a copy of the current question for editing.
func (s *Session) BeginEdit() error {
	q, ok := s.Current()
	if !ok {
		return domain.ErrNoQuestions
	}
	s.transient.Editing = true
	s.transient.Draft = &q
	return nil
}

// SetDraft replaces the staged copy. The id of the staged question is kept.
func (s *Session) SetDraft(q domain.Question) error {
	if !s.transient.Editing || s.transient.Draft == nil {
		return domain.ErrNotEditing
	}
	q.ID = s.transient.Draft.ID
	s.transient.Draft = &q
	return nil
}

// SaveEdit persists the staged copy, reloads the working list anchored at
// the current position and leaves edit mode.
func (s *Session) SaveEdit(ctx context.Context) error {
	if !s.transient.Editing || s.transient.Draft == nil {
		return domain.ErrNotEditing
	}
	if _, err := s.store.Update(ctx, *s.transient.Draft); err != nil {
		return err
	}
	pos := s.persisted.Position
	if err := s.Load(ctx, &pos); err != nil {
		return err
	}
	s.CancelEdit()
	return nil
}

// CancelEdit leaves edit mode without saving.
func (s *Session) CancelEdit() {
	s.transient.Editing = false
	s.transient.Draft = nil
}

// Current returns the question at the current position.
func (s *Session) Current() (domain.Question, bool) {
	if len(s.persisted.WorkingList) == 0 {
		return domain.Question{}, false
	}
	return s.persisted.WorkingList[s.persisted.Position], true
}

// Status reports the coarse state of the session.
func (s *Session) Status() Status {
	switch {
	case !s.transient.Loaded:
		return StatusLoading
	case len(s.persisted.WorkingList) == 0:
		return StatusEmpty
	case s.transient.Complete:
		return StatusComplete
	default:
		return StatusReady
	}
}

// Persisted returns a copy of the state that survives restarts.
func (s *Session) Persisted() PersistedState {
	p := s.persisted
	p.WorkingList = append([]domain.Question(nil), s.persisted.WorkingList...)
	p.HiddenDuringSession = append([]string{}, s.persisted.HiddenDuringSession...)
	return p
}

// Transient returns a copy of the state that is reset on every start.
func (s *Session) Transient() TransientState {
	t := s.transient
	if t.Draft != nil {
		d := *t.Draft
		t.Draft = &d
	}
	return t
}
