package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/qbank/internal/domain"
)

// memStore is an in-memory Store and StateStore with a counter marker.
type memStore struct {
	qs        []domain.Question
	marker    int64
	state     []byte
	updateErr error
}

func newMemStore(qs ...domain.Question) *memStore {
	return &memStore{qs: qs, marker: int64(len(qs))}
}

func (m *memStore) GetAll(ctx context.Context) ([]domain.Question, error) {
	out := []domain.Question{}
	for _, q := range m.qs {
		if !q.IsVacuous() {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, q domain.Question) (string, error) {
	if m.updateErr != nil {
		return "", m.updateErr
	}
	m.marker++
	for i := range m.qs {
		if m.qs[i].ID == q.ID {
			m.qs[i] = q
			return q.ID, nil
		}
	}
	m.qs = append(m.qs, q)
	return q.ID, nil
}

func (m *memStore) LastModifiedAt(ctx context.Context) (int64, error) { return m.marker, nil }

func (m *memStore) WasModifiedSince(ctx context.Context, marker int64) (bool, error) {
	return m.marker > marker, nil
}

func (m *memStore) LoadSessionState(ctx context.Context) ([]byte, error) { return m.state, nil }

func (m *memStore) SaveSessionState(ctx context.Context, state []byte) error {
	m.state = append([]byte(nil), state...)
	return nil
}

func q(id string, show bool) domain.Question {
	return domain.Question{ID: id, Question: "Q " + id, Answer: "A " + id, ShowInReview: show}
}

func ids(qs []domain.Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func reverse(qs []domain.Question) {
	for i, j := 0, len(qs)-1; i < j; i, j = i+1, j-1 {
		qs[i], qs[j] = qs[j], qs[i]
	}
}

func newLoadedSession(t *testing.T, store *memStore, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), store, store, opts...)
	require.NoError(t, err)
	require.Equal(t, StatusLoading, s.Status())
	require.NoError(t, s.Load(context.Background(), nil))
	return s
}

func intPtr(i int) *int { return &i }

func TestLoadFiltersHiddenAndHideCurrentAdvances(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("A", true), q("B", false), q("C", true))
	s := newLoadedSession(t, store)

	assert.Equal(t, []string{"A", "C"}, ids(s.Persisted().WorkingList))
	assert.Equal(t, StatusReady, s.Status())

	require.NoError(t, s.HideCurrent(ctx))
	assert.False(t, store.qs[0].ShowInReview, "A is hidden in the store")
	assert.Equal(t, []string{"A"}, s.Persisted().HiddenDuringSession)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "C", cur.ID)
	assert.Equal(t, []string{"A", "C"}, ids(s.Persisted().WorkingList), "list shrinks only on reload")

	require.NoError(t, s.Load(ctx, nil))
	assert.Equal(t, []string{"C"}, ids(s.Persisted().WorkingList))
	assert.Equal(t, 0, s.Persisted().Position)
	assert.Empty(t, s.Persisted().HiddenDuringSession)
}

func TestAdvanceReachesCompleteOnlyPastLast(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("1", true), q("2", true), q("3", true), q("4", true))
	s := newLoadedSession(t, store)

	for i := 0; i < 3; i++ {
		s.Reveal(true)
		require.NoError(t, s.Advance(ctx))
		assert.False(t, s.Transient().Revealed, "advancing hides the answer")
	}
	assert.Equal(t, 3, s.Persisted().Position)
	assert.False(t, s.Transient().Complete)

	require.NoError(t, s.Advance(ctx))
	assert.True(t, s.Transient().Complete)
	assert.Equal(t, 3, s.Persisted().Position)
	assert.Equal(t, StatusComplete, s.Status())
}

func TestRetreat(t *testing.T) {
	ctx := context.Background()
	s := newLoadedSession(t, newMemStore(q("1", true), q("2", true)))

	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, 0, s.Persisted().Position)

	require.NoError(t, s.Advance(ctx))
	s.Reveal(true)
	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, 0, s.Persisted().Position)
	assert.False(t, s.Transient().Revealed)
}

func TestReveal(t *testing.T) {
	s := newLoadedSession(t, newMemStore(q("1", true)))

	s.ToggleReveal()
	assert.True(t, s.Transient().Revealed)
	s.ToggleReveal()
	assert.False(t, s.Transient().Revealed)
	s.Reveal(true)
	s.Reveal(true)
	assert.True(t, s.Transient().Revealed)
	s.Reveal(false)
	assert.False(t, s.Transient().Revealed)
}

func TestLoadAfterEditResetsProgress(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("1", true), q("2", true), q("3", true))
	s := newLoadedSession(t, store)

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.HideCurrent(ctx))
	require.Equal(t, 2, s.Persisted().Position)

	_, err := store.Update(ctx, q("4", true))
	require.NoError(t, err)

	require.NoError(t, s.Load(ctx, nil))
	assert.Equal(t, 0, s.Persisted().Position)
	assert.Empty(t, s.Persisted().HiddenDuringSession)
	assert.Equal(t, []string{"1", "2", "4"}, ids(s.Persisted().WorkingList))
	assert.Equal(t, store.marker, s.Persisted().LastSyncMarker)
}

func TestLoadWithoutEditsKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s := newLoadedSession(t, newMemStore(q("1", true), q("2", true), q("3", true)))

	require.NoError(t, s.Advance(ctx))
	s.Reveal(true)
	require.NoError(t, s.Load(ctx, nil))

	assert.Equal(t, 1, s.Persisted().Position)
	assert.False(t, s.Transient().Revealed)
}

func TestLoadClampsTarget(t *testing.T) {
	ctx := context.Background()
	s := newLoadedSession(t, newMemStore(q("1", true), q("2", true), q("3", true)))

	require.NoError(t, s.Load(ctx, intPtr(10)))
	assert.Equal(t, 2, s.Persisted().Position)

	require.NoError(t, s.Load(ctx, intPtr(-4)))
	assert.Equal(t, 0, s.Persisted().Position)

	require.NoError(t, s.Load(ctx, intPtr(1)))
	assert.Equal(t, 1, s.Persisted().Position)

	empty := newLoadedSession(t, newMemStore())
	require.NoError(t, empty.Load(ctx, intPtr(3)))
	assert.Equal(t, 0, empty.Persisted().Position)
}

func TestRandomOrder(t *testing.T) {
	ctx := context.Background()
	shuffles := 0
	shuffle := func(qs []domain.Question) {
		shuffles++
		reverse(qs)
	}
	store := newMemStore(q("1", true), q("2", true), q("3", true))
	s := newLoadedSession(t, store, WithShuffle(shuffle))
	require.Zero(t, shuffles, "sequential sessions are never shuffled")

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.ToggleRandomOrder(ctx))
	assert.True(t, s.Persisted().RandomOrder)
	assert.Equal(t, 0, s.Persisted().Position)
	assert.Equal(t, []string{"3", "2", "1"}, ids(s.Persisted().WorkingList))
	assert.Equal(t, 1, shuffles)

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.Load(ctx, nil))
	assert.Equal(t, 2, shuffles, "reloading without a target reshuffles")
	assert.Equal(t, 1, s.Persisted().Position, "reshuffling keeps the position")

	require.NoError(t, s.Load(ctx, intPtr(1)))
	assert.Equal(t, 2, shuffles, "reloading with a target keeps the order")

	require.NoError(t, s.ToggleRandomOrder(ctx))
	assert.False(t, s.Persisted().RandomOrder)
	assert.Equal(t, []string{"1", "2", "3"}, ids(s.Persisted().WorkingList))
	assert.Equal(t, 2, shuffles)
}

func TestResetProgress(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("1", true), q("2", true))
	s := newLoadedSession(t, store)

	require.NoError(t, s.HideCurrent(ctx))
	require.NoError(t, s.Advance(ctx))
	require.True(t, s.Transient().Complete)

	require.NoError(t, s.ResetProgress(ctx))
	assert.Equal(t, 0, s.Persisted().Position)
	assert.False(t, s.Transient().Complete)
	assert.False(t, s.Transient().Revealed)
	assert.Empty(t, s.Persisted().HiddenDuringSession)
	assert.Equal(t, store.marker, s.Persisted().LastSyncMarker)
	assert.Equal(t, []string{"1", "2"}, ids(s.Persisted().WorkingList), "reset keeps the list")

	require.NoError(t, s.Restart(ctx))
	assert.Equal(t, []string{"2"}, ids(s.Persisted().WorkingList))
}

func TestEditFlow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("1", true), q("2", true), q("3", true))
	s := newLoadedSession(t, store)

	assert.ErrorIs(t, s.SaveEdit(ctx), domain.ErrNotEditing)
	assert.ErrorIs(t, s.SetDraft(q("x", true)), domain.ErrNotEditing)

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.BeginEdit())
	require.True(t, s.Transient().Editing)
	assert.Equal(t, "2", s.Transient().Draft.ID)

	require.NoError(t, s.SetDraft(domain.Question{ID: "other", Question: "edited", Answer: "new", ShowInReview: true}))
	assert.Equal(t, "2", s.Transient().Draft.ID, "the draft keeps its id")

	require.NoError(t, s.SaveEdit(ctx))
	assert.False(t, s.Transient().Editing)
	assert.Nil(t, s.Transient().Draft)
	assert.Equal(t, 1, s.Persisted().Position, "the session stays on the edited question")
	cur, _ := s.Current()
	assert.Equal(t, "edited", cur.Question)
	assert.Equal(t, "edited", store.qs[1].Question)
	assert.Len(t, store.qs, 3)
}

func TestCancelEdit(t *testing.T) {
	store := newMemStore(q("1", true))
	s := newLoadedSession(t, store)

	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.SetDraft(domain.Question{Question: "changed"}))
	s.CancelEdit()

	assert.False(t, s.Transient().Editing)
	assert.Equal(t, "Q 1", store.qs[0].Question)
}

func TestEmptySession(t *testing.T) {
	ctx := context.Background()
	s := newLoadedSession(t, newMemStore(q("hidden", false)))

	assert.Equal(t, StatusEmpty, s.Status())
	_, ok := s.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Advance(ctx), domain.ErrNoQuestions)
	assert.ErrorIs(t, s.HideCurrent(ctx), domain.ErrNoQuestions)
	assert.ErrorIs(t, s.BeginEdit(), domain.ErrNoQuestions)
	assert.False(t, s.Transient().Complete)
}

func TestHideCurrentFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("1", true), q("2", true))
	s := newLoadedSession(t, store)
	store.updateErr = errors.New("disk full")

	err := s.HideCurrent(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, s.Persisted().Position)
	assert.Empty(t, s.Persisted().HiddenDuringSession)
}

func TestPersistedSubsetSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(q("1", true), q("2", true), q("3", true))
	s := newLoadedSession(t, store, WithShuffle(reverse))

	require.NoError(t, s.ToggleRandomOrder(ctx))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.BeginEdit())
	s.Reveal(true)

	restored, err := NewSession(ctx, store, store)
	require.NoError(t, err)
	assert.Equal(t, s.Persisted(), restored.Persisted())
	assert.Equal(t, TransientState{}, restored.Transient())
	assert.Equal(t, StatusLoading, restored.Status())

	v := restored.View()
	assert.Equal(t, 1, v.Position)
	assert.Equal(t, 3, v.Total)
	require.NotNil(t, v.Current)
	assert.Equal(t, "2", v.Current.ID)
	assert.True(t, v.RandomOrder)
}

func TestUnreadableStateIsDiscarded(t *testing.T) {
	store := newMemStore(q("1", true))
	store.state = []byte("{not json")

	s, err := NewSession(context.Background(), store, store)
	require.NoError(t, err)
	assert.Equal(t, store.marker, s.Persisted().LastSyncMarker)
	assert.Empty(t, s.Persisted().WorkingList)
}
