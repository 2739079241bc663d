package review

import "github.com/conorfennell/qbank/internal/domain"

// View is a read-only snapshot of a session for display.
type View struct {
	Status              Status           `json:"status"`
	Position            int              `json:"position"`
	Total               int              `json:"total"`
	Current             *domain.Question `json:"current,omitempty"`
	Revealed            bool             `json:"revealed"`
	RandomOrder         bool             `json:"randomOrder"`
	Editing             bool             `json:"editing"`
	Draft               *domain.Question `json:"draft,omitempty"`
	HiddenDuringSession []string         `json:"hiddenDuringSession"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	p := s.Persisted()
	t := s.Transient()
	v := View{
		Status:              s.Status(),
		Position:            p.Position,
		Total:               len(p.WorkingList),
		Revealed:            t.Revealed,
		RandomOrder:         p.RandomOrder,
		Editing:             t.Editing,
		Draft:               t.Draft,
		HiddenDuringSession: p.HiddenDuringSession,
	}
	if q, ok := s.Current(); ok {
		v.Current = &q
	}
	return v
}
