// Package listing filters and orders questions for display.
package listing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/conorfennell/qbank/internal/domain"
)

// SortOrder selects how questions are ordered for display.
type SortOrder string

const (
	None SortOrder = "none"
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortOrder parses a sort order name. The empty string means None.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", None:
		return None, nil
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	default:
		return None, fmt.Errorf("unknown sort order %q (want none, asc or desc)", s)
	}
}

// Next cycles none -> asc -> desc -> none.
func (o SortOrder) Next() SortOrder {
	switch o {
	case None:
		return Asc
	case Asc:
		return Desc
	default:
		return None
	}
}

// Filter returns the questions whose question or answer contains term,
// ignoring case and surrounding whitespace in term. Input order is kept.
func Filter(qs []domain.Question, term string) []domain.Question {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if term == "" ||
			strings.Contains(strings.ToLower(q.Question), term) ||
			strings.Contains(strings.ToLower(q.Answer), term) {
			out = append(out, q)
		}
	}
	return out
}

func sortKey(q domain.Question) string {
	return strings.ToLower(strings.TrimSpace(q.Question))
}

// Sort returns a copy of qs ordered by question text. Equal keys keep their
// input order.
func Sort(qs []domain.Question, order SortOrder) []domain.Question {
	out := slices.Clone(qs)
	switch order {
	case Asc:
		slices.SortStableFunc(out, func(a, b domain.Question) int {
			return strings.Compare(sortKey(a), sortKey(b))
		})
	case Desc:
		slices.SortStableFunc(out, func(a, b domain.Question) int {
			return strings.Compare(sortKey(b), sortKey(a))
		})
	}
	return out
}
