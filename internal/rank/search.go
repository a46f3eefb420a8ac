package rank

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrSearchDone signals a probe or judgment after convergence.
	ErrSearchDone = errors.New("search already converged")
	// ErrSearchActive signals a result request before convergence.
	ErrSearchActive = errors.New("search not converged")
)

// Search is a resumable binary search for the insertion point of a new item
// within an ordered candidate scope. Each recorded judgment halves the open
// window [low, high); when the window closes, low is the final position.
// A search never mutates the scope it was built from.
type Search struct {
	candidates []ItemKey
	low        int
	high       int
	steps      int
}

// NewSearch starts a search over candidates ordered best to worst. An empty
// scope converges immediately at position 0 with no comparisons.
func NewSearch(candidates []ItemKey) *Search {
	scope := make([]ItemKey, len(candidates))
	copy(scope, candidates)
	return &Search{candidates: scope, high: len(scope)}
}

// Done reports whether the insertion point is fully determined.
func (s *Search) Done() bool {
	return s.low == s.high
}

// Candidate returns the item the user should next be compared against: the
// midpoint of the remaining window.
func (s *Search) Candidate() (ItemKey, error) {
	if s.Done() {
		return ItemKey{}, ErrSearchDone
	}
	return s.candidates[s.mid()], nil
}

// Record applies one pairwise judgment. A win for the new item keeps the
// upper half of the window; a win for the candidate discards the candidate
// and everything above it. The window strictly shrinks on every call, so a
// search finishes in at most ceil(log2(n+1)) judgments.
func (s *Search) Record(winner Winner) error {
	if s.Done() {
		return ErrSearchDone
	}
	switch winner {
	case WinnerNew:
		s.high = s.mid()
	case WinnerCandidate:
		s.low = s.mid() + 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidWinner, winner)
	}
	s.steps++
	return nil
}

// Position returns the converged insertion point: the number of scope items
// that rank above the new one.
func (s *Search) Position() (int, error) {
	if !s.Done() {
		return 0, ErrSearchActive
	}
	return s.low, nil
}

// Progress reports judgments made so far against the worst case for the
// scope, so callers can render "comparison i of n" honestly.
type Progress struct {
	Comparisons int `json:"comparisons"`
	Total       int `json:"total"`
}

// Progress returns the search progress. Total is ceil(log2(n+1)) for a scope
// of n candidates, which bits.Len computes exactly.
func (s *Search) Progress() Progress {
	return Progress{
		Comparisons: s.steps,
		Total:       bits.Len(uint(len(s.candidates))),
	}
}

func (s *Search) mid() int {
	return (s.low + s.high) / 2
}
