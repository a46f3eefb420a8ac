package rank

import (
	"errors"
	"fmt"
	"math/bits"
	"testing"
)

func trackKeys(n int) []ItemKey {
	keys := make([]ItemKey, n)
	for i := range keys {
		keys[i] = ItemKey{ID: fmt.Sprintf("track-%02d", i), Type: ItemTypeTrack}
	}
	return keys
}

// driveSearch answers every probe as if the new item truly belongs at
// position want: candidates ranked above want beat it, the rest lose.
func driveSearch(t *testing.T, s *Search, scope []ItemKey, want int) {
	t.Helper()
	byID := make(map[string]int, len(scope))
	for i, k := range scope {
		byID[k.ID] = i
	}
	for !s.Done() {
		candidate, err := s.Candidate()
		if err != nil {
			t.Fatalf("Candidate: %v", err)
		}
		winner := WinnerNew
		if byID[candidate.ID] < want {
			winner = WinnerCandidate
		}
		if err := s.Record(winner); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
}

func TestSearchEmptyScope(t *testing.T) {
	s := NewSearch(nil)

	if !s.Done() {
		t.Fatalf("expected immediate convergence for empty scope")
	}
	pos, err := s.Position()
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != 0 {
		t.Fatalf("expected position 0, got %d", pos)
	}
	if p := s.Progress(); p.Comparisons != 0 || p.Total != 0 {
		t.Fatalf("expected zero progress, got %+v", p)
	}
}

func TestSearchFindsEveryInsertionPoint(t *testing.T) {
	for n := 0; n <= 33; n++ {
		scope := trackKeys(n)
		for want := 0; want <= n; want++ {
			s := NewSearch(scope)
			driveSearch(t, s, scope, want)

			pos, err := s.Position()
			if err != nil {
				t.Fatalf("n=%d want=%d: Position: %v", n, want, err)
			}
			if pos != want {
				t.Fatalf("n=%d: expected position %d, got %d", n, want, pos)
			}

			bound := bits.Len(uint(n))
			if p := s.Progress(); p.Comparisons > bound {
				t.Fatalf("n=%d want=%d: %d comparisons exceeds bound %d", n, want, p.Comparisons, bound)
			} else if p.Total != bound {
				t.Fatalf("n=%d: expected total %d, got %d", n, bound, p.Total)
			}
		}
	}
}

func TestSearchFourthItemProbeSequence(t *testing.T) {
	// Three items ranked A > B > C; the new item beats B but loses to A,
	// so it belongs at position 1 after exactly two judgments.
	scope := []ItemKey{
		{ID: "A", Type: ItemTypeAlbum},
		{ID: "B", Type: ItemTypeAlbum},
		{ID: "C", Type: ItemTypeAlbum},
	}
	s := NewSearch(scope)

	first, err := s.Candidate()
	if err != nil {
		t.Fatalf("first Candidate: %v", err)
	}
	if first.ID != "B" {
		t.Fatalf("expected first probe against B, got %s", first.ID)
	}
	if err := s.Record(WinnerNew); err != nil {
		t.Fatalf("Record: %v", err)
	}

	second, err := s.Candidate()
	if err != nil {
		t.Fatalf("second Candidate: %v", err)
	}
	if second.ID != "A" {
		t.Fatalf("expected second probe against A, got %s", second.ID)
	}
	if err := s.Record(WinnerCandidate); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if !s.Done() {
		t.Fatalf("expected convergence after two judgments")
	}
	pos, err := s.Position()
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}
	if p := s.Progress(); p.Comparisons != 2 || p.Total != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestSearchRejectsJudgmentAfterConvergence(t *testing.T) {
	s := NewSearch(trackKeys(1))
	if err := s.Record(WinnerNew); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !s.Done() {
		t.Fatalf("expected convergence")
	}

	if err := s.Record(WinnerNew); !errors.Is(err, ErrSearchDone) {
		t.Fatalf("expected ErrSearchDone, got %v", err)
	}
	if _, err := s.Candidate(); !errors.Is(err, ErrSearchDone) {
		t.Fatalf("expected ErrSearchDone from Candidate, got %v", err)
	}
}

func TestSearchRejectsResultBeforeConvergence(t *testing.T) {
	s := NewSearch(trackKeys(2))
	if _, err := s.Position(); !errors.Is(err, ErrSearchActive) {
		t.Fatalf("expected ErrSearchActive, got %v", err)
	}
}

func TestSearchInvalidWinner(t *testing.T) {
	s := NewSearch(trackKeys(2))
	if err := s.Record(Winner("draw")); !errors.Is(err, ErrInvalidWinner) {
		t.Fatalf("expected ErrInvalidWinner, got %v", err)
	}
	if p := s.Progress(); p.Comparisons != 0 {
		t.Fatalf("invalid judgment must not count, got %+v", p)
	}
}

func TestParseWinner(t *testing.T) {
	tests := []struct {
		raw     string
		want    Winner
		wantErr bool
	}{
		{raw: "new", want: WinnerNew},
		{raw: "candidate", want: WinnerCandidate},
		{raw: "tie", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseWinner(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidWinner) {
					t.Fatalf("expected ErrInvalidWinner, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWinner: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
