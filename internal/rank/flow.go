package rank

import (
	"errors"
	"fmt"
)

// FlowState is the lifecycle phase of a rating flow.
type FlowState string

const (
	StateSelectingCategory FlowState = "selecting_category"
	StateComparing         FlowState = "comparing"
	StateSaving            FlowState = "saving"
	StateCompleted         FlowState = "completed"
)

// ErrFlowState signals an operation issued in the wrong flow phase.
var ErrFlowState = errors.New("not allowed in current flow state")

// Probe is one pairwise question: the item being placed against the scope
// candidate at the midpoint of the remaining window. The bounds are carried
// so a probe can be correlated with the search it came from.
type Probe struct {
	NewItem   ItemKey `json:"newItem"`
	Candidate ItemKey `json:"candidate"`
	Low       int     `json:"low"`
	High      int     `json:"high"`
}

// Placement is the converged outcome of a flow, available once comparisons
// are finished. PlacedFirst is set when the item landed at the top of its
// category, for the celebratory acknowledgment in clients.
type Placement struct {
	CategoryID  string `json:"categoryId"`
	Position    int    `json:"position"`
	Comparisons int    `json:"comparisons"`
	PlacedFirst bool   `json:"placedFirst"`
}

// Flow drives one item through category selection, pairwise comparison, and
// saving. A flow holds no store state of its own: cancelling is simply
// discarding the value, and nothing observable changes until the converged
// placement is applied. When the same item is being re-ranked, prior carries
// its existing rating and the comparison scope must exclude the item itself.
type Flow struct {
	item     ItemKey
	prior    *Rating
	state    FlowState
	category Category
	search   *Search
}

// NewFlow starts a rating flow for item. prior is nil for a first rating and
// the existing rating when re-ranking.
func NewFlow(item ItemKey, prior *Rating) *Flow {
	return &Flow{item: item, prior: prior, state: StateSelectingCategory}
}

// Item returns the item being placed.
func (f *Flow) Item() ItemKey {
	return f.item
}

// Prior returns the existing rating when this flow re-ranks an item, else nil.
func (f *Flow) Prior() *Rating {
	return f.prior
}

// State returns the current lifecycle phase.
func (f *Flow) State() FlowState {
	return f.state
}

// Category returns the chosen band once selection has happened.
func (f *Flow) Category() (Category, error) {
	if f.state == StateSelectingCategory {
		return Category{}, fmt.Errorf("%w: category not chosen", ErrFlowState)
	}
	return f.category, nil
}

// ChooseCategory fixes the band and begins comparing against scope, the
// already ranked items of that band ordered best to worst. An empty scope
// needs no comparisons and moves the flow straight to saving.
func (f *Flow) ChooseCategory(category Category, scope []ItemKey) error {
	if f.state != StateSelectingCategory {
		return fmt.Errorf("%w: category already chosen", ErrFlowState)
	}
	f.category = category
	f.search = NewSearch(scope)
	if f.search.Done() {
		f.state = StateSaving
	} else {
		f.state = StateComparing
	}
	return nil
}

// Probe returns the current pairwise question.
func (f *Flow) Probe() (Probe, error) {
	if f.state != StateComparing {
		return Probe{}, fmt.Errorf("%w: no comparison pending", ErrFlowState)
	}
	candidate, err := f.search.Candidate()
	if err != nil {
		return Probe{}, err
	}
	return Probe{
		NewItem:   f.item,
		Candidate: candidate,
		Low:       f.search.low,
		High:      f.search.high,
	}, nil
}

// RecordWinner applies the user's judgment on the current probe and advances
// to saving once the insertion point is determined.
func (f *Flow) RecordWinner(winner Winner) error {
	if f.state != StateComparing {
		return fmt.Errorf("%w: no comparison pending", ErrFlowState)
	}
	if err := f.search.Record(winner); err != nil {
		return err
	}
	if f.search.Done() {
		f.state = StateSaving
	}
	return nil
}

// Progress reports comparisons made against the worst case for the scope.
func (f *Flow) Progress() (Progress, error) {
	if f.state == StateSelectingCategory {
		return Progress{}, fmt.Errorf("%w: category not chosen", ErrFlowState)
	}
	return f.search.Progress(), nil
}

// Placement returns the converged outcome. It is available from saving
// onward, so a failed save can be retried without repeating comparisons.
func (f *Flow) Placement() (Placement, error) {
	if f.state != StateSaving && f.state != StateCompleted {
		return Placement{}, fmt.Errorf("%w: comparisons not finished", ErrFlowState)
	}
	position, err := f.search.Position()
	if err != nil {
		return Placement{}, err
	}
	return Placement{
		CategoryID:  f.category.ID,
		Position:    position,
		Comparisons: f.search.Progress().Comparisons,
		PlacedFirst: position == 0,
	}, nil
}

// Complete marks the flow finished after its placement has been persisted.
func (f *Flow) Complete() error {
	if f.state != StateSaving {
		return fmt.Errorf("%w: nothing to complete", ErrFlowState)
	}
	f.state = StateCompleted
	return nil
}
