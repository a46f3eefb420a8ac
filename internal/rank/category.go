package rank

import (
	"fmt"
	"sort"
)

// Category is one qualitative band, such as "loved it". A band owns the
// half-open score interval (MinScore, MaxScore]; adjacent bands share a
// boundary, which belongs to the lower band. DisplayOrder runs best first.
type Category struct {
	ID           string   `json:"id"`
	ItemType     ItemType `json:"itemType"`
	Name         string   `json:"name"`
	MinScore     float64  `json:"minScore"`
	MaxScore     float64  `json:"maxScore"`
	DisplayOrder int      `json:"displayOrder"`
}

// Contains reports whether the score falls inside this band's interval.
func (c Category) Contains(score float64) bool {
	return score > c.MinScore && score <= c.MaxScore
}

// CategorySet is the validated, immutable band layout for one item type.
// Construction is the only place band configuration is checked; once a set
// exists its invariants hold for the life of the process.
type CategorySet struct {
	itemType ItemType
	ordered  []Category
	byID     map[string]Category
}

// NewCategorySet validates the band layout for an item type: at least one
// band, all bands for that type, unique ids and display orders, every band
// spanning a positive interval, and bands contiguous from best to worst.
// Any violation is a configuration error, never worked around at runtime.
func NewCategorySet(itemType ItemType, categories []Category) (*CategorySet, error) {
	if !itemType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidItemType, itemType)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: no categories for %s", ErrCategoryBands, itemType)
	}

	ordered := make([]Category, len(categories))
	copy(ordered, categories)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DisplayOrder < ordered[j].DisplayOrder
	})

	byID := make(map[string]Category, len(ordered))
	seenOrder := make(map[int]bool, len(ordered))
	for i, c := range ordered {
		if c.ItemType != itemType {
			return nil, fmt.Errorf("%w: category %q has item type %q, want %q", ErrCategoryBands, c.ID, c.ItemType, itemType)
		}
		if c.ID == "" {
			return nil, fmt.Errorf("%w: category with empty id", ErrCategoryBands)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category id %q", ErrCategoryBands, c.ID)
		}
		if seenOrder[c.DisplayOrder] {
			return nil, fmt.Errorf("%w: duplicate display order %d", ErrCategoryBands, c.DisplayOrder)
		}
		if c.MaxScore <= c.MinScore {
			return nil, fmt.Errorf("%w: category %q spans empty interval (%v, %v]", ErrCategoryBands, c.ID, c.MinScore, c.MaxScore)
		}
		if i > 0 && ordered[i-1].MinScore != c.MaxScore {
			return nil, fmt.Errorf("%w: gap or overlap between %q and %q", ErrCategoryBands, ordered[i-1].ID, c.ID)
		}
		byID[c.ID] = c
		seenOrder[c.DisplayOrder] = true
	}

	return &CategorySet{itemType: itemType, ordered: ordered, byID: byID}, nil
}

// ItemType returns the item type this set governs.
func (s *CategorySet) ItemType() ItemType {
	return s.itemType
}

// Categories returns the bands ordered best to worst.
func (s *CategorySet) Categories() []Category {
	out := make([]Category, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// ByID resolves a category id against the set.
func (s *CategorySet) ByID(id string) (Category, error) {
	c, ok := s.byID[id]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q for %s", ErrUnknownCategory, id, s.itemType)
	}
	return c, nil
}

// ForScore classifies a score into its band. A score outside every band is a
// data inconsistency and is reported, not coerced into the nearest band.
func (s *CategorySet) ForScore(score float64) (Category, error) {
	for _, c := range s.ordered {
		if c.Contains(score) {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: %v for %s", ErrScoreOutOfRange, score, s.itemType)
}

// Catalog holds the category sets for every item type, built once at startup.
// A type whose configuration failed validation stays in the catalog as
// disabled: rating operations for it fail with ErrRatingsUnavailable while
// the other types keep working.
type Catalog struct {
	sets    map[ItemType]*CategorySet
	invalid map[ItemType]error
}

// NewCatalog groups categories by item type and validates each group.
func NewCatalog(categories []Category) *Catalog {
	grouped := make(map[ItemType][]Category)
	for _, c := range categories {
		grouped[c.ItemType] = append(grouped[c.ItemType], c)
	}

	cat := &Catalog{
		sets:    make(map[ItemType]*CategorySet),
		invalid: make(map[ItemType]error),
	}
	for t, group := range grouped {
		set, err := NewCategorySet(t, group)
		if err != nil {
			cat.invalid[t] = err
			continue
		}
		cat.sets[t] = set
	}
	return cat
}

// Set returns the validated band set for an item type, or
// ErrRatingsUnavailable when the type is disabled or unconfigured.
func (c *Catalog) Set(t ItemType) (*CategorySet, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidItemType, t)
	}
	if err, broken := c.invalid[t]; broken {
		return nil, fmt.Errorf("%w for %s: %v", ErrRatingsUnavailable, t, err)
	}
	set, ok := c.sets[t]
	if !ok {
		return nil, fmt.Errorf("%w for %s: no categories configured", ErrRatingsUnavailable, t)
	}
	return set, nil
}

// Enabled lists the item types with a usable category configuration.
func (c *Catalog) Enabled() []ItemType {
	var out []ItemType
	for _, t := range []ItemType{ItemTypeTrack, ItemTypeAlbum, ItemTypeArtist} {
		if _, ok := c.sets[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
