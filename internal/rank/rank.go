// Package rank implements comparison-driven ranking of music items. A new
// item is placed into a strictly ordered category scope through a resumable
// binary search over pairwise judgments, and ordinal positions are projected
// onto bounded personal scores.
package rank

import (
	"errors"
	"fmt"
)

// ItemType distinguishes the three independently ranked kinds of items.
type ItemType string

const (
	ItemTypeTrack  ItemType = "track"
	ItemTypeAlbum  ItemType = "album"
	ItemTypeArtist ItemType = "artist"
)

var (
	// ErrInvalidItemType signals an unrecognized item type value.
	ErrInvalidItemType = errors.New("invalid item type")
	// ErrCategoryBands signals a misconfigured category band layout.
	ErrCategoryBands = errors.New("invalid category bands")
	// ErrUnknownCategory signals a category id with no matching band.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrRatingsUnavailable indicates rating is disabled for an item type
	// because its category configuration failed validation.
	ErrRatingsUnavailable = errors.New("ratings unavailable")
	// ErrScoreOutOfRange signals a score outside every configured band.
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrInvalidPosition signals a position outside its scope.
	ErrInvalidPosition = errors.New("position out of range")
	// ErrScopeInvariant indicates positions in a scope are not a contiguous
	// zero-based sequence. It marks corrupted ranking state, never user error.
	ErrScopeInvariant = errors.New("scope positions out of sequence")
	// ErrAlreadyRated signals an insert for an item the scope set already holds.
	ErrAlreadyRated = errors.New("item already rated")
	// ErrNotRated signals a lookup or edit for an item with no rating.
	ErrNotRated = errors.New("item not rated")
)

// ParseItemType validates a raw item type string.
func ParseItemType(raw string) (ItemType, error) {
	t := ItemType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidItemType, raw)
	}
	return t, nil
}

// Valid reports whether the item type is one of the known kinds.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeTrack, ItemTypeAlbum, ItemTypeArtist:
		return true
	}
	return false
}

// ItemKey identifies a single rateable item. IDs come from the music catalog
// and are only unique within their item type.
type ItemKey struct {
	ID   string   `json:"id"`
	Type ItemType `json:"type"`
}

// Rating is one placed item: its category, its zero-based position within the
// category scope (0 is most preferred), and the score derived from that
// position. PersonalScore and RankWithinAlbum are always recomputed from the
// ordering, never edited directly. IsNew marks a rating produced by the
// just-finished flow so callers can highlight it; it is not persisted.
type Rating struct {
	ItemID          string   `json:"itemId"`
	ItemType        ItemType `json:"itemType"`
	AlbumID         string   `json:"albumId,omitempty"`
	CategoryID      string   `json:"categoryId"`
	Position        int      `json:"position"`
	PersonalScore   float64  `json:"personalScore"`
	RankWithinAlbum *int     `json:"rankWithinAlbum,omitempty"`
	IsNew           bool     `json:"isNew,omitempty"`
}

// Key returns the identity of the rated item.
func (r Rating) Key() ItemKey {
	return ItemKey{ID: r.ItemID, Type: r.ItemType}
}

// Winner names which side of a pairwise comparison the user preferred.
// There is no tie and no skip: every judgment halves the candidate window.
type Winner string

const (
	WinnerNew       Winner = "new"
	WinnerCandidate Winner = "candidate"
)

// ErrInvalidWinner signals a winner value other than "new" or "candidate".
var ErrInvalidWinner = errors.New("invalid winner")

// ParseWinner validates a raw comparison outcome.
func ParseWinner(raw string) (Winner, error) {
	w := Winner(raw)
	if w != WinnerNew && w != WinnerCandidate {
		return "", fmt.Errorf("%w: %q", ErrInvalidWinner, raw)
	}
	return w, nil
}
