// Package library keeps a signed-in user's ratings in memory: one strictly
// ordered list per (item type, category) scope, an index by item, and the
// derived per-album track ranking. It is the single enforcer of the ordering
// invariant: after every operation the positions in each scope form a
// contiguous zero-based sequence and every personal score matches its
// position.
package library

import (
	"fmt"
	"sort"

	"prestige/internal/rank"
)

type scopeKey struct {
	itemType rank.ItemType
	category string
}

type locator struct {
	scope scopeKey
	index int
}

// Library owns the ordered rating scopes for one user session. It is not
// safe for concurrent use; callers serialize access per session.
type Library struct {
	catalog *rank.Catalog
	scopes  map[scopeKey][]rank.Rating
	byKey   map[rank.ItemKey]locator
}

// New returns an empty library backed by the validated category catalog.
func New(catalog *rank.Catalog) *Library {
	return &Library{
		catalog: catalog,
		scopes:  make(map[scopeKey][]rank.Rating),
		byKey:   make(map[rank.ItemKey]locator),
	}
}

// Load replaces the library contents with persisted ratings. Every scope is
// checked against the ordering invariant before anything is kept, scores are
// recomputed from positions, and album rankings are rebuilt. On error the
// library is left untouched.
func (l *Library) Load(ratings []rank.Rating) error {
	scopes := make(map[scopeKey][]rank.Rating)
	seen := make(map[rank.ItemKey]bool, len(ratings))

	for _, r := range ratings {
		set, err := l.catalog.Set(r.ItemType)
		if err != nil {
			return fmt.Errorf("load ratings: %w", err)
		}
		if _, err := set.ByID(r.CategoryID); err != nil {
			return fmt.Errorf("load ratings: %w", err)
		}
		key := r.Key()
		if seen[key] {
			return fmt.Errorf("load ratings: %w: duplicate %s %q", rank.ErrScopeInvariant, r.ItemType, r.ItemID)
		}
		seen[key] = true

		r.RankWithinAlbum = nil
		r.IsNew = false
		if r.ItemType != rank.ItemTypeTrack {
			r.AlbumID = ""
		}
		sk := scopeKey{itemType: r.ItemType, category: r.CategoryID}
		scopes[sk] = append(scopes[sk], r)
	}

	for sk, scope := range scopes {
		sort.Slice(scope, func(i, j int) bool { return scope[i].Position < scope[j].Position })
		for i, r := range scope {
			if r.Position != i {
				return fmt.Errorf("load ratings: %w: %s/%s holds position %d at index %d",
					rank.ErrScopeInvariant, sk.itemType, sk.category, r.Position, i)
			}
		}
	}

	l.scopes = scopes
	l.byKey = make(map[rank.ItemKey]locator, len(ratings))
	albums := make(map[string]bool)
	for sk := range l.scopes {
		if err := l.rescore(sk); err != nil {
			return err
		}
		l.reindex(sk)
		if sk.itemType == rank.ItemTypeTrack {
			for _, r := range l.scopes[sk] {
				if r.AlbumID != "" {
					albums[r.AlbumID] = true
				}
			}
		}
	}
	for albumID := range albums {
		l.recomputeAlbumRank(albumID)
	}
	return nil
}

// Len returns the number of ratings held.
func (l *Library) Len() int {
	return len(l.byKey)
}

// Get returns the rating for an item.
func (l *Library) Get(key rank.ItemKey) (rank.Rating, bool) {
	loc, ok := l.byKey[key]
	if !ok {
		return rank.Rating{}, false
	}
	return cloneRating(l.scopes[loc.scope][loc.index]), true
}

// Ordered returns the scope's ratings sorted by position, best first.
func (l *Library) Ordered(itemType rank.ItemType, categoryID string) []rank.Rating {
	scope := l.scopes[scopeKey{itemType: itemType, category: categoryID}]
	out := make([]rank.Rating, len(scope))
	for i, r := range scope {
		out[i] = cloneRating(r)
	}
	return out
}

// Keys returns the ordered item keys of a scope, the candidate list for a
// placement search.
func (l *Library) Keys(itemType rank.ItemType, categoryID string) []rank.ItemKey {
	scope := l.scopes[scopeKey{itemType: itemType, category: categoryID}]
	keys := make([]rank.ItemKey, len(scope))
	for i, r := range scope {
		keys[i] = r.Key()
	}
	return keys
}

// All returns every rating of an item type grouped by category, best
// category first and positions ascending within each.
func (l *Library) All(itemType rank.ItemType) ([]rank.Rating, error) {
	set, err := l.catalog.Set(itemType)
	if err != nil {
		return nil, err
	}
	var out []rank.Rating
	for _, c := range set.Categories() {
		out = append(out, l.Ordered(itemType, c.ID)...)
	}
	return out, nil
}

// AlbumRanking returns the rated tracks of an album in preference order.
func (l *Library) AlbumRanking(albumID string) []rank.Rating {
	var tracks []rank.Rating
	for sk, scope := range l.scopes {
		if sk.itemType != rank.ItemTypeTrack {
			continue
		}
		for _, r := range scope {
			if r.AlbumID == albumID {
				tracks = append(tracks, cloneRating(r))
			}
		}
	}
	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].PersonalScore != tracks[j].PersonalScore {
			return tracks[i].PersonalScore > tracks[j].PersonalScore
		}
		return tracks[i].ItemID < tracks[j].ItemID
	})
	return tracks
}

// Insert places a new item at position within its category scope. Items at
// that position and below shift down by one, the scope is rescored, and for
// tracks the album ranking is rebuilt.
func (l *Library) Insert(key rank.ItemKey, albumID, categoryID string, position int) error {
	if _, exists := l.byKey[key]; exists {
		return fmt.Errorf("%w: %s %q", rank.ErrAlreadyRated, key.Type, key.ID)
	}
	set, err := l.catalog.Set(key.Type)
	if err != nil {
		return err
	}
	if _, err := set.ByID(categoryID); err != nil {
		return err
	}
	sk := scopeKey{itemType: key.Type, category: categoryID}
	scope := l.scopes[sk]
	if position < 0 || position > len(scope) {
		return fmt.Errorf("%w: insert at %d in scope of %d", rank.ErrInvalidPosition, position, len(scope))
	}
	if key.Type != rank.ItemTypeTrack {
		albumID = ""
	}

	scope = append(scope, rank.Rating{})
	copy(scope[position+1:], scope[position:])
	scope[position] = rank.Rating{
		ItemID:     key.ID,
		ItemType:   key.Type,
		AlbumID:    albumID,
		CategoryID: categoryID,
	}
	l.scopes[sk] = scope

	if err := l.rescore(sk); err != nil {
		return err
	}
	l.reindex(sk)
	if key.Type == rank.ItemTypeTrack {
		l.recomputeAlbumRank(albumID)
	}
	return nil
}

// Remove deletes an item's rating. Items below it shift up to close the gap
// and the scope is rescored.
func (l *Library) Remove(key rank.ItemKey) error {
	loc, ok := l.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s %q", rank.ErrNotRated, key.Type, key.ID)
	}

	scope := l.scopes[loc.scope]
	removed := scope[loc.index]
	scope = append(scope[:loc.index], scope[loc.index+1:]...)
	delete(l.byKey, key)

	if len(scope) == 0 {
		delete(l.scopes, loc.scope)
	} else {
		l.scopes[loc.scope] = scope
		if err := l.rescore(loc.scope); err != nil {
			return err
		}
		l.reindex(loc.scope)
	}
	if key.Type == rank.ItemTypeTrack {
		l.recomputeAlbumRank(removed.AlbumID)
	}
	return nil
}

// Move re-ranks an already rated item: it leaves its old slot, the old scope
// closes up, and it lands at position within the target scope. The position
// is interpreted against the target scope without the item itself.
func (l *Library) Move(key rank.ItemKey, categoryID string, position int) error {
	loc, ok := l.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s %q", rank.ErrNotRated, key.Type, key.ID)
	}
	set, err := l.catalog.Set(key.Type)
	if err != nil {
		return err
	}
	if _, err := set.ByID(categoryID); err != nil {
		return err
	}
	target := scopeKey{itemType: key.Type, category: categoryID}
	targetLen := len(l.scopes[target])
	if target == loc.scope {
		targetLen--
	}
	if position < 0 || position > targetLen {
		return fmt.Errorf("%w: move to %d in scope of %d", rank.ErrInvalidPosition, position, targetLen)
	}

	albumID := l.scopes[loc.scope][loc.index].AlbumID
	if err := l.Remove(key); err != nil {
		return err
	}
	return l.Insert(key, albumID, categoryID, position)
}

// Clone returns a deep copy sharing only the immutable catalog. The service
// applies edits to a clone and swaps it in after a successful save, so no
// reader ever observes a partially shifted scope.
func (l *Library) Clone() *Library {
	c := &Library{
		catalog: l.catalog,
		scopes:  make(map[scopeKey][]rank.Rating, len(l.scopes)),
		byKey:   make(map[rank.ItemKey]locator, len(l.byKey)),
	}
	for sk, scope := range l.scopes {
		copied := make([]rank.Rating, len(scope))
		for i, r := range scope {
			copied[i] = cloneRating(r)
		}
		c.scopes[sk] = copied
	}
	for k, loc := range l.byKey {
		c.byKey[k] = loc
	}
	return c
}

func (l *Library) rescore(sk scopeKey) error {
	set, err := l.catalog.Set(sk.itemType)
	if err != nil {
		return err
	}
	category, err := set.ByID(sk.category)
	if err != nil {
		return err
	}
	scope := l.scopes[sk]
	for i := range scope {
		score, err := rank.ScoreFor(category, i, len(scope))
		if err != nil {
			return err
		}
		scope[i].Position = i
		scope[i].PersonalScore = score
	}
	return nil
}

func (l *Library) reindex(sk scopeKey) {
	for i, r := range l.scopes[sk] {
		l.byKey[r.Key()] = locator{scope: sk, index: i}
	}
}

// recomputeAlbumRank rebuilds RankWithinAlbum for every rated track of the
// album. Ranks follow descending personal score, which matches the global
// preference order because projection is strictly order preserving; an album
// needs two rated tracks before ranks appear.
func (l *Library) recomputeAlbumRank(albumID string) {
	if albumID == "" {
		return
	}
	var locs []locator
	for sk, scope := range l.scopes {
		if sk.itemType != rank.ItemTypeTrack {
			continue
		}
		for i, r := range scope {
			if r.AlbumID == albumID {
				locs = append(locs, locator{scope: sk, index: i})
			}
		}
	}

	if len(locs) < 2 {
		for _, loc := range locs {
			l.scopes[loc.scope][loc.index].RankWithinAlbum = nil
		}
		return
	}

	sort.Slice(locs, func(i, j int) bool {
		a := l.scopes[locs[i].scope][locs[i].index]
		b := l.scopes[locs[j].scope][locs[j].index]
		if a.PersonalScore != b.PersonalScore {
			return a.PersonalScore > b.PersonalScore
		}
		return a.ItemID < b.ItemID
	})
	for i, loc := range locs {
		r := i
		l.scopes[loc.scope][loc.index].RankWithinAlbum = &r
	}
}

func cloneRating(r rank.Rating) rank.Rating {
	if r.RankWithinAlbum != nil {
		v := *r.RankWithinAlbum
		r.RankWithinAlbum = &v
	}
	return r
}
