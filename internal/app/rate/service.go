// Package rate coordinates the comparison-driven rating workflows. It keeps
// one in-memory library per signed-in user, drives at most one rating flow
// per user at a time, and writes whole category scopes back to the store
// when a flow or edit commits.
package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"prestige/internal/library"
	"prestige/internal/logging"
	"prestige/internal/musicapi"
	"prestige/internal/rank"
	"prestige/internal/store"
)

var (
	// ErrFlowActive signals a second flow or a conflicting edit while a
	// rating flow is in progress.
	ErrFlowActive = errors.New("a rating flow is already in progress")
	// ErrNoFlow signals a flow operation with no flow in progress.
	ErrNoFlow = errors.New("no rating flow in progress")
	// ErrMetadataUnavailable signals the music catalog could not be reached.
	ErrMetadataUnavailable = errors.New("music catalog unavailable")
	// ErrSaveFailed signals the placement could not be persisted; the flow
	// stays in saving and the save can be retried.
	ErrSaveFailed = errors.New("saving ratings failed")
)

// Store defines the persistence hooks for rating workflows.
type Store interface {
	UserForToken(ctx context.Context, token string) (int64, error)
	ListRatings(ctx context.Context, userID int64, itemType string) ([]store.Rating, error)
	ReplaceScopes(ctx context.Context, userID int64, itemType string, scopes []store.Scope) error
}

// Metadata resolves catalog items for display.
type Metadata interface {
	Item(ctx context.Context, key rank.ItemKey) (musicapi.Item, error)
	Items(ctx context.Context, keys []rank.ItemKey) ([]musicapi.Item, error)
}

// RatedItem joins a rating with its catalog metadata. Item is nil when the
// catalog lookup failed; the rating itself is always complete.
type RatedItem struct {
	rank.Rating
	Item *musicapi.Item `json:"item,omitempty"`
}

// ProbeView is one pairwise question with both sides resolved for display.
type ProbeView struct {
	NewItem   musicapi.Item `json:"newItem"`
	Candidate musicapi.Item `json:"candidate"`
}

// FlowStatus is the client-facing snapshot of the active rating flow.
type FlowStatus struct {
	State     rank.FlowState  `json:"state"`
	Item      musicapi.Item   `json:"item"`
	Category  *rank.Category  `json:"category,omitempty"`
	Probe     *ProbeView      `json:"probe,omitempty"`
	Progress  *rank.Progress  `json:"progress,omitempty"`
	Placement *rank.Placement `json:"placement,omitempty"`
}

// Result is the outcome of a saved flow.
type Result struct {
	Rating      rank.Rating `json:"rating"`
	Comparisons int         `json:"comparisons"`
	PlacedFirst bool        `json:"placedFirst"`
}

// session is the in-memory state for one signed-in user. Operations on a
// session serialize on its mutex; the rating flow and the library never
// change concurrently.
type session struct {
	mu          sync.Mutex
	library     *library.Library
	flow        *rank.Flow
	flowAlbumID string
	meta        map[rank.ItemKey]musicapi.Item
}

// Service owns the per-user sessions and runs the rating workflows.
type Service struct {
	store    Store
	metadata Metadata
	catalog  *rank.Catalog

	mu       sync.Mutex
	sessions map[int64]*session
}

// New wires a Service backed by the given store and metadata client.
func New(st Store, metadata Metadata, catalog *rank.Catalog) *Service {
	return &Service{
		store:    st,
		metadata: metadata,
		catalog:  catalog,
		sessions: make(map[int64]*session),
	}
}

// Categories returns the configured bands for an item type, best first. An
// empty type returns the bands of every enabled type.
func (s *Service) Categories(ctx context.Context, rawType string) ([]rank.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rawType == "" {
		var out []rank.Category
		for _, t := range s.catalog.Enabled() {
			set, err := s.catalog.Set(t)
			if err != nil {
				return nil, err
			}
			out = append(out, set.Categories()...)
		}
		return out, nil
	}

	t, err := rank.ParseItemType(rawType)
	if err != nil {
		return nil, err
	}
	set, err := s.catalog.Set(t)
	if err != nil {
		return nil, err
	}
	return set.Categories(), nil
}

// Ratings returns the user's ranked items of one type, grouped by category
// best first. Metadata is attached where the catalog can supply it.
func (s *Service) Ratings(ctx context.Context, token, rawType string) ([]RatedItem, error) {
	t, err := rank.ParseItemType(rawType)
	if err != nil {
		return nil, err
	}
	ctx, _, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ratings, err := sess.library.All(t)
	if err != nil {
		return nil, err
	}
	return s.ratedItems(ctx, sess, ratings), nil
}

// AlbumRanking returns the user's rated tracks of one album in preference
// order.
func (s *Service) AlbumRanking(ctx context.Context, token, albumID string) ([]RatedItem, error) {
	ctx, _, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return s.ratedItems(ctx, sess, sess.library.AlbumRanking(albumID)), nil
}

// StartRating opens a rating flow for one item. The item must resolve in the
// music catalog; an already rated item starts a re-rank that keeps its old
// rating until the new placement is saved.
func (s *Service) StartRating(ctx context.Context, token, rawType, itemID string) (*FlowStatus, error) {
	t, err := rank.ParseItemType(rawType)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.Set(t); err != nil {
		return nil, err
	}
	ctx, _, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.flow != nil {
		return nil, ErrFlowActive
	}

	key := rank.ItemKey{ID: itemID, Type: t}
	item, err := s.itemMeta(ctx, sess, key)
	if err != nil {
		return nil, err
	}

	var prior *rank.Rating
	if existing, ok := sess.library.Get(key); ok {
		prior = &existing
	}

	sess.flow = rank.NewFlow(key, prior)
	sess.flowAlbumID = item.AlbumID
	return s.flowStatus(ctx, sess)
}

// ChooseCategory fixes the band for the active flow and starts comparing
// against that band's ranked items.
func (s *Service) ChooseCategory(ctx context.Context, token, categoryID string) (*FlowStatus, error) {
	ctx, _, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.flow == nil {
		return nil, ErrNoFlow
	}

	key := sess.flow.Item()
	set, err := s.catalog.Set(key.Type)
	if err != nil {
		return nil, err
	}
	category, err := set.ByID(categoryID)
	if err != nil {
		return nil, err
	}

	// The item under placement never competes against itself, so a re-rank
	// into its current category compares against everyone else.
	var scope []rank.ItemKey
	for _, k := range sess.library.Keys(key.Type, categoryID) {
		if k != key {
			scope = append(scope, k)
		}
	}

	if err := sess.flow.ChooseCategory(category, scope); err != nil {
		return nil, err
	}
	s.prefetchMeta(ctx, sess, scope)
	return s.flowStatus(ctx, sess)
}

// RecordWinner applies one pairwise judgment to the active flow.
func (s *Service) RecordWinner(ctx context.Context, token, rawWinner string) (*FlowStatus, error) {
	winner, err := rank.ParseWinner(rawWinner)
	if err != nil {
		return nil, err
	}
	ctx, _, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.flow == nil {
		return nil, ErrNoFlow
	}
	if err := sess.flow.RecordWinner(winner); err != nil {
		return nil, err
	}
	return s.flowStatus(ctx, sess)
}

// Status reports the active flow.
func (s *Service) Status(ctx context.Context, token string) (*FlowStatus, error) {
	ctx, _, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.flow == nil {
		return nil, ErrNoFlow
	}
	return s.flowStatus(ctx, sess)
}

// Finalize applies the converged placement to the library and persists the
// touched scopes. On a persistence failure the flow stays in saving and
// nothing in the library changes, so the save can simply be retried.
func (s *Service) Finalize(ctx context.Context, token string) (*Result, error) {
	ctx, userID, sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.flow == nil {
		return nil, ErrNoFlow
	}
	placement, err := sess.flow.Placement()
	if err != nil {
		return nil, err
	}

	key := sess.flow.Item()
	prior := sess.flow.Prior()

	edited := sess.library.Clone()
	if prior != nil {
		err = edited.Move(key, placement.CategoryID, placement.Position)
	} else {
		err = edited.Insert(key, sess.flowAlbumID, placement.CategoryID, placement.Position)
	}
	if err != nil {
		return nil, err
	}

	touched := []string{placement.CategoryID}
	if prior != nil && prior.CategoryID != placement.CategoryID {
		touched = append(touched, prior.CategoryID)
	}
	if err := s.persistScopes(ctx, userID, key.Type, edited, touched); err != nil {
		return nil, err
	}

	sess.library = edited
	if err := sess.flow.Complete(); err != nil {
		return nil, err
	}
	sess.flow = nil
	sess.flowAlbumID = ""

	saved, _ := sess.library.Get(key)
	saved.IsNew = true
	return &Result{
		Rating:      saved,
		Comparisons: placement.Comparisons,
		PlacedFirst: placement.PlacedFirst,
	}, nil
}

// Cancel abandons the active flow, if any. Cancelling changes nothing in the
// library and is safe to repeat.
func (s *Service) Cancel(ctx context.Context, token string) error {
	_, _, sess, err := s.session(ctx, token)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.flow = nil
	sess.flowAlbumID = ""
	return nil
}

// DeleteRating removes one rated item; lower items close the gap. Deletes
// are rejected while a flow is active so the flow's comparison scope stays
// accurate until it resolves.
func (s *Service) DeleteRating(ctx context.Context, token, rawType, itemID string) error {
	t, err := rank.ParseItemType(rawType)
	if err != nil {
		return err
	}
	ctx, userID, sess, err := s.session(ctx, token)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.flow != nil {
		return ErrFlowActive
	}

	key := rank.ItemKey{ID: itemID, Type: t}
	current, ok := sess.library.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s %q", rank.ErrNotRated, t, itemID)
	}

	edited := sess.library.Clone()
	if err := edited.Remove(key); err != nil {
		return err
	}
	if err := s.persistScopes(ctx, userID, t, edited, []string{current.CategoryID}); err != nil {
		return err
	}
	sess.library = edited
	return nil
}

// EndSession drops the user's in-memory state, typically on logout.
func (s *Service) EndSession(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// session resolves the token to its user and in-memory state. The returned
// context carries the user id so downstream logs can be attributed.
func (s *Service) session(ctx context.Context, token string) (context.Context, int64, *session, error) {
	if err := ctx.Err(); err != nil {
		return ctx, 0, nil, err
	}
	userID, err := s.store.UserForToken(ctx, token)
	if err != nil {
		return ctx, 0, nil, err
	}
	ctx = context.WithValue(ctx, logging.UserIDKey, userID)

	s.mu.Lock()
	if sess, ok := s.sessions[userID]; ok {
		s.mu.Unlock()
		return ctx, userID, sess, nil
	}
	s.mu.Unlock()

	lib, err := s.loadLibrary(ctx, userID)
	if err != nil {
		return ctx, 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		// Lost a hydration race; the first session wins.
		return ctx, userID, sess, nil
	}
	sess := &session{
		library: lib,
		meta:    make(map[rank.ItemKey]musicapi.Item),
	}
	s.sessions[userID] = sess
	return ctx, userID, sess, nil
}

// loadLibrary rebuilds the user's library from the store. A failed ordering
// check surfaces here; the session is not cached, so the next request reads
// Postgres again.
func (s *Service) loadLibrary(ctx context.Context, userID int64) (*library.Library, error) {
	var all []rank.Rating
	for _, t := range s.catalog.Enabled() {
		rows, err := s.store.ListRatings(ctx, userID, string(t))
		if err != nil {
			return nil, fmt.Errorf("load %s ratings: %w", t, err)
		}
		for _, row := range rows {
			all = append(all, ratingFromRow(row))
		}
	}

	lib := library.New(s.catalog)
	if err := lib.Load(all); err != nil {
		logging.WithContext(ctx).Warn().Err(err).Msg("stored ratings failed validation")
		return nil, err
	}
	return lib, nil
}

func (s *Service) persistScopes(ctx context.Context, userID int64, t rank.ItemType, lib *library.Library, categoryIDs []string) error {
	scopes := make([]store.Scope, 0, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		ordered := lib.Ordered(t, categoryID)
		scope := store.Scope{CategoryID: categoryID, Ratings: make([]store.Rating, 0, len(ordered))}
		for _, r := range ordered {
			scope.Ratings = append(scope.Ratings, rowFromRating(r))
		}
		scopes = append(scopes, scope)
	}

	if err := s.store.ReplaceScopes(ctx, userID, string(t), scopes); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// flowStatus snapshots the active flow for the client. In comparing state the
// probe's candidate metadata is required; a failed lookup reports the error
// and leaves the flow exactly where it was.
func (s *Service) flowStatus(ctx context.Context, sess *session) (*FlowStatus, error) {
	flow := sess.flow
	status := &FlowStatus{
		State: flow.State(),
		Item:  sess.meta[flow.Item()],
	}
	if category, err := flow.Category(); err == nil {
		c := category
		status.Category = &c
	}
	if progress, err := flow.Progress(); err == nil {
		p := progress
		status.Progress = &p
	}

	switch flow.State() {
	case rank.StateComparing:
		probe, err := flow.Probe()
		if err != nil {
			return nil, err
		}
		candidate, err := s.itemMeta(ctx, sess, probe.Candidate)
		if err != nil {
			return nil, err
		}
		status.Probe = &ProbeView{NewItem: status.Item, Candidate: candidate}
	case rank.StateSaving:
		placement, err := flow.Placement()
		if err != nil {
			return nil, err
		}
		status.Placement = &placement
	}
	return status, nil
}

// itemMeta returns cached metadata for key, fetching on a miss. The caller
// treats the lookup as required.
func (s *Service) itemMeta(ctx context.Context, sess *session, key rank.ItemKey) (musicapi.Item, error) {
	if item, ok := sess.meta[key]; ok {
		return item, nil
	}
	item, err := s.metadata.Item(ctx, key)
	if err != nil {
		if errors.Is(err, musicapi.ErrItemNotFound) || errors.Is(err, musicapi.ErrNoProvider) {
			return musicapi.Item{}, err
		}
		return musicapi.Item{}, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	sess.meta[key] = item
	return item, nil
}

// prefetchMeta warms the metadata cache for keys in one batch call. Failures
// are logged and tolerated; ratings render without metadata.
func (s *Service) prefetchMeta(ctx context.Context, sess *session, keys []rank.ItemKey) {
	var missing []rank.ItemKey
	for _, k := range keys {
		if _, ok := sess.meta[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return
	}
	items, err := s.metadata.Items(ctx, missing)
	if err != nil {
		logging.WithContext(ctx).Warn().Err(err).Int("items", len(missing)).Msg("metadata prefetch failed")
		return
	}
	for _, item := range items {
		sess.meta[rank.ItemKey{ID: item.ID, Type: item.Type}] = item
	}
}

func (s *Service) ratedItems(ctx context.Context, sess *session, ratings []rank.Rating) []RatedItem {
	keys := make([]rank.ItemKey, 0, len(ratings))
	for _, r := range ratings {
		keys = append(keys, r.Key())
	}
	s.prefetchMeta(ctx, sess, keys)

	out := make([]RatedItem, 0, len(ratings))
	for _, r := range ratings {
		view := RatedItem{Rating: r}
		if item, ok := sess.meta[r.Key()]; ok {
			it := item
			view.Item = &it
		}
		out = append(out, view)
	}
	return out
}

func ratingFromRow(row store.Rating) rank.Rating {
	return rank.Rating{
		ItemID:        row.ItemID,
		ItemType:      rank.ItemType(row.ItemType),
		AlbumID:       row.AlbumID,
		CategoryID:    row.CategoryID,
		Position:      row.Position,
		PersonalScore: row.PersonalScore,
	}
}

func rowFromRating(r rank.Rating) store.Rating {
	return store.Rating{
		ItemID:        r.ItemID,
		ItemType:      string(r.ItemType),
		AlbumID:       r.AlbumID,
		CategoryID:    r.CategoryID,
		Position:      r.Position,
		PersonalScore: r.PersonalScore,
	}
}
