package rate

import (
	"context"
	"errors"
	"testing"

	"prestige/internal/musicapi"
	"prestige/internal/rank"
	"prestige/internal/store"
)

type replaceCall struct {
	userID   int64
	itemType string
	scopes   []store.Scope
}

type fakeStore struct {
	users       map[string]int64
	ratings     []store.Rating
	replaced    []replaceCall
	failReplace bool
}

func (f *fakeStore) UserForToken(ctx context.Context, token string) (int64, error) {
	if id, ok := f.users[token]; ok {
		return id, nil
	}
	return 0, store.ErrUnauthorized
}

func (f *fakeStore) ListRatings(ctx context.Context, userID int64, itemType string) ([]store.Rating, error) {
	var out []store.Rating
	for _, r := range f.ratings {
		if r.ItemType == itemType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceScopes(ctx context.Context, userID int64, itemType string, scopes []store.Scope) error {
	if f.failReplace {
		return errors.New("db down")
	}
	f.replaced = append(f.replaced, replaceCall{userID: userID, itemType: itemType, scopes: scopes})
	return nil
}

type fakeMetadata struct {
	items map[rank.ItemKey]musicapi.Item
	err   error
}

func (f *fakeMetadata) Item(ctx context.Context, key rank.ItemKey) (musicapi.Item, error) {
	if f.err != nil {
		return musicapi.Item{}, f.err
	}
	item, ok := f.items[key]
	if !ok {
		return musicapi.Item{}, musicapi.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeMetadata) Items(ctx context.Context, keys []rank.ItemKey) ([]musicapi.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []musicapi.Item
	for _, k := range keys {
		if item, ok := f.items[k]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func testCatalog() *rank.Catalog {
	var categories []rank.Category
	for _, it := range []rank.ItemType{rank.ItemTypeTrack, rank.ItemTypeAlbum} {
		categories = append(categories,
			rank.Category{ID: "loved", ItemType: it, Name: "Loved it", MinScore: 7, MaxScore: 10, DisplayOrder: 0},
			rank.Category{ID: "fine", ItemType: it, Name: "It was fine", MinScore: 4, MaxScore: 7, DisplayOrder: 1},
			rank.Category{ID: "disliked", ItemType: it, Name: "Not for me", MinScore: 0, MaxScore: 4, DisplayOrder: 2},
		)
	}
	return rank.NewCatalog(categories)
}

func trackItem(id string) musicapi.Item {
	return musicapi.Item{ID: id, Type: rank.ItemTypeTrack, Name: "Track " + id, Provider: musicapi.ProviderSpotify}
}

func storedTrack(id, albumID, categoryID string, position int) store.Rating {
	return store.Rating{
		ItemID:     id,
		ItemType:   "track",
		AlbumID:    albumID,
		CategoryID: categoryID,
		Position:   position,
	}
}

func newTestService(st *fakeStore, md *fakeMetadata) *Service {
	if st.users == nil {
		st.users = map[string]int64{"token": 1}
	}
	if md.items == nil {
		md.items = make(map[rank.ItemKey]musicapi.Item)
	}
	return New(st, md, testCatalog())
}

func metadataFor(ids ...string) *fakeMetadata {
	md := &fakeMetadata{items: make(map[rank.ItemKey]musicapi.Item)}
	for _, id := range ids {
		md.items[rank.ItemKey{ID: id, Type: rank.ItemTypeTrack}] = trackItem(id)
	}
	return md
}

func TestRatingFlowPlacesFourthTrack(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{ratings: []store.Rating{
		storedTrack("A", "", "loved", 0),
		storedTrack("B", "", "loved", 1),
		storedTrack("C", "", "loved", 2),
	}}
	svc := newTestService(st, metadataFor("A", "B", "C", "D"))

	status, err := svc.StartRating(ctx, "token", "track", "D")
	if err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	if status.State != rank.StateSelectingCategory {
		t.Fatalf("state = %s, want selecting_category", status.State)
	}
	if status.Item.Name != "Track D" {
		t.Fatalf("item = %#v, want metadata for D", status.Item)
	}

	status, err = svc.ChooseCategory(ctx, "token", "loved")
	if err != nil {
		t.Fatalf("ChooseCategory: %v", err)
	}
	if status.State != rank.StateComparing {
		t.Fatalf("state = %s, want comparing", status.State)
	}
	if status.Probe == nil || status.Probe.Candidate.ID != "B" {
		t.Fatalf("first probe = %#v, want candidate B", status.Probe)
	}
	if status.Progress == nil || status.Progress.Total != 2 || status.Progress.Comparisons != 0 {
		t.Fatalf("progress = %#v, want 0 of 2", status.Progress)
	}

	// D beats B, loses to A: it lands between them.
	status, err = svc.RecordWinner(ctx, "token", "new")
	if err != nil {
		t.Fatalf("RecordWinner: %v", err)
	}
	if status.Probe == nil || status.Probe.Candidate.ID != "A" {
		t.Fatalf("second probe = %#v, want candidate A", status.Probe)
	}

	status, err = svc.RecordWinner(ctx, "token", "candidate")
	if err != nil {
		t.Fatalf("RecordWinner: %v", err)
	}
	if status.State != rank.StateSaving {
		t.Fatalf("state = %s, want saving", status.State)
	}
	if status.Placement == nil || status.Placement.Position != 1 || status.Placement.Comparisons != 2 {
		t.Fatalf("placement = %#v, want position 1 after 2 comparisons", status.Placement)
	}

	result, err := svc.Finalize(ctx, "token")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.Rating.ItemID != "D" || result.Rating.Position != 1 || !result.Rating.IsNew {
		t.Fatalf("unexpected result rating: %#v", result.Rating)
	}
	if result.Comparisons != 2 || result.PlacedFirst {
		t.Fatalf("unexpected result: %#v", result)
	}

	if len(st.replaced) != 1 {
		t.Fatalf("expected 1 persistence call, got %d", len(st.replaced))
	}
	call := st.replaced[0]
	if call.userID != 1 || call.itemType != "track" || len(call.scopes) != 1 {
		t.Fatalf("unexpected persistence call: %#v", call)
	}
	wantOrder := []string{"A", "D", "B", "C"}
	wantScores := []float64{10, 9.25, 8.5, 7.75}
	rows := call.scopes[0].Ratings
	if len(rows) != 4 {
		t.Fatalf("persisted %d rows, want 4", len(rows))
	}
	for i, row := range rows {
		if row.ItemID != wantOrder[i] || row.Position != i || row.PersonalScore != wantScores[i] {
			t.Errorf("row %d = %#v, want %s at %d scoring %v", i, row, wantOrder[i], i, wantScores[i])
		}
	}

	if _, err := svc.Status(ctx, "token"); !errors.Is(err, ErrNoFlow) {
		t.Fatalf("Status after finalize error = %v, want ErrNoFlow", err)
	}

	rated, err := svc.Ratings(ctx, "token", "track")
	if err != nil {
		t.Fatalf("Ratings: %v", err)
	}
	if len(rated) != 4 || rated[1].ItemID != "D" {
		t.Fatalf("unexpected ratings after save: %#v", rated)
	}
	if rated[1].Item == nil || rated[1].Item.Name != "Track D" {
		t.Errorf("metadata missing on new rating: %#v", rated[1].Item)
	}
}

func TestRatingFlowFirstItemSkipsComparisons(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeStore{}, metadataFor("D"))

	if _, err := svc.StartRating(ctx, "token", "track", "D"); err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	status, err := svc.ChooseCategory(ctx, "token", "loved")
	if err != nil {
		t.Fatalf("ChooseCategory: %v", err)
	}
	if status.State != rank.StateSaving {
		t.Fatalf("state = %s, want saving with an empty scope", status.State)
	}
	if status.Placement == nil || status.Placement.Position != 0 || !status.Placement.PlacedFirst {
		t.Fatalf("placement = %#v, want first place", status.Placement)
	}

	result, err := svc.Finalize(ctx, "token")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.Comparisons != 0 || !result.PlacedFirst || result.Rating.PersonalScore != 10 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestFinalizeRetriesAfterSaveFailure(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{failReplace: true}
	svc := newTestService(st, metadataFor("D"))

	if _, err := svc.StartRating(ctx, "token", "track", "D"); err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	if _, err := svc.ChooseCategory(ctx, "token", "loved"); err != nil {
		t.Fatalf("ChooseCategory: %v", err)
	}

	if _, err := svc.Finalize(ctx, "token"); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("Finalize error = %v, want ErrSaveFailed", err)
	}

	// The flow survives the failure with its placement intact.
	status, err := svc.Status(ctx, "token")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != rank.StateSaving || status.Placement == nil {
		t.Fatalf("status after failed save = %#v, want saving with placement", status)
	}
	rated, err := svc.Ratings(ctx, "token", "track")
	if err != nil {
		t.Fatalf("Ratings: %v", err)
	}
	if len(rated) != 0 {
		t.Fatalf("library changed despite failed save: %#v", rated)
	}

	st.failReplace = false
	if _, err := svc.Finalize(ctx, "token"); err != nil {
		t.Fatalf("Finalize retry: %v", err)
	}
	if len(st.replaced) != 1 {
		t.Fatalf("expected 1 persistence call after retry, got %d", len(st.replaced))
	}
}

func TestStartRatingConflicts(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{ratings: []store.Rating{storedTrack("A", "", "loved", 0)}}
	svc := newTestService(st, metadataFor("A", "D"))

	if _, err := svc.StartRating(ctx, "token", "track", "D"); err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	if _, err := svc.StartRating(ctx, "token", "track", "A"); !errors.Is(err, ErrFlowActive) {
		t.Fatalf("second StartRating error = %v, want ErrFlowActive", err)
	}
	if err := svc.DeleteRating(ctx, "token", "track", "A"); !errors.Is(err, ErrFlowActive) {
		t.Fatalf("DeleteRating during flow error = %v, want ErrFlowActive", err)
	}
}

func TestStartRatingRequiresMetadata(t *testing.T) {
	ctx := context.Background()
	md := metadataFor()
	svc := newTestService(&fakeStore{}, md)

	if _, err := svc.StartRating(ctx, "token", "track", "ghost"); !errors.Is(err, musicapi.ErrItemNotFound) {
		t.Fatalf("StartRating error = %v, want ErrItemNotFound", err)
	}
	if _, err := svc.Status(ctx, "token"); !errors.Is(err, ErrNoFlow) {
		t.Fatalf("a failed start left a flow behind: %v", err)
	}

	md.err = errors.New("spotify 500")
	if _, err := svc.StartRating(ctx, "token", "track", "D"); !errors.Is(err, ErrMetadataUnavailable) {
		t.Fatalf("StartRating error = %v, want ErrMetadataUnavailable", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeStore{}, metadataFor("D"))

	if err := svc.Cancel(ctx, "token"); err != nil {
		t.Fatalf("Cancel with no flow: %v", err)
	}

	if _, err := svc.StartRating(ctx, "token", "track", "D"); err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	if err := svc.Cancel(ctx, "token"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Status(ctx, "token"); !errors.Is(err, ErrNoFlow) {
		t.Fatalf("Status after cancel error = %v, want ErrNoFlow", err)
	}
	if err := svc.Cancel(ctx, "token"); err != nil {
		t.Fatalf("repeated Cancel: %v", err)
	}
}

func TestFlowInputValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeStore{}, metadataFor("D"))

	if _, err := svc.RecordWinner(ctx, "token", "new"); !errors.Is(err, ErrNoFlow) {
		t.Fatalf("RecordWinner without flow error = %v, want ErrNoFlow", err)
	}
	if _, err := svc.ChooseCategory(ctx, "token", "loved"); !errors.Is(err, ErrNoFlow) {
		t.Fatalf("ChooseCategory without flow error = %v, want ErrNoFlow", err)
	}

	if _, err := svc.StartRating(ctx, "token", "track", "D"); err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	if _, err := svc.RecordWinner(ctx, "token", "both"); !errors.Is(err, rank.ErrInvalidWinner) {
		t.Fatalf("RecordWinner error = %v, want ErrInvalidWinner", err)
	}
	if _, err := svc.RecordWinner(ctx, "token", "new"); !errors.Is(err, rank.ErrFlowState) {
		t.Fatalf("RecordWinner before category error = %v, want ErrFlowState", err)
	}
	if _, err := svc.ChooseCategory(ctx, "token", "stellar"); !errors.Is(err, rank.ErrUnknownCategory) {
		t.Fatalf("ChooseCategory error = %v, want ErrUnknownCategory", err)
	}
	if _, err := svc.Finalize(ctx, "token"); !errors.Is(err, rank.ErrFlowState) {
		t.Fatalf("Finalize before convergence error = %v, want ErrFlowState", err)
	}
}

func TestRerankMovesBetweenCategories(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{ratings: []store.Rating{
		storedTrack("A", "", "loved", 0),
		storedTrack("B", "", "loved", 1),
		storedTrack("C", "", "fine", 0),
	}}
	svc := newTestService(st, metadataFor("A", "B", "C"))

	if _, err := svc.StartRating(ctx, "token", "track", "B"); err != nil {
		t.Fatalf("StartRating: %v", err)
	}
	status, err := svc.ChooseCategory(ctx, "token", "fine")
	if err != nil {
		t.Fatalf("ChooseCategory: %v", err)
	}
	if status.Probe == nil || status.Probe.Candidate.ID != "C" {
		t.Fatalf("probe = %#v, want candidate C", status.Probe)
	}
	if _, err := svc.RecordWinner(ctx, "token", "new"); err != nil {
		t.Fatalf("RecordWinner: %v", err)
	}
	if _, err := svc.Finalize(ctx, "token"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if len(st.replaced) != 1 {
		t.Fatalf("expected 1 persistence call, got %d", len(st.replaced))
	}
	scopes := st.replaced[0].scopes
	if len(scopes) != 2 {
		t.Fatalf("expected target and origin scopes, got %d", len(scopes))
	}
	byCategory := map[string][]store.Rating{}
	for _, s := range scopes {
		byCategory[s.CategoryID] = s.Ratings
	}
	fine := byCategory["fine"]
	if len(fine) != 2 || fine[0].ItemID != "B" || fine[0].PersonalScore != 7 || fine[1].ItemID != "C" || fine[1].PersonalScore != 5.5 {
		t.Fatalf("unexpected fine scope: %#v", fine)
	}
	loved := byCategory["loved"]
	if len(loved) != 1 || loved[0].ItemID != "A" || loved[0].PersonalScore != 10 {
		t.Fatalf("unexpected loved scope: %#v", loved)
	}

	rated, err := svc.Ratings(ctx, "token", "track")
	if err != nil {
		t.Fatalf("Ratings: %v", err)
	}
	gotOrder := []string{rated[0].ItemID, rated[1].ItemID, rated[2].ItemID}
	if gotOrder[0] != "A" || gotOrder[1] != "B" || gotOrder[2] != "C" {
		t.Fatalf("ratings order = %v, want A B C", gotOrder)
	}
}

func TestDeleteRatingShiftsScope(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{ratings: []store.Rating{
		storedTrack("A", "", "loved", 0),
		storedTrack("B", "", "loved", 1),
		storedTrack("C", "", "loved", 2),
	}}
	svc := newTestService(st, metadataFor("A", "B", "C"))

	if err := svc.DeleteRating(ctx, "token", "track", "B"); err != nil {
		t.Fatalf("DeleteRating: %v", err)
	}

	if len(st.replaced) != 1 {
		t.Fatalf("expected 1 persistence call, got %d", len(st.replaced))
	}
	rows := st.replaced[0].scopes[0].Ratings
	if len(rows) != 2 || rows[0].ItemID != "A" || rows[1].ItemID != "C" || rows[1].Position != 1 || rows[1].PersonalScore != 8.5 {
		t.Fatalf("unexpected persisted scope: %#v", rows)
	}

	if err := svc.DeleteRating(ctx, "token", "track", "Z"); !errors.Is(err, rank.ErrNotRated) {
		t.Fatalf("DeleteRating unknown error = %v, want ErrNotRated", err)
	}
}

func TestUnauthorizedToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeStore{}, metadataFor("D"))

	if _, err := svc.StartRating(ctx, "bad", "track", "D"); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("StartRating error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Ratings(ctx, "bad", "track"); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("Ratings error = %v, want ErrUnauthorized", err)
	}
}

func TestAlbumRankingView(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{ratings: []store.Rating{
		storedTrack("T1", "alb", "loved", 0),
		storedTrack("T2", "alb", "fine", 0),
	}}
	svc := newTestService(st, metadataFor("T1", "T2"))

	rated, err := svc.AlbumRanking(ctx, "token", "alb")
	if err != nil {
		t.Fatalf("AlbumRanking: %v", err)
	}
	if len(rated) != 2 || rated[0].ItemID != "T1" || rated[1].ItemID != "T2" {
		t.Fatalf("unexpected album ranking: %#v", rated)
	}
	for i, r := range rated {
		if r.RankWithinAlbum == nil || *r.RankWithinAlbum != i {
			t.Errorf("track %q album rank = %v, want %d", r.ItemID, r.RankWithinAlbum, i)
		}
	}
}

func TestCategoriesListing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeStore{}, metadataFor())

	categories, err := svc.Categories(ctx, "track")
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(categories) != 3 || categories[0].ID != "loved" || categories[2].ID != "disliked" {
		t.Fatalf("unexpected track categories: %#v", categories)
	}

	all, err := svc.Categories(ctx, "")
	if err != nil {
		t.Fatalf("Categories all: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 categories across types, got %d", len(all))
	}

	if _, err := svc.Categories(ctx, "movie"); !errors.Is(err, rank.ErrInvalidItemType) {
		t.Fatalf("Categories error = %v, want ErrInvalidItemType", err)
	}
	if _, err := svc.Categories(ctx, "artist"); !errors.Is(err, rank.ErrRatingsUnavailable) {
		t.Fatalf("Categories error = %v, want ErrRatingsUnavailable", err)
	}
}

func TestEndSessionRehydrates(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{ratings: []store.Rating{storedTrack("A", "", "loved", 0)}}
	svc := newTestService(st, metadataFor("A", "B"))

	rated, err := svc.Ratings(ctx, "token", "track")
	if err != nil {
		t.Fatalf("Ratings: %v", err)
	}
	if len(rated) != 1 {
		t.Fatalf("expected 1 rating, got %d", len(rated))
	}

	// New rows appear only after the cached session is dropped.
	st.ratings = append(st.ratings, storedTrack("B", "", "loved", 1))
	rated, _ = svc.Ratings(ctx, "token", "track")
	if len(rated) != 1 {
		t.Fatalf("cached session should not see new rows, got %d", len(rated))
	}

	svc.EndSession(1)
	rated, err = svc.Ratings(ctx, "token", "track")
	if err != nil {
		t.Fatalf("Ratings after EndSession: %v", err)
	}
	if len(rated) != 2 {
		t.Fatalf("expected 2 ratings after rehydration, got %d", len(rated))
	}
}
