package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestListRatings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT item_id, album_id, category_id, position, personal_score
		FROM ratings
		WHERE user_id = $1 AND item_type = $2
		ORDER BY category_id ASC, position ASC
	`)).
		WithArgs(int64(9), "track").
		WillReturnRows(sqlmock.NewRows([]string{
			"item_id", "album_id", "category_id", "position", "personal_score",
		}).
			AddRow("t3", nil, "fine", 0, 7.0).
			AddRow("t1", "alb-1", "loved", 0, 10.0).
			AddRow("t2", nil, "loved", 1, 8.5))

	ratings, err := s.ListRatings(context.Background(), 9, "track")
	if err != nil {
		t.Fatalf("ListRatings: %v", err)
	}

	if len(ratings) != 3 {
		t.Fatalf("expected 3 ratings, got %d", len(ratings))
	}
	if ratings[0].ItemID != "t3" || ratings[0].AlbumID != "" || ratings[0].ItemType != "track" {
		t.Fatalf("unexpected first rating: %#v", ratings[0])
	}
	if ratings[1].AlbumID != "alb-1" || ratings[1].PersonalScore != 10.0 {
		t.Fatalf("unexpected second rating: %#v", ratings[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceScopes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db, 0)

	deleteScope := regexp.QuoteMeta(`
			DELETE FROM ratings
			WHERE user_id = $1 AND item_type = $2 AND category_id = $3
		`)
	insertRating := regexp.QuoteMeta(`
				INSERT INTO ratings (user_id, item_type, item_id, album_id, category_id, position, personal_score, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			`)

	// Both scopes are cleared before any row is written back; t2 is moving
	// from fine to loved and its old row must be gone before the insert.
	mock.ExpectBegin()
	mock.ExpectExec(deleteScope).
		WithArgs(int64(9), "track", "loved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteScope).
		WithArgs(int64(9), "track", "fine").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertRating).
		WithArgs(int64(9), "track", "t1", "alb-1", "loved", 0, 10.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertRating).
		WithArgs(int64(9), "track", "t2", nil, "loved", 1, 8.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.ReplaceScopes(context.Background(), 9, "track", []Scope{
		{
			CategoryID: "loved",
			Ratings: []Rating{
				{ItemID: "t1", ItemType: "track", AlbumID: "alb-1", CategoryID: "loved", Position: 0, PersonalScore: 10.0},
				{ItemID: "t2", ItemType: "track", CategoryID: "loved", Position: 1, PersonalScore: 8.5},
			},
		},
		// The emptied scope is still written: its rows are cleared.
		{CategoryID: "fine"},
	})
	if err != nil {
		t.Fatalf("ReplaceScopes: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceScopesRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db, 0)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`
			DELETE FROM ratings
			WHERE user_id = $1 AND item_type = $2 AND category_id = $3
		`)).
		WithArgs(int64(9), "track", "loved").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`
				INSERT INTO ratings (user_id, item_type, item_id, album_id, category_id, position, personal_score, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			`)).
		WithArgs(int64(9), "track", "t1", nil, "loved", 0, 10.0).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = s.ReplaceScopes(context.Background(), 9, "track", []Scope{
		{
			CategoryID: "loved",
			Ratings: []Rating{
				{ItemID: "t1", ItemType: "track", CategoryID: "loved", Position: 0, PersonalScore: 10.0},
			},
		},
	})
	if err == nil {
		t.Fatal("expected error when an insert fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
