package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestListCategories(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, item_type, name, min_score, max_score, display_order
		FROM categories
		ORDER BY item_type ASC, display_order ASC
	`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "item_type", "name", "min_score", "max_score", "display_order",
		}).
			AddRow("loved", "album", "Loved it", 7.0, 10.0, 0).
			AddRow("loved", "track", "Loved it", 7.0, 10.0, 0).
			AddRow("fine", "track", "It was fine", 4.0, 7.0, 1))

	categories, err := s.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}

	if len(categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(categories))
	}
	first := categories[0]
	if first.ID != "loved" || first.ItemType != "album" || first.MaxScore != 10.0 || first.DisplayOrder != 0 {
		t.Fatalf("unexpected first category: %#v", first)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListCategoriesEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, item_type, name, min_score, max_score, display_order
		FROM categories
		ORDER BY item_type ASC, display_order ASC
	`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "item_type", "name", "min_score", "max_score", "display_order",
		}))

	categories, err := s.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != 0 {
		t.Fatalf("expected no categories, got %d", len(categories))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
