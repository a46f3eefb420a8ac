package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Rating is one persisted row of a user's ranked list. AlbumID is empty for
// anything but tracks.
type Rating struct {
	ItemID        string
	ItemType      string
	AlbumID       string
	CategoryID    string
	Position      int
	PersonalScore float64
}

// Scope is the full ordered list of one category, written as a unit.
type Scope struct {
	CategoryID string
	Ratings    []Rating
}

// ListRatings returns all of a user's ratings for one item type, ordered by
// category and position.
func (s *Store) ListRatings(ctx context.Context, userID int64, itemType string) ([]Rating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, album_id, category_id, position, personal_score
		FROM ratings
		WHERE user_id = $1 AND item_type = $2
		ORDER BY category_id ASC, position ASC
	`, userID, itemType)
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	defer rows.Close()

	var ratings []Rating
	for rows.Next() {
		var (
			r       Rating
			albumID sql.NullString
		)
		if err := rows.Scan(&r.ItemID, &albumID, &r.CategoryID, &r.Position, &r.PersonalScore); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		r.ItemType = itemType
		r.AlbumID = albumID.String
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}

	return ratings, nil
}

// ReplaceScopes rewrites whole category scopes for one user and item type in
// a single transaction. Every touched scope is cleared before any row goes
// back in: an item moving between categories must lose its old row before
// its new one is written, or the insert would trip the ratings primary key.
// A rating edit commits the touched scopes either fully or not at all.
func (s *Store) ReplaceScopes(ctx context.Context, userID int64, itemType string, scopes []Scope) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	for _, scope := range scopes {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM ratings
			WHERE user_id = $1 AND item_type = $2 AND category_id = $3
		`, userID, itemType, scope.CategoryID); err != nil {
			return fmt.Errorf("clear scope %s: %w", scope.CategoryID, err)
		}
	}

	for _, scope := range scopes {
		for _, r := range scope.Ratings {
			var albumID any
			if r.AlbumID != "" {
				albumID = r.AlbumID
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ratings (user_id, item_type, item_id, album_id, category_id, position, personal_score, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			`, userID, itemType, r.ItemID, albumID, scope.CategoryID, r.Position, r.PersonalScore); err != nil {
				return fmt.Errorf("insert rating %s: %w", r.ItemID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	tx = nil

	return nil
}
