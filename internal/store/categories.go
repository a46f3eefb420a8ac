package store

import (
	"context"
	"fmt"
)

// Category is one configured rating band as stored, scoped to an item type.
type Category struct {
	ID           string
	ItemType     string
	Name         string
	MinScore     float64
	MaxScore     float64
	DisplayOrder int
}

// ListCategories returns every configured band across all item types,
// grouped by type and ordered best first within each.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_type, name, min_score, max_score, display_order
		FROM categories
		ORDER BY item_type ASC, display_order ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.ItemType, &c.Name, &c.MinScore, &c.MaxScore, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}
