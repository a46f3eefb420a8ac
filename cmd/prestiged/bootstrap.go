package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prestige/internal/rank"
	"prestige/internal/store"
)

func bootstrapDefaults(ctx context.Context, db *sql.DB, dataStore *store.Store) error {
	if err := ensureDefaultCategories(ctx, db); err != nil {
		return err
	}
	if err := ensureDemoUser(ctx, dataStore); err != nil {
		return err
	}
	return nil
}

// ensureDefaultCategories seeds the standard three-band layout for every item
// type. Existing rows win, so operators can reshape bands without the seed
// undoing their changes.
func ensureDefaultCategories(ctx context.Context, db *sql.DB) error {
	exists, err := tableExists(ctx, db, "categories")
	if err != nil {
		return fmt.Errorf("check categories table: %w", err)
	}
	if !exists {
		return nil
	}

	type seedBand struct {
		ID    string
		Name  string
		Min   float64
		Max   float64
		Order int
	}
	bands := []seedBand{
		{ID: "loved", Name: "Loved it", Min: 7, Max: 10, Order: 0},
		{ID: "fine", Name: "It was fine", Min: 4, Max: 7, Order: 1},
		{ID: "disliked", Name: "Not for me", Min: 0, Max: 4, Order: 2},
	}

	for _, itemType := range []rank.ItemType{rank.ItemTypeTrack, rank.ItemTypeAlbum, rank.ItemTypeArtist} {
		for _, band := range bands {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO categories (id, item_type, name, min_score, max_score, display_order)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (item_type, id) DO NOTHING
			`, band.ID, string(itemType), band.Name, band.Min, band.Max, band.Order); err != nil {
				return fmt.Errorf("seed category %s/%s: %w", itemType, band.ID, err)
			}
		}
	}
	return nil
}

func ensureDemoUser(ctx context.Context, dataStore *store.Store) error {
	if _, err := dataStore.CreateUser(ctx, "demo", "demo123"); err != nil && !errors.Is(err, store.ErrUserExists) {
		return fmt.Errorf("bootstrap demo user: %w", err)
	}
	return nil
}

// loadCatalog builds the category catalog from the stored configuration. A
// type with broken bands stays disabled inside the catalog; only a completely
// unusable configuration stops startup.
func loadCatalog(ctx context.Context, dataStore *store.Store) (*rank.Catalog, error) {
	rows, err := dataStore.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories := make([]rank.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, rank.Category{
			ID:           row.ID,
			ItemType:     rank.ItemType(row.ItemType),
			Name:         row.Name,
			MinScore:     row.MinScore,
			MaxScore:     row.MaxScore,
			DisplayOrder: row.DisplayOrder,
		})
	}

	catalog := rank.NewCatalog(categories)
	if len(catalog.Enabled()) == 0 {
		return nil, errors.New("no item type has a usable category configuration")
	}
	return catalog, nil
}

type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryRower, table string) (bool, error) {
	var name sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT to_regclass($1)`, table).Scan(&name); err != nil {
		return false, err
	}
	return name.Valid, nil
}
