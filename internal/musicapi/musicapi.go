// Package musicapi resolves catalog items against an upstream streaming
// service. The rating engine only ever identifies items by (id, type); this
// package fetches the display metadata those ids stand for.
package musicapi

import (
	"context"
	"errors"

	"prestige/internal/rank"
)

// Provider represents a music streaming service.
type Provider string

const (
	ProviderSpotify    Provider = "spotify"
	ProviderAppleMusic Provider = "apple_music"
)

var (
	// ErrItemNotFound signals the upstream catalog has no such item.
	ErrItemNotFound = errors.New("item not found")
	// ErrNoProvider signals that no music provider is configured.
	ErrNoProvider = errors.New("no music provider configured")
)

// Item is the display metadata for one catalog entry, shared across item
// types. AlbumID and AlbumName are only set for tracks.
type Item struct {
	ID        string        `json:"id"`
	Type      rank.ItemType `json:"type"`
	Name      string        `json:"name"`
	Artists   []string      `json:"artists,omitempty"`
	AlbumID   string        `json:"albumId,omitempty"`
	AlbumName string        `json:"albumName,omitempty"`
	ImageURL  string        `json:"imageUrl,omitempty"`
	Provider  Provider      `json:"provider"`
}

// Client looks up catalog items on a streaming service.
type Client interface {
	// Item fetches one item, or ErrItemNotFound.
	Item(ctx context.Context, key rank.ItemKey) (Item, error)

	// Items fetches many items in as few upstream calls as possible.
	// Unknown keys are skipped, not errors; the result keeps the order of
	// the keys that were found.
	Items(ctx context.Context, keys []rank.ItemKey) ([]Item, error)
}

// Unconfigured is the client used when no provider credentials are present.
// Every lookup fails with ErrNoProvider.
type Unconfigured struct{}

// Item implements Client.
func (Unconfigured) Item(ctx context.Context, key rank.ItemKey) (Item, error) {
	return Item{}, ErrNoProvider
}

// Items implements Client.
func (Unconfigured) Items(ctx context.Context, keys []rank.ItemKey) ([]Item, error) {
	return nil, ErrNoProvider
}
