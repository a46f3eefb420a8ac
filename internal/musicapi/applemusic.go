package musicapi

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"prestige/internal/rank"
)

const appleMusicAPIURL = "https://api.music.apple.com/v1"

// Lowest documented id cap across the songs, albums, and artists endpoints.
const appleMaxIDs = 25

// AppleMusicClient implements the Client interface against the Apple Music
// catalog API, authenticating with a signed developer token.
type AppleMusicClient struct {
	keyID      string
	teamID     string
	storefront string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
	apiURL     string

	mu        sync.Mutex
	token     string
	tokenTime time.Time
}

// NewAppleMusicClient creates a new Apple Music API client. An empty
// storefront defaults to "us".
func NewAppleMusicClient(keyID, teamID, privateKeyPEM, storefront string) (*AppleMusicClient, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if storefront == "" {
		storefront = "us"
	}

	return &AppleMusicClient{
		keyID:      keyID,
		teamID:     teamID,
		storefront: storefront,
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiURL: appleMusicAPIURL,
	}, nil
}

// Apple Music API response structures

type appleMusicSong struct {
	ID            string                       `json:"id"`
	Attributes    appleMusicSongAttributes     `json:"attributes"`
	Relationships *appleMusicSongRelationships `json:"relationships,omitempty"`
}

type appleMusicSongAttributes struct {
	Name       string            `json:"name"`
	ArtistName string            `json:"artistName"`
	AlbumName  string            `json:"albumName"`
	Artwork    appleMusicArtwork `json:"artwork"`
}

type appleMusicSongRelationships struct {
	Albums struct {
		Data []appleMusicResourceRef `json:"data"`
	} `json:"albums"`
}

type appleMusicAlbum struct {
	ID         string                    `json:"id"`
	Attributes appleMusicAlbumAttributes `json:"attributes"`
}

type appleMusicAlbumAttributes struct {
	Name       string            `json:"name"`
	ArtistName string            `json:"artistName"`
	Artwork    appleMusicArtwork `json:"artwork"`
}

type appleMusicArtist struct {
	ID         string                     `json:"id"`
	Attributes appleMusicArtistAttributes `json:"attributes"`
}

type appleMusicArtistAttributes struct {
	Name    string            `json:"name"`
	Artwork appleMusicArtwork `json:"artwork"`
}

type appleMusicArtwork struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type appleMusicResourceRef struct {
	ID string `json:"id"`
}

// generateToken creates a JWT for Apple Music API authentication. Developer
// tokens last months; the cached one is refreshed every 12 hours.
func (c *AppleMusicClient) generateToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenTime) < 12*time.Hour {
		return c.token, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.teamID,
		"iat": now.Unix(),
		"exp": now.Add(6 * 30 * 24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.keyID

	tokenString, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	c.token = tokenString
	c.tokenTime = now

	return tokenString, nil
}

// doRequest performs an authenticated request to the Apple Music API.
func (c *AppleMusicClient) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	token, err := c.generateToken()
	if err != nil {
		return err
	}

	apiURL := c.apiURL + "/catalog/" + c.storefront + "/" + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrItemNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("apple music api error: %s - %s", resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Item fetches one catalog entry by id and type.
func (c *AppleMusicClient) Item(ctx context.Context, key rank.ItemKey) (Item, error) {
	switch key.Type {
	case rank.ItemTypeTrack:
		var result struct {
			Data []appleMusicSong `json:"data"`
		}
		if err := c.doRequest(ctx, "songs/"+key.ID, nil, &result); err != nil {
			return Item{}, err
		}
		if len(result.Data) == 0 {
			return Item{}, ErrItemNotFound
		}
		return c.convertSong(result.Data[0]), nil
	case rank.ItemTypeAlbum:
		var result struct {
			Data []appleMusicAlbum `json:"data"`
		}
		if err := c.doRequest(ctx, "albums/"+key.ID, nil, &result); err != nil {
			return Item{}, err
		}
		if len(result.Data) == 0 {
			return Item{}, ErrItemNotFound
		}
		return c.convertAlbum(result.Data[0]), nil
	case rank.ItemTypeArtist:
		var result struct {
			Data []appleMusicArtist `json:"data"`
		}
		if err := c.doRequest(ctx, "artists/"+key.ID, nil, &result); err != nil {
			return Item{}, err
		}
		if len(result.Data) == 0 {
			return Item{}, ErrItemNotFound
		}
		return c.convertArtist(result.Data[0]), nil
	default:
		return Item{}, fmt.Errorf("%w: %q", rank.ErrInvalidItemType, key.Type)
	}
}

// Items fetches many catalog entries with the multi-id form of the catalog
// endpoints. Ids Apple does not know are simply absent from the response.
func (c *AppleMusicClient) Items(ctx context.Context, keys []rank.ItemKey) ([]Item, error) {
	byType := make(map[rank.ItemType][]string)
	for _, k := range keys {
		byType[k.Type] = append(byType[k.Type], k.ID)
	}

	found := make(map[rank.ItemKey]Item, len(keys))
	for t, ids := range byType {
		if err := c.lookupBatch(ctx, t, ids, found); err != nil {
			return nil, err
		}
	}

	items := make([]Item, 0, len(found))
	for _, k := range keys {
		if item, ok := found[k]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (c *AppleMusicClient) lookupBatch(ctx context.Context, t rank.ItemType, ids []string, found map[rank.ItemKey]Item) error {
	var endpoint string
	switch t {
	case rank.ItemTypeTrack:
		endpoint = "songs"
	case rank.ItemTypeAlbum:
		endpoint = "albums"
	case rank.ItemTypeArtist:
		endpoint = "artists"
	default:
		return fmt.Errorf("%w: %q", rank.ErrInvalidItemType, t)
	}

	for start := 0; start < len(ids); start += appleMaxIDs {
		end := start + appleMaxIDs
		if end > len(ids) {
			end = len(ids)
		}
		params := url.Values{}
		params.Set("ids", strings.Join(ids[start:end], ","))

		switch t {
		case rank.ItemTypeTrack:
			var result struct {
				Data []appleMusicSong `json:"data"`
			}
			if err := c.doRequest(ctx, endpoint, params, &result); err != nil {
				return err
			}
			for _, as := range result.Data {
				found[rank.ItemKey{ID: as.ID, Type: t}] = c.convertSong(as)
			}
		case rank.ItemTypeAlbum:
			var result struct {
				Data []appleMusicAlbum `json:"data"`
			}
			if err := c.doRequest(ctx, endpoint, params, &result); err != nil {
				return err
			}
			for _, aa := range result.Data {
				found[rank.ItemKey{ID: aa.ID, Type: t}] = c.convertAlbum(aa)
			}
		case rank.ItemTypeArtist:
			var result struct {
				Data []appleMusicArtist `json:"data"`
			}
			if err := c.doRequest(ctx, endpoint, params, &result); err != nil {
				return err
			}
			for _, aa := range result.Data {
				found[rank.ItemKey{ID: aa.ID, Type: t}] = c.convertArtist(aa)
			}
		}
	}
	return nil
}

// Helper functions to convert Apple Music types to common types

func (c *AppleMusicClient) convertSong(as appleMusicSong) Item {
	item := Item{
		ID:        as.ID,
		Type:      rank.ItemTypeTrack,
		Name:      as.Attributes.Name,
		AlbumName: as.Attributes.AlbumName,
		ImageURL:  artworkURL(as.Attributes.Artwork),
		Provider:  ProviderAppleMusic,
	}
	if as.Attributes.ArtistName != "" {
		item.Artists = []string{as.Attributes.ArtistName}
	}
	if as.Relationships != nil && len(as.Relationships.Albums.Data) > 0 {
		item.AlbumID = as.Relationships.Albums.Data[0].ID
	}
	return item
}

func (c *AppleMusicClient) convertAlbum(aa appleMusicAlbum) Item {
	item := Item{
		ID:       aa.ID,
		Type:     rank.ItemTypeAlbum,
		Name:     aa.Attributes.Name,
		ImageURL: artworkURL(aa.Attributes.Artwork),
		Provider: ProviderAppleMusic,
	}
	if aa.Attributes.ArtistName != "" {
		item.Artists = []string{aa.Attributes.ArtistName}
	}
	return item
}

func (c *AppleMusicClient) convertArtist(aa appleMusicArtist) Item {
	return Item{
		ID:       aa.ID,
		Type:     rank.ItemTypeArtist,
		Name:     aa.Attributes.Name,
		ImageURL: artworkURL(aa.Attributes.Artwork),
		Provider: ProviderAppleMusic,
	}
}

// artworkURL fills the size placeholders Apple leaves in artwork URLs.
func artworkURL(a appleMusicArtwork) string {
	u := strings.ReplaceAll(a.URL, "{w}", "600")
	return strings.ReplaceAll(u, "{h}", "600")
}
