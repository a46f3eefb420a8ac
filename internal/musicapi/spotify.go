package musicapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"prestige/internal/rank"
)

const (
	spotifyAPIURL   = "https://api.spotify.com/v1"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// Batch id caps per Spotify endpoint.
const (
	spotifyMaxTrackIDs  = 50
	spotifyMaxAlbumIDs  = 20
	spotifyMaxArtistIDs = 50
)

// SpotifyClient implements the Client interface against the Spotify Web API
// using the client-credentials flow.
type SpotifyClient struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	apiURL       string
	tokenURL     string

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

// NewSpotifyClient creates a new Spotify API client.
func NewSpotifyClient(clientID, clientSecret string) *SpotifyClient {
	return &SpotifyClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiURL:   spotifyAPIURL,
		tokenURL: spotifyTokenURL,
	}
}

// Spotify API response structures

type spotifyTrack struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Artists []spotifySimpleArtist `json:"artists"`
	Album   *spotifyAlbumRef      `json:"album,omitempty"`
}

type spotifyAlbum struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Artists []spotifySimpleArtist `json:"artists"`
	Images  []spotifyImage        `json:"images"`
}

type spotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifySimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbumRef struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// authenticate obtains an access token from Spotify.
func (c *SpotifyClient) authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.tokenExpiry) {
		return nil
	}

	authString := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create auth request: %w", err)
	}

	req.Header.Set("Authorization", "Basic "+authString)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("spotify auth failed: %s - %s", resp.Status, string(body))
	}

	var tokenResp spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return nil
}

// doRequest performs an authenticated request to the Spotify API.
func (c *SpotifyClient) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if err := c.authenticate(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()

	apiURL := c.apiURL + "/" + endpoint
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
		return fmt.Errorf("spotify api error: %s - %s", resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Item fetches one catalog entry by id and type.
func (c *SpotifyClient) Item(ctx context.Context, key rank.ItemKey) (Item, error) {
	switch key.Type {
	case rank.ItemTypeTrack:
		var st spotifyTrack
		if err := c.doRequest(ctx, "tracks/"+key.ID, nil, &st); err != nil {
			return Item{}, err
		}
		return c.convertTrack(st), nil
	case rank.ItemTypeAlbum:
		var sa spotifyAlbum
		if err := c.doRequest(ctx, "albums/"+key.ID, nil, &sa); err != nil {
			return Item{}, err
		}
		return c.convertAlbum(sa), nil
	case rank.ItemTypeArtist:
		var sa spotifyArtist
		if err := c.doRequest(ctx, "artists/"+key.ID, nil, &sa); err != nil {
			return Item{}, err
		}
		return c.convertArtist(sa), nil
	default:
		return Item{}, fmt.Errorf("%w: %q", rank.ErrInvalidItemType, key.Type)
	}
}

// Items fetches many catalog entries through Spotify's batch endpoints,
// chunked to each endpoint's id cap. Ids Spotify does not know come back as
// nulls and are skipped.
func (c *SpotifyClient) Items(ctx context.Context, keys []rank.ItemKey) ([]Item, error) {
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

func (c *SpotifyClient) lookupBatch(ctx context.Context, t rank.ItemType, ids []string, found map[rank.ItemKey]Item) error {
	var (
		endpoint string
		maxIDs   int
	)
	switch t {
	case rank.ItemTypeTrack:
		endpoint, maxIDs = "tracks", spotifyMaxTrackIDs
	case rank.ItemTypeAlbum:
		endpoint, maxIDs = "albums", spotifyMaxAlbumIDs
	case rank.ItemTypeArtist:
		endpoint, maxIDs = "artists", spotifyMaxArtistIDs
	default:
		return fmt.Errorf("%w: %q", rank.ErrInvalidItemType, t)
	}

	for start := 0; start < len(ids); start += maxIDs {
		end := start + maxIDs
		if end > len(ids) {
			end = len(ids)
		}
		params := url.Values{}
		params.Set("ids", strings.Join(ids[start:end], ","))

		switch t {
		case rank.ItemTypeTrack:
			var page struct {
				Tracks []*spotifyTrack `json:"tracks"`
			}
			if err := c.doRequest(ctx, endpoint, params, &page); err != nil {
				return err
			}
			for _, st := range page.Tracks {
				if st == nil {
					continue
				}
				found[rank.ItemKey{ID: st.ID, Type: t}] = c.convertTrack(*st)
			}
		case rank.ItemTypeAlbum:
			var page struct {
				Albums []*spotifyAlbum `json:"albums"`
			}
			if err := c.doRequest(ctx, endpoint, params, &page); err != nil {
				return err
			}
			for _, sa := range page.Albums {
				if sa == nil {
					continue
				}
				found[rank.ItemKey{ID: sa.ID, Type: t}] = c.convertAlbum(*sa)
			}
		case rank.ItemTypeArtist:
			var page struct {
				Artists []*spotifyArtist `json:"artists"`
			}
			if err := c.doRequest(ctx, endpoint, params, &page); err != nil {
				return err
			}
			for _, sa := range page.Artists {
				if sa == nil {
					continue
				}
				found[rank.ItemKey{ID: sa.ID, Type: t}] = c.convertArtist(*sa)
			}
		}
	}
	return nil
}

// Helper functions to convert Spotify types to common types

func (c *SpotifyClient) convertTrack(st spotifyTrack) Item {
	item := Item{
		ID:       st.ID,
		Type:     rank.ItemTypeTrack,
		Name:     st.Name,
		Provider: ProviderSpotify,
	}
	for _, a := range st.Artists {
		item.Artists = append(item.Artists, a.Name)
	}
	if st.Album != nil {
		item.AlbumID = st.Album.ID
		item.AlbumName = st.Album.Name
		if len(st.Album.Images) > 0 {
			item.ImageURL = st.Album.Images[0].URL
		}
	}
	return item
}

func (c *SpotifyClient) convertAlbum(sa spotifyAlbum) Item {
	item := Item{
		ID:       sa.ID,
		Type:     rank.ItemTypeAlbum,
		Name:     sa.Name,
		Provider: ProviderSpotify,
	}
	for _, a := range sa.Artists {
		item.Artists = append(item.Artists, a.Name)
	}
	if len(sa.Images) > 0 {
		item.ImageURL = sa.Images[0].URL
	}
	return item
}

func (c *SpotifyClient) convertArtist(sa spotifyArtist) Item {
	item := Item{
		ID:       sa.ID,
		Type:     rank.ItemTypeArtist,
		Name:     sa.Name,
		Provider: ProviderSpotify,
	}
	if len(sa.Images) > 0 {
		item.ImageURL = sa.Images[0].URL
	}
	return item
}
