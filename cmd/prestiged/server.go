package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"prestige/internal/app/rate"
	"prestige/internal/app/users"
	"prestige/internal/http/middleware"
	"prestige/internal/httpapi"
	"prestige/internal/musicapi"
	"prestige/internal/rank"
	"prestige/internal/store"
)

func newHTTPHandler(cfg Config, dataStore *store.Store, catalog *rank.Catalog) (http.Handler, error) {
	metadata, err := newMetadataClient(cfg)
	if err != nil {
		return nil, err
	}

	userSvc := users.New(dataStore)
	rateSvc := rate.New(dataStore, metadata, catalog)

	api := httpapi.New(userSvc, rateSvc)

	handler := middleware.CORS(cfg.AllowedOrigins)(
		middleware.RequestLogging()(
			middleware.Recovery()(
				api.Routes())))
	return handler, nil
}

// newMetadataClient picks the configured music provider. Spotify wins when
// both are configured. Without credentials the server still runs; rating
// flows fail with a clear error until a provider is configured.
func newMetadataClient(cfg Config) (musicapi.Client, error) {
	switch {
	case cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "":
		log.Info().Msg("Spotify metadata client initialized")
		return musicapi.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret), nil
	case cfg.AppleMusicKeyID != "" && cfg.AppleMusicTeamID != "" && cfg.AppleMusicPrivateKey != "":
		client, err := musicapi.NewAppleMusicClient(cfg.AppleMusicKeyID, cfg.AppleMusicTeamID, cfg.AppleMusicPrivateKey, cfg.AppleMusicStorefront)
		if err != nil {
			return nil, err
		}
		log.Info().Str("storefront", cfg.AppleMusicStorefront).Msg("Apple Music metadata client initialized")
		return client, nil
	default:
		log.Warn().Msg("no music provider configured, rating lookups disabled")
		return musicapi.Unconfigured{}, nil
	}
}
