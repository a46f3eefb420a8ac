package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains application-wide settings sourced from the environment.
type Config struct {
	DatabaseURL    string
	Addr           string
	AllowedOrigins []string
	SessionTTL     time.Duration

	LogLevel  string
	LogFormat string

	SpotifyClientID     string
	SpotifyClientSecret string

	AppleMusicKeyID      string
	AppleMusicTeamID     string
	AppleMusicPrivateKey string
	AppleMusicStorefront string
}

func loadConfig() (Config, error) {
	_ = godotenv.Load("config/local.env")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return Config{}, errors.New("DATABASE_URL env var is required")
	}

	addr := fmt.Sprintf(":%s", envOrDefault("PORT", "8080"))

	origins := parseAllowedOrigins(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"))

	sessionTTL, err := time.ParseDuration(envOrDefault("SESSION_TTL", "720h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SESSION_TTL: %w", err)
	}

	applePrivateKey := os.Getenv("APPLE_MUSIC_PRIVATE_KEY")
	if path := os.Getenv("APPLE_MUSIC_PRIVATE_KEY_FILE"); applePrivateKey == "" && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read APPLE_MUSIC_PRIVATE_KEY_FILE: %w", err)
		}
		applePrivateKey = string(raw)
	}

	return Config{
		DatabaseURL:    dsn,
		Addr:           addr,
		AllowedOrigins: origins,
		SessionTTL:     sessionTTL,

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),

		AppleMusicKeyID:      os.Getenv("APPLE_MUSIC_KEY_ID"),
		AppleMusicTeamID:     os.Getenv("APPLE_MUSIC_TEAM_ID"),
		AppleMusicPrivateKey: applePrivateKey,
		AppleMusicStorefront: envOrDefault("APPLE_MUSIC_STOREFRONT", "us"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	var origins []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
