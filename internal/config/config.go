// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// Defaults for optional settings.
const (
	DefaultAddr        = ":8080"
	DefaultLogLevel    = "info"
	DefaultCallbackURL = "http://127.0.0.1:8080/callback"
)

// Errors for missing required settings.
var (
	ErrMissingDatabaseURL   = errors.New("missing DATABASE_URL environment variable")
	ErrMissingSpotifyID     = errors.New("missing SPOTIFY_ID environment variable")
	ErrMissingSpotifySecret = errors.New("missing SPOTIFY_SECRET environment variable")
)

// Config holds all application settings.
type Config struct {
	// Addr is the address the HTTP server listens on.
	Addr string

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// SpotifyID and SpotifySecret are the Spotify app credentials.
	SpotifyID     string
	SpotifySecret string

	// CallbackURL is the OAuth redirect URL registered with Spotify.
	CallbackURL string

	// RedisAddr is the analysis cache address. Empty means results are
	// cached in memory only.
	RedisAddr string

	// GeminiAPIKey enables the listening personality analysis. Empty
	// disables the feature.
	GeminiAPIKey string

	// ContactFormURL is where contact submissions are relayed. Empty
	// disables the contact endpoint.
	ContactFormURL string

	// LogLevel sets the logger verbosity.
	LogLevel string
}

// Load reads configuration from a .env file if one exists, then from
// environment variables. Environment variables win.
func Load() (*Config, error) {
	// A missing .env file is fine; env vars may come from elsewhere.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:           envOr("ADDR", DefaultAddr),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SpotifyID:      os.Getenv("SPOTIFY_ID"),
		SpotifySecret:  os.Getenv("SPOTIFY_SECRET"),
		CallbackURL:    envOr("SPOTIFY_CALLBACK_URL", DefaultCallbackURL),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		ContactFormURL: os.Getenv("CONTACT_FORM_URL"),
		LogLevel:       envOr("LOG_LEVEL", DefaultLogLevel),
	}

	switch {
	case cfg.DatabaseURL == "":
		return nil, ErrMissingDatabaseURL
	case cfg.SpotifyID == "":
		return nil, ErrMissingSpotifyID
	case cfg.SpotifySecret == "":
		return nil, ErrMissingSpotifySecret
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
