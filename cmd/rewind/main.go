// Command rewind runs the Spotify Rewind web application.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/soundeck/go-spotify-rewind/internal/account"
	"github.com/soundeck/go-spotify-rewind/internal/analysis"
	"github.com/soundeck/go-spotify-rewind/internal/config"
	"github.com/soundeck/go-spotify-rewind/internal/db"
	"github.com/soundeck/go-spotify-rewind/internal/duo"
	"github.com/soundeck/go-spotify-rewind/internal/logger"
	"github.com/soundeck/go-spotify-rewind/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	if err := migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	database, err := db.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pruneSessions(ctx, database)

	accounts := account.NewService(database.Users(), cfg.SpotifyID, cfg.SpotifySecret)
	duoSvc := duo.NewService(database.DuoInvites(), database.Users())

	var analyzer web.Analyzer
	if cfg.GeminiAPIKey != "" {
		var cache analysis.Cache
		if cfg.RedisAddr != "" {
			cache = analysis.NewRedisCache(cfg.RedisAddr)
		}
		analyzer = analysis.NewClient(cfg.GeminiAPIKey, cache)
	}

	server := web.NewServer(web.ServerConfig{
		Addr:           cfg.Addr,
		ClientID:       cfg.SpotifyID,
		ClientSecret:   cfg.SpotifySecret,
		CallbackURL:    cfg.CallbackURL,
		ContactFormURL: cfg.ContactFormURL,
		Database:       database,
		Accounts:       accounts,
		Duo:            duoSvc,
		Analyzer:       analyzer,
	})

	return server.Run()
}

// pruneSessions removes expired web sessions once an hour.
func pruneSessions(ctx context.Context, database *db.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := database.Sessions().DeleteExpired(ctx)
			if err != nil {
				logger.Log.Warnw("pruning sessions", "err", err)
				continue
			}
			if n > 0 {
				logger.Log.Infow("pruned expired sessions", "count", n)
			}
		}
	}
}

// migrate applies pending schema migrations. goose needs a database/sql
// handle, the rest of the app uses the pgx pool.
func migrate(databaseURL string) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return db.Migrate(sqlDB)
}
