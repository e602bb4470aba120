package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/soundeck/go-spotify-rewind/internal/db"
	"github.com/soundeck/go-spotify-rewind/internal/logger"
	"github.com/soundeck/go-spotify-rewind/internal/spotify"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string
	ClientID       string
	ClientSecret   string
	CallbackURL    string
	ContactFormURL string

	Database *db.DB
	Accounts AccountService
	Duo      DuoService
	Analyzer Analyzer
}

// Server is the HTTP server for the JSON API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
}

// NewServer creates a web server.
func NewServer(cfg ServerConfig) *Server {
	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.CallbackURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserReadEmail,
			spotifyauth.ScopeUserTopRead,
			spotifyauth.ScopeUserReadRecentlyPlayed,
			spotifyauth.ScopePlaylistReadPrivate,
		),
	)

	fetcher := func(ctx context.Context, accessToken string) Fetcher {
		token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
		return spotify.New(spotifyapi.New(auth.Client(ctx, token)))
	}

	handlers := NewHandlers(
		auth,
		NewDBSessions(cfg.Database),
		cfg.Accounts,
		cfg.Database.Snapshots(),
		cfg.Duo,
		cfg.Analyzer,
		fetcher,
		cfg.ContactFormURL,
	)

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: handlers,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Post("/api/signup", h.Signup)
	s.router.Post("/api/login", h.Login)
	s.router.Post("/api/logout", h.Logout)
	s.router.Get("/callback", h.Callback)
	s.router.Post("/api/contact", h.Contact)

	s.router.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Delete("/api/account", h.DeleteAccount)
		r.Get("/api/spotify/connect", h.Connect)
		r.Get("/api/dashboard", h.Dashboard)
		r.Post("/api/spotify-data", h.SpotifyData)
		r.Get("/api/wraps", h.Wraps)
		r.Get("/api/analysis", h.Analysis)

		r.Route("/api/duo/invites", func(r chi.Router) {
			r.Post("/", h.SendInvite)
			r.Get("/", h.ListInvites)
			r.Post("/{id}/accept", h.AcceptInvite)
			r.Put("/{id}/selection", h.SetSelection)
		})
	})
}

// requestLogger logs each request with its chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Log.Infow("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logger.Log.Infow("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt
// signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logger.Log.Infow("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Log.Infow("server stopped")
	return nil
}
