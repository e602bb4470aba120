// Package account implements signup, login and the Spotify token lifecycle
// on top of the user repository.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/soundeck/go-spotify-rewind/internal/db"
	"github.com/soundeck/go-spotify-rewind/internal/logger"
)

// spotifyTokenURL is the Spotify refresh-token grant endpoint.
const spotifyTokenURL = "https://accounts.spotify.com/api/token"

// minPasswordLength matches the signup form validation.
const minPasswordLength = 8

// defaultTokenTTL is assumed when a refreshed token carries no expiry.
const defaultTokenTTL = time.Hour

var (
	ErrInvalidSignup      = errors.New("username, email and password are required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrNotConnected is returned when an operation needs a bound
	// Spotify account and the user has none.
	ErrNotConnected = errors.New("no spotify account connected")

	// ErrReauthRequired is returned when the refresh grant fails and the
	// stored Spotify data has been cleared. The user must link again.
	ErrReauthRequired = errors.New("spotify authorization expired, reconnect required")
)

// UserStore is the subset of the user repository the service needs.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	Get(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetByUsername(ctx context.Context, username string) (*db.User, error)
	BindSpotifyID(ctx context.Context, user *db.User, spotifyID string) error
	SetSpotifyTokens(ctx context.Context, user *db.User, access, refresh string, expiresIn time.Duration) error
	ClearSpotifyData(ctx context.Context, user *db.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PendingSignup is a validated signup waiting for the OAuth callback.
// The account row is only created once Spotify confirms the identity.
type PendingSignup struct {
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Service handles accounts and their Spotify credentials.
type Service struct {
	users UserStore

	// tokenURL is the refresh grant endpoint, overridable in tests.
	tokenURL     string
	clientID     string
	clientSecret string
}

// NewService creates an account service using the given Spotify app
// credentials for token refreshes.
func NewService(users UserStore, clientID, clientSecret string) *Service {
	return &Service{
		users:        users,
		tokenURL:     spotifyTokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// BeginSignup validates the signup fields and hashes the password. The
// caller stashes the result until the OAuth callback completes it.
func (s *Service) BeginSignup(username, email, password string) (*PendingSignup, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return nil, ErrInvalidSignup
	}
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidSignup
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	return &PendingSignup{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}, nil
}

// CompleteSignup creates the account once the OAuth dance has confirmed a
// Spotify identity. If the Spotify account is already bound elsewhere the
// freshly created row is removed again, so a failed signup leaves nothing
// behind.
func (s *Service) CompleteSignup(ctx context.Context, pending *PendingSignup, spotifyID string, token *oauth2.Token) (*db.User, error) {
	user := &db.User{
		ID:           uuid.New(),
		Username:     pending.Username,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.users.BindSpotifyID(ctx, user, spotifyID); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			logger.Log.Errorw("removing account after failed bind", "user_id", user.ID, "err", delErr)
		}
		return nil, err
	}

	if err := s.storeToken(ctx, user, token); err != nil {
		return nil, err
	}

	return user, nil
}

// ConnectSpotify binds a Spotify identity to an existing account and
// stores its tokens. Used when a logged-in user re-links after a
// disconnect or an expired refresh grant.
func (s *Service) ConnectSpotify(ctx context.Context, user *db.User, spotifyID string, token *oauth2.Token) error {
	if err := s.users.BindSpotifyID(ctx, user, spotifyID); err != nil {
		return err
	}
	return s.storeToken(ctx, user, token)
}

// Login checks the credentials and returns the account.
func (s *Service) Login(ctx context.Context, username, password string) (*db.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// EnsureFreshToken returns an access token valid for immediate use,
// refreshing it through the refresh-token grant when expired. A failed
// refresh clears the stored Spotify data and reports ErrReauthRequired.
func (s *Service) EnsureFreshToken(ctx context.Context, user *db.User) (string, error) {
	if !user.SpotifyConnected() || user.RefreshToken == nil {
		return "", ErrNotConnected
	}

	if !user.TokenExpired(time.Now()) && user.AccessToken != nil {
		return *user.AccessToken, nil
	}

	cfg := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: s.tokenURL},
	}
	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: *user.RefreshToken}).Token()
	if err != nil {
		logger.Log.Warnw("token refresh failed, clearing spotify link", "user_id", user.ID, "err", err)
		if clearErr := s.users.ClearSpotifyData(ctx, user); clearErr != nil {
			return "", fmt.Errorf("clearing spotify data: %w", clearErr)
		}
		return "", ErrReauthRequired
	}

	// Spotify may omit the refresh token on renewal; keep the old one.
	if token.RefreshToken == "" {
		token.RefreshToken = *user.RefreshToken
	}
	if err := s.storeToken(ctx, user, token); err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// Disconnect unlinks the Spotify account, keeping the local account.
func (s *Service) Disconnect(ctx context.Context, user *db.User) error {
	return s.users.ClearSpotifyData(ctx, user)
}

// Delete removes the account and, through cascades, everything it owns.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}

func (s *Service) storeToken(ctx context.Context, user *db.User, token *oauth2.Token) error {
	ttl := time.Until(token.Expiry)
	if token.Expiry.IsZero() || ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return s.users.SetSpotifyTokens(ctx, user, token.AccessToken, token.RefreshToken, ttl)
}
