package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/soundeck/go-spotify-rewind/internal/account"
	"github.com/soundeck/go-spotify-rewind/internal/db"
	"github.com/soundeck/go-spotify-rewind/internal/logger"
	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

// AccountService is the account surface the handlers need.
type AccountService interface {
	BeginSignup(username, email, password string) (*account.PendingSignup, error)
	CompleteSignup(ctx context.Context, pending *account.PendingSignup, spotifyID string, token *oauth2.Token) (*db.User, error)
	ConnectSpotify(ctx context.Context, user *db.User, spotifyID string, token *oauth2.Token) error
	Login(ctx context.Context, username, password string) (*db.User, error)
	EnsureFreshToken(ctx context.Context, user *db.User) (string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SnapshotStore is the snapshot surface the handlers need.
type SnapshotStore interface {
	Save(ctx context.Context, userID uuid.UUID, data wrapped.SnapshotData) (*db.Snapshot, error)
	List(ctx context.Context, userID uuid.UUID, includePublic bool) ([]db.Snapshot, error)
	Delete(ctx context.Context, userID uuid.UUID, category wrapped.Category, createdAt time.Time) (*db.Snapshot, error)
	SetVisibility(ctx context.Context, userID uuid.UUID, category wrapped.Category, createdAt time.Time, public bool) (*db.Snapshot, error)
}

// DuoService is the invite surface the handlers need.
type DuoService interface {
	Send(ctx context.Context, senderID uuid.UUID, recipientUsername string) (*db.DuoInvite, error)
	Accept(ctx context.Context, inviteID, userID uuid.UUID) (*db.DuoInvite, error)
	SetSelection(ctx context.Context, inviteID, userID uuid.UUID, picks json.RawMessage) (*db.DuoInvite, error)
	List(ctx context.Context, userID uuid.UUID) ([]db.DuoInvite, error)
}

// Analyzer produces the listening personality write-up.
type Analyzer interface {
	Analyze(ctx context.Context, tracks []wrapped.Track) (string, error)
}

// Fetcher retrieves listening data for one category.
type Fetcher interface {
	Fetch(ctx context.Context, category wrapped.Category) (wrapped.SnapshotData, error)
}

// FetcherFactory builds a Fetcher bound to an access token.
type FetcherFactory func(ctx context.Context, accessToken string) Fetcher

// Handlers contains the HTTP handlers for the JSON API.
type Handlers struct {
	auth      *spotifyauth.Authenticator
	sessions  Sessions
	accounts  AccountService
	snapshots SnapshotStore
	duo       DuoService
	analyzer  Analyzer
	fetcher   FetcherFactory
	pending   *pendingSignups

	// contactFormURL is the Google Form contact submissions prefill.
	// Empty disables the endpoint.
	contactFormURL string
}

// NewHandlers creates a Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions Sessions, accounts AccountService,
	snapshots SnapshotStore, duoSvc DuoService, analyzer Analyzer, fetcher FetcherFactory,
	contactFormURL string) *Handlers {
	return &Handlers{
		auth:           auth,
		sessions:       sessions,
		accounts:       accounts,
		snapshots:      snapshots,
		duo:            duoSvc,
		analyzer:       analyzer,
		fetcher:        fetcher,
		pending:        newPendingSignups(),
		contactFormURL: contactFormURL,
	}
}

// errorResponse is the JSON error body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Errorw("encoding response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

type contextKey string

const userContextKey contextKey = "user"

// requireAuth resolves the session cookie to a user and stores the user
// in the request context.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "not logged in")
			return
		}

		user, err := h.sessions.User(r.Context(), cookie.Value)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "session expired")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the user placed in the context by requireAuth.
func currentUser(r *http.Request) *db.User {
	user, _ := r.Context().Value(userContextKey).(*db.User)
	return user
}

// Signup validates the signup fields and returns the Spotify authorize
// URL. The account itself is only created once the callback confirms a
// Spotify identity (POST /api/signup).
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pending, err := h.accounts.BeginSignup(req.Username, req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := generateOAuthState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start signup")
		return
	}
	h.pending.put(state, pending)
	setStateCookie(w, state)

	respondJSON(w, http.StatusOK, map[string]string{
		"authorize_url": h.auth.AuthURL(state),
	})
}

// Connect returns the Spotify authorize URL for a logged-in user who
// wants to link or re-link their account (GET /api/spotify/connect).
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start authorization")
		return
	}
	setStateCookie(w, state)

	respondJSON(w, http.StatusOK, map[string]string{
		"authorize_url": h.auth.AuthURL(state),
	})
}

// Callback finishes the OAuth dance (GET /callback). A pending signup for
// the state creates the account; otherwise a logged-in user is re-linked.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing state cookie")
		return
	}
	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		respondError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	clearStateCookie(w)

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		respondError(w, http.StatusBadRequest, "spotify authorization refused: "+errMsg)
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to exchange authorization code")
		return
	}

	profile, err := h.spotifyProfile(r.Context(), token)
	if err != nil {
		logger.Log.Errorw("fetching spotify profile", "err", err)
		respondError(w, http.StatusBadGateway, "failed to look up spotify profile")
		return
	}

	if pending, ok := h.pending.take(state); ok {
		h.completeSignup(w, r, pending, profile, token)
		return
	}
	h.relink(w, r, profile, token)
}

func (h *Handlers) completeSignup(w http.ResponseWriter, r *http.Request, pending *account.PendingSignup, profile spotifyProfile, token *oauth2.Token) {
	user, err := h.accounts.CompleteSignup(r.Context(), pending, profile.ID, token)
	switch {
	case errors.Is(err, db.ErrUsernameTaken), errors.Is(err, db.ErrEmailTaken),
		errors.Is(err, db.ErrSpotifyIDTaken):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		logger.Log.Errorw("completing signup", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.startSession(w, r, user)
}

func (h *Handlers) relink(w http.ResponseWriter, r *http.Request, profile spotifyProfile, token *oauth2.Token) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		respondError(w, http.StatusBadRequest, "no signup in progress and not logged in")
		return
	}
	user, err := h.sessions.User(r.Context(), cookie.Value)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}

	err = h.accounts.ConnectSpotify(r.Context(), user, profile.ID, token)
	switch {
	case errors.Is(err, db.ErrSpotifyIDTaken):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		logger.Log.Errorw("linking spotify account", "user_id", user.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to link spotify account")
	default:
		respondJSON(w, http.StatusOK, map[string]string{
			"username":   user.Username,
			"spotify_id": profile.ID,
		})
	}
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user *db.User) {
	session, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		logger.Log.Errorw("creating session", "user_id", user.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	setSessionCookie(w, session.ID)

	respondJSON(w, http.StatusOK, map[string]string{
		"username": user.Username,
	})
}

// Login authenticates with username and password (POST /api/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		logger.Log.Errorw("login failed", "username", req.Username, "err", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.startSession(w, r, user)
}

// Logout ends the session (POST /api/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		h.sessions.Delete(r.Context(), cookie.Value)
	}
	clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// DeleteAccount removes the account and everything it owns
// (DELETE /api/account).
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	if err := h.accounts.Delete(r.Context(), user.ID); err != nil {
		logger.Log.Errorw("deleting account", "user_id", user.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		h.sessions.Delete(r.Context(), cookie.Value)
	}
	clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "account deleted"})
}

// freshFetcher returns a Fetcher carrying a valid access token, handling
// the refresh-failure path with a 401.
func (h *Handlers) freshFetcher(w http.ResponseWriter, r *http.Request) (Fetcher, bool) {
	user := currentUser(r)

	accessToken, err := h.accounts.EnsureFreshToken(r.Context(), user)
	switch {
	case errors.Is(err, account.ErrNotConnected):
		respondError(w, http.StatusBadRequest, "no spotify account connected")
		return nil, false
	case errors.Is(err, account.ErrReauthRequired):
		respondError(w, http.StatusUnauthorized, "spotify authorization expired, please reconnect")
		return nil, false
	case err != nil:
		logger.Log.Errorw("refreshing token", "user_id", user.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to refresh spotify token")
		return nil, false
	}

	return h.fetcher(r.Context(), accessToken), true
}

const stateCookieName = "oauth_state"

func setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
