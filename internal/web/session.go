// Package web provides the HTTP server and JSON API.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/soundeck/go-spotify-rewind/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Sessions manages authenticated web sessions.
type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID) (*db.Session, error)
	User(ctx context.Context, sessionID string) (*db.User, error)
	Delete(ctx context.Context, sessionID string)
}

// DBSessions stores sessions in the sessions table, so logins survive
// restarts.
type DBSessions struct {
	sessions *db.SessionRepository
	users    *db.UserRepository
}

// NewDBSessions creates a database-backed session store.
func NewDBSessions(database *db.DB) *DBSessions {
	return &DBSessions{
		sessions: database.Sessions(),
		users:    database.Users(),
	}
}

// Create starts a session for the user.
func (s *DBSessions) Create(ctx context.Context, userID uuid.UUID) (*db.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &db.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// User resolves a session ID to its account. Expired or unknown sessions
// report db.ErrNotFound.
func (s *DBSessions) User(ctx context.Context, sessionID string) (*db.User, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.users.Get(ctx, session.UserID)
}

// Delete ends a session. Deleting an unknown session is a no-op.
func (s *DBSessions) Delete(ctx context.Context, sessionID string) {
	_ = s.sessions.Delete(ctx, sessionID)
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// setSessionCookie sets the session cookie on the response.
func setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// clearSessionCookie removes the session cookie from the response.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
