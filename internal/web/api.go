package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/soundeck/go-spotify-rewind/internal/analysis"
	"github.com/soundeck/go-spotify-rewind/internal/db"
	"github.com/soundeck/go-spotify-rewind/internal/duo"
	"github.com/soundeck/go-spotify-rewind/internal/logger"
	"github.com/soundeck/go-spotify-rewind/internal/spotify"
	"github.com/soundeck/go-spotify-rewind/internal/wrapped"
)

// Snapshot actions accepted by the spotify-data endpoint.
const (
	actionSave       = "saved"
	actionDelete     = "delete"
	actionVisibility = "visibility"
)

// dashboardCategories is what the dashboard shows, in order.
var dashboardCategories = []wrapped.Category{
	wrapped.RecentlyPlayed,
	wrapped.TopTracksShort,
	wrapped.TopTracksMedium,
	wrapped.TopTracksLong,
	wrapped.TopArtists,
	wrapped.TopAlbums,
}

type spotifyProfile struct {
	ID          string
	DisplayName string
}

// spotifyProfile looks up the account behind a fresh OAuth token.
func (h *Handlers) spotifyProfile(ctx context.Context, token *oauth2.Token) (spotifyProfile, error) {
	client := spotify.New(spotifyapi.New(h.auth.Client(ctx, token)))
	profile, err := client.CurrentUser(ctx)
	if err != nil {
		return spotifyProfile{}, err
	}
	return spotifyProfile{ID: profile.ID, DisplayName: profile.DisplayName}, nil
}

// Dashboard returns live listening data across the dashboard categories
// (GET /api/dashboard).
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	fetcher, ok := h.freshFetcher(w, r)
	if !ok {
		return
	}

	sections := make(map[string]wrapped.SnapshotData, len(dashboardCategories))
	for _, category := range dashboardCategories {
		data, err := fetcher.Fetch(r.Context(), category)
		if err != nil {
			logger.Log.Errorw("fetching dashboard section", "category", category, "err", err)
			continue
		}
		sections[string(category)] = data
	}

	respondJSON(w, http.StatusOK, sections)
}

// SpotifyData dispatches snapshot actions (POST /api/spotify-data). The
// body carries the category, the action, and for delete/visibility the
// exact creation timestamp of the target snapshot.
func (h *Handlers) SpotifyData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WrapperType string `json:"wrapper_type"`
		Action      string `json:"action"`
		CreatedAt   string `json:"created_at"`
		Public      *bool  `json:"public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	category, err := wrapped.ParseCategory(req.WrapperType)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown wrapper type %q", req.WrapperType))
		return
	}

	switch req.Action {
	case actionSave:
		h.saveSnapshot(w, r, category)
	case actionDelete:
		createdAt, ok := parseCreatedAt(w, req.CreatedAt)
		if !ok {
			return
		}
		h.deleteSnapshot(w, r, category, createdAt)
	case actionVisibility:
		if req.Public == nil {
			respondError(w, http.StatusBadRequest, "visibility action requires a public flag")
			return
		}
		createdAt, ok := parseCreatedAt(w, req.CreatedAt)
		if !ok {
			return
		}
		h.setSnapshotVisibility(w, r, category, createdAt, *req.Public)
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func parseCreatedAt(w http.ResponseWriter, value string) (time.Time, bool) {
	createdAt, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "created_at must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return createdAt, true
}

func (h *Handlers) saveSnapshot(w http.ResponseWriter, r *http.Request, category wrapped.Category) {
	fetcher, ok := h.freshFetcher(w, r)
	if !ok {
		return
	}

	data, err := fetcher.Fetch(r.Context(), category)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.snapshots.Save(r.Context(), currentUser(r).ID, data)
	if err != nil {
		logger.Log.Errorw("saving snapshot", "category", category, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":         snap.ID,
		"category":   snap.Category,
		"created_at": snap.CreatedAt,
	})
}

func (h *Handlers) deleteSnapshot(w http.ResponseWriter, r *http.Request, category wrapped.Category, createdAt time.Time) {
	snap, err := h.snapshots.Delete(r.Context(), currentUser(r).ID, category, createdAt)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		logger.Log.Errorw("deleting snapshot", "category", category, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to delete snapshot")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":     snap.ID,
		"status": "deleted",
	})
}

func (h *Handlers) setSnapshotVisibility(w http.ResponseWriter, r *http.Request, category wrapped.Category, createdAt time.Time, public bool) {
	snap, err := h.snapshots.SetVisibility(r.Context(), currentUser(r).ID, category, createdAt, public)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		logger.Log.Errorw("updating snapshot visibility", "category", category, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to update visibility")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":     snap.ID,
		"public": snap.Public,
	})
}

// Wraps lists saved snapshots, newest first (GET /api/wraps). With
// include_public=true other users' public snapshots are included.
func (h *Handlers) Wraps(w http.ResponseWriter, r *http.Request) {
	includePublic := r.URL.Query().Get("include_public") == "true"

	snaps, err := h.snapshots.List(r.Context(), currentUser(r).ID, includePublic)
	if err != nil {
		logger.Log.Errorw("listing snapshots", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []db.Snapshot{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"wraps": snaps})
}

// SendInvite creates a duo invite (POST /api/duo/invites).
func (h *Handlers) SendInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	invite, err := h.duo.Send(r.Context(), currentUser(r).ID, req.Username)
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(w, http.StatusNotFound, "no such user")
	case errors.Is(err, duo.ErrSelfInvite):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrInviteExists):
		respondError(w, http.StatusConflict, "invite already sent")
	case err != nil:
		logger.Log.Errorw("sending invite", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to send invite")
	default:
		respondJSON(w, http.StatusOK, invite)
	}
}

// AcceptInvite marks an invite accepted (POST /api/duo/invites/{id}/accept).
func (h *Handlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	inviteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid invite id")
		return
	}

	invite, err := h.duo.Accept(r.Context(), inviteID, currentUser(r).ID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "invite not found")
		return
	}
	if err != nil {
		logger.Log.Errorw("accepting invite", "invite_id", inviteID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to accept invite")
		return
	}

	respondJSON(w, http.StatusOK, invite)
}

// SetSelection attaches one side's track picks to an accepted invite
// (PUT /api/duo/invites/{id}/selection).
func (h *Handlers) SetSelection(w http.ResponseWriter, r *http.Request) {
	inviteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid invite id")
		return
	}

	var req struct {
		Selection json.RawMessage `json:"selection"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	invite, err := h.duo.SetSelection(r.Context(), inviteID, currentUser(r).ID, req.Selection)
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(w, http.StatusNotFound, "invite not found")
	case errors.Is(err, duo.ErrNotParticipant):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, duo.ErrNotAccepted), errors.Is(err, duo.ErrInvalidSelection):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		logger.Log.Errorw("storing selection", "invite_id", inviteID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to store selection")
	default:
		respondJSON(w, http.StatusOK, invite)
	}
}

// ListInvites returns the user's invites (GET /api/duo/invites).
func (h *Handlers) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.duo.List(r.Context(), currentUser(r).ID)
	if err != nil {
		logger.Log.Errorw("listing invites", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list invites")
		return
	}
	if invites == nil {
		invites = []db.DuoInvite{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

// Analysis generates the listening personality write-up from the user's
// short-term top tracks (GET /api/analysis).
func (h *Handlers) Analysis(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		respondError(w, http.StatusNotImplemented, "analysis is not configured")
		return
	}

	fetcher, ok := h.freshFetcher(w, r)
	if !ok {
		return
	}

	data, err := fetcher.Fetch(r.Context(), wrapped.TopTracksShort)
	if err != nil {
		logger.Log.Errorw("fetching tracks for analysis", "err", err)
		respondError(w, http.StatusBadGateway, "failed to fetch top tracks")
		return
	}

	text, err := h.analyzer.Analyze(r.Context(), data.Tracks)
	if errors.Is(err, analysis.ErrNoTracks) {
		respondError(w, http.StatusNotFound, "no tracks found, listen to some music first")
		return
	}
	if err != nil {
		logger.Log.Errorw("generating analysis", "err", err)
		respondError(w, http.StatusServiceUnavailable, "unable to generate analysis right now")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"analysis": text})
}

// Contact relays a contact submission as a prefilled form URL
// (POST /api/contact).
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	if h.contactFormURL == "" {
		respondError(w, http.StatusNotImplemented, "contact form is not configured")
		return
	}

	var req struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Message == "" {
		respondError(w, http.StatusBadRequest, "name and message are required")
		return
	}

	form := fmt.Sprintf("%s?usp=pp_url&entry.1434750794=%s&entry.1846469222=%s&entry.1381661191=%s",
		h.contactFormURL,
		url.QueryEscape(req.Name),
		url.QueryEscape(req.Subject),
		url.QueryEscape(req.Message))

	respondJSON(w, http.StatusOK, map[string]string{"form_url": form})
}
