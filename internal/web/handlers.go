package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-track-ranker/internal/config"
	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/ranking"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
)

// maxBodyBytes bounds a selection request body.
const maxBodyBytes = 1 << 16

// Runner runs selections for one user.
type Runner interface {
	Run(ctx context.Context, req selector.Request) (*selector.Result, error)
}

// RunnerFactory builds a Runner authorized by token. The token source
// reports the token after the run, which may have been refreshed.
type RunnerFactory func(ctx context.Context, token *oauth2.Token) (Runner, oauth2.TokenSource, error)

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth      *spotifyauth.Authenticator
	sessions  *SessionStore
	newRunner RunnerFactory
	defaults  config.SelectionConfig
	logger    zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(auth *spotifyauth.Authenticator, sessions *SessionStore, newRunner RunnerFactory, defaults config.SelectionConfig, logger zerolog.Logger) *Handlers {
	return &Handlers{
		auth:      auth,
		sessions:  sessions,
		newRunner: newRunner,
		defaults:  defaults,
		logger:    logger,
	}
}

// Healthz reports that the server is up (GET /healthz).
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := generateOAuthState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing state cookie")
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("spotify auth error: %s", errMsg))
		return
	}

	token, err := h.auth.Token(r.Context(), state, r)
	if err != nil {
		h.logger.Error().Err(err).Msg("exchanging code for token")
		writeError(w, http.StatusBadGateway, "failed to get token")
		return
	}

	client := spotify.New(h.auth.Client(r.Context(), token))
	user, err := client.CurrentUser(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("fetching current user")
		writeError(w, http.StatusBadGateway, "failed to get user info")
		return
	}

	session := h.sessions.Create(token, user.ID, user.DisplayName)
	h.sessions.SetCookie(w, session)

	h.logger.Info().Str("user_id", user.ID).Msg("user logged in")
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":   user.ID,
		"user_name": user.DisplayName,
	})
}

// Logout clears the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(session.ID)
	}

	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// selectRequest is the body of POST /api/select. Empty fields fall back to
// the configured defaults.
type selectRequest struct {
	Playlist     string `json:"playlist"`
	Policy       string `json:"policy"`
	Feature      string `json:"feature"`
	Search       string `json:"search"`
	SearchKind   string `json:"search_kind"`
	Count        int    `json:"count"`
	Metric       string `json:"metric"`
	Scaling      string `json:"scaling"`
	SeedStrategy string `json:"seed_strategy"`
	DryRun       bool   `json:"dry_run"`
}

type trackResponse struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	Album  string  `json:"album"`
	Score  float64 `json:"score"`
}

type selectResponse struct {
	RunID           string          `json:"run_id"`
	PlaylistID      string          `json:"playlist_id,omitempty"`
	PlaylistCreated bool            `json:"playlist_created"`
	Skipped         int             `json:"skipped"`
	Tracks          []trackResponse `json:"tracks"`
}

// Select runs one selection for the session user (POST /api/select).
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	var body selectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	req, err := body.merge(h.defaults).Request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runner, tokens, err := h.newRunner(r.Context(), session.Token)
	if err != nil {
		h.logger.Error().Err(err).Msg("creating runner")
		writeError(w, http.StatusInternalServerError, "failed to create catalog client")
		return
	}

	result, err := runner.Run(r.Context(), req)
	h.refreshToken(session, tokens)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("user_id", session.UserID).Msg("selection failed")
		}
		writeError(w, status, err.Error())
		return
	}

	resp := selectResponse{
		RunID:           result.RunID,
		PlaylistID:      result.PlaylistID,
		PlaylistCreated: result.PlaylistCreated,
		Skipped:         result.Skipped,
		Tracks:          make([]trackResponse, len(result.Picks)),
	}
	for i, p := range result.Picks {
		resp.Tracks[i] = trackResponse{
			ID:     p.Track.TrackID,
			Name:   p.Track.TrackName,
			Artist: p.Track.Artist,
			Album:  p.Track.Album,
			Score:  p.Score,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// merge overlays the non-empty request fields on defaults.
func (b selectRequest) merge(defaults config.SelectionConfig) config.SelectionConfig {
	out := defaults
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Playlist, b.Playlist)
	set(&out.Policy, b.Policy)
	set(&out.Feature, b.Feature)
	set(&out.Search, b.Search)
	set(&out.SearchKind, b.SearchKind)
	set(&out.Metric, b.Metric)
	set(&out.Scaling, b.Scaling)
	set(&out.SeedStrategy, b.SeedStrategy)
	if b.Count != 0 {
		out.Count = b.Count
	}
	if b.DryRun {
		out.DryRun = true
	}
	return out
}

// refreshToken stores a token the client refreshed during the run.
func (h *Handlers) refreshToken(session *Session, tokens oauth2.TokenSource) {
	if tokens == nil {
		return
	}
	token, err := tokens.Token()
	if err != nil || token == nil {
		return
	}
	if session.Token == nil || token.AccessToken != session.Token.AccessToken {
		h.sessions.UpdateToken(session.ID, token)
	}
}

// statusFor maps run errors to HTTP status codes: bad input and unmet
// preconditions are the caller's fault, everything else is upstream.
func statusFor(err error) int {
	for _, target := range []error{
		ranking.ErrInvalidCount,
		ranking.ErrNotEnoughTracks,
		ranking.ErrUnsupportedPolicy,
		ranking.ErrUnsupportedFeature,
		ranking.ErrUnsupportedMetric,
		ranking.ErrUnsupportedScaling,
		ranking.ErrEmptyReference,
		selector.ErrEmptyPlaylistName,
		selector.ErrNoSearchResults,
		selector.ErrNoCandidates,
		feature.ErrColumnMismatch,
	} {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
