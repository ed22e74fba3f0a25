package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog/catalogtest"
	"github.com/justestif/go-spotify-track-ranker/internal/config"
	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/feature/featuretest"
	"github.com/justestif/go-spotify-track-ranker/internal/ranking"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
)

func testCatalog() *catalogtest.Catalog {
	tempos := map[string]float64{"s1": 120, "s2": 125, "r1": 90, "r2": 150, "r3": 130}
	records := make(map[string]*feature.Record)
	for id, v := range tempos {
		records[id] = featuretest.Record(id, map[string]float64{"tempo": v, "energy": v / 200})
	}
	return &catalogtest.Catalog{
		Features: featuretest.Fetcher{Records: records},
		Saved: []feature.RawEntry{
			featuretest.Entry("s1", "Saved One", "A"),
			featuretest.Entry("s2", "Saved Two", "B"),
		},
		Recommendations: []feature.RawEntry{
			featuretest.Entry("r1", "Rec One", "C"),
			featuretest.Entry("r2", "Rec Two", "D"),
			featuretest.Entry("r3", "Rec Three", "E"),
		},
	}
}

// staticTokens reports a fixed token.
type staticTokens struct{ token *oauth2.Token }

func (s staticTokens) Token() (*oauth2.Token, error) { return s.token, nil }

func newTestServer(t *testing.T, cat *catalogtest.Catalog, refreshed *oauth2.Token) *Server {
	t.Helper()
	auth := spotifyauth.New(
		spotifyauth.WithClientID("client"),
		spotifyauth.WithClientSecret("secret"),
		spotifyauth.WithRedirectURL("http://127.0.0.1:8080/callback"),
	)
	factory := func(_ context.Context, token *oauth2.Token) (Runner, oauth2.TokenSource, error) {
		if token == nil {
			return nil, nil, errors.New("no token")
		}
		var ts oauth2.TokenSource
		if refreshed != nil {
			ts = staticTokens{refreshed}
		}
		return selector.New(cat, zerolog.Nop(), selector.WithSeed(1)), ts, nil
	}

	return NewServer(ServerConfig{
		Auth:      auth,
		NewRunner: factory,
		Defaults:  config.Default().Selection,
		Logger:    zerolog.Nop(),
	})
}

func login(s *Server) *http.Cookie {
	session := s.sessions.Create(&oauth2.Token{AccessToken: "old"}, "user1", "User One")
	return &http.Cookie{Name: sessionCookieName, Value: session.ID}
}

func postSelect(t *testing.T, s *Server, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/select", strings.NewReader(body))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testCatalog(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSelectRequiresSession(t *testing.T) {
	cat := testCatalog()
	s := newTestServer(t, cat, nil)

	rec := postSelect(t, s, nil, `{"count":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postSelect(t, s, &http.Cookie{Name: sessionCookieName, Value: "unknown"}, `{"count":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, cat.Calls())
}

func TestSelectByFeature(t *testing.T) {
	cat := testCatalog()
	s := newTestServer(t, cat, nil)

	rec := postSelect(t, s, login(s), `{"playlist":"Fast","feature":"tempo","policy":"max","count":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp selectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Tracks, 2)
	assert.Equal(t, "r2", resp.Tracks[0].ID)
	assert.Equal(t, "Rec Two", resp.Tracks[0].Name)
	assert.Equal(t, 150.0, resp.Tracks[0].Score)
	assert.Equal(t, "r3", resp.Tracks[1].ID)
	assert.True(t, resp.PlaylistCreated)
	assert.NotEmpty(t, resp.RunID)

	assert.Equal(t, []string{"r2", "r3"}, cat.Added(resp.PlaylistID))
}

func TestSelectUsesDefaults(t *testing.T) {
	cat := testCatalog()
	s := newTestServer(t, cat, nil)

	// Default count is 5 but only three candidates exist.
	rec := postSelect(t, s, login(s), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ranking.ErrNotEnoughTracks.Error())
	assert.False(t, cat.Called("AddTracksToPlaylist"))
}

func TestSelectRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"count":`},
		{"unknown field", `{"colour":"blue"}`},
		{"negative count", `{"count":-1}`},
		{"unknown metric", `{"count":1,"metric":"euclid"}`},
		{"unknown feature", `{"count":1,"feature":"key"}`},
		{"unknown policy", `{"count":1,"policy":"best"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := testCatalog()
			s := newTestServer(t, cat, nil)

			rec := postSelect(t, s, login(s), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, cat.Calls())
		})
	}
}

func TestSelectCatalogFailure(t *testing.T) {
	cat := testCatalog()
	cat.Errs = map[string]error{"FetchSavedTracks": errors.New("503 from upstream")}
	s := newTestServer(t, cat, nil)

	rec := postSelect(t, s, login(s), `{"count":1}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "503 from upstream")
}

func TestSelectStoresRefreshedToken(t *testing.T) {
	s := newTestServer(t, testCatalog(), &oauth2.Token{AccessToken: "new"})
	cookie := login(s)

	rec := postSelect(t, s, cookie, `{"count":1,"feature":"energy","dry_run":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "new", s.sessions.Get(cookie.Value).Token.AccessToken)
}

func TestLoginRedirectsToSpotify(t *testing.T) {
	s := newTestServer(t, testCatalog(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "accounts.spotify.com")

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), "state="+state.Value)
}

func TestCallbackRejectsBadState(t *testing.T) {
	s := newTestServer(t, testCatalog(), nil)

	req := httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=x", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "real"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t, testCatalog(), nil)
	cookie := login(s)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", bytes.NewReader(nil))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, s.sessions.Get(cookie.Value))
}

func TestSessionExpiry(t *testing.T) {
	store := NewSessionStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	session := store.Create(&oauth2.Token{AccessToken: "t"}, "u", "U")
	assert.NotNil(t, store.Get(session.ID))

	now = now.Add(sessionTTL + time.Minute)
	assert.Nil(t, store.Get(session.ID))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(ranking.ErrNotEnoughTracks))
	assert.Equal(t, http.StatusBadRequest, statusFor(selector.ErrNoSearchResults))
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.New("boom")))
}
