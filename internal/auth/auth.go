package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	// DefaultRedirectURL uses explicit IPv4 loopback as required by Spotify for local development.
	// See: https://developer.spotify.com/documentation/web-api/concepts/redirect-uri
	DefaultRedirectURL = "http://127.0.0.1:8080/callback"
	callbackTimeout    = 2 * time.Minute
)

var (
	// ErrMissingCredentials is returned when the client id or secret is not configured.
	ErrMissingCredentials = errors.New("missing Spotify client id or secret (set SPOTIFY_ID and SPOTIFY_SECRET)")

	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// Scopes are the permissions the ranker asks for: reading the library and
// the user's playlists, and writing playlists.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Credentials identify the Spotify application.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewSpotifyAuth builds the OAuth2 authenticator shared by the CLI flow and
// the web server. An empty RedirectURL uses DefaultRedirectURL.
func NewSpotifyAuth(creds Credentials) (*spotifyauth.Authenticator, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	redirect := creds.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}

	return spotifyauth.New(
		spotifyauth.WithClientID(creds.ClientID),
		spotifyauth.WithClientSecret(creds.ClientSecret),
		spotifyauth.WithRedirectURL(redirect),
		spotifyauth.WithScopes(Scopes...),
	), nil
}

// Authenticator signs the CLI user in, reusing the stored token for the
// configured application when it still works.
type Authenticator struct {
	oauth    *spotifyauth.Authenticator
	tokens   *TokenStore
	redirect *url.URL
	out      io.Writer
	logger   zerolog.Logger
}

// New creates an Authenticator for the given application credentials.
// Returns ErrMissingCredentials if the id or secret is empty.
func New(creds Credentials, tokens *TokenStore, logger zerolog.Logger) (*Authenticator, error) {
	oauth, err := NewSpotifyAuth(creds)
	if err != nil {
		return nil, err
	}

	raw := creds.RedirectURL
	if raw == "" {
		raw = DefaultRedirectURL
	}
	redirect, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	return &Authenticator{
		oauth:    oauth,
		tokens:   tokens,
		redirect: redirect,
		out:      os.Stderr,
		logger:   logger.With().Str("component", "auth").Logger(),
	}, nil
}

// Authenticate returns a Spotify client for the stored token, or runs the
// authorization code flow when there is no usable token.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	client, err := a.resume(ctx)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return client, nil
	}

	token, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.tokens.Save(token); err != nil {
		a.logger.Warn().Err(err).Str("path", a.tokens.Path()).Msg("token not stored")
	}
	return a.client(ctx, token), nil
}

func (a *Authenticator) client(ctx context.Context, token *oauth2.Token) *spotify.Client {
	return spotify.New(a.oauth.Client(ctx, token), spotify.WithRetry(true))
}

// resume returns a client for the stored token, or nil when there is no
// token or the account rejects it. A refreshed token is written back.
func (a *Authenticator) resume(ctx context.Context) (*spotify.Client, error) {
	stored, err := a.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("loading stored token: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	client := a.client(ctx, stored)
	if _, err := client.CurrentUser(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("stored token rejected, signing in again")
		return nil, nil
	}

	if current, err := client.Token(); err == nil && current.AccessToken != stored.AccessToken {
		if err := a.tokens.Save(current); err != nil {
			a.logger.Warn().Err(err).Msg("refreshed token not stored")
		}
	}
	return client, nil
}

// callbackResult is what the redirect handler hands back to authorize.
type callbackResult struct {
	token *oauth2.Token
	err   error
}

// authorize runs the authorization code flow against a one-shot server on
// the redirect address and returns the exchanged token.
func (a *Authenticator) authorize(ctx context.Context) (*oauth2.Token, error) {
	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	listener, err := net.Listen("tcp", a.redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listening for the redirect on %s: %w", a.redirect.Host, err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(a.redirect.Path, a.callbackHandler(state, results))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: fmt.Errorf("redirect server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(a.out, "\nOpen this URL to authorize track-ranker:\n%s\n\nWaiting for Spotify to redirect back...\n",
		a.oauth.AuthURL(state))

	waitCtx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	select {
	case res := <-results:
		return res.token, res.err
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrAuthTimeout
	}
}

// callbackHandler answers Spotify's redirect. Only the first outcome is
// reported; later requests get the same page but are otherwise ignored.
func (a *Authenticator) callbackHandler(state string, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		var res callbackResult
		switch {
		case query.Get("state") != state:
			res.err = ErrStateMismatch
		case query.Get("error") != "":
			res.err = fmt.Errorf("spotify denied authorization: %s", query.Get("error"))
		default:
			res.token, res.err = a.oauth.Token(r.Context(), state, r)
			if res.err != nil {
				res.err = fmt.Errorf("exchanging code for token: %w", res.err)
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "track-ranker could not sign in: %v\n", res.err)
		} else {
			fmt.Fprintln(w, "track-ranker is signed in. You can close this tab.")
		}
		deliver(results, res)
	}
}

func deliver(results chan<- callbackResult, res callbackResult) {
	select {
	case results <- res:
	default:
	}
}

// newState returns 16 random bytes, hex encoded.
func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
