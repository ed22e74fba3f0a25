// Package spotify adapts the Spotify Web API to the catalog used by the ranker.
package spotify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog"
)

// Spotify API batch limits.
const (
	maxTracksPerRequest     = 100
	maxFullTracksPerRequest = 50
	maxSeedsPerRequest      = 5
	maxPageSize             = 50
)

// Client wraps the Spotify API client and implements catalog.Catalog.
type Client struct {
	api    *spotify.Client
	logger zerolog.Logger

	// maxCollectionTracks bounds the tracks taken from one searched collection.
	maxCollectionTracks int
}

var _ catalog.Catalog = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithMaxCollectionTracks bounds the tracks taken from one searched collection.
func WithMaxCollectionTracks(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxCollectionTracks = n
		}
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		api:                 api,
		logger:              logger.With().Str("component", "spotify").Logger(),
		maxCollectionTracks: maxFullTracksPerRequest,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return user.ID, nil
}
