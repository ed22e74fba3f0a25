package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// playlistDescription is set on playlists the ranker creates.
const playlistDescription = "Tracks picked by track-ranker"

// FindPlaylist looks through the current user's playlists for one named
// exactly name and returns its ID.
func (c *Client) FindPlaylist(ctx context.Context, name string) (string, bool, error) {
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(maxPageSize))
	if err != nil {
		return "", false, fmt.Errorf("fetching playlists: %w", err)
	}

	for {
		for _, p := range page.Playlists {
			if p.Name == name {
				return p.ID.String(), true, nil
			}
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("fetching next page: %w", err)
		}
	}
}

// CreatePlaylist creates a new private playlist for the current user.
// Returns the playlist ID.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (string, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return "", err
	}

	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, playlistDescription, false, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}

	c.logger.Debug().Str("playlist_id", playlist.ID.String()).Msg("created playlist")
	return playlist.ID.String(), nil
}

// AddTracksToPlaylist adds tracks to a playlist, handling batching for large sets.
// Spotify allows max 100 tracks per request.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	ids := toIDs(trackIDs)
	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))

		_, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[i:end]...)
		if err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, err)
		}
	}

	return nil
}
