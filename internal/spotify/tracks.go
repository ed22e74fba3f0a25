package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// FetchSavedTracks retrieves up to limit tracks from the user's library,
// most recently saved first.
func (c *Client) FetchSavedTracks(ctx context.Context, limit int) ([]feature.RawEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(min(limit, maxPageSize)))
	if err != nil {
		return nil, fmt.Errorf("fetching saved tracks: %w", err)
	}

	var entries []feature.RawEntry
	for {
		for _, saved := range page.Tracks {
			if len(entries) == limit {
				break
			}
			entries = append(entries, convertFullTrack(&saved.FullTrack))
		}
		if len(entries) == limit {
			break
		}

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next page: %w", err)
		}
	}

	c.logger.Debug().Int("tracks", len(entries)).Msg("fetched saved tracks")
	return entries, nil
}

// FetchRecommendations requests up to limit recommendations seeded by at
// most five tracks. Recommendations come back without popularity, so they
// are hydrated to full tracks before returning.
func (c *Client) FetchRecommendations(ctx context.Context, seedIDs []string, limit int) ([]feature.RawEntry, error) {
	if len(seedIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	if len(seedIDs) > maxSeedsPerRequest {
		seedIDs = seedIDs[:maxSeedsPerRequest]
	}

	seeds := spotify.Seeds{Tracks: toIDs(seedIDs)}
	recs, err := c.api.GetRecommendations(ctx, seeds, nil, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	ids := make([]spotify.ID, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		ids = append(ids, t.ID)
	}

	c.logger.Debug().
		Strs("seeds", seedIDs).
		Int("tracks", len(ids)).
		Msg("fetched recommendations")
	return c.hydrate(ctx, ids)
}

// hydrate fetches full track objects for ids, in order.
// Batches requests to max 50 tracks per request per Spotify API limits.
func (c *Client) hydrate(ctx context.Context, ids []spotify.ID) ([]feature.RawEntry, error) {
	entries := make([]feature.RawEntry, 0, len(ids))
	for i := 0; i < len(ids); i += maxFullTracksPerRequest {
		end := min(i+maxFullTracksPerRequest, len(ids))

		tracks, err := c.api.GetTracks(ctx, ids[i:end])
		if err != nil {
			return nil, fmt.Errorf("fetching tracks (batch %d-%d): %w", i+1, end, err)
		}
		for _, t := range tracks {
			entries = append(entries, convertFullTrack(t))
		}
	}
	return entries, nil
}

// convertFullTrack converts a Spotify FullTrack to a raw catalog entry.
// A nil track yields an entry with no track, which table building skips.
func convertFullTrack(t *spotify.FullTrack) feature.RawEntry {
	if t == nil {
		return feature.RawEntry{}
	}

	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	return feature.RawEntry{Track: &feature.RawTrack{
		ID:         t.ID.String(),
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		DurationMs: int(t.Duration),
		Popularity: int(t.Popularity),
	}}
}

func toIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, len(ids))
	for i, id := range ids {
		out[i] = spotify.ID(id)
	}
	return out
}
