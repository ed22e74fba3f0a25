package spotify

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xrash/smetrics"
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog"
	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// searchOverfetch is how many results are requested per result kept, so
// that reordering by name can promote a closer match.
const searchOverfetch = 5

// Search finds up to limit playlists or albums for query. Results are
// ordered by how closely their name matches the query.
func (c *Client) Search(ctx context.Context, query string, kind catalog.Kind, limit int) ([]catalog.CollectionRef, error) {
	if limit <= 0 {
		return nil, nil
	}

	var searchType spotify.SearchType = spotify.SearchTypePlaylist
	if kind == catalog.KindAlbum {
		searchType = spotify.SearchTypeAlbum
	}

	result, err := c.api.Search(ctx, query, searchType, spotify.Limit(min(limit*searchOverfetch, maxPageSize)))
	if err != nil {
		return nil, fmt.Errorf("searching %ss for %q: %w", kind, query, err)
	}

	var refs []catalog.CollectionRef
	switch kind {
	case catalog.KindAlbum:
		if result.Albums != nil {
			for _, a := range result.Albums.Albums {
				refs = append(refs, catalog.CollectionRef{ID: a.ID.String(), Name: a.Name, Kind: kind})
			}
		}
	default:
		if result.Playlists != nil {
			for _, p := range result.Playlists.Playlists {
				refs = append(refs, catalog.CollectionRef{ID: p.ID.String(), Name: p.Name, Kind: kind})
			}
		}
	}

	refs = rankByName(query, refs)
	if len(refs) > limit {
		refs = refs[:limit]
	}

	c.logger.Debug().Str("query", query).Int("results", len(refs)).Msg("search complete")
	return refs, nil
}

// rankByName drops results without an ID and orders the rest by
// Jaro-Winkler similarity of their name to query. Equal scores keep the
// catalog's order.
func rankByName(query string, refs []catalog.CollectionRef) []catalog.CollectionRef {
	q := strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		ref   catalog.CollectionRef
		score float64
	}
	var ranked []scored
	for _, r := range refs {
		if r.ID == "" {
			continue
		}
		ranked = append(ranked, scored{
			ref:   r,
			score: smetrics.JaroWinkler(q, strings.ToLower(r.Name), 0.7, 4),
		})
	}

	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]catalog.CollectionRef, len(ranked))
	for i, s := range ranked {
		out[i] = s.ref
	}
	return out
}

// FetchCollectionTracks returns the first tracks of a playlist or album,
// bounded by the client's collection limit. Pages are followed until the
// limit is reached.
func (c *Client) FetchCollectionTracks(ctx context.Context, ref catalog.CollectionRef) ([]feature.RawEntry, error) {
	limit := c.maxCollectionTracks
	pageSize := spotify.Limit(min(limit, maxPageSize))

	switch ref.Kind {
	case catalog.KindAlbum:
		page, err := c.api.GetAlbumTracks(ctx, spotify.ID(ref.ID), pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching album %s tracks: %w", ref.ID, err)
		}

		ids := make([]spotify.ID, 0, min(limit, int(page.Total)))
		for {
			for _, t := range page.Tracks {
				if len(ids) == limit {
					break
				}
				ids = append(ids, t.ID)
			}
			if len(ids) == limit {
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
		return c.hydrate(ctx, ids)

	default:
		page, err := c.api.GetPlaylistItems(ctx, spotify.ID(ref.ID), pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching playlist %s items: %w", ref.ID, err)
		}

		entries := make([]feature.RawEntry, 0, min(limit, int(page.Total)))
		for {
			for _, item := range page.Items {
				if len(entries) == limit {
					break
				}
				// Episodes and removed tracks have no track object.
				entries = append(entries, convertFullTrack(item.Track.Track))
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
		return entries, nil
	}
}
