// Package catalogtest provides an in-memory catalog for tests.
package catalogtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog"
	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/feature/featuretest"
)

// Catalog serves canned results and records every call by method name.
// Errs makes the named method fail.
type Catalog struct {
	Features        featuretest.Fetcher
	Saved           []feature.RawEntry
	Recommendations []feature.RawEntry
	SearchResults   []catalog.CollectionRef
	Collections     map[string][]feature.RawEntry
	Playlists       map[string]string // name -> id
	Errs            map[string]error

	mu             sync.Mutex
	calls          []string
	seeds          []string
	added          map[string][]string
	created        []string
	nextPlaylistID int
}

var _ catalog.Catalog = (*Catalog)(nil)

func (c *Catalog) record(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, method)
	return c.Errs[method]
}

// Calls returns the method names called so far, in order.
func (c *Catalog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Called reports whether method was called.
func (c *Catalog) Called(method string) bool {
	return slices.Contains(c.Calls(), method)
}

// Seeds returns the seed ids of the last recommendation request.
func (c *Catalog) Seeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.seeds)
}

// Added returns the tracks added to playlist id.
func (c *Catalog) Added(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.added[id])
}

// Created returns the names of playlists created so far.
func (c *Catalog) Created() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.created)
}

func (c *Catalog) FetchAudioFeatures(ctx context.Context, ids []string) ([]*feature.Record, error) {
	if err := c.record("FetchAudioFeatures"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Features.FetchAudioFeatures(ctx, ids)
}

func (c *Catalog) FetchSavedTracks(_ context.Context, limit int) ([]feature.RawEntry, error) {
	if err := c.record("FetchSavedTracks"); err != nil {
		return nil, err
	}
	return head(c.Saved, limit), nil
}

func (c *Catalog) FetchRecommendations(_ context.Context, seedIDs []string, limit int) ([]feature.RawEntry, error) {
	if err := c.record("FetchRecommendations"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.seeds = slices.Clone(seedIDs)
	c.mu.Unlock()
	return head(c.Recommendations, limit), nil
}

func (c *Catalog) Search(_ context.Context, _ string, kind catalog.Kind, limit int) ([]catalog.CollectionRef, error) {
	if err := c.record("Search"); err != nil {
		return nil, err
	}
	var out []catalog.CollectionRef
	for _, r := range c.SearchResults {
		if r.Kind == kind && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Catalog) FetchCollectionTracks(_ context.Context, ref catalog.CollectionRef) ([]feature.RawEntry, error) {
	if err := c.record("FetchCollectionTracks"); err != nil {
		return nil, err
	}
	entries, ok := c.Collections[ref.ID]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", ref.ID)
	}
	return entries, nil
}

func (c *Catalog) FindPlaylist(_ context.Context, name string) (string, bool, error) {
	if err := c.record("FindPlaylist"); err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.Playlists[name]
	return id, ok, nil
}

func (c *Catalog) CreatePlaylist(_ context.Context, name string) (string, error) {
	if err := c.record("CreatePlaylist"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextPlaylistID++
	id := fmt.Sprintf("created-%d", c.nextPlaylistID)
	if c.Playlists == nil {
		c.Playlists = make(map[string]string)
	}
	c.Playlists[name] = id
	c.created = append(c.created, name)
	return id, nil
}

func (c *Catalog) AddTracksToPlaylist(_ context.Context, playlistID string, trackIDs []string) error {
	if err := c.record("AddTracksToPlaylist"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.added == nil {
		c.added = make(map[string][]string)
	}
	c.added[playlistID] = append(c.added[playlistID], trackIDs...)
	return nil
}

func head(entries []feature.RawEntry, n int) []feature.RawEntry {
	if n < len(entries) {
		return slices.Clone(entries[:n])
	}
	return slices.Clone(entries)
}
