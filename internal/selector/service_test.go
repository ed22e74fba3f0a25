package selector_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog"
	"github.com/justestif/go-spotify-track-ranker/internal/catalog/catalogtest"
	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/feature/featuretest"
	"github.com/justestif/go-spotify-track-ranker/internal/ranking"
	"github.com/justestif/go-spotify-track-ranker/internal/seeding"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
)

var values = map[string]map[string]float64{
	"s1": {"energy": 0.9, "valence": 0.8, "tempo": 128, "danceability": 0.7},
	"s2": {"energy": 0.8, "valence": 0.7, "tempo": 124, "danceability": 0.8},
	"s3": {"energy": 0.7, "valence": 0.9, "tempo": 120, "danceability": 0.6},
	"r1": {"energy": 0.85, "valence": 0.75, "tempo": 126, "danceability": 0.75},
	"r2": {"energy": 0.1, "valence": 0.2, "tempo": 70, "danceability": 0.1},
	"r3": {"energy": 0.6, "valence": 0.6, "tempo": 110, "danceability": 0.5},
	"r4": {"energy": 0.3, "valence": 0.4, "tempo": 90, "danceability": 0.3},
	"p1": {"tempo": 100},
	"p2": {"tempo": 140},
	"p3": {"tempo": 95},
}

func entries(ids ...string) []feature.RawEntry {
	out := make([]feature.RawEntry, len(ids))
	for i, id := range ids {
		out[i] = featuretest.Entry(id, "Song "+id, "Artist "+id)
	}
	return out
}

func newCatalog() *catalogtest.Catalog {
	records := make(map[string]*feature.Record, len(values))
	for id, v := range values {
		records[id] = featuretest.Record(id, v)
	}
	return &catalogtest.Catalog{
		Features:        featuretest.Fetcher{Records: records},
		Saved:           entries("s1", "s2", "s3"),
		Recommendations: entries("r1", "r2", "r3", "r4"),
		SearchResults: []catalog.CollectionRef{
			{ID: "pl-a", Name: "Chill A", Kind: catalog.KindPlaylist},
			{ID: "pl-b", Name: "Chill B", Kind: catalog.KindPlaylist},
		},
		Collections: map[string][]feature.RawEntry{
			"pl-a": entries("p1", "p2"),
			"pl-b": entries("p2", "p3"),
		},
	}
}

func newService(cat catalog.Catalog) *selector.Service {
	return selector.New(cat, zerolog.Nop(), selector.WithSeed(42))
}

func pickedIDs(res *selector.Result) []string {
	ids := make([]string, len(res.Picks))
	for i, p := range res.Picks {
		ids[i] = p.Track.TrackID
	}
	return ids
}

func TestRunBySimilarity(t *testing.T) {
	cat := newCatalog()
	req := selector.Request{
		Playlist:   "Mine",
		Policy:     ranking.Maximize,
		Count:      2,
		Similarity: ranking.SimilarityOptions{Metric: ranking.Cosine},
	}

	res, err := newService(cat).Run(context.Background(), req)
	require.NoError(t, err)

	// The same pipeline computed by hand.
	reference := featuretest.Table(values, "s1", "s2", "s3")
	candidates := featuretest.Table(values, "r1", "r2", "r3", "r4")
	m, err := ranking.Similarity(candidates, reference, req.Similarity)
	require.NoError(t, err)
	scores, err := ranking.ScoreByAggregateSimilarity(m)
	require.NoError(t, err)
	want, err := ranking.Select(scores, ranking.Maximize, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, want, pickedIDs(res))
	assert.GreaterOrEqual(t, res.Picks[0].Score, res.Picks[1].Score)
	assert.Equal(t, 3, res.ReferenceTracks)
	assert.Equal(t, 4, res.CandidateTracks)
	assert.NotEmpty(t, res.RunID)

	// Fewer saved tracks than seeds: every saved track seeds.
	assert.Equal(t, []string{"s1", "s2", "s3"}, cat.Seeds())

	assert.True(t, res.PlaylistCreated)
	assert.Equal(t, []string{"Mine"}, cat.Created())
	assert.Equal(t, want, cat.Added(res.PlaylistID))
}

func TestRunBySingleFeatureOverSearch(t *testing.T) {
	cat := newCatalog()
	req := selector.Request{
		Playlist: "Fast",
		Policy:   ranking.Maximize,
		Feature:  "tempo",
		Search:   "chill",
		Count:    2,
	}

	res, err := newService(cat).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"p2", "p1"}, pickedIDs(res))
	assert.Equal(t, 140.0, res.Picks[0].Score)
	assert.Equal(t, 3, res.CandidateTracks)
	// p2 appears in both playlists.
	assert.Equal(t, 1, res.Skipped)

	// A feature ranking over searched tracks never reads the library.
	assert.False(t, cat.Called("FetchSavedTracks"))
	assert.False(t, cat.Called("FetchRecommendations"))
}

func TestRunAddsToExistingPlaylist(t *testing.T) {
	cat := newCatalog()
	cat.Playlists = map[string]string{"Mine": "existing"}

	res, err := newService(cat).Run(context.Background(), selector.Request{
		Playlist: "Mine",
		Policy:   ranking.Minimize,
		Feature:  "energy",
		Count:    1,
	})
	require.NoError(t, err)

	assert.False(t, res.PlaylistCreated)
	assert.Equal(t, "existing", res.PlaylistID)
	assert.Equal(t, []string{"r2"}, cat.Added("existing"))
	assert.Empty(t, cat.Created())
}

func TestRunWritesOnlyAfterSelection(t *testing.T) {
	cat := newCatalog()

	_, err := newService(cat).Run(context.Background(), selector.Request{
		Playlist: "Mine",
		Policy:   ranking.Random,
		Count:    3,
	})
	require.NoError(t, err)

	calls := cat.Calls()
	find := slices.Index(calls, "FindPlaylist")
	require.GreaterOrEqual(t, find, 0)
	for i, c := range calls {
		if c == "FetchAudioFeatures" || c == "FetchRecommendations" {
			assert.Less(t, i, find, "%s after playlist lookup", c)
		}
	}
	assert.Equal(t, "AddTracksToPlaylist", calls[len(calls)-1])
}

func TestRunFailuresLeavePlaylistsUntouched(t *testing.T) {
	catalogErr := errors.New("catalog unavailable")

	tests := []struct {
		name    string
		req     selector.Request
		errs    map[string]error
		mutate  func(*catalogtest.Catalog)
		wantErr error
	}{
		{
			name:    "count above pool",
			req:     selector.Request{Playlist: "Mine", Count: 5},
			wantErr: ranking.ErrNotEnoughTracks,
		},
		{
			name:    "recommendations fail",
			req:     selector.Request{Playlist: "Mine", Count: 1},
			errs:    map[string]error{"FetchRecommendations": catalogErr},
			wantErr: catalogErr,
		},
		{
			name:    "features fail",
			req:     selector.Request{Playlist: "Mine", Count: 1},
			errs:    map[string]error{"FetchAudioFeatures": catalogErr},
			wantErr: catalogErr,
		},
		{
			name:    "search finds nothing",
			req:     selector.Request{Playlist: "Mine", Count: 1, Search: "nothing", SearchKind: catalog.KindAlbum},
			wantErr: selector.ErrNoSearchResults,
		},
		{
			name: "no saved tracks",
			req:  selector.Request{Playlist: "Mine", Count: 1},
			mutate: func(c *catalogtest.Catalog) {
				c.Saved = nil
			},
			wantErr: ranking.ErrEmptyReference,
		},
		{
			name: "no candidate has features",
			req:  selector.Request{Playlist: "Mine", Count: 1},
			mutate: func(c *catalogtest.Catalog) {
				c.Recommendations = entries("unknown1", "unknown2")
			},
			wantErr: selector.ErrNoCandidates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newCatalog()
			cat.Errs = tt.errs
			if tt.mutate != nil {
				tt.mutate(cat)
			}

			res, err := newService(cat).Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)

			assert.False(t, cat.Called("FindPlaylist"))
			assert.False(t, cat.Called("CreatePlaylist"))
			assert.False(t, cat.Called("AddTracksToPlaylist"))
		})
	}
}

func TestRunValidatesBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name    string
		req     selector.Request
		wantErr error
	}{
		{"zero count", selector.Request{Playlist: "Mine", Count: 0}, ranking.ErrInvalidCount},
		{"negative count", selector.Request{Playlist: "Mine", Count: -1}, ranking.ErrInvalidCount},
		{"no playlist", selector.Request{Count: 1}, selector.ErrEmptyPlaylistName},
		{"bad feature", selector.Request{Playlist: "Mine", Count: 1, Feature: "speechiness"}, ranking.ErrUnsupportedFeature},
		{"bad policy", selector.Request{Playlist: "Mine", Count: 1, Policy: ranking.Policy(7)}, ranking.ErrUnsupportedPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newCatalog()
			_, err := newService(cat).Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, cat.Calls())
		})
	}
}

func TestRunDryRun(t *testing.T) {
	cat := newCatalog()

	res, err := newService(cat).Run(context.Background(), selector.Request{
		Policy:  ranking.Maximize,
		Feature: "valence",
		Count:   2,
		DryRun:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r3"}, pickedIDs(res))
	assert.Empty(t, res.PlaylistID)
	assert.False(t, cat.Called("FindPlaylist"))
}

func TestRunSkipsTracksWithoutFeatures(t *testing.T) {
	cat := newCatalog()
	cat.Recommendations = append(entries("r1", "ghost", "r2"), feature.RawEntry{})

	res, err := newService(cat).Run(context.Background(), selector.Request{
		Playlist: "Mine",
		Feature:  "energy",
		Count:    2,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.CandidateTracks)
	// One entry without a track, one track without features.
	assert.Equal(t, 2, res.Skipped)
}

func TestRunRandomIsReproducible(t *testing.T) {
	run := func() []string {
		res, err := newService(newCatalog()).Run(context.Background(), selector.Request{
			Policy: ranking.Random,
			Count:  2,
			DryRun: true,
		})
		require.NoError(t, err)
		return pickedIDs(res)
	}

	first := run()
	assert.Len(t, first, 2)
	assert.Equal(t, first, run())
}

func TestRunClusterSeedsAreReproducible(t *testing.T) {
	limits := selector.DefaultLimits()
	limits.Seeds = 2

	seeds := func() []string {
		cat := newCatalog()
		svc := selector.New(cat, zerolog.Nop(), selector.WithSeed(42), selector.WithLimits(limits))
		_, err := svc.Run(context.Background(), selector.Request{
			Policy:       ranking.Maximize,
			Count:        1,
			SeedStrategy: seeding.Cluster,
			DryRun:       true,
		})
		require.NoError(t, err)
		return cat.Seeds()
	}

	first := seeds()
	require.Len(t, first, 2)
	for range 10 {
		assert.Equal(t, first, seeds())
	}
}

func TestReferenceTable(t *testing.T) {
	table, err := newService(newCatalog()).ReferenceTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, table.TrackIDs())
	assert.True(t, table.HasFeatures())
}
