package selector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/feature/featuretest"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
)

// memoryStore is a FeatureStore backed by a map.
type memoryStore struct {
	records map[string]*feature.Record
	getErr  error
	putErr  error
	puts    []map[string]*feature.Record
}

func (m *memoryStore) GetFeatures(_ context.Context, ids []string) (map[string]*feature.Record, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]*feature.Record)
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (m *memoryStore) PutFeatures(_ context.Context, records map[string]*feature.Record) error {
	m.puts = append(m.puts, records)
	if m.putErr != nil {
		return m.putErr
	}
	if m.records == nil {
		m.records = make(map[string]*feature.Record)
	}
	for id, rec := range records {
		m.records[id] = rec
	}
	return nil
}

func TestCachedFetcherServesHitsAndFetchesMisses(t *testing.T) {
	store := &memoryStore{records: map[string]*feature.Record{
		"a": featuretest.Record("a", map[string]float64{"tempo": 100}),
	}}
	remote := &featuretest.Fetcher{Records: map[string]*feature.Record{
		"b": featuretest.Record("b", map[string]float64{"tempo": 110}),
	}}

	fetcher := selector.NewCachedFetcher(remote, store, zerolog.Nop())
	got, err := fetcher.FetchAudioFeatures(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Same(t, store.records["a"], got[0])
	require.NotNil(t, got[1])
	assert.Nil(t, got[2])

	// Misses go out in one call; hits never reach the catalog.
	assert.Equal(t, [][]string{{"b", "c"}}, remote.Requested)

	// Only records that exist are persisted.
	require.Len(t, store.puts, 1)
	assert.Contains(t, store.puts[0], "b")
	assert.NotContains(t, store.puts[0], "c")
}

func TestCachedFetcherAllHits(t *testing.T) {
	store := &memoryStore{records: map[string]*feature.Record{
		"a": featuretest.Record("a", nil),
	}}
	remote := &featuretest.Fetcher{}

	got, err := selector.NewCachedFetcher(remote, store, zerolog.Nop()).
		FetchAudioFeatures(context.Background(), []string{"a"})
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Zero(t, remote.Calls)
	assert.Empty(t, store.puts)
}

func TestCachedFetcherStoreFailuresAreIgnored(t *testing.T) {
	store := &memoryStore{getErr: errors.New("read failed"), putErr: errors.New("write failed")}
	remote := &featuretest.Fetcher{Records: map[string]*feature.Record{
		"a": featuretest.Record("a", nil),
	}}

	got, err := selector.NewCachedFetcher(remote, store, zerolog.Nop()).
		FetchAudioFeatures(context.Background(), []string{"a"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.NotNil(t, got[0])
	assert.Equal(t, 1, remote.Calls)
}

func TestCachedFetcherPropagatesFetchErrors(t *testing.T) {
	fetchErr := errors.New("rate limited")
	remote := &featuretest.Fetcher{Err: fetchErr}

	_, err := selector.NewCachedFetcher(remote, &memoryStore{}, zerolog.Nop()).
		FetchAudioFeatures(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, fetchErr)
}

func TestCachedFetcherFeedsTableBuilder(t *testing.T) {
	store := &memoryStore{}
	remote := &featuretest.Fetcher{Records: map[string]*feature.Record{
		"a": featuretest.Record("a", map[string]float64{"energy": 0.4}),
		"b": featuretest.Record("b", map[string]float64{"energy": 0.6}),
	}}
	fetcher := selector.NewCachedFetcher(remote, store, zerolog.Nop())

	build := func() *feature.Table {
		built := feature.Build([]feature.RawEntry{
			featuretest.Entry("a", "A", "Artist"),
			featuretest.Entry("b", "B", "Artist"),
		})
		res, err := feature.AppendFeatures(context.Background(), built.Table, fetcher)
		require.NoError(t, err)
		return res.Table
	}

	first := build()
	second := build()

	assert.Equal(t, first.TrackIDs(), second.TrackIDs())
	assert.Equal(t, 1, remote.Calls)
}
