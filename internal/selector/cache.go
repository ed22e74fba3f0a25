package selector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// FeatureStore persists audio-feature records between runs.
type FeatureStore interface {
	// GetFeatures returns the stored records for ids; ids without a usable
	// record are absent from the map.
	GetFeatures(ctx context.Context, ids []string) (map[string]*feature.Record, error)
	// PutFeatures stores records keyed by track id.
	PutFeatures(ctx context.Context, records map[string]*feature.Record) error
}

// CachedFetcher implements feature.Fetcher with a FeatureStore in front of
// the catalog. It serves stored records first and fetches the misses in
// one call, persisting what comes back.
// The store is best effort: its failures are logged and the catalog is used.
type CachedFetcher struct {
	fetcher feature.Fetcher
	store   FeatureStore
	logger  zerolog.Logger
}

// NewCachedFetcher wraps fetcher with store.
func NewCachedFetcher(fetcher feature.Fetcher, store FeatureStore, logger zerolog.Logger) *CachedFetcher {
	return &CachedFetcher{
		fetcher: fetcher,
		store:   store,
		logger:  logger.With().Str("component", "feature-cache").Logger(),
	}
}

// FetchAudioFeatures returns one record per id, in order.
func (c *CachedFetcher) FetchAudioFeatures(ctx context.Context, ids []string) ([]*feature.Record, error) {
	records := make([]*feature.Record, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	cached, err := c.store.GetFeatures(ctx, ids)
	if err != nil {
		c.logger.Warn().Err(err).Msg("reading feature cache failed, fetching everything")
		cached = nil
	}

	var misses []string
	missIndex := make(map[string][]int)
	for i, id := range ids {
		if rec, ok := cached[id]; ok && rec != nil {
			records[i] = rec
			continue
		}
		if _, seen := missIndex[id]; !seen {
			misses = append(misses, id)
		}
		missIndex[id] = append(missIndex[id], i)
	}

	c.logger.Debug().
		Int("hits", len(ids)-len(misses)).
		Int("misses", len(misses)).
		Msg("feature cache lookup")

	if len(misses) == 0 {
		return records, nil
	}

	fetched, err := c.fetcher.FetchAudioFeatures(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(misses) {
		return nil, fmt.Errorf("%w: got %d records for %d tracks", feature.ErrFeatureCountMismatch, len(fetched), len(misses))
	}

	fresh := make(map[string]*feature.Record, len(misses))
	for j, id := range misses {
		for _, i := range missIndex[id] {
			records[i] = fetched[j]
		}
		if fetched[j] != nil {
			fresh[id] = fetched[j]
		}
	}

	if len(fresh) > 0 {
		if err := c.store.PutFeatures(ctx, fresh); err != nil {
			c.logger.Warn().Err(err).Int("records", len(fresh)).Msg("writing feature cache failed")
		}
	}

	return records, nil
}
