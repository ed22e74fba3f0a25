// Package selector runs one track selection: it builds the reference and
// candidate tables, scores the candidates and writes the picks to a playlist.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog"
	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/ranking"
	"github.com/justestif/go-spotify-track-ranker/internal/seeding"
)

var (
	// ErrEmptyPlaylistName is returned when no target playlist is named.
	ErrEmptyPlaylistName = errors.New("playlist name is empty")

	// ErrNoSearchResults is returned when a search finds no collections.
	ErrNoSearchResults = errors.New("search returned no results")

	// ErrNoCandidates is returned when no candidate track has audio features.
	ErrNoCandidates = errors.New("no candidate tracks with audio features")
)

// Limits bounds how many tracks each source contributes.
type Limits struct {
	SavedTracks     int
	Recommendations int
	Seeds           int
	SearchResults   int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		SavedTracks:     30,
		Recommendations: 30,
		Seeds:           5,
		SearchResults:   2,
	}
}

// Request describes one selection run.
type Request struct {
	Playlist string
	Policy   ranking.Policy
	// Feature ranks candidates by one raw audio feature instead of by
	// similarity to the saved tracks. Empty means similarity.
	Feature string
	// Search takes candidates from collections matching the query instead
	// of from recommendations. Empty means recommendations.
	Search       string
	SearchKind   catalog.Kind
	Count        int
	Similarity   ranking.SimilarityOptions
	SeedStrategy seeding.Strategy
	// DryRun selects tracks without touching any playlist.
	DryRun bool
}

// Validate checks the request before any remote call.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Playlist) == "" && !r.DryRun {
		return ErrEmptyPlaylistName
	}
	if r.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ranking.ErrInvalidCount, r.Count)
	}
	if _, err := ranking.ParseFeature(r.Feature); err != nil {
		return err
	}
	if r.Policy < ranking.Maximize || r.Policy > ranking.Random {
		return fmt.Errorf("%w: %v", ranking.ErrUnsupportedPolicy, r.Policy)
	}
	return nil
}

// Pick is one selected track with the score it was ranked by.
type Pick struct {
	Track feature.Track
	Score float64
}

// Result holds the outcome of a run.
type Result struct {
	RunID           string
	PlaylistID      string
	PlaylistCreated bool
	Picks           []Pick
	ReferenceTracks int
	CandidateTracks int
	// Skipped counts entries and rows dropped as malformed, without
	// features, or duplicated across sources.
	Skipped int
}

// Service runs selections against a catalog.
type Service struct {
	catalog catalog.Catalog
	fetcher feature.Fetcher
	limits  Limits
	logger  zerolog.Logger
	newRand func() *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithFeatureFetcher fetches audio features through f instead of the
// catalog, typically a CachedFetcher.
func WithFeatureFetcher(f feature.Fetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithLimits sets the per-source limits.
func WithLimits(l Limits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

// WithSeed fixes the random source of every run, so window and cluster
// seed picking and random selection repeat exactly.
func WithSeed(seed uint64) Option {
	return func(s *Service) {
		s.newRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(seed, seed))
		}
	}
}

// New creates a selection service.
func New(cat catalog.Catalog, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		catalog: cat,
		fetcher: cat,
		limits:  DefaultLimits(),
		logger:  logger.With().Str("component", "selector").Logger(),
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one selection. The playlist is only looked up, created and
// written after every track has been picked, so a failed run leaves the
// user's playlists untouched.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString()}
	logger := s.logger.With().Str("run_id", result.RunID).Logger()
	rng := s.newRand()

	logger.Info().
		Str("policy", req.Policy.String()).
		Str("feature", req.Feature).
		Str("search", req.Search).
		Int("count", req.Count).
		Msg("starting selection")

	// Saved tracks seed the recommendations and anchor the similarity
	// score; a feature ranking over searched tracks needs neither.
	var reference *feature.Table
	if req.Search == "" || req.Feature == "" {
		table, skipped, err := s.referenceTable(ctx, logger)
		if err != nil {
			return nil, err
		}
		reference = table
		result.ReferenceTracks = table.Len()
		result.Skipped += skipped
	}

	candidates, skipped, err := s.candidateTable(ctx, logger, req, reference, rng)
	if err != nil {
		return nil, err
	}
	result.Skipped += skipped
	result.CandidateTracks = candidates.Len()
	if candidates.Len() == 0 {
		return nil, ErrNoCandidates
	}

	scores, err := s.score(req, reference, candidates)
	if err != nil {
		return nil, err
	}
	all := scores.Clone()

	ids, err := ranking.Select(scores, req.Policy, req.Count, rng)
	if err != nil {
		return nil, fmt.Errorf("selecting tracks: %w", err)
	}

	tracks := make(map[string]feature.Track, candidates.Len())
	for _, t := range candidates.Tracks() {
		tracks[t.TrackID] = t
	}
	for _, id := range ids {
		score, _ := all.Score(id)
		result.Picks = append(result.Picks, Pick{Track: tracks[id], Score: score})
	}

	if req.DryRun {
		logger.Info().Int("picked", len(ids)).Msg("dry run, playlist left untouched")
		return result, nil
	}

	if err := s.write(ctx, logger, req.Playlist, ids, result); err != nil {
		return nil, err
	}

	logger.Info().
		Str("playlist_id", result.PlaylistID).
		Int("added", len(ids)).
		Msg("selection complete")
	return result, nil
}

// ReferenceTable builds the feature table of the user's saved tracks.
func (s *Service) ReferenceTable(ctx context.Context) (*feature.Table, error) {
	table, _, err := s.referenceTable(ctx, s.logger)
	return table, err
}

func (s *Service) referenceTable(ctx context.Context, logger zerolog.Logger) (*feature.Table, int, error) {
	entries, err := s.catalog.FetchSavedTracks(ctx, s.limits.SavedTracks)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching saved tracks: %w", err)
	}
	return s.buildTable(ctx, logger, "saved", entries)
}

func (s *Service) candidateTable(ctx context.Context, logger zerolog.Logger, req Request, reference *feature.Table, rng *rand.Rand) (*feature.Table, int, error) {
	if req.Search == "" {
		seeds, err := seeding.Pick(reference, req.SeedStrategy, s.limits.Seeds, rng)
		if err != nil {
			return nil, 0, fmt.Errorf("picking seeds: %w", err)
		}
		if len(seeds) == 0 {
			return nil, 0, fmt.Errorf("%w: no saved tracks to seed recommendations", ranking.ErrEmptyReference)
		}
		logger.Debug().Strs("seeds", seeds).Str("strategy", req.SeedStrategy.String()).Msg("picked seeds")

		entries, err := s.catalog.FetchRecommendations(ctx, seeds, s.limits.Recommendations)
		if err != nil {
			return nil, 0, fmt.Errorf("fetching recommendations: %w", err)
		}
		return s.buildTable(ctx, logger, "recommendations", entries)
	}

	refs, err := s.catalog.Search(ctx, req.Search, req.SearchKind, s.limits.SearchResults)
	if err != nil {
		return nil, 0, fmt.Errorf("searching: %w", err)
	}
	if len(refs) == 0 {
		return nil, 0, fmt.Errorf("%w: %s %q", ErrNoSearchResults, req.SearchKind, req.Search)
	}

	var (
		tables  []*feature.Table
		skipped int
	)
	for _, ref := range refs {
		entries, err := s.catalog.FetchCollectionTracks(ctx, ref)
		if err != nil {
			return nil, 0, fmt.Errorf("fetching tracks of %s %q: %w", ref.Kind, ref.Name, err)
		}
		table, n, err := s.buildTable(ctx, logger, ref.Name, entries)
		if err != nil {
			return nil, 0, err
		}
		skipped += n
		// A collection without any analyzable track has no feature columns.
		if table.Len() > 0 {
			tables = append(tables, table)
		}
	}

	merged, dups, err := feature.Concat(tables...)
	if err != nil {
		return nil, 0, fmt.Errorf("merging searched collections: %w", err)
	}
	if len(dups) > 0 {
		logger.Warn().Int("count", len(dups)).Msg("dropped tracks found in more than one collection")
	}
	return merged, skipped + len(dups), nil
}

// buildTable parses entries, appends features and logs what was dropped.
func (s *Service) buildTable(ctx context.Context, logger zerolog.Logger, source string, entries []feature.RawEntry) (*feature.Table, int, error) {
	built := feature.Build(entries)
	if len(built.Skipped) > 0 {
		logger.Warn().
			Str("source", source).
			Int("count", len(built.Skipped)).
			Msg("skipped malformed catalog entries")
	}

	res, err := feature.AppendFeatures(ctx, built.Table, s.fetcher)
	if err != nil {
		return nil, 0, fmt.Errorf("building %s table: %w", source, err)
	}
	if len(res.Dropped) > 0 {
		logger.Warn().
			Str("source", source).
			Int("count", len(res.Dropped)).
			Msg("dropped tracks without audio features")
	}

	logger.Info().Str("source", source).Int("tracks", res.Table.Len()).Msg("built feature table")
	return res.Table, len(built.Skipped) + len(res.Dropped), nil
}

func (s *Service) score(req Request, reference, candidates *feature.Table) (*ranking.ScoreMap, error) {
	if req.Feature != "" {
		scores, err := ranking.ScoreBySingleFeature(candidates, req.Feature)
		if err != nil {
			return nil, fmt.Errorf("scoring by %s: %w", req.Feature, err)
		}
		return scores, nil
	}

	if reference.Len() == 0 {
		return nil, fmt.Errorf("%w: no saved tracks with audio features", ranking.ErrEmptyReference)
	}
	m, err := ranking.Similarity(candidates, reference, req.Similarity)
	if err != nil {
		return nil, fmt.Errorf("computing similarity: %w", err)
	}
	scores, err := ranking.ScoreByAggregateSimilarity(m)
	if err != nil {
		return nil, fmt.Errorf("scoring by similarity: %w", err)
	}
	return scores, nil
}

// write finds or creates the target playlist and adds the picks.
func (s *Service) write(ctx context.Context, logger zerolog.Logger, name string, ids []string, result *Result) error {
	id, found, err := s.catalog.FindPlaylist(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up playlist %q: %w", name, err)
	}
	if !found {
		id, err = s.catalog.CreatePlaylist(ctx, name)
		if err != nil {
			return fmt.Errorf("creating playlist %q: %w", name, err)
		}
		result.PlaylistCreated = true
		logger.Info().Str("playlist", name).Msg("created playlist")
	}
	result.PlaylistID = id

	if err := s.catalog.AddTracksToPlaylist(ctx, id, ids); err != nil {
		return fmt.Errorf("adding tracks to playlist %q: %w", name, err)
	}
	return nil
}
