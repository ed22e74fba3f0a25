// Package config loads track-ranker settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/justestif/go-spotify-track-ranker/internal/catalog"
	"github.com/justestif/go-spotify-track-ranker/internal/logging"
	"github.com/justestif/go-spotify-track-ranker/internal/ranking"
	"github.com/justestif/go-spotify-track-ranker/internal/seeding"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
)

// configFile is the config location relative to the XDG config home.
const configFile = "track-ranker/config.yaml"

// tokenFile is the default token store relative to the XDG state home.
const tokenFile = "track-ranker/tokens.json"

// Cache backends.
const (
	CacheNone     = "none"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

// DefaultPlaylist is the playlist written when none is named.
const DefaultPlaylist = "My Program Recommendations"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the complete application configuration.
type Config struct {
	Spotify   SpotifyConfig   `yaml:"spotify"`
	Selection SelectionConfig `yaml:"selection"`
	Sources   SourcesConfig   `yaml:"sources"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	Logging   logging.Config  `yaml:"logging"`
}

// SpotifyConfig holds the Spotify application credentials and where the
// CLI keeps its tokens.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenPath    string `yaml:"token_path"`
}

// TokenFile returns TokenPath, or $XDG_STATE_HOME/track-ranker/tokens.json
// when it is unset.
func (s SpotifyConfig) TokenFile() (string, error) {
	if s.TokenPath != "" {
		return s.TokenPath, nil
	}
	path, err := xdg.StateFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("resolving token path: %w", err)
	}
	return path, nil
}

// SelectionConfig holds the defaults for one selection run.
type SelectionConfig struct {
	Playlist     string `yaml:"playlist"`
	Policy       string `yaml:"policy"`
	Feature      string `yaml:"feature"`
	Search       string `yaml:"search"`
	SearchKind   string `yaml:"search_kind"`
	Count        int    `yaml:"count"`
	Metric       string `yaml:"metric"`
	Scaling      string `yaml:"scaling"`
	SeedStrategy string `yaml:"seed_strategy"`
	// DryRun selects without touching playlists; no playlist name is needed.
	DryRun bool `yaml:"dry_run"`
}

// SourcesConfig bounds how many tracks are pulled from each source.
type SourcesConfig struct {
	SavedLimit          int `yaml:"saved_limit"`
	RecommendationLimit int `yaml:"recommendation_limit"`
	SeedCount           int `yaml:"seed_count"`
	SearchLimit         int `yaml:"search_limit"`
	MaxCollectionTracks int `yaml:"max_collection_tracks"`
}

// CacheConfig selects where fetched audio features are kept.
type CacheConfig struct {
	Backend      string        `yaml:"backend"`
	TTL          time.Duration `yaml:"ttl"`
	DatabaseURL  string        `yaml:"database_url"`
	RedisAddress string        `yaml:"redis_address"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Selection: SelectionConfig{
			Playlist:     DefaultPlaylist,
			Policy:       ranking.Maximize.String(),
			SearchKind:   catalog.KindPlaylist.String(),
			Count:        5,
			Metric:       ranking.Cosine.String(),
			Scaling:      ranking.PerTable.String(),
			SeedStrategy: seeding.Window.String(),
		},
		Sources: SourcesConfig{
			SavedLimit:          30,
			RecommendationLimit: 30,
			SeedCount:           5,
			SearchLimit:         2,
			MaxCollectionTracks: 50,
		},
		Cache: CacheConfig{
			Backend:      CacheNone,
			TTL:          30 * 24 * time.Hour,
			RedisAddress: "localhost:6379",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/track-ranker/config.yaml.
func DefaultPath() (string, error) {
	path, err := xdg.ConfigFile(configFile)
	if err != nil {
		return "", fmt.Errorf("resolving config path: %w", err)
	}
	return path, nil
}

// Load reads the defaults, then the file at path when it exists, then the
// environment. It does not validate; callers apply flags first.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

// applyEnv overlays environment variables on the config.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("SPOTIFY_ID", &c.Spotify.ClientID)
	set("SPOTIFY_SECRET", &c.Spotify.ClientSecret)
	set("SPOTIFY_REDIRECT_URL", &c.Spotify.RedirectURL)
	set("TRACK_RANKER_TOKEN_PATH", &c.Spotify.TokenPath)
	set("DATABASE_URL", &c.Cache.DatabaseURL)
	set("REDIS_ADDRESS", &c.Cache.RedisAddress)
	set("TRACK_RANKER_CACHE", &c.Cache.Backend)
	set("TRACK_RANKER_LOG_LEVEL", &c.Logging.Level)
	set("TRACK_RANKER_LOG_FORMAT", &c.Logging.Format)
}

// Validate checks every setting a run depends on, so bad input fails
// before any remote call.
func (c *Config) Validate() error {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	s := c.Selection
	if strings.TrimSpace(s.Playlist) == "" && !s.DryRun {
		check(errors.New("playlist name is empty"))
	}
	if s.Count <= 0 {
		check(fmt.Errorf("count must be positive, got %d", s.Count))
	}
	_, err := ranking.ParsePolicy(s.Policy)
	check(err)
	_, err = ranking.ParseFeature(s.Feature)
	check(err)
	_, err = ranking.ParseMetric(s.Metric)
	check(err)
	_, err = ranking.ParseScaling(s.Scaling)
	check(err)
	_, err = seeding.ParseStrategy(s.SeedStrategy)
	check(err)
	_, err = catalog.ParseKind(s.SearchKind)
	check(err)

	src := c.Sources
	for _, limit := range []struct {
		name  string
		value int
	}{
		{"saved_limit", src.SavedLimit},
		{"recommendation_limit", src.RecommendationLimit},
		{"seed_count", src.SeedCount},
		{"search_limit", src.SearchLimit},
		{"max_collection_tracks", src.MaxCollectionTracks},
	} {
		if limit.value <= 0 {
			check(fmt.Errorf("sources.%s must be positive, got %d", limit.name, limit.value))
		}
	}
	if src.SeedCount > 5 {
		check(fmt.Errorf("sources.seed_count must be at most 5, got %d", src.SeedCount))
	}

	switch c.Cache.Backend {
	case CacheNone:
	case CachePostgres:
		if c.Cache.DatabaseURL == "" {
			check(errors.New("cache backend postgres needs DATABASE_URL"))
		}
	case CacheRedis:
		if c.Cache.RedisAddress == "" {
			check(errors.New("cache backend redis needs REDIS_ADDRESS"))
		}
	default:
		check(fmt.Errorf("unsupported cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend != CacheNone && c.Cache.TTL <= 0 {
		check(fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Request converts the selection settings into a run request.
func (s SelectionConfig) Request() (selector.Request, error) {
	policy, err := ranking.ParsePolicy(s.Policy)
	if err != nil {
		return selector.Request{}, err
	}
	feat, err := ranking.ParseFeature(s.Feature)
	if err != nil {
		return selector.Request{}, err
	}
	metric, err := ranking.ParseMetric(s.Metric)
	if err != nil {
		return selector.Request{}, err
	}
	scaling, err := ranking.ParseScaling(s.Scaling)
	if err != nil {
		return selector.Request{}, err
	}
	strategy, err := seeding.ParseStrategy(s.SeedStrategy)
	if err != nil {
		return selector.Request{}, err
	}
	kind, err := catalog.ParseKind(s.SearchKind)
	if err != nil {
		return selector.Request{}, err
	}

	return selector.Request{
		Playlist:     strings.TrimSpace(s.Playlist),
		Policy:       policy,
		Feature:      feat,
		Search:       strings.TrimSpace(s.Search),
		SearchKind:   kind,
		Count:        s.Count,
		Similarity:   ranking.SimilarityOptions{Metric: metric, Scaling: scaling},
		SeedStrategy: strategy,
		DryRun:       s.DryRun,
	}, nil
}

// Limits converts the source bounds into selector limits.
func (s SourcesConfig) Limits() selector.Limits {
	return selector.Limits{
		SavedTracks:     s.SavedLimit,
		Recommendations: s.RecommendationLimit,
		Seeds:           s.SeedCount,
		SearchResults:   s.SearchLimit,
	}
}
