package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-track-ranker/internal/auth"
	"github.com/justestif/go-spotify-track-ranker/internal/cache"
	"github.com/justestif/go-spotify-track-ranker/internal/config"
	"github.com/justestif/go-spotify-track-ranker/internal/db"
	"github.com/justestif/go-spotify-track-ranker/internal/logging"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
	"github.com/justestif/go-spotify-track-ranker/internal/spotify"
)

// app holds what every command needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  selector.FeatureStore
	close  func()
}

// newApp validates cfg, builds the logger and opens the feature store.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, close: closeStore}, nil
}

// openStore connects the configured feature cache. The none backend
// returns a nil store.
func openStore(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (selector.FeatureStore, func(), error) {
	switch cfg.Backend {
	case config.CachePostgres:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}

		repo := database.Features(cfg.TTL)
		removed, err := repo.DeleteStale(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("removing stale audio features")
		} else if removed > 0 {
			logger.Debug().Int64("removed", removed).Msg("removed stale audio features")
		}
		return repo, database.Close, nil

	case config.CacheRedis:
		store, err := cache.NewRedisStore(ctx, cfg.RedisAddress, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing redis")
			}
		}, nil

	default:
		return nil, func() {}, nil
	}
}

func (a *app) credentials() auth.Credentials {
	return auth.Credentials{
		ClientID:     a.cfg.Spotify.ClientID,
		ClientSecret: a.cfg.Spotify.ClientSecret,
		RedirectURL:  a.cfg.Spotify.RedirectURL,
	}
}

// tokenStore opens the configured token file for the configured client.
func tokenStore(cfg config.SpotifyConfig) (*auth.TokenStore, error) {
	if cfg.ClientID == "" {
		return nil, auth.ErrMissingCredentials
	}
	path, err := cfg.TokenFile()
	if err != nil {
		return nil, err
	}
	return auth.NewTokenStore(path, cfg.ClientID), nil
}

// authenticate returns a catalog client for the cached or newly
// authorized user.
func (a *app) authenticate(ctx context.Context) (*spotify.Client, error) {
	tokens, err := tokenStore(a.cfg.Spotify)
	if err != nil {
		return nil, err
	}
	authenticator, err := auth.New(a.credentials(), tokens, a.logger)
	if err != nil {
		return nil, err
	}

	api, err := authenticator.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	return a.catalog(api), nil
}

func (a *app) catalog(api *spotifyapi.Client) *spotify.Client {
	return spotify.New(api, a.logger, spotify.WithMaxCollectionTracks(a.cfg.Sources.MaxCollectionTracks))
}

// newSelector builds a service over client, reading features through the
// store when one is configured.
func (a *app) newSelector(client *spotify.Client) *selector.Service {
	opts := []selector.Option{selector.WithLimits(a.cfg.Sources.Limits())}
	if a.store != nil {
		opts = append(opts, selector.WithFeatureFetcher(selector.NewCachedFetcher(client, a.store, a.logger)))
	}
	return selector.New(client, a.logger, opts...)
}
