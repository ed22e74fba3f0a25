// Package catalog defines the remote music catalog the ranker depends on.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// Kind is the type of collection a search returns.
type Kind int

const (
	// KindPlaylist searches playlists.
	KindPlaylist Kind = iota
	// KindAlbum searches albums.
	KindAlbum
)

// ParseKind parses "playlist" and "album".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playlist":
		return KindPlaylist, nil
	case "album":
		return KindAlbum, nil
	default:
		return 0, fmt.Errorf("unsupported search kind %q", s)
	}
}

func (k Kind) String() string {
	if k == KindAlbum {
		return "album"
	}
	return "playlist"
}

// CollectionRef identifies a playlist or album found by search.
type CollectionRef struct {
	ID   string
	Name string
	Kind Kind
}

// Catalog is the remote service holding the user's library, search,
// recommendations and playlists. Implementations own retries.
type Catalog interface {
	feature.Fetcher

	// FetchSavedTracks returns up to limit tracks from the user's library.
	FetchSavedTracks(ctx context.Context, limit int) ([]feature.RawEntry, error)

	// FetchRecommendations returns up to limit tracks seeded by seedIDs.
	FetchRecommendations(ctx context.Context, seedIDs []string, limit int) ([]feature.RawEntry, error)

	// Search returns up to limit collections matching query.
	Search(ctx context.Context, query string, kind Kind, limit int) ([]CollectionRef, error)

	// FetchCollectionTracks returns the tracks of a collection.
	FetchCollectionTracks(ctx context.Context, ref CollectionRef) ([]feature.RawEntry, error)

	// FindPlaylist looks up one of the user's playlists by exact name.
	FindPlaylist(ctx context.Context, name string) (id string, found bool, err error)

	// CreatePlaylist creates a playlist for the user and returns its id.
	CreatePlaylist(ctx context.Context, name string) (string, error)

	// AddTracksToPlaylist appends tracks to a playlist.
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}
