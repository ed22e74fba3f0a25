package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// FetchAudioFeatures retrieves audio features for the given track ids.
// The result is aligned with ids; tracks without available audio features
// get a nil record.
// Batches requests to max 100 tracks per request per Spotify API limits.
func (c *Client) FetchAudioFeatures(ctx context.Context, ids []string) ([]*feature.Record, error) {
	records := make([]*feature.Record, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	indexByID := make(map[string]int, len(ids))
	for i, id := range ids {
		indexByID[id] = i
	}

	total := len(ids)
	for i := 0; i < total; i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, total)

		c.logger.Debug().Msgf("fetching audio features %d-%d of %d", i+1, end, total)

		features, err := c.api.GetAudioFeatures(ctx, toIDs(ids[i:end])...)
		if err != nil {
			return nil, fmt.Errorf("fetching audio features (batch %d-%d): %w", i+1, end, err)
		}

		for _, f := range features {
			if f == nil {
				continue // Track has no audio features
			}
			idx, ok := indexByID[f.ID.String()]
			if !ok {
				continue
			}
			records[idx] = convertAudioFeatures(f)
		}
	}

	return records, nil
}

// convertAudioFeatures lays out a features object in the catalog's field
// order: the numeric features first, then the trailing metadata.
func convertAudioFeatures(f *spotify.AudioFeatures) *feature.Record {
	return &feature.Record{
		{Name: "danceability", Value: float64(f.Danceability)},
		{Name: "energy", Value: float64(f.Energy)},
		{Name: "key", Value: int(f.Key)},
		{Name: "loudness", Value: float64(f.Loudness)},
		{Name: "mode", Value: int(f.Mode)},
		{Name: "speechiness", Value: float64(f.Speechiness)},
		{Name: "acousticness", Value: float64(f.Acousticness)},
		{Name: "instrumentalness", Value: float64(f.Instrumentalness)},
		{Name: "liveness", Value: float64(f.Liveness)},
		{Name: "valence", Value: float64(f.Valence)},
		{Name: "tempo", Value: float64(f.Tempo)},
		{Name: "type", Value: "audio_features"},
		{Name: "id", Value: f.ID.String()},
		{Name: "uri", Value: string(f.URI)},
		{Name: "track_href", Value: f.TrackURL},
		{Name: "analysis_url", Value: f.AnalysisURL},
		{Name: "duration_ms", Value: int(f.Duration)},
		{Name: "time_signature", Value: int(f.TimeSignature)},
	}
}
