// Package featuretest provides stub fetchers and records for tests.
package featuretest

import (
	"context"
	"fmt"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// NumericFields are the numeric audio-feature fields in catalog order.
var NumericFields = []string{
	"danceability", "energy", "key", "loudness", "mode", "speechiness",
	"acousticness", "instrumentalness", "liveness", "valence", "tempo",
}

// MetadataFields are the trailing metadata fields in catalog order.
var MetadataFields = []string{
	"type", "id", "uri", "track_href", "analysis_url", "duration_ms", "time_signature",
}

// Record builds a record in catalog order. Numeric fields missing from
// values default to 0.
func Record(id string, values map[string]float64) *feature.Record {
	rec := make(feature.Record, 0, len(NumericFields)+len(MetadataFields))
	for _, name := range NumericFields {
		rec = append(rec, feature.Field{Name: name, Value: values[name]})
	}
	rec = append(rec,
		feature.Field{Name: "type", Value: "audio_features"},
		feature.Field{Name: "id", Value: id},
		feature.Field{Name: "uri", Value: "spotify:track:" + id},
		feature.Field{Name: "track_href", Value: "https://api.spotify.com/v1/tracks/" + id},
		feature.Field{Name: "analysis_url", Value: "https://api.spotify.com/v1/audio-analysis/" + id},
		feature.Field{Name: "duration_ms", Value: 200000},
		feature.Field{Name: "time_signature", Value: 4},
	)
	return &rec
}

// Fetcher serves records from a map keyed by track id. Ids without a
// record yield nil. Calls counts FetchAudioFeatures invocations.
type Fetcher struct {
	Records map[string]*feature.Record
	Err     error
	Calls   int
	// Requested holds the ids of every call, in order.
	Requested [][]string
}

// FetchAudioFeatures implements feature.Fetcher.
func (f *Fetcher) FetchAudioFeatures(_ context.Context, ids []string) ([]*feature.Record, error) {
	f.Calls++
	f.Requested = append(f.Requested, append([]string(nil), ids...))
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]*feature.Record, len(ids))
	for i, id := range ids {
		out[i] = f.Records[id]
	}
	return out, nil
}

// Entry builds a well-formed raw entry.
func Entry(id, name, artist string) feature.RawEntry {
	return feature.RawEntry{Track: &feature.RawTrack{
		ID:         id,
		Name:       name,
		Artists:    []string{artist},
		Album:      name + " (album)",
		DurationMs: 180000,
		Popularity: 50,
	}}
}

// Table builds a feature table from raw entries and per-track values.
// It panics on error and is meant for test setup only.
func Table(values map[string]map[string]float64, ids ...string) *feature.Table {
	entries := make([]feature.RawEntry, len(ids))
	records := make(map[string]*feature.Record, len(ids))
	for i, id := range ids {
		entries[i] = Entry(id, "Track "+id, "Artist "+id)
		records[id] = Record(id, values[id])
	}

	built := feature.Build(entries)
	res, err := feature.AppendFeatures(context.Background(), built.Table, &Fetcher{Records: records})
	if err != nil {
		panic(fmt.Sprintf("featuretest.Table: %v", err))
	}
	return res.Table
}
