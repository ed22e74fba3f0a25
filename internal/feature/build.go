package feature

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Precondition errors returned by AppendFeatures.
var (
	// ErrFeatureCountMismatch is returned when the fetcher does not return
	// exactly one record per requested track.
	ErrFeatureCountMismatch = errors.New("feature record count does not match row count")

	// ErrFeaturesPresent is returned when features are appended twice.
	ErrFeaturesPresent = errors.New("table already has feature columns")

	// ErrSchemaMismatch is returned when records disagree on their field names.
	ErrSchemaMismatch = errors.New("feature records have different schemas")

	// ErrNonNumericFeature is returned when a feature field is not a number.
	ErrNonNumericFeature = errors.New("non-numeric feature value")

	// ErrRecordIDMismatch is returned when a record describes a different
	// track than the row it was requested for.
	ErrRecordIDMismatch = errors.New("feature record belongs to another track")
)

// Skip reasons reported by Build.
const (
	ReasonMissingTrack = "missing track object"
	ReasonMissingID    = "missing track id"
	ReasonNoArtist     = "no credited artist"
	ReasonDuplicate    = "duplicate track id"
)

// Skip describes a raw entry that did not become a row.
type Skip struct {
	Index  int
	Reason string
}

// BuildResult holds the rows that survived parsing and the entries that did not.
type BuildResult struct {
	Table   *Table
	Skipped []Skip
}

// Build parses raw entries into a table without feature columns.
// Malformed entries are skipped and reported, input order is kept.
func Build(entries []RawEntry) BuildResult {
	var (
		rows    []Row
		skipped []Skip
		seen    = make(map[string]struct{}, len(entries))
	)

	for i, e := range entries {
		track, reason := extractTrack(e)
		if reason == "" {
			if _, dup := seen[track.TrackID]; dup {
				reason = ReasonDuplicate
			}
		}
		if reason != "" {
			skipped = append(skipped, Skip{Index: i, Reason: reason})
			continue
		}
		seen[track.TrackID] = struct{}{}
		rows = append(rows, Row{Track: track})
	}

	return BuildResult{
		Table:   &Table{rows: rows},
		Skipped: skipped,
	}
}

// extractTrack pulls the identity fields out of an entry.
// Returns a non-empty reason when the entry is malformed.
func extractTrack(e RawEntry) (Track, string) {
	t := e.Track
	switch {
	case t == nil:
		return Track{}, ReasonMissingTrack
	case t.ID == "":
		return Track{}, ReasonMissingID
	case len(t.Artists) == 0:
		return Track{}, ReasonNoArtist
	}

	return Track{
		TrackName:  t.Name,
		TrackID:    t.ID,
		Artist:     t.Artists[0],
		Album:      t.Album,
		Duration:   t.DurationMs,
		Popularity: t.Popularity,
	}, ""
}

// AppendResult holds the table with feature columns and the ids of rows
// dropped because the catalog had no features for them.
type AppendResult struct {
	Table   *Table
	Dropped []string
}

// AppendFeatures fetches audio features for every row and returns a new
// table with the numeric feature columns appended.
func AppendFeatures(ctx context.Context, table *Table, fetcher Fetcher) (AppendResult, error) {
	if table.HasFeatures() {
		return AppendResult{}, ErrFeaturesPresent
	}
	if table.Len() == 0 {
		return AppendResult{Table: &Table{}}, nil
	}

	ids := table.TrackIDs()
	records, err := fetcher.FetchAudioFeatures(ctx, ids)
	if err != nil {
		return AppendResult{}, fmt.Errorf("fetching audio features: %w", err)
	}
	if len(records) != len(ids) {
		return AppendResult{}, fmt.Errorf("%w: got %d records for %d tracks", ErrFeatureCountMismatch, len(records), len(ids))
	}

	var schema []string
	for _, rec := range records {
		if rec != nil {
			schema = rec.Names()
			break
		}
	}

	var (
		columns []string
		rows    []Row
		dropped []string
	)
	if schema != nil {
		columns = featureColumns(schema)
	}

	for i, rec := range records {
		track := table.rows[i].Track
		if rec == nil {
			dropped = append(dropped, track.TrackID)
			continue
		}
		if !slices.Equal(rec.Names(), schema) {
			return AppendResult{}, fmt.Errorf("%w: track %q has %v, want %v", ErrSchemaMismatch, track.TrackID, rec.Names(), schema)
		}
		if id, ok := rec.Lookup("id"); ok {
			if s, isString := id.(string); isString && s != "" && s != track.TrackID {
				return AppendResult{}, fmt.Errorf("%w: row %q got record for %q", ErrRecordIDMismatch, track.TrackID, s)
			}
		}

		values := make([]float64, len(columns))
		for j := range columns {
			v, err := toFloat((*rec)[j].Value)
			if err != nil {
				return AppendResult{}, fmt.Errorf("%w: track %q column %q: %v", ErrNonNumericFeature, track.TrackID, columns[j], err)
			}
			values[j] = v
		}
		rows = append(rows, Row{Track: track, Features: values})
	}

	out, err := NewTable(columns, rows)
	if err != nil {
		return AppendResult{}, err
	}
	return AppendResult{Table: out, Dropped: dropped}, nil
}
