package main

import (
	"fmt"
	"strings"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/selector"
)

// formatResult summarizes a run: where the picks went and each pick with
// its score.
func formatResult(result *selector.Result, playlist string, dryRun bool) string {
	var sb strings.Builder

	trackWord := "track"
	if len(result.Picks) != 1 {
		trackWord = "tracks"
	}

	switch {
	case dryRun:
		sb.WriteString(fmt.Sprintf("Selected %d %s (dry run)\n", len(result.Picks), trackWord))
	case result.PlaylistCreated:
		sb.WriteString(fmt.Sprintf("Added %d %s to new playlist %q\n", len(result.Picks), trackWord, playlist))
	default:
		sb.WriteString(fmt.Sprintf("Added %d %s to %q\n", len(result.Picks), trackWord, playlist))
	}

	for _, p := range result.Picks {
		sb.WriteString(fmt.Sprintf("  • \"%s\" - %s (%.4f)\n", p.Track.TrackName, p.Track.Artist, p.Score))
	}

	if result.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("%d tracks skipped without usable features\n", result.Skipped))
	}
	return sb.String()
}

// formatTable prints one line per row: the track followed by its
// feature values.
func formatTable(t *feature.Table) string {
	var sb strings.Builder

	columns := t.FeatureColumns()
	sb.WriteString(fmt.Sprintf("Saved tracks with features: %d\n", t.Len()))
	sb.WriteString(fmt.Sprintf("Features: %s\n", strings.Join(columns, ", ")))

	for i := range t.Len() {
		row := t.Row(i)
		sb.WriteString(fmt.Sprintf("\n\"%s\" - %s\n", row.Track.TrackName, row.Track.Artist))
		for j, name := range columns {
			sb.WriteString(fmt.Sprintf("  %-16s %g\n", name, row.Features[j]))
		}
	}
	return sb.String()
}
