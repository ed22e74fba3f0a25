package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/justestif/go-spotify-track-ranker/internal/config"
)

// addSelectionFlags registers the flags that override SelectionConfig.
func addSelectionFlags(flags *pflag.FlagSet) {
	flags.StringP("playlist", "p", "", "Playlist to add the selected tracks to")
	flags.String("policy", "", "Selection policy: max, min or random")
	flags.Bool("max", false, "Pick the highest scoring tracks")
	flags.Bool("min", false, "Pick the lowest scoring tracks")
	flags.Bool("random", false, "Pick tracks at random")
	flags.String("feature", "", "Rank by one audio feature instead of similarity")
	flags.String("search", "", "Take candidates from collections matching this query")
	flags.String("search-kind", "", "Collection kind to search: playlist or album")
	flags.IntP("num", "n", 0, "Number of tracks to select")
	flags.String("metric", "", "Similarity metric: cosine or linear")
	flags.String("scaling", "", "Feature scaling: per-table or shared")
	flags.String("seed-strategy", "", "Recommendation seeding: window or cluster")
	flags.Bool("dry-run", false, "Print the selection without changing any playlist")
}

// applySelectionFlags overlays the flags the user set on sel.
func applySelectionFlags(flags *pflag.FlagSet, sel *config.SelectionConfig) error {
	texts := map[string]*string{
		"playlist":      &sel.Playlist,
		"policy":        &sel.Policy,
		"feature":       &sel.Feature,
		"search":        &sel.Search,
		"search-kind":   &sel.SearchKind,
		"metric":        &sel.Metric,
		"scaling":       &sel.Scaling,
		"seed-strategy": &sel.SeedStrategy,
	}
	for name, dst := range texts {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("dry-run") {
		dryRun, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		sel.DryRun = dryRun
	}

	if flags.Changed("num") {
		n, err := flags.GetInt("num")
		if err != nil {
			return err
		}
		sel.Count = n
	}

	var chosen []string
	for _, name := range []string{"max", "min", "random"} {
		on, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		if on {
			chosen = append(chosen, name)
		}
	}
	switch len(chosen) {
	case 0:
	case 1:
		if flags.Changed("policy") && sel.Policy != chosen[0] {
			return fmt.Errorf("--%s conflicts with --policy %s", chosen[0], sel.Policy)
		}
		sel.Policy = chosen[0]
	default:
		return fmt.Errorf("only one of --max, --min and --random may be set, got %v", chosen)
	}
	return nil
}
