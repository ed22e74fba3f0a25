// Package ranking scores candidate tracks against a reference set and
// selects the top, bottom or random N of them.
package ranking

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors.
var (
	// ErrUnsupportedMetric is returned for an unknown similarity metric.
	ErrUnsupportedMetric = errors.New("unsupported similarity metric")

	// ErrUnsupportedScaling is returned for an unknown scaling mode.
	ErrUnsupportedScaling = errors.New("unsupported scaling mode")

	// ErrUnsupportedPolicy is returned for an unknown selection policy.
	ErrUnsupportedPolicy = errors.New("unsupported selection policy")

	// ErrUnsupportedFeature is returned for a feature outside the override set.
	ErrUnsupportedFeature = errors.New("unsupported ranking feature")
)

// Metric is a similarity measure between two feature vectors.
type Metric int

const (
	// Cosine is the cosine of the angle between two vectors.
	Cosine Metric = iota
	// Linear is the plain dot product.
	Linear
)

// ParseMetric parses "cosine" (or "cosine_sim") and "linear".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cosine_sim":
		return Cosine, nil
	case "linear":
		return Linear, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, s)
	}
}

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Linear:
		return "linear"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// Scaling selects how feature columns are min-max normalized before
// comparison.
type Scaling int

const (
	// PerTable scales each table by its own column minimum and maximum.
	PerTable Scaling = iota
	// Shared scales both tables by the minimum and maximum of their union.
	Shared
)

// ParseScaling parses "per-table" and "shared".
func ParseScaling(s string) (Scaling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per-table", "per_table", "pertable":
		return PerTable, nil
	case "shared":
		return Shared, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScaling, s)
	}
}

func (s Scaling) String() string {
	switch s {
	case PerTable:
		return "per-table"
	case Shared:
		return "shared"
	default:
		return fmt.Sprintf("Scaling(%d)", int(s))
	}
}

// Policy decides which remaining track is picked next.
type Policy int

const (
	// Maximize picks the highest remaining score.
	Maximize Policy = iota
	// Minimize picks the lowest remaining score.
	Minimize
	// Random picks uniformly among the remaining tracks.
	Random
)

// ParsePolicy parses "max", "min" and "random".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "max", "maximize":
		return Maximize, nil
	case "min", "minimize":
		return Minimize, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, s)
	}
}

func (p Policy) String() string {
	switch p {
	case Maximize:
		return "max"
	case Minimize:
		return "min"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Features that can replace similarity as the ranking score.
var Features = []string{
	"tempo", "energy", "valence", "liveness", "loudness", "instrumentalness", "acousticness",
}

// ParseFeature validates a single-feature override. The empty string
// means no override.
func ParseFeature(s string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", nil
	}
	for _, f := range Features {
		if f == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedFeature, s, strings.Join(Features, ", "))
}
