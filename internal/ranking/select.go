package ranking

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Selection errors.
var (
	// ErrInvalidCount is returned for a negative selection count.
	ErrInvalidCount = errors.New("selection count must not be negative")

	// ErrNotEnoughTracks is returned when more tracks are requested than scored.
	ErrNotEnoughTracks = errors.New("not enough scored tracks")
)

// Select picks count ids from scores under policy and removes each pick
// from scores. Ties go to the earliest inserted id. rng is only used by
// Random and may be nil otherwise.
func Select(scores *ScoreMap, policy Policy, count int, rng *rand.Rand) ([]string, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if count > scores.Len() {
		return nil, fmt.Errorf("%w: requested %d, have %d", ErrNotEnoughTracks, count, scores.Len())
	}

	var pick func() int
	switch policy {
	case Maximize:
		pick = func() int { return extreme(scores, func(a, b float64) bool { return a > b }) }
	case Minimize:
		pick = func() int { return extreme(scores, func(a, b float64) bool { return a < b }) }
	case Random:
		if rng == nil {
			return nil, fmt.Errorf("%w: random selection needs a source", ErrUnsupportedPolicy)
		}
		pick = func() int { return rng.IntN(scores.Len()) }
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPolicy, policy)
	}

	selected := make([]string, 0, count)
	for range count {
		selected = append(selected, scores.remove(pick()))
	}
	return selected, nil
}

// extreme returns the position of the first id whose score beats every
// other under better.
func extreme(scores *ScoreMap, better func(a, b float64) bool) int {
	best := 0
	for i, id := range scores.order {
		if better(scores.scores[id], scores.scores[scores.order[best]]) {
			best = i
		}
	}
	return best
}
