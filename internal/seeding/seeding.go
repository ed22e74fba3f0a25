// Package seeding picks the seed tracks used to request recommendations.
package seeding

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/muesli/clusters"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/ranking"
)

// Strategy chooses how seeds are drawn from the reference set.
type Strategy int

const (
	// Window takes consecutive tracks starting at a random offset.
	Window Strategy = iota
	// Cluster runs k-means over the reference features and takes the
	// track closest to each centroid. Initial centers are drawn from the
	// random source, so a seeded source gives the same seeds every time.
	Cluster
)

// ParseStrategy parses "window" and "cluster".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "window":
		return Window, nil
	case "cluster":
		return Cluster, nil
	default:
		return 0, fmt.Errorf("unsupported seed strategy %q", s)
	}
}

func (s Strategy) String() string {
	if s == Cluster {
		return "cluster"
	}
	return "window"
}

// Pick returns up to count seed track ids from table.
// Tables with count or fewer rows yield every id.
func Pick(table *feature.Table, strategy Strategy, count int, rng *rand.Rand) ([]string, error) {
	ids := table.TrackIDs()
	if count <= 0 {
		return nil, nil
	}
	if len(ids) <= count {
		return ids, nil
	}

	if rng == nil {
		return nil, fmt.Errorf("%v seeding needs a random source", strategy)
	}

	switch strategy {
	case Window:
		start := rng.IntN(len(ids) - count)
		return ids[start : start+count], nil
	case Cluster:
		return pickCentroids(table, count, rng)
	default:
		return nil, fmt.Errorf("unsupported seed strategy %v", strategy)
	}
}

// trackObservation wraps a row to implement clusters.Observation.
type trackObservation struct {
	id     string
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// pickCentroids clusters the normalized rows into count groups and takes
// the member nearest each centroid. Clusters that come back empty are
// backfilled with unused ids in table order.
func pickCentroids(table *feature.Table, count int, rng *rand.Rand) ([]string, error) {
	rows, err := ranking.Normalize(table)
	if err != nil {
		return nil, fmt.Errorf("normalizing reference features: %w", err)
	}

	ids := table.TrackIDs()
	obs := make(clusters.Observations, len(rows))
	for i, row := range rows {
		obs[i] = trackObservation{id: ids[i], coords: clusters.Coordinates(row)}
	}

	result := partition(obs, count, rng)

	seeds := make([]string, 0, count)
	used := make(map[string]bool, count)
	for _, c := range result {
		var (
			best     string
			bestDist float64
		)
		for _, o := range c.Observations {
			to, ok := o.(trackObservation)
			if !ok {
				continue
			}
			d := to.Distance(c.Center)
			if best == "" || d < bestDist {
				best, bestDist = to.id, d
			}
		}
		if best != "" && !used[best] {
			seeds = append(seeds, best)
			used[best] = true
		}
	}

	for _, id := range ids {
		if len(seeds) == count {
			break
		}
		if !used[id] {
			seeds = append(seeds, id)
			used[id] = true
		}
	}
	return seeds, nil
}

// maxIterations bounds the k-means refinement loop.
const maxIterations = 100

// partition runs k-means over obs. Centers start from k-means++ picks
// drawn from rng and move until no observation changes cluster.
func partition(obs clusters.Observations, k int, rng *rand.Rand) clusters.Clusters {
	cc := initialCenters(obs, k, rng)

	assigned := make([]int, len(obs))
	for i := range assigned {
		assigned[i] = -1
	}

	for range maxIterations {
		cc.Reset()
		changes := 0
		for i, o := range obs {
			ci := cc.Nearest(o)
			cc[ci].Append(o)
			if assigned[i] != ci {
				assigned[i] = ci
				changes++
			}
		}
		if changes == 0 {
			break
		}
		// Empty clusters keep their previous center.
		cc.Recenter()
	}
	return cc
}

// initialCenters picks k distinct observations as starting centers. The
// first is uniform, each next one is drawn with probability proportional
// to its squared distance from the nearest chosen center. When every
// remaining observation sits on a chosen center, the next unchosen one in
// order is taken.
func initialCenters(obs clusters.Observations, k int, rng *rand.Rand) clusters.Clusters {
	chosen := make([]bool, len(obs))
	first := rng.IntN(len(obs))
	chosen[first] = true
	cc := clusters.Clusters{{Center: obs[first].Coordinates()}}

	// Distance is already squared Euclidean.
	nearest := make([]float64, len(obs))
	for i, o := range obs {
		nearest[i] = o.Distance(cc[0].Center)
	}

	for len(cc) < k {
		var total float64
		for i, d := range nearest {
			if !chosen[i] {
				total += d
			}
		}

		next := -1
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range nearest {
				if chosen[i] || d == 0 {
					continue
				}
				next = i
				if target < d {
					break
				}
				target -= d
			}
		} else {
			for i := range obs {
				if !chosen[i] {
					next = i
					break
				}
			}
		}

		chosen[next] = true
		center := obs[next].Coordinates()
		cc = append(cc, clusters.Cluster{Center: center})
		for i, o := range obs {
			nearest[i] = min(nearest[i], o.Distance(center))
		}
	}
	return cc
}
