package ranking

import (
	"fmt"
	"math"
	"slices"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// ExcludedColumns are categorical features left out of similarity.
var ExcludedColumns = []string{"key", "mode"}

// SimilarityOptions configures Similarity.
type SimilarityOptions struct {
	Metric  Metric
	Scaling Scaling
}

// Matrix holds pairwise similarities. Values[i][j] compares the track
// RowIDs[i] with the track ColIDs[j].
type Matrix struct {
	RowIDs []string
	ColIDs []string
	Values [][]float64
}

// Similarity compares every row of a with every row of b on the shared
// continuous feature columns.
func Similarity(a, b *feature.Table, opts SimilarityOptions) (*Matrix, error) {
	if !feature.SameColumns(a, b) {
		return nil, fmt.Errorf("%w: %v vs %v", feature.ErrColumnMismatch, a.FeatureColumns(), b.FeatureColumns())
	}

	columns := comparedColumns(a.FeatureColumns())
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no continuous feature columns to compare", feature.ErrColumnMismatch)
	}

	ma, err := a.Matrix(columns)
	if err != nil {
		return nil, err
	}
	mb, err := b.Matrix(columns)
	if err != nil {
		return nil, err
	}

	switch opts.Scaling {
	case PerTable:
		ma = minMaxScale(ma, columnBounds(ma))
		mb = minMaxScale(mb, columnBounds(mb))
	case Shared:
		bounds := columnBounds(slices.Concat(ma, mb))
		ma = minMaxScale(ma, bounds)
		mb = minMaxScale(mb, bounds)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScaling, opts.Scaling)
	}

	var kernel func(x, y []float64) float64
	switch opts.Metric {
	case Linear:
		kernel = dot
	case Cosine:
		kernel = cosine
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMetric, opts.Metric)
	}

	values := make([][]float64, len(ma))
	for i, x := range ma {
		values[i] = make([]float64, len(mb))
		for j, y := range mb {
			values[i][j] = kernel(x, y)
		}
	}

	return &Matrix{
		RowIDs: a.TrackIDs(),
		ColIDs: b.TrackIDs(),
		Values: values,
	}, nil
}

// Normalize returns the table's continuous feature columns min-max scaled
// by the table's own bounds, one slice per row.
func Normalize(t *feature.Table) ([][]float64, error) {
	columns := comparedColumns(t.FeatureColumns())
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no continuous feature columns", feature.ErrColumnMismatch)
	}
	m, err := t.Matrix(columns)
	if err != nil {
		return nil, err
	}
	return minMaxScale(m, columnBounds(m)), nil
}

// comparedColumns drops the categorical columns.
func comparedColumns(columns []string) []string {
	return slices.DeleteFunc(columns, func(c string) bool {
		return slices.Contains(ExcludedColumns, c)
	})
}

type bound struct{ min, max float64 }

// columnBounds returns the minimum and maximum of every column.
func columnBounds(m [][]float64) []bound {
	if len(m) == 0 {
		return nil
	}
	bounds := make([]bound, len(m[0]))
	for j := range bounds {
		bounds[j] = bound{min: math.Inf(1), max: math.Inf(-1)}
	}
	for _, row := range m {
		for j, v := range row {
			bounds[j].min = min(bounds[j].min, v)
			bounds[j].max = max(bounds[j].max, v)
		}
	}
	return bounds
}

// minMaxScale maps every column onto [0,1]. Constant columns become 0.
func minMaxScale(m [][]float64, bounds []bound) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			span := bounds[j].max - bounds[j].min
			if span == 0 {
				continue
			}
			out[i][j] = (v - bounds[j].min) / span
		}
	}
	return out
}

func dot(x, y []float64) float64 {
	var sum float64
	for i := range x {
		sum += x[i] * y[i]
	}
	return sum
}

// cosine returns 0 when either vector is all zeros.
func cosine(x, y []float64) float64 {
	nx, ny := math.Sqrt(dot(x, x)), math.Sqrt(dot(y, y))
	if nx == 0 || ny == 0 {
		return 0
	}
	return dot(x, y) / (nx * ny)
}
