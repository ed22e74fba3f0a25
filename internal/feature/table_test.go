package feature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
	"github.com/justestif/go-spotify-track-ranker/internal/feature/featuretest"
)

func TestNewTable(t *testing.T) {
	columns := []string{"energy", "tempo"}

	t.Run("valid rows", func(t *testing.T) {
		table, err := feature.NewTable(columns, []feature.Row{
			{Track: feature.Track{TrackID: "a"}, Features: []float64{0.5, 120}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
	})

	t.Run("wrong number of values", func(t *testing.T) {
		_, err := feature.NewTable(columns, []feature.Row{
			{Track: feature.Track{TrackID: "a"}, Features: []float64{0.5}},
		})
		assert.Error(t, err)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := feature.NewTable(columns, []feature.Row{
			{Track: feature.Track{TrackID: "a"}, Features: []float64{0.5, 120}},
			{Track: feature.Track{TrackID: "a"}, Features: []float64{0.6, 121}},
		})
		assert.Error(t, err)
	})
}

func TestTableIsImmutable(t *testing.T) {
	values := []float64{0.5, 120}
	table, err := feature.NewTable([]string{"energy", "tempo"}, []feature.Row{
		{Track: feature.Track{TrackID: "a"}, Features: values},
	})
	require.NoError(t, err)

	values[0] = 99
	row := table.Row(0)
	row.Features[1] = 99
	cols := table.FeatureColumns()
	cols[0] = "changed"

	assert.Equal(t, []float64{0.5, 120}, table.Row(0).Features)
	assert.Equal(t, []string{"energy", "tempo"}, table.FeatureColumns())
}

func TestTableMatrix(t *testing.T) {
	table := featuretest.Table(map[string]map[string]float64{
		"a": {"energy": 0.2, "tempo": 100},
		"b": {"energy": 0.8, "tempo": 140},
	}, "a", "b")

	m, err := table.Matrix([]string{"tempo", "energy"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{100, 0.2}, {140, 0.8}}, m)

	_, err = table.Matrix([]string{"nope"})
	assert.ErrorIs(t, err, feature.ErrUnknownColumn)
}

func TestConcat(t *testing.T) {
	first := featuretest.Table(map[string]map[string]float64{
		"a": {"tempo": 100},
		"b": {"tempo": 110},
	}, "a", "b")
	second := featuretest.Table(map[string]map[string]float64{
		"b": {"tempo": 999},
		"c": {"tempo": 120},
	}, "b", "c")

	joined, duplicates, err := feature.Concat(first, second)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, joined.TrackIDs())
	assert.Equal(t, []string{"b"}, duplicates)

	tempo, err := joined.Column("tempo")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 110, 120}, tempo)
}

func TestConcatColumnMismatch(t *testing.T) {
	withFeatures := featuretest.Table(nil, "a")
	other, err := feature.NewTable([]string{"energy"}, []feature.Row{
		{Track: feature.Track{TrackID: "b"}, Features: []float64{0.1}},
	})
	require.NoError(t, err)

	_, _, err = feature.Concat(withFeatures, other)
	assert.ErrorIs(t, err, feature.ErrColumnMismatch)
}

func TestConcatEmpty(t *testing.T) {
	joined, duplicates, err := feature.Concat()
	require.NoError(t, err)
	assert.Equal(t, 0, joined.Len())
	assert.Empty(t, duplicates)
}
