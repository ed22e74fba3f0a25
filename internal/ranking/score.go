package ranking

import (
	"errors"
	"fmt"
	"slices"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// Precondition errors.
var (
	// ErrDuplicateTrack is returned when a score map would hold a track twice.
	ErrDuplicateTrack = errors.New("duplicate track id in scores")

	// ErrEmptyReference is returned when candidates are compared with nothing.
	ErrEmptyReference = errors.New("reference set is empty")

	// ErrMalformedMatrix is returned when a matrix disagrees with its ids.
	ErrMalformedMatrix = errors.New("similarity matrix shape does not match its ids")
)

// ScoreMap maps track ids to scores. It remembers insertion order, which
// breaks ties during selection.
type ScoreMap struct {
	order  []string
	scores map[string]float64
}

// NewScoreMap returns an empty score map.
func NewScoreMap() *ScoreMap {
	return &ScoreMap{scores: make(map[string]float64)}
}

// Add inserts a score. Adding an id twice is an error.
func (s *ScoreMap) Add(id string, score float64) error {
	if _, ok := s.scores[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTrack, id)
	}
	s.order = append(s.order, id)
	s.scores[id] = score
	return nil
}

// Len returns the number of remaining ids.
func (s *ScoreMap) Len() int {
	return len(s.order)
}

// Score returns the score of id.
func (s *ScoreMap) Score(id string) (float64, bool) {
	v, ok := s.scores[id]
	return v, ok
}

// IDs returns the remaining ids in insertion order.
func (s *ScoreMap) IDs() []string {
	return slices.Clone(s.order)
}

// Clone returns an independent copy.
func (s *ScoreMap) Clone() *ScoreMap {
	c := &ScoreMap{
		order:  slices.Clone(s.order),
		scores: make(map[string]float64, len(s.scores)),
	}
	for k, v := range s.scores {
		c.scores[k] = v
	}
	return c
}

// remove deletes the id at position i of the insertion order.
func (s *ScoreMap) remove(i int) string {
	id := s.order[i]
	s.order = slices.Delete(s.order, i, i+1)
	delete(s.scores, id)
	return id
}

// ScoreByAggregateSimilarity scores every row of m by its mean similarity
// across all columns. Rows are candidates and columns are the reference
// set; scores are keyed by the row's track id.
func ScoreByAggregateSimilarity(m *Matrix) (*ScoreMap, error) {
	if len(m.Values) != len(m.RowIDs) {
		return nil, fmt.Errorf("%w: %d rows for %d ids", ErrMalformedMatrix, len(m.Values), len(m.RowIDs))
	}
	if len(m.ColIDs) == 0 {
		return nil, ErrEmptyReference
	}

	scores := NewScoreMap()
	for i, row := range m.Values {
		if len(row) != len(m.ColIDs) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d ids", ErrMalformedMatrix, i, len(row), len(m.ColIDs))
		}
		var sum float64
		for _, v := range row {
			sum += v
		}
		if err := scores.Add(m.RowIDs[i], sum/float64(len(row))); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

// ScoreBySingleFeature scores every row by the raw value of one feature.
func ScoreBySingleFeature(table *feature.Table, name string) (*ScoreMap, error) {
	values, err := table.Column(name)
	if err != nil {
		return nil, err
	}

	scores := NewScoreMap()
	for i, id := range table.TrackIDs() {
		if err := scores.Add(id, values[i]); err != nil {
			return nil, err
		}
	}
	return scores, nil
}
