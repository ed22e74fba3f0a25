package feature

import (
	"errors"
	"fmt"
	"slices"
)

// Precondition errors.
var (
	// ErrColumnMismatch is returned when two tables that must be compared
	// expose different feature columns.
	ErrColumnMismatch = errors.New("feature columns differ")

	// ErrUnknownColumn is returned when a feature column does not exist.
	ErrUnknownColumn = errors.New("unknown feature column")
)

// Row is a track plus its feature values, ordered like Table.FeatureColumns.
type Row struct {
	Track    Track
	Features []float64
}

// Table is an ordered set of rows sharing one feature-column list.
// Tables are never modified after construction.
type Table struct {
	columns []string
	rows    []Row
}

// NewTable builds a table from rows. Every row must carry one value per
// column and track ids must be unique.
func NewTable(columns []string, rows []Row) (*Table, error) {
	seen := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		if len(r.Features) != len(columns) {
			return nil, fmt.Errorf("row %d has %d feature values, want %d", i, len(r.Features), len(columns))
		}
		if _, dup := seen[r.Track.TrackID]; dup {
			return nil, fmt.Errorf("row %d: duplicate track id %q", i, r.Track.TrackID)
		}
		seen[r.Track.TrackID] = struct{}{}
	}

	t := &Table{
		columns: slices.Clone(columns),
		rows:    make([]Row, len(rows)),
	}
	for i, r := range rows {
		t.rows[i] = Row{Track: r.Track, Features: slices.Clone(r.Features)}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// FeatureColumns returns the feature column names in order.
func (t *Table) FeatureColumns() []string {
	return slices.Clone(t.columns)
}

// Columns returns the identity columns followed by the feature columns.
func (t *Table) Columns() []string {
	return append(slices.Clone(IdentityColumns), t.columns...)
}

// HasFeatures reports whether feature columns have been appended.
func (t *Table) HasFeatures() bool {
	return len(t.columns) > 0
}

// Tracks returns the identity part of every row, in order.
func (t *Table) Tracks() []Track {
	tracks := make([]Track, len(t.rows))
	for i, r := range t.rows {
		tracks[i] = r.Track
	}
	return tracks
}

// TrackIDs returns the track ids in row order.
func (t *Table) TrackIDs() []string {
	ids := make([]string, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.Track.TrackID
	}
	return ids
}

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	r := t.rows[i]
	return Row{Track: r.Track, Features: slices.Clone(r.Features)}
}

// Column returns the raw values of a feature column in row order.
func (t *Table) Column(name string) ([]float64, error) {
	idx := slices.Index(t.columns, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	values := make([]float64, len(t.rows))
	for i, r := range t.rows {
		values[i] = r.Features[idx]
	}
	return values, nil
}

// Matrix returns the values of the named columns, one slice per row.
func (t *Table) Matrix(columns []string) ([][]float64, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		idx[i] = slices.Index(t.columns, name)
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
	}

	m := make([][]float64, len(t.rows))
	for i, r := range t.rows {
		m[i] = make([]float64, len(idx))
		for j, k := range idx {
			m[i][j] = r.Features[k]
		}
	}
	return m, nil
}

// SameColumns reports whether both tables expose identical feature
// columns in the same order.
func SameColumns(a, b *Table) bool {
	return slices.Equal(a.columns, b.columns)
}

// Concat joins tables that share feature columns. Rows whose track id
// already appeared in an earlier row are dropped; their ids are returned.
func Concat(tables ...*Table) (*Table, []string, error) {
	if len(tables) == 0 {
		return &Table{}, nil, nil
	}

	var (
		rows       []Row
		duplicates []string
		seen       = make(map[string]struct{})
	)
	for i, t := range tables {
		if !SameColumns(tables[0], t) {
			return nil, nil, fmt.Errorf("concatenating table %d: %w: %v vs %v", i, ErrColumnMismatch, tables[0].columns, t.columns)
		}
		for _, r := range t.rows {
			if _, dup := seen[r.Track.TrackID]; dup {
				duplicates = append(duplicates, r.Track.TrackID)
				continue
			}
			seen[r.Track.TrackID] = struct{}{}
			rows = append(rows, r)
		}
	}

	out, err := NewTable(tables[0].columns, rows)
	if err != nil {
		return nil, nil, err
	}
	return out, duplicates, nil
}
