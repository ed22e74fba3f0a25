package feature

import (
	"context"
	"fmt"
	"slices"
)

// MetadataFieldCount is the number of trailing non-numeric fields in an
// audio-feature record (type, id, uri, track_href, analysis_url,
// duration_ms, time_signature). They never become feature columns.
const MetadataFieldCount = 7

// Field is one named value of a Record.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Record is an audio-feature record with fields in the order the catalog
// reports them.
type Record []Field

// Fetcher returns one record per id, in request order. A nil record marks
// a track without analyzable audio.
type Fetcher interface {
	FetchAudioFeatures(ctx context.Context, ids []string) ([]*Record, error)
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the value of the named field.
func (r Record) Lookup(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// featureColumns drops the trailing metadata fields from a record schema.
func featureColumns(schema []string) []string {
	if len(schema) <= MetadataFieldCount {
		return nil
	}
	return slices.Clone(schema[:len(schema)-MetadataFieldCount])
}

// toFloat converts a numeric field value to float64.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v of type %T is not numeric", v, v)
	}
}
