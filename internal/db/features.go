package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

// FeatureRepository stores audio-feature records keyed by track ID.
// Rows older than the TTL are treated as missing.
type FeatureRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// GetFeatures returns the fresh records stored for ids. IDs without a
// fresh row are absent from the map.
func (r *FeatureRepository) GetFeatures(ctx context.Context, ids []string) (map[string]*feature.Record, error) {
	result := make(map[string]*feature.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT track_id, record
		FROM audio_features
		WHERE track_id = ANY($1) AND fetched_at >= $2
	`
	rows, err := r.pool.Query(ctx, query, ids, r.now().Add(-r.ttl))
	if err != nil {
		return nil, fmt.Errorf("querying audio features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning audio features: %w", err)
		}
		var rec feature.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding audio features for %s: %w", id, err)
		}
		result[id] = &rec
	}
	return result, rows.Err()
}

// PutFeatures inserts or refreshes records in one statement.
// Nil records are skipped.
func (r *FeatureRepository) PutFeatures(ctx context.Context, records map[string]*feature.Record) error {
	ids := make([]string, 0, len(records))
	payloads := make([]string, 0, len(records))
	for id, rec := range records {
		if rec == nil {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding audio features for %s: %w", id, err)
		}
		ids = append(ids, id)
		payloads = append(payloads, string(data))
	}
	if len(ids) == 0 {
		return nil
	}

	query := `
		INSERT INTO audio_features (track_id, record, fetched_at)
		SELECT id, rec::jsonb, $3 FROM unnest($1::text[], $2::text[]) AS t(id, rec)
		ON CONFLICT (track_id) DO UPDATE SET
			record = EXCLUDED.record,
			fetched_at = EXCLUDED.fetched_at
	`
	_, err := r.pool.Exec(ctx, query, ids, payloads, r.now())
	if err != nil {
		return fmt.Errorf("batch upserting audio features: %w", err)
	}
	return nil
}

// DeleteStale removes rows older than the TTL and returns how many went.
func (r *FeatureRepository) DeleteStale(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audio_features WHERE fetched_at < $1`, r.now().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("deleting stale audio features: %w", err)
	}
	return tag.RowsAffected(), nil
}
