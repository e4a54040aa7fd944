package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

const alertColumns = `
	alert_id, type, subtype, reported_by, description,
	country, city, state, street,
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lon,
	reliability, confidence, thumbs_up, published_at, created_at`

// AlertRepo implements ports.AlertRepository with pgx and PostGIS.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new AlertRepo.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// UpsertBatch inserts or replaces alerts by alert id using pgx.Batch.
func (r *AlertRepo) UpsertBatch(ctx context.Context, alerts []domain.Alert) error {
	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(`
			INSERT INTO police_alerts (alert_id, type, subtype, reported_by, description,
				country, city, state, street, location,
				reliability, confidence, thumbs_up, published_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
				ST_SetSRID(ST_MakePoint($10, $11), 4326)::geography,
				$12, $13, $14, $15)
			ON CONFLICT (alert_id) DO UPDATE
			SET type = EXCLUDED.type, subtype = EXCLUDED.subtype,
			    reported_by = EXCLUDED.reported_by, description = EXCLUDED.description,
			    country = EXCLUDED.country, city = EXCLUDED.city, state = EXCLUDED.state,
			    street = EXCLUDED.street, location = EXCLUDED.location,
			    reliability = EXCLUDED.reliability, confidence = EXCLUDED.confidence,
			    thumbs_up = EXCLUDED.thumbs_up, published_at = EXCLUDED.published_at
		`, a.ID, a.Type, a.Subtype, a.ReportedBy, a.Description,
			a.Country, a.City, a.State, a.Street,
			a.Location.Lon, a.Location.Lat,
			a.Reliability, a.Confidence, a.ThumbsUp, a.PublishedAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range alerts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByID returns an alert by its feed id.
func (r *AlertRepo) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM police_alerts WHERE alert_id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindInBounds returns alerts inside q.Bounds published at or after q.Since,
// newest first.
func (r *AlertRepo) FindInBounds(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM police_alerts
		WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography
		  AND published_at >= $5
		  AND ($6::text = '' OR subtype = $6)
		ORDER BY published_at DESC
		LIMIT $7
	`, q.Bounds.MinLon, q.Bounds.MinLat, q.Bounds.MaxLon, q.Bounds.MaxLat,
		q.Since, string(q.Category), q.Limit)
	if err != nil {
		return nil, err
	}
	return collectAlerts(rows)
}

// FindNearby returns alerts within radiusMeters using PostGIS ST_DWithin,
// closest first.
func (r *AlertRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, since time.Time, limit int) ([]domain.Alert, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+alertColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
		FROM police_alerts
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		  AND published_at >= $4
		ORDER BY distance
		LIMIT $5
	`, lon, lat, radiusMeters, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var dist float64
		if err := rows.Scan(append(alertDest(&a), &dist)...); err != nil {
			return nil, err
		}
		a.Distance = &dist
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListRecent returns a page of alerts published since, newest first, and the
// total number of matching alerts.
func (r *AlertRepo) ListRecent(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM police_alerts WHERE published_at >= $1`, since,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recent: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM police_alerts
		WHERE published_at >= $1
		ORDER BY published_at DESC, alert_id
		OFFSET $2 LIMIT $3
	`, since, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	alerts, err := collectAlerts(rows)
	return alerts, total, err
}

// Count returns the exact number of stored alerts.
func (r *AlertRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM police_alerts`).Scan(&n)
	return n, err
}

// StatsByState aggregates alerts published since per state.
func (r *AlertRepo) StatsByState(ctx context.Context, since time.Time) ([]domain.StateStats, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT state,
		       count(*),
		       COALESCE(avg(reliability), 0),
		       COALESCE(avg(confidence), 0),
		       COALESCE(sum(thumbs_up), 0),
		       avg(ST_Y(location::geometry)),
		       avg(ST_X(location::geometry))
		FROM police_alerts
		WHERE published_at >= $1 AND state <> ''
		GROUP BY state
		ORDER BY count(*) DESC, state
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.StateStats
	for rows.Next() {
		var s domain.StateStats
		if err := rows.Scan(&s.State, &s.AlertCount, &s.AvgReliability, &s.AvgConfidence,
			&s.TotalThumbsUp, &s.CenterLat, &s.CenterLon); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// DeleteOlderThan removes alerts published before cutoff.
func (r *AlertRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM police_alerts WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func alertDest(a *domain.Alert) []any {
	return []any{
		&a.ID, &a.Type, &a.Subtype, &a.ReportedBy, &a.Description,
		&a.Country, &a.City, &a.State, &a.Street,
		&a.Location.Lat, &a.Location.Lon,
		&a.Reliability, &a.Confidence, &a.ThumbsUp, &a.PublishedAt, &a.CreatedAt,
	}
}

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var a domain.Alert
	err := row.Scan(alertDest(&a)...)
	return a, err
}

func collectAlerts(rows pgx.Rows) ([]domain.Alert, error) {
	defer rows.Close()
	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
