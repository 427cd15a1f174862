package decisionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists decision log entries.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id, kind, actor_id, target_id, resource, action, granted, reason, strategy, detail, recorded_at`

// Insert appends one entry.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("decisionlog: marshal detail: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO decision_log (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Kind, entry.ActorID, entry.TargetID, entry.Resource,
		entry.Action, entry.Granted, entry.Reason, entry.Strategy, detail,
		pgtype.Timestamptz{Time: entry.Timestamp, Valid: true})
	return err
}

// Recent returns the newest entries, newest first.
func (r *PGRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.list(ctx,
		`SELECT `+entryColumns+` FROM decision_log ORDER BY recorded_at DESC LIMIT $1`, limit)
}

// ByActor returns the newest entries for one actor, newest first.
func (r *PGRepository) ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return r.list(ctx,
		`SELECT `+entryColumns+` FROM decision_log WHERE actor_id = $1 ORDER BY recorded_at DESC LIMIT $2`,
		actorID, limit)
}

// DeleteOlderThan prunes entries recorded before the cutoff.
func (r *PGRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM decision_log WHERE recorded_at < $1`,
		pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			detail     []byte
			recordedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.ActorID, &entry.TargetID,
			&entry.Resource, &entry.Action, &entry.Granted, &entry.Reason,
			&entry.Strategy, &detail, &recordedAt); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, fmt.Errorf("decisionlog: unmarshal detail: %w", err)
			}
		}
		if recordedAt.Valid {
			entry.Timestamp = recordedAt.Time
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
