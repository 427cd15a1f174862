package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsefit/pulsefit-iam/internal/platform/db"
	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Repository is the read/write contract the authorization core depends on.
type Repository interface {
	FindByRole(ctx context.Context, role string) (*Set, error)
	Create(ctx context.Context, set Set) (*Set, error)
	Update(ctx context.Context, id string, set Set) (*Set, error)
	FindAll(ctx context.Context) ([]Set, error)
	FindActive(ctx context.Context) ([]Set, error)
	RoleExists(ctx context.Context, role string) (bool, error)
}

// PGRepository provides PostgreSQL backed persistence. Grants are stored as a
// JSONB document alongside the set metadata.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const setColumns = `id, role, grants, description, version, is_active, is_draft, expires_at, created_at, updated_at, created_by`

// FindByRole fetches the permission set for a role.
func (r *PGRepository) FindByRole(ctx context.Context, role string) (*Set, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+setColumns+` FROM permission_sets WHERE role = $1`, role)
	return scanSet(row)
}

// Create inserts a new permission set.
func (r *PGRepository) Create(ctx context.Context, set Set) (*Set, error) {
	grants, err := json.Marshal(set.Grants)
	if err != nil {
		return nil, fmt.Errorf("permission: marshal grants: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO permission_sets (`+setColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		set.ID, set.Role, grants, set.Description, set.Version,
		set.IsActive, set.IsDraft, toPgTime(set.ExpiresAt),
		toPgTime(set.CreatedAt), toPgTime(set.UpdatedAt), set.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("permission set for role %s: %w", set.Role, shared.ErrConflict)
		}
		return nil, err
	}
	return &set, nil
}

// Update replaces the stored set with the new immutable value. The write is
// guarded by a version check inside a transaction so two concurrent admin
// updates cannot both land on the same base version.
func (r *PGRepository) Update(ctx context.Context, id string, set Set) (*Set, error) {
	grants, err := json.Marshal(set.Grants)
	if err != nil {
		return nil, fmt.Errorf("permission: marshal grants: %w", err)
	}
	var updated bool
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE permission_sets
			 SET grants = $2, description = $3, version = $4, is_active = $5,
			     is_draft = $6, expires_at = $7, updated_at = $8
			 WHERE id = $1 AND version < $4`,
			id, grants, set.Description, set.Version, set.IsActive,
			set.IsDraft, toPgTime(set.ExpiresAt), toPgTime(set.UpdatedAt))
		if err != nil {
			return err
		}
		updated = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}
	return &set, nil
}

// FindAll returns every permission set ordered by role.
func (r *PGRepository) FindAll(ctx context.Context) ([]Set, error) {
	return r.list(ctx, `SELECT `+setColumns+` FROM permission_sets ORDER BY role`)
}

// FindActive returns active, non-draft permission sets ordered by role.
func (r *PGRepository) FindActive(ctx context.Context) ([]Set, error) {
	return r.list(ctx, `SELECT `+setColumns+` FROM permission_sets WHERE is_active AND NOT is_draft ORDER BY role`)
}

// RoleExists reports whether a permission set exists for the role.
func (r *PGRepository) RoleExists(ctx context.Context, role string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM permission_sets WHERE role = $1)`, role).Scan(&exists)
	return exists, err
}

func (r *PGRepository) list(ctx context.Context, query string) ([]Set, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sets []Set
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, *set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sets, nil
}

func scanSet(row pgx.Row) (*Set, error) {
	var (
		set       Set
		grants    []byte
		expires   pgtype.Timestamptz
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&set.ID, &set.Role, &grants, &set.Description, &set.Version,
		&set.IsActive, &set.IsDraft, &expires, &createdAt, &updatedAt, &set.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(grants, &set.Grants); err != nil {
		return nil, fmt.Errorf("permission: unmarshal grants: %w", err)
	}
	if expires.Valid {
		set.ExpiresAt = expires.Time
	}
	if createdAt.Valid {
		set.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		set.UpdatedAt = updatedAt.Time
	}
	return &set, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
