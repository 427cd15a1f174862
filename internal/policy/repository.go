package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Store is the policy persistence contract the decision point reads through
// and the admin service writes through.
type Store interface {
	GetApplicablePolicies(ctx context.Context, req Request) ([]Policy, error)
	GetActivePolicies(ctx context.Context) ([]Policy, error)
	GetAllPolicies(ctx context.Context) ([]Policy, error)
	GetPolicy(ctx context.Context, id string) (*Policy, error)
	CreatePolicy(ctx context.Context, p Policy) (*Policy, error)
	UpdatePolicy(ctx context.Context, id string, p Policy) (*Policy, error)
	DeletePolicy(ctx context.Context, id string) error
	SetPolicyActive(ctx context.Context, id string, active bool) error
}

// PGStore provides PostgreSQL backed persistence. Target and rules persist
// as JSONB documents; rows come back priority-descending with creation order
// breaking ties, so the decision point's stable sort sees a deterministic
// fetch order.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const policyColumns = `id, name, description, target, rules, is_active, priority, created_at, updated_at`

// GetApplicablePolicies returns the active policies whose target matches.
func (s *PGStore) GetApplicablePolicies(ctx context.Context, req Request) ([]Policy, error) {
	active, err := s.GetActivePolicies(ctx)
	if err != nil {
		return nil, err
	}
	var applicable []Policy
	for _, p := range active {
		if p.Target.Matches(req) {
			applicable = append(applicable, p)
		}
	}
	return applicable, nil
}

// GetActivePolicies returns active policies in evaluation order.
func (s *PGStore) GetActivePolicies(ctx context.Context) ([]Policy, error) {
	return s.list(ctx, `SELECT `+policyColumns+` FROM policies WHERE is_active ORDER BY priority DESC, created_at`)
}

// GetAllPolicies returns every policy.
func (s *PGStore) GetAllPolicies(ctx context.Context) ([]Policy, error) {
	return s.list(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY priority DESC, created_at`)
}

// GetPolicy fetches one policy by ID.
func (s *PGStore) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)
	return scanPolicy(row)
}

// CreatePolicy inserts a new policy.
func (s *PGStore) CreatePolicy(ctx context.Context, p Policy) (*Policy, error) {
	target, rules, err := marshalDocs(p)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO policies (`+policyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.Description, target, rules, p.IsActive, p.Priority,
		pgtype.Timestamptz{Time: p.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: p.UpdatedAt, Valid: true})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("policy %s: %w", p.Name, shared.ErrConflict)
		}
		return nil, err
	}
	return &p, nil
}

// UpdatePolicy replaces a stored policy.
func (s *PGStore) UpdatePolicy(ctx context.Context, id string, p Policy) (*Policy, error) {
	target, rules, err := marshalDocs(p)
	if err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies
		 SET name = $2, description = $3, target = $4, rules = $5,
		     is_active = $6, priority = $7, updated_at = $8
		 WHERE id = $1`,
		id, p.Name, p.Description, target, rules, p.IsActive, p.Priority,
		pgtype.Timestamptz{Time: p.UpdatedAt, Valid: true})
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("policy %s: %w", id, shared.ErrNotFound)
	}
	return &p, nil
}

// DeletePolicy removes a policy by ID.
func (s *PGStore) DeletePolicy(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// SetPolicyActive flips the activation flag.
func (s *PGStore) SetPolicyActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (s *PGStore) list(ctx context.Context, query string) ([]Policy, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return policies, nil
}

func scanPolicy(row pgx.Row) (*Policy, error) {
	var (
		p         Policy
		target    []byte
		rules     []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &target, &rules,
		&p.IsActive, &p.Priority, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(target, &p.Target); err != nil {
		return nil, fmt.Errorf("policy: unmarshal target: %w", err)
	}
	if err := json.Unmarshal(rules, &p.Rules); err != nil {
		return nil, fmt.Errorf("policy: unmarshal rules: %w", err)
	}
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	return &p, nil
}

func marshalDocs(p Policy) ([]byte, []byte, error) {
	target, err := json.Marshal(p.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("policy: marshal target: %w", err)
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, nil, fmt.Errorf("policy: marshal rules: %w", err)
	}
	return target, rules, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
