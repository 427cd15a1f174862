package permission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Service orchestrates permission-set administration. Construction and
// administrative failures propagate to the caller; only evaluation-time
// errors are swallowed, and those live in the authz package.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create builds and persists a permission set for a role that has none.
func (s *Service) Create(ctx context.Context, role string, grants []Grant, description, createdBy string) (*Set, error) {
	exists, err := s.repo.RoleExists(ctx, role)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("permission set for role %s: %w", role, shared.ErrConflict)
	}
	set, err := NewSet(role, grants, description, createdBy)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, set)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("permission set created",
			slog.String("role", created.Role),
			slog.String("id", created.ID))
	}
	return created, nil
}

// UpdateRolePermissions replaces the grants of an existing role.
func (s *Service) UpdateRolePermissions(ctx context.Context, role string, grants []Grant) (*Set, error) {
	current, err := s.repo.FindByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("permission set for role %s: %w", role, shared.ErrNotFound)
	}
	next, err := current.Update(Patch{Grants: grants})
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, current.ID, next)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// FindByRole just proved the set exists, so a missed write means a
		// concurrent update already advanced the version.
		return nil, fmt.Errorf("permission set for role %s: %w", role, shared.ErrConflict)
	}
	if s.logger != nil {
		s.logger.Info("permission set updated",
			slog.String("role", role),
			slog.Int("version", updated.Version))
	}
	return updated, nil
}

// Get fetches the permission set for a role.
func (s *Service) Get(ctx context.Context, role string) (*Set, error) {
	set, err := s.repo.FindByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, fmt.Errorf("permission set for role %s: %w", role, shared.ErrNotFound)
	}
	return set, nil
}

// List returns all permission sets.
func (s *Service) List(ctx context.Context) ([]Set, error) {
	return s.repo.FindAll(ctx)
}

// ListActive returns permission sets usable for authorization.
func (s *Service) ListActive(ctx context.Context) ([]Set, error) {
	return s.repo.FindActive(ctx)
}
