package policy

import (
	"context"
	"log/slog"
	"time"
)

// Service handles policy administration. Administration is entirely
// decoupled from evaluation: the decision point only ever reads the active
// set through the store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create validates and persists a new policy.
func (s *Service) Create(ctx context.Context, name, description string, target Target, rules []Rule, priority int) (*Policy, error) {
	p, err := New(name, description, target, rules, priority)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreatePolicy(ctx, p)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("policy created",
			slog.String("name", created.Name),
			slog.Int("priority", created.Priority))
	}
	return created, nil
}

// Update replaces an existing policy after re-validation.
func (s *Service) Update(ctx context.Context, id string, p Policy) (*Policy, error) {
	p.UpdatedAt = time.Now().UTC()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdatePolicy(ctx, id, p)
}

// Delete removes a policy.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeletePolicy(ctx, id)
}

// Activate makes a policy visible to evaluation.
func (s *Service) Activate(ctx context.Context, id string) error {
	return s.store.SetPolicyActive(ctx, id, true)
}

// Deactivate hides a policy from evaluation without deleting it.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.store.SetPolicyActive(ctx, id, false)
}

// Get fetches one policy.
func (s *Service) Get(ctx context.Context, id string) (*Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

// List returns every policy.
func (s *Service) List(ctx context.Context) ([]Policy, error) {
	return s.store.GetAllPolicies(ctx)
}

// ListActive returns the policies evaluation can see.
func (s *Service) ListActive(ctx context.Context) ([]Policy, error) {
	return s.store.GetActivePolicies(ctx)
}
