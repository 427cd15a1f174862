package policy

import (
	"context"
	"strings"
	"time"
)

// AttributeSource looks up raw attributes from the identity and resource
// stores. Implementations are external collaborators; the resolver treats
// them as pure per-call lookups and never caches across evaluations.
type AttributeSource interface {
	SubjectAttributes(ctx context.Context, subjectID string) (map[string]any, error)
	ResourceAttributes(ctx context.Context, resource string) (map[string]any, error)
	EnvironmentAttributes(ctx context.Context) (map[string]any, error)
}

// Resolver is the policy information point: it answers attribute questions
// during condition evaluation and filters the active policy set down to the
// policies applicable to a request.
type Resolver struct {
	source AttributeSource
	store  Store
	now    func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(source AttributeSource, store Store) *Resolver {
	return &Resolver{source: source, store: store, now: time.Now}
}

// SubjectAttributes resolves attributes about the acting subject.
func (r *Resolver) SubjectAttributes(ctx context.Context, subjectID string) (map[string]any, error) {
	if r.source == nil {
		return map[string]any{}, nil
	}
	return r.source.SubjectAttributes(ctx, subjectID)
}

// ResourceAttributes resolves attributes about the requested resource.
func (r *Resolver) ResourceAttributes(ctx context.Context, resource string) (map[string]any, error) {
	if r.source == nil {
		return map[string]any{}, nil
	}
	return r.source.ResourceAttributes(ctx, resource)
}

// EnvironmentAttributes resolves ambient attributes. The clock attributes
// (timestamp, day_of_week, hour) are always present; a configured source may
// contribute more but cannot override them.
func (r *Resolver) EnvironmentAttributes(ctx context.Context) (map[string]any, error) {
	attrs := map[string]any{}
	if r.source != nil {
		external, err := r.source.EnvironmentAttributes(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range external {
			attrs[k] = v
		}
	}
	now := r.now()
	attrs["timestamp"] = now
	attrs["day_of_week"] = strings.ToLower(now.Weekday().String())
	attrs["hour"] = now.Hour()
	return attrs, nil
}

// ApplicablePolicies returns the active policies whose target matches the
// request, in store order.
func (r *Resolver) ApplicablePolicies(ctx context.Context, req Request) ([]Policy, error) {
	if r.store == nil {
		return nil, nil
	}
	active, err := r.store.GetActivePolicies(ctx)
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
