package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

type stubStore struct {
	policies []Policy
	err      error
}

func (s *stubStore) GetApplicablePolicies(ctx context.Context, req Request) ([]Policy, error) {
	active, err := s.GetActivePolicies(ctx)
	if err != nil {
		return nil, err
	}
	var out []Policy
	for _, p := range active {
		if p.Target.Matches(req) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) GetActivePolicies(ctx context.Context) ([]Policy, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Policy
	for _, p := range s.policies {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubStore) GetAllPolicies(ctx context.Context) ([]Policy, error) {
	return s.policies, nil
}

func (s *stubStore) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	for _, p := range s.policies {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *stubStore) CreatePolicy(ctx context.Context, p Policy) (*Policy, error) {
	s.policies = append(s.policies, p)
	return &p, nil
}

func (s *stubStore) UpdatePolicy(ctx context.Context, id string, p Policy) (*Policy, error) {
	for i, existing := range s.policies {
		if existing.ID == id {
			s.policies[i] = p
			return &p, nil
		}
	}
	return nil, nil
}

func (s *stubStore) DeletePolicy(ctx context.Context, id string) error {
	for i, existing := range s.policies {
		if existing.ID == id {
			s.policies = append(s.policies[:i], s.policies[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (s *stubStore) SetPolicyActive(ctx context.Context, id string, active bool) error {
	for i, existing := range s.policies {
		if existing.ID == id {
			s.policies[i].IsActive = active
			return nil
		}
	}
	return shared.ErrNotFound
}

func newDecisionPoint(store *stubStore, source *stubSource) *DecisionPoint {
	resolver := NewResolver(source, store)
	return NewDecisionPoint(resolver, NewEvaluator(resolver, nil), nil)
}

func permitAll(id, name string, priority int) Policy {
	return Policy{
		ID:       id,
		Name:     name,
		Rules:    []Rule{{ID: "r1", Effect: EffectPermit}},
		IsActive: true,
		Priority: priority,
	}
}

func denyAll(id, name string, priority int) Policy {
	return Policy{
		ID:       id,
		Name:     name,
		Rules:    []Rule{{ID: "r1", Effect: EffectDeny}},
		IsActive: true,
		Priority: priority,
	}
}

func TestDecisionPointNoPolicies(t *testing.T) {
	ctx := context.Background()
	pdp := newDecisionPoint(&stubStore{}, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1", Resource: shared.ResourceWorkout, Action: shared.ActionRead})
	require.Equal(t, DecisionNotApplicable, resp.Decision)
}

func TestDecisionPointHigherPriorityWins(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{
		permitAll("p1", "baseline-permit", 5),
		denyAll("p2", "lockdown", 10),
	}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1", Resource: shared.ResourceWorkout, Action: shared.ActionRead})
	require.Equal(t, DecisionDeny, resp.Decision)
	require.Contains(t, resp.Reason, "lockdown")
}

func TestDecisionPointEqualPriorityKeepsStoreOrder(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{
		denyAll("p1", "first", 5),
		permitAll("p2", "second", 5),
	}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionDeny, resp.Decision)
	require.Contains(t, resp.Reason, "first")
}

func TestDecisionPointSkipsNonMatchingTargets(t *testing.T) {
	ctx := context.Background()
	deny := denyAll("p1", "media-lockdown", 10)
	deny.Target = Target{Resources: []string{shared.ResourceMedia}}
	store := &stubStore{policies: []Policy{
		deny,
		permitAll("p2", "baseline-permit", 1),
	}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1", Resource: shared.ResourceWorkout, Action: shared.ActionRead})
	require.Equal(t, DecisionPermit, resp.Decision)

	resp = pdp.Evaluate(ctx, Request{Subject: "u1", Resource: shared.ResourceMedia, Action: shared.ActionRead})
	require.Equal(t, DecisionDeny, resp.Decision)
}

func TestDecisionPointDenyOverridesWithinPolicy(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{{
		ID:   "p1",
		Name: "mixed",
		Rules: []Rule{
			{ID: "r1", Effect: EffectPermit},
			{ID: "r2", Effect: EffectDeny},
			{ID: "r3", Effect: EffectPermit},
		},
		IsActive: true,
	}}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionDeny, resp.Decision)
}

func TestDecisionPointLastSatisfiedPermitWins(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{{
		ID:   "p1",
		Name: "conditional",
		Rules: []Rule{
			{
				ID:     "r1",
				Effect: EffectDeny,
				Condition: Node{Op: OpEquals, Operands: []Condition{
					Leaf{Category: CategoryAction, Attribute: "name"},
					Leaf{Value: shared.ActionDelete, HasValue: true},
				}},
			},
			{ID: "r2", Effect: EffectPermit},
		},
		IsActive: true,
	}}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1", Action: shared.ActionRead})
	require.Equal(t, DecisionPermit, resp.Decision)

	resp = pdp.Evaluate(ctx, Request{Subject: "u1", Action: shared.ActionDelete})
	require.Equal(t, DecisionDeny, resp.Decision)
}

func TestDecisionPointNoSatisfiedRuleIsIndeterminate(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{{
		ID:   "p1",
		Name: "never-fires",
		Rules: []Rule{{
			ID:        "r1",
			Effect:    EffectPermit,
			Condition: Leaf{Value: false, HasValue: true},
		}},
		IsActive: true,
	}}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionIndeterminate, resp.Decision)
}

func TestDecisionPointStoreErrorIsIndeterminate(t *testing.T) {
	ctx := context.Background()
	pdp := newDecisionPoint(&stubStore{err: errors.New("pool exhausted")}, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionIndeterminate, resp.Decision)
	require.Contains(t, resp.Reason, "pool exhausted")
}

func TestDecisionPointAttributeErrorIsIndeterminate(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{{
		ID:   "p1",
		Name: "needs-subject",
		Rules: []Rule{{
			ID:     "r1",
			Effect: EffectPermit,
			Condition: Node{Op: OpEquals, Operands: []Condition{
				Leaf{Category: CategorySubject, Attribute: "department"},
				Leaf{Value: "training", HasValue: true},
			}},
		}},
		IsActive: true,
	}}}
	pdp := newDecisionPoint(store, &stubSource{subjectErr: errors.New("identity store down")})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionIndeterminate, resp.Decision)
}

func TestDecisionPointIgnoresInactivePolicies(t *testing.T) {
	ctx := context.Background()
	deny := denyAll("p1", "disabled-lockdown", 10)
	deny.IsActive = false
	store := &stubStore{policies: []Policy{deny, permitAll("p2", "baseline", 1)}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionPermit, resp.Decision)
}

func TestDecisionPointCollectsObligationsFromSatisfiedRules(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{policies: []Policy{{
		ID:   "p1",
		Name: "audited-access",
		Rules: []Rule{
			{
				ID:          "r1",
				Effect:      EffectPermit,
				Obligations: []string{"log-access"},
				Advice:      []string{"notify-owner"},
			},
			{
				ID:          "r2",
				Effect:      EffectPermit,
				Obligations: []string{"refresh-session"},
			},
			{
				ID:          "r3",
				Effect:      EffectPermit,
				Condition:   Leaf{Value: false, HasValue: true},
				Obligations: []string{"never-attached"},
			},
		},
		IsActive: true,
	}}}
	pdp := newDecisionPoint(store, &stubSource{})

	resp := pdp.Evaluate(ctx, Request{Subject: "u1"})
	require.Equal(t, DecisionPermit, resp.Decision)
	require.Equal(t, []string{"log-access", "refresh-session"}, resp.Obligations)
	require.Equal(t, []string{"notify-owner"}, resp.Advice)
}
