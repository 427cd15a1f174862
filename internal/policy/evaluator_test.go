package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSource struct {
	subject     map[string]any
	resource    map[string]any
	environment map[string]any
	subjectErr  error
	calls       int
}

func (s *stubSource) SubjectAttributes(ctx context.Context, subjectID string) (map[string]any, error) {
	s.calls++
	if s.subjectErr != nil {
		return nil, s.subjectErr
	}
	return s.subject, nil
}

func (s *stubSource) ResourceAttributes(ctx context.Context, resource string) (map[string]any, error) {
	return s.resource, nil
}

func (s *stubSource) EnvironmentAttributes(ctx context.Context) (map[string]any, error) {
	return s.environment, nil
}

func newTestEvaluator(source *stubSource) *Evaluator {
	return NewEvaluator(NewResolver(source, nil), nil)
}

func lit(v any) Leaf { return Leaf{Value: v, HasValue: true} }

func subjectAttr(path string) Leaf {
	return Leaf{Category: CategorySubject, Attribute: path}
}

func TestEvaluateEquals(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subject: map[string]any{
		"department": "training",
		"level":      5,
	}})

	ok, err := eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		subjectAttr("department"), lit("training"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	// A literal decoded from JSON is float64; the int attribute still matches.
	ok, err = eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		subjectAttr("level"), lit(float64(5)),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		subjectAttr("department"), lit("billing"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateContains(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subject: map[string]any{
		"groups": []any{"coaches", "admins"},
		"email":  "coach@example.com",
	}})

	ok, err := eval.Evaluate(ctx, Node{Op: OpContains, Operands: []Condition{
		subjectAttr("groups"), lit("admins"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpContains, Operands: []Condition{
		subjectAttr("groups"), lit("members"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpContains, Operands: []Condition{
		subjectAttr("email"), lit("@example."),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	// Mismatched type pairings are false, not errors.
	ok, err = eval.Evaluate(ctx, Node{Op: OpContains, Operands: []Condition{
		subjectAttr("level"), lit("anything"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateOrdering(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subject: map[string]any{
		"level":  7,
		"joined": "2025-01-15T10:00:00Z",
	}})

	ok, err := eval.Evaluate(ctx, Node{Op: OpGreaterThan, Operands: []Condition{
		subjectAttr("level"), lit(float64(5)),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpLessThan, Operands: []Condition{
		subjectAttr("level"), lit(float64(5)),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.False(t, ok)

	// RFC 3339 strings compare as instants.
	ok, err = eval.Evaluate(ctx, Node{Op: OpLessThan, Operands: []Condition{
		subjectAttr("joined"), lit("2026-01-01T00:00:00Z"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	// Ordering a string against a number is false.
	ok, err = eval.Evaluate(ctx, Node{Op: OpGreaterThan, Operands: []Condition{
		subjectAttr("joined"), lit(float64(5)),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateLogicalOperators(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subject: map[string]any{"department": "training"}})
	req := Request{Subject: "u1"}

	isTraining := Node{Op: OpEquals, Operands: []Condition{subjectAttr("department"), lit("training")}}
	isBilling := Node{Op: OpEquals, Operands: []Condition{subjectAttr("department"), lit("billing")}}

	ok, err := eval.Evaluate(ctx, Node{Op: OpAnd, Operands: []Condition{isTraining, isBilling}}, req)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpOr, Operands: []Condition{isBilling, isTraining}}, req)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpNot, Operands: []Condition{isBilling}}, req)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateShortCircuit(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{subject: map[string]any{"department": "training"}}
	eval := newTestEvaluator(source)
	req := Request{Subject: "u1"}

	needsLookup := Node{Op: OpEquals, Operands: []Condition{subjectAttr("department"), lit("training")}}

	// A false literal on the left of an and never reaches the source.
	ok, err := eval.Evaluate(ctx, Node{Op: OpAnd, Operands: []Condition{lit(false), needsLookup}}, req)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, source.calls)

	// A true literal on the left of an or never reaches the source either.
	ok, err = eval.Evaluate(ctx, Node{Op: OpOr, Operands: []Condition{lit(true), needsLookup}}, req)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, source.calls)
}

func TestEvaluateUnknownOperatorIsFalse(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{})

	ok, err := eval.Evaluate(ctx, Node{Op: Operator("matches"), Operands: []Condition{lit("a"), lit("a")}}, Request{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateDotPathLookup(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subject: map[string]any{
		"profile": map[string]any{
			"address": map[string]any{"country": "NO"},
		},
	}})

	ok, err := eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		subjectAttr("profile.address.country"), lit("NO"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.True(t, ok)

	// A missing segment resolves to nil and the comparison is simply false.
	ok, err = eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		subjectAttr("profile.missing.country"), lit("NO"),
	}}, Request{Subject: "u1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateEnvironmentFallback(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{})

	// Attributes the resolver does not know come from the request environment.
	req := Request{Subject: "u1", Environment: map[string]any{"ip_range": "10.0.0.0/8"}}
	ok, err := eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		Leaf{Category: CategoryEnvironment, Attribute: "ip_range"}, lit("10.0.0.0/8"),
	}}, req)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateEnvironmentClock(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{}
	resolver := NewResolver(source, nil)
	resolver.now = func() time.Time {
		return time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC) // a Saturday
	}
	eval := NewEvaluator(resolver, nil)

	ok, err := eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		Leaf{Category: CategoryEnvironment, Attribute: "day_of_week"}, lit("saturday"),
	}}, Request{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.Evaluate(ctx, Node{Op: OpLessThan, Operands: []Condition{
		Leaf{Category: CategoryEnvironment, Attribute: "hour"}, lit(float64(17)),
	}}, Request{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateActionCategory(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{})

	ok, err := eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		Leaf{Category: CategoryAction, Attribute: "name"}, lit("DELETE"),
	}}, Request{Action: "DELETE"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateSourceErrorPropagates(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subjectErr: errors.New("identity store down")})

	_, err := eval.Evaluate(ctx, Node{Op: OpEquals, Operands: []Condition{
		subjectAttr("department"), lit("training"),
	}}, Request{Subject: "u1"})
	require.Error(t, err)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
}

func TestEvaluateBareLeafTruthiness(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{subject: map[string]any{
		"verified": true,
		"blocked":  false,
		"nickname": "",
	}})
	req := Request{Subject: "u1"}

	ok, err := eval.Evaluate(ctx, subjectAttr("verified"), req)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = eval.Evaluate(ctx, subjectAttr("blocked"), req)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = eval.Evaluate(ctx, subjectAttr("nickname"), req)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = eval.Evaluate(ctx, subjectAttr("missing"), req)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateNilConditionHolds(t *testing.T) {
	ctx := context.Background()
	eval := newTestEvaluator(&stubSource{})

	ok, err := eval.Evaluate(ctx, nil, Request{})
	require.NoError(t, err)
	require.True(t, ok)
}
