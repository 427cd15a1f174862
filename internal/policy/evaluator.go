package policy

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
)

// EvaluationError marks a failure while resolving attributes or walking a
// condition tree. It never reaches the authorization caller: the decision
// point collapses it to INDETERMINATE, and the façade to a deny.
type EvaluationError struct {
	Stage string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation: %s: %v", e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func evalErr(stage string, err error) error {
	return &EvaluationError{Stage: stage, Err: err}
}

// Evaluator walks condition trees against a request, pulling attribute
// values from the resolver as leaves demand them.
type Evaluator struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(resolver *Resolver, logger *slog.Logger) *Evaluator {
	return &Evaluator{resolver: resolver, logger: logger}
}

// Evaluate returns whether the condition holds for the request. Errors are
// reported, not swallowed, so callers can decide how conservatively to react;
// an unknown operator is not an error and evaluates to false.
func (e *Evaluator) Evaluate(ctx context.Context, cond Condition, req Request) (bool, error) {
	switch c := cond.(type) {
	case Node:
		return e.evaluateNode(ctx, c, req)
	case Leaf:
		value, err := e.resolveLeaf(ctx, c, req)
		if err != nil {
			return false, err
		}
		return truthy(value), nil
	case nil:
		return true, nil
	default:
		return false, evalErr("dispatch", fmt.Errorf("unsupported condition type %T", cond))
	}
}

func (e *Evaluator) evaluateNode(ctx context.Context, n Node, req Request) (bool, error) {
	switch n.Op {
	case OpAnd:
		for _, op := range n.Operands {
			ok, err := e.Evaluate(ctx, op, req)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, op := range n.Operands {
			ok, err := e.Evaluate(ctx, op, req)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(n.Operands) != 1 {
			return false, evalErr("not", fmt.Errorf("expected one operand, got %d", len(n.Operands)))
		}
		ok, err := e.Evaluate(ctx, n.Operands[0], req)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case OpEquals, OpContains, OpGreaterThan, OpLessThan:
		if len(n.Operands) != 2 {
			return false, evalErr(string(n.Op), fmt.Errorf("expected two operands, got %d", len(n.Operands)))
		}
		left, err := e.resolveOperand(ctx, n.Operands[0], req)
		if err != nil {
			return false, err
		}
		right, err := e.resolveOperand(ctx, n.Operands[1], req)
		if err != nil {
			return false, err
		}
		switch n.Op {
		case OpEquals:
			return valueEquals(left, right), nil
		case OpContains:
			return contains(left, right), nil
		case OpGreaterThan:
			return ordered(left, right, false), nil
		default:
			return ordered(left, right, true), nil
		}
	default:
		// Fail secure: an operator this build does not know cannot be
		// allowed to halt a batch, so it simply never matches.
		if e.logger != nil {
			e.logger.Warn("unknown condition operator", slog.String("operator", string(n.Op)))
		}
		return false, nil
	}
}

func (e *Evaluator) resolveOperand(ctx context.Context, cond Condition, req Request) (any, error) {
	switch c := cond.(type) {
	case Node:
		return e.evaluateNode(ctx, c, req)
	case Leaf:
		return e.resolveLeaf(ctx, c, req)
	default:
		return nil, evalErr("operand", fmt.Errorf("unsupported condition type %T", cond))
	}
}

func (e *Evaluator) resolveLeaf(ctx context.Context, leaf Leaf, req Request) (any, error) {
	if leaf.HasValue {
		return leaf.Value, nil
	}
	var (
		attrs map[string]any
		err   error
	)
	switch leaf.Category {
	case CategorySubject:
		attrs, err = e.resolver.SubjectAttributes(ctx, req.Subject)
	case CategoryResource:
		attrs, err = e.resolver.ResourceAttributes(ctx, req.Resource)
	case CategoryAction:
		attrs = map[string]any{"name": req.Action}
	case CategoryEnvironment:
		attrs, err = e.resolver.EnvironmentAttributes(ctx)
	default:
		return nil, evalErr("resolve", fmt.Errorf("unknown category %q", leaf.Category))
	}
	if err != nil {
		return nil, evalErr("resolve "+string(leaf.Category), err)
	}
	value := lookupPath(attrs, leaf.Attribute)
	if value == nil && leaf.Category == CategoryEnvironment {
		value = lookupPath(req.Environment, leaf.Attribute)
	}
	return value, nil
}

// lookupPath walks a dot path into nested maps. A missing segment yields nil,
// never an error.
func lookupPath(attrs map[string]any, path string) any {
	if attrs == nil || path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	var current any = attrs
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

// valueEquals is strict equality with numeric widening, so a stored literal
// decoded as float64 still matches an int attribute.
func valueEquals(left, right any) bool {
	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		return rok && lf == rf
	}
	if lt, lok := toTime(left); lok {
		rt, rok := toTime(right)
		return rok && lt.Equal(rt)
	}
	return reflect.DeepEqual(left, right)
}

// contains is array membership or substring; any other type pairing is false.
func contains(left, right any) bool {
	switch l := left.(type) {
	case []any:
		for _, item := range l {
			if valueEquals(item, right) {
				return true
			}
		}
		return false
	case []string:
		s, ok := right.(string)
		if !ok {
			return false
		}
		for _, item := range l {
			if item == s {
				return true
			}
		}
		return false
	case string:
		s, ok := right.(string)
		return ok && strings.Contains(l, s)
	default:
		return false
	}
}

// ordered compares numerics or times; other pairings are false, not errors.
func ordered(left, right any, less bool) bool {
	if lf, ok := toFloat(left); ok {
		rf, rok := toFloat(right)
		if !rok {
			return false
		}
		if less {
			return lf < rf
		}
		return lf > rf
	}
	if lt, ok := toTime(left); ok {
		rt, rok := toTime(right)
		if !rok {
			return false
		}
		if less {
			return lt.Before(rt)
		}
		return lt.After(rt)
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}
