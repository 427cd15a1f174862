package policy

import (
	"context"
	"log/slog"
	"sort"
)

// DecisionPoint turns a request into a single PERMIT/DENY answer by walking
// the applicable policies in priority order. Evaluation is pure with respect
// to policy data; the only state is the injected collaborators.
type DecisionPoint struct {
	resolver  *Resolver
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewDecisionPoint constructs a DecisionPoint.
func NewDecisionPoint(resolver *Resolver, evaluator *Evaluator, logger *slog.Logger) *DecisionPoint {
	return &DecisionPoint{resolver: resolver, evaluator: evaluator, logger: logger}
}

// Evaluate runs the decision algorithm. It never returns an error: any
// failure while fetching policies or evaluating conditions becomes
// INDETERMINATE with the failure text as the reason, so an erroring
// evaluation can never permit.
func (d *DecisionPoint) Evaluate(ctx context.Context, req Request) Response {
	policies, err := d.resolver.ApplicablePolicies(ctx, req)
	if err != nil {
		return d.indeterminate(req, err)
	}
	if len(policies) == 0 {
		return Response{Decision: DecisionNotApplicable, Reason: "no applicable policies"}
	}

	// Stable: equal priorities keep fetch order, so two evaluations of
	// the same inputs always agree.
	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority > policies[j].Priority
	})

	for _, p := range policies {
		if !p.Target.Matches(req) {
			continue
		}
		resp, conclusive, err := d.evaluatePolicy(ctx, p, req)
		if err != nil {
			return d.indeterminate(req, err)
		}
		if conclusive {
			return resp
		}
	}
	return Response{Decision: DecisionIndeterminate, Reason: "no policy yielded a decision"}
}

// evaluatePolicy walks a policy's rules in declared order. The policy's
// decision is the effect of the last satisfied rule, except that a satisfied
// deny rule decides immediately.
func (d *DecisionPoint) evaluatePolicy(ctx context.Context, p Policy, req Request) (Response, bool, error) {
	var (
		decided     bool
		effect      Effect
		obligations []string
		advice      []string
	)
	for _, rule := range p.Rules {
		satisfied := true
		if rule.Condition != nil {
			ok, err := d.evaluator.Evaluate(ctx, rule.Condition, req)
			if err != nil {
				return Response{}, false, err
			}
			satisfied = ok
		}
		if !satisfied {
			continue
		}
		obligations = append(obligations, rule.Obligations...)
		advice = append(advice, rule.Advice...)
		decided = true
		effect = rule.Effect
		if rule.Effect == EffectDeny {
			break
		}
	}
	if !decided {
		return Response{}, false, nil
	}
	decision := DecisionPermit
	if effect == EffectDeny {
		decision = DecisionDeny
	}
	return Response{
		Decision:    decision,
		Obligations: obligations,
		Advice:      advice,
		Reason:      "policy " + p.Name,
	}, true, nil
}

func (d *DecisionPoint) indeterminate(req Request, err error) Response {
	if d.logger != nil {
		d.logger.Error("policy evaluation failed",
			slog.String("subject", req.Subject),
			slog.String("resource", req.Resource),
			slog.String("action", req.Action),
			slog.Any("error", err))
	}
	return Response{Decision: DecisionIndeterminate, Reason: err.Error()}
}
