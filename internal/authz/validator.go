package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ValidationRule is one pluggable check in the access validation pipeline,
// orthogonal to the RBAC/ABAC decision itself.
type ValidationRule interface {
	Name() string
	Description() string
	// Required marks rules whose failure invalidates the whole result;
	// optional rules only surface warnings.
	Required() bool
	AppliesTo(req AccessRequest) bool
	// Validate returns nil when the rule passes. The returned error text
	// becomes the failure reason.
	Validate(ctx context.Context, req AccessRequest) error
}

// ValidationResult aggregates one pipeline run.
type ValidationResult struct {
	Valid       bool
	FailedRules []string
	Warnings    []string
	Request     AccessRequest
	Timestamp   time.Time
}

// Validator owns an explicit, instance-scoped rule registry. There is no
// process-wide registration: tests and callers construct isolated validators
// with exactly the rules they want.
type Validator struct {
	mu     sync.Mutex
	rules  []ValidationRule
	byName map[string]struct{}
	logger *slog.Logger
}

// NewValidator constructs a Validator with the given rules.
func NewValidator(logger *slog.Logger, rules ...ValidationRule) (*Validator, error) {
	v := &Validator{byName: make(map[string]struct{}), logger: logger}
	for _, r := range rules {
		if err := v.AddRule(r); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AddRule registers a rule. Duplicate names are rejected.
func (v *Validator) AddRule(rule ValidationRule) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.byName[rule.Name()]; dup {
		return fmt.Errorf("authz: validation rule %q already registered", rule.Name())
	}
	v.byName[rule.Name()] = struct{}{}
	v.rules = append(v.rules, rule)
	return nil
}

// RemoveRule unregisters a rule by name.
func (v *Validator) RemoveRule(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.byName[name]; !ok {
		return fmt.Errorf("authz: validation rule %q not registered", name)
	}
	delete(v.byName, name)
	for i, r := range v.rules {
		if r.Name() == name {
			v.rules = append(v.rules[:i], v.rules[i+1:]...)
			break
		}
	}
	return nil
}

type ruleOutcome struct {
	rule ValidationRule
	err  error
}

// Validate runs every applicable rule concurrently and joins the results.
// A rule that errors or panics fails alone; it never aborts its siblings.
// The result is invalid iff a required applicable rule failed.
func (v *Validator) Validate(ctx context.Context, req AccessRequest) ValidationResult {
	v.mu.Lock()
	var applicable []ValidationRule
	for _, r := range v.rules {
		if r.AppliesTo(req) {
			applicable = append(applicable, r)
		}
	}
	v.mu.Unlock()

	result := ValidationResult{Valid: true, Request: req, Timestamp: time.Now().UTC()}
	if len(applicable) == 0 {
		result.Warnings = append(result.Warnings, "no validation rules applied to this request")
		return result
	}

	outcomes := make([]ruleOutcome, len(applicable))
	var wg sync.WaitGroup
	for i, rule := range applicable {
		wg.Add(1)
		go func(i int, rule ValidationRule) {
			defer wg.Done()
			outcomes[i] = ruleOutcome{rule: rule, err: runRule(ctx, rule, req)}
		}(i, rule)
	}
	wg.Wait()

	for _, out := range outcomes {
		if out.err == nil {
			continue
		}
		result.FailedRules = append(result.FailedRules, out.rule.Name())
		if out.rule.Required() {
			result.Valid = false
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("required rule %s failed: %v", out.rule.Name(), out.err))
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("optional rule %s failed: %v", out.rule.Name(), out.err))
		}
		if v.logger != nil {
			v.logger.Warn("validation rule failed",
				slog.String("rule", out.rule.Name()),
				slog.Bool("required", out.rule.Required()),
				slog.Any("error", out.err))
		}
	}
	return result
}

func runRule(ctx context.Context, rule ValidationRule, req AccessRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Validate(ctx, req)
}
