package policy

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Effect is the outcome a rule asks for.
type Effect string

const (
	EffectPermit Effect = "permit"
	EffectDeny   Effect = "deny"
)

// Decision is the outcome of a full policy evaluation.
type Decision string

const (
	DecisionPermit        Decision = "PERMIT"
	DecisionDeny          Decision = "DENY"
	DecisionNotApplicable Decision = "NOT_APPLICABLE"
	DecisionIndeterminate Decision = "INDETERMINATE"
)

// Rule is one effect plus an optional guarding condition. A rule without a
// condition is always satisfied.
type Rule struct {
	ID          string
	Effect      Effect
	Condition   Condition
	Obligations []string
	Advice      []string
}

type ruleDoc struct {
	ID          string          `json:"id"`
	Effect      Effect          `json:"effect"`
	Condition   json.RawMessage `json:"condition,omitempty"`
	Obligations []string        `json:"obligations,omitempty"`
	Advice      []string        `json:"advice,omitempty"`
}

// MarshalJSON encodes the rule for JSONB storage.
func (r Rule) MarshalJSON() ([]byte, error) {
	doc := ruleDoc{ID: r.ID, Effect: r.Effect, Obligations: r.Obligations, Advice: r.Advice}
	if r.Condition != nil {
		raw, err := marshalCondition(r.Condition)
		if err != nil {
			return nil, err
		}
		doc.Condition = raw
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a stored rule document.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc ruleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	rule := Rule{ID: doc.ID, Effect: doc.Effect, Obligations: doc.Obligations, Advice: doc.Advice}
	if len(doc.Condition) > 0 {
		cond, err := DecodeCondition(doc.Condition)
		if err != nil {
			return err
		}
		rule.Condition = cond
	}
	*r = rule
	return nil
}

// Policy groups ordered rules under a target and a priority. Higher priority
// policies are evaluated first.
type Policy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Target      Target    `json:"target"`
	Rules       []Rule    `json:"rules"`
	IsActive    bool      `json:"isActive"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// New validates and builds a policy.
func New(name, description string, target Target, rules []Rule, priority int) (Policy, error) {
	now := time.Now().UTC()
	p := Policy{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Target:      target,
		Rules:       rules,
		IsActive:    true,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy invariants, including every rule condition.
func (p Policy) Validate() error {
	if p.Name == "" {
		return shared.NewValidationError("name", "required")
	}
	if len(p.Rules) == 0 {
		return shared.NewValidationError("rules", "at least one rule required")
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.Effect != EffectPermit && r.Effect != EffectDeny {
			return shared.NewValidationError("rules", "unknown effect "+string(r.Effect))
		}
		if r.Condition != nil {
			if err := r.Condition.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Request is one authorization question put to the decision point.
type Request struct {
	Subject     string
	Resource    string
	Action      string
	Environment map[string]any
}

// Response is the decision plus the side instructions the caller must honor.
type Response struct {
	Decision    Decision
	Obligations []string
	Advice      []string
	Reason      string
}
