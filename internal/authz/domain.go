package authz

import (
	"time"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Strategy labels record which evaluation path produced a decision.
const (
	StrategyRBAC     = "rbac"
	StrategyRBACABAC = "rbac+abac"
)

// AccessContext carries the optional request context an authorization check
// may consult: the organization boundary, the concrete resource instance and
// free-form metadata/environment for validation rules and ABAC conditions.
type AccessContext struct {
	OrganizationID string
	ResourceID     string
	Metadata       map[string]any
	Environment    map[string]any
}

// AccessRequest is one authorization question.
type AccessRequest struct {
	Actor    shared.Actor
	Resource string
	Action   string
	Context  AccessContext
}

// AccessDecision explains a single decision. A denied access and an erroring
// access look identical apart from Reason; internals never leak through the
// granted flag.
type AccessDecision struct {
	Granted   bool
	Reason    string
	Request   AccessRequest
	Timestamp time.Time
	Strategy  string
}
