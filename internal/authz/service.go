package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pulsefit/pulsefit-iam/internal/permission"
	"github.com/pulsefit/pulsefit-iam/internal/policy"
	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// PolicyDecider is the decision point the façade consults for requests the
// attribute-based layer governs.
type PolicyDecider interface {
	Evaluate(ctx context.Context, req policy.Request) policy.Response
}

// DecisionRecorder receives every decision the façade makes. A recorder
// failure is logged and ignored: it must never change or abort a decision.
type DecisionRecorder interface {
	RecordAccess(ctx context.Context, decision AccessDecision) error
	RecordShare(ctx context.Context, actorID, targetID, resource string, granted bool, reason string) error
	RecordEvent(ctx context.Context, event string, detail map[string]any) error
}

// Service is the authorization façade: RBAC matrix lookup, organization
// boundary checks, the validation pipeline and the optional ABAC decision
// point combined into one fail-closed answer.
type Service struct {
	perms     permission.Repository
	admin     *permission.Service
	decider   PolicyDecider
	validator *Validator
	recorder  DecisionRecorder
	logger    *slog.Logger
}

// ServiceParams groups the façade's collaborators. Decider, Validator and
// Recorder are optional.
type ServiceParams struct {
	Permissions     permission.Repository
	PermissionAdmin *permission.Service
	Decider         PolicyDecider
	Validator       *Validator
	Recorder        DecisionRecorder
	Logger          *slog.Logger
}

// NewService constructs the façade.
func NewService(params ServiceParams) *Service {
	return &Service{
		perms:     params.Permissions,
		admin:     params.PermissionAdmin,
		decider:   params.Decider,
		validator: params.Validator,
		recorder:  params.Recorder,
		logger:    params.Logger,
	}
}

// CanAccess answers the boolean authorization question. It fails closed and
// never returns an error: an internal failure is a denial.
func (s *Service) CanAccess(ctx context.Context, actor shared.Actor, resource, action string, access AccessContext) bool {
	return s.ValidateAccess(ctx, actor, resource, action, access).Granted
}

// ValidateAccess runs the same evaluation as CanAccess but returns the
// structured explanation. Internal errors land in Reason, never propagate.
func (s *Service) ValidateAccess(ctx context.Context, actor shared.Actor, resource, action string, access AccessContext) AccessDecision {
	req := AccessRequest{Actor: actor, Resource: resource, Action: action, Context: access}
	decision := s.evaluate(ctx, req)
	s.record(ctx, decision)
	return decision
}

func (s *Service) evaluate(ctx context.Context, req AccessRequest) (decision AccessDecision) {
	decision = AccessDecision{Request: req, Timestamp: time.Now().UTC(), Strategy: StrategyRBAC}
	defer func() {
		if r := recover(); r != nil {
			decision.Granted = false
			decision.Reason = fmt.Sprintf("evaluation failed: %v", r)
			if s.logger != nil {
				s.logger.Error("authorization panic",
					slog.String("actor", req.Actor.ID),
					slog.Any("panic", r))
			}
		}
	}()

	if !req.Actor.IsActive() {
		decision.Reason = "actor is not active"
		return decision
	}

	if s.validator != nil {
		result := s.validator.Validate(ctx, req)
		if !result.Valid {
			decision.Reason = "validation failed: " + strings.Join(result.FailedRules, ", ")
			return decision
		}
	}

	set, err := s.perms.FindByRole(ctx, req.Actor.Role)
	if err != nil {
		decision.Reason = fmt.Sprintf("permission lookup failed: %v", err)
		return decision
	}
	if set == nil {
		decision.Reason = "no permission set for role " + req.Actor.Role
		return decision
	}
	if !set.Usable() {
		decision.Reason = "permission set for role " + req.Actor.Role + " is not usable"
		return decision
	}
	if !set.Allows(req.Resource, req.Action) {
		decision.Reason = fmt.Sprintf("role %s may not %s %s", req.Actor.Role, req.Action, req.Resource)
		return decision
	}

	if req.Context.OrganizationID != "" && req.Context.OrganizationID != req.Actor.OrganizationID {
		decision.Reason = "organization boundary violation"
		return decision
	}

	if s.decider != nil {
		decision.Strategy = StrategyRBACABAC
		resp := s.decider.Evaluate(ctx, policy.Request{
			Subject:     req.Actor.ID,
			Resource:    req.Resource,
			Action:      req.Action,
			Environment: req.Context.Environment,
		})
		switch resp.Decision {
		case policy.DecisionDeny:
			decision.Reason = "denied by policy: " + resp.Reason
			return decision
		case policy.DecisionIndeterminate:
			// Fail secure: an inconclusive policy evaluation denies.
			decision.Reason = "policy evaluation inconclusive: " + resp.Reason
			return decision
		}
	}

	decision.Granted = true
	decision.Reason = fmt.Sprintf("role %s grants %s on %s", req.Actor.Role, req.Action, req.Resource)
	return decision
}

// CanShare reports whether the actor may share the resource with the target.
// Sharing requires the SHARE permission and a shared organization.
func (s *Service) CanShare(ctx context.Context, actor, target shared.Actor, resource string) bool {
	granted := s.CanAccess(ctx, actor, resource, shared.ActionShare, AccessContext{})
	sameOrg := actor.OrganizationID != "" && actor.OrganizationID == target.OrganizationID
	allowed := granted && sameOrg

	reason := "share permitted"
	if !granted {
		reason = "actor lacks share permission"
	} else if !sameOrg {
		reason = "target belongs to a different organization"
	}
	if s.recorder != nil {
		if err := s.recorder.RecordShare(ctx, actor.ID, target.ID, resource, allowed, reason); err != nil && s.logger != nil {
			s.logger.Warn("record share decision", slog.Any("error", err))
		}
	}
	return allowed
}

// BatchAuthorize evaluates requests concurrently and returns decisions in
// input order. One request's internal failure never affects its siblings.
func (s *Service) BatchAuthorize(ctx context.Context, requests []AccessRequest) []AccessDecision {
	decisions := make([]AccessDecision, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			decisions[i] = s.evaluate(gctx, req)
			s.record(gctx, decisions[i])
			return nil
		})
	}
	// Members never return errors; evaluate converts every failure into a
	// denied decision for that member alone.
	_ = g.Wait()
	return decisions
}

// CreatePermissionSet provisions the RBAC matrix for a role.
func (s *Service) CreatePermissionSet(ctx context.Context, role string, grants []permission.Grant, description, createdBy string) (*permission.Set, error) {
	return s.admin.Create(ctx, role, grants, description, createdBy)
}

// UpdateRolePermissions replaces a role's grants.
func (s *Service) UpdateRolePermissions(ctx context.Context, role string, grants []permission.Grant) (*permission.Set, error) {
	return s.admin.UpdateRolePermissions(ctx, role, grants)
}

func (s *Service) record(ctx context.Context, decision AccessDecision) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordAccess(ctx, decision); err != nil && s.logger != nil {
		s.logger.Warn("record access decision",
			slog.String("actor", decision.Request.Actor.ID),
			slog.Any("error", err))
	}
}
