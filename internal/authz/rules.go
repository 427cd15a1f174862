package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Metadata keys the built-in rules read.
const (
	MetaOrganizationStatus = "organizationStatus"
	MetaCreatedBy          = "createdBy"
)

// BuiltinRules returns the standard validation pipeline.
func BuiltinRules() []ValidationRule {
	return []ValidationRule{
		ActorActiveRule{},
		ActorNotSuspendedRule{},
		OrganizationActiveRule{},
		OrganizationMembershipRule{},
		ResourceOwnershipRule{},
	}
}

// ActorActiveRule requires the actor's account to be ACTIVE.
type ActorActiveRule struct{}

func (ActorActiveRule) Name() string        { return "actor-active" }
func (ActorActiveRule) Description() string { return "actor account must be active" }
func (ActorActiveRule) Required() bool      { return true }

func (ActorActiveRule) AppliesTo(AccessRequest) bool { return true }

func (ActorActiveRule) Validate(_ context.Context, req AccessRequest) error {
	if !req.Actor.IsActive() {
		return fmt.Errorf("actor %s has status %s", req.Actor.ID, req.Actor.Status)
	}
	return nil
}

// ActorNotSuspendedRule rejects suspended actors outright.
type ActorNotSuspendedRule struct{}

func (ActorNotSuspendedRule) Name() string        { return "actor-not-suspended" }
func (ActorNotSuspendedRule) Description() string { return "suspended actors may not act" }
func (ActorNotSuspendedRule) Required() bool      { return true }

func (ActorNotSuspendedRule) AppliesTo(AccessRequest) bool { return true }

func (ActorNotSuspendedRule) Validate(_ context.Context, req AccessRequest) error {
	if req.Actor.Status == shared.StatusSuspended {
		return fmt.Errorf("actor %s is suspended", req.Actor.ID)
	}
	return nil
}

// OrganizationActiveRule checks the organization status when the request
// carries organization context at all.
type OrganizationActiveRule struct{}

func (OrganizationActiveRule) Name() string        { return "organization-active" }
func (OrganizationActiveRule) Description() string { return "organization must be active" }
func (OrganizationActiveRule) Required() bool      { return true }

func (OrganizationActiveRule) AppliesTo(req AccessRequest) bool {
	if req.Context.OrganizationID != "" {
		return true
	}
	_, ok := req.Context.Metadata[MetaOrganizationStatus]
	return ok
}

func (OrganizationActiveRule) Validate(_ context.Context, req AccessRequest) error {
	status, ok := req.Context.Metadata[MetaOrganizationStatus].(string)
	if !ok {
		// Organization id present but no status supplied: nothing to check.
		return nil
	}
	if status != shared.StatusActive {
		return fmt.Errorf("organization has status %s", status)
	}
	return nil
}

// OrganizationMembershipRule ensures the actor belongs to the organization
// named by the request context.
type OrganizationMembershipRule struct{}

func (OrganizationMembershipRule) Name() string { return "organization-membership" }
func (OrganizationMembershipRule) Description() string {
	return "actor must belong to the requested organization"
}
func (OrganizationMembershipRule) Required() bool { return true }

func (OrganizationMembershipRule) AppliesTo(req AccessRequest) bool {
	return req.Context.OrganizationID != ""
}

func (OrganizationMembershipRule) Validate(_ context.Context, req AccessRequest) error {
	if req.Actor.OrganizationID != req.Context.OrganizationID {
		return fmt.Errorf("actor belongs to organization %s, not %s",
			req.Actor.OrganizationID, req.Context.OrganizationID)
	}
	return nil
}

// ResourceOwnershipRule restricts destructive actions on a concrete resource
// instance to its creator. It only fires for UPDATE/DELETE when the request
// names a resource instance.
type ResourceOwnershipRule struct{}

func (ResourceOwnershipRule) Name() string        { return "resource-ownership" }
func (ResourceOwnershipRule) Description() string { return "only the creator may modify a resource" }
func (ResourceOwnershipRule) Required() bool      { return true }

func (ResourceOwnershipRule) AppliesTo(req AccessRequest) bool {
	if req.Context.ResourceID == "" {
		return false
	}
	return req.Action == shared.ActionUpdate || req.Action == shared.ActionDelete
}

func (ResourceOwnershipRule) Validate(_ context.Context, req AccessRequest) error {
	createdBy, ok := req.Context.Metadata[MetaCreatedBy].(string)
	if !ok {
		return errors.New("resource creator unknown")
	}
	if createdBy != req.Actor.ID {
		return fmt.Errorf("resource %s belongs to %s", req.Context.ResourceID, createdBy)
	}
	return nil
}
