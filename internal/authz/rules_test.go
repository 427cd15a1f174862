package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

func TestActorActiveRule(t *testing.T) {
	rule := ActorActiveRule{}
	req := activeRequest()
	require.True(t, rule.AppliesTo(req))
	require.NoError(t, rule.Validate(context.Background(), req))

	req.Actor.Status = shared.StatusInactive
	require.Error(t, rule.Validate(context.Background(), req))
}

func TestActorNotSuspendedRule(t *testing.T) {
	rule := ActorNotSuspendedRule{}
	req := activeRequest()
	require.NoError(t, rule.Validate(context.Background(), req))

	req.Actor.Status = shared.StatusSuspended
	require.Error(t, rule.Validate(context.Background(), req))
}

func TestOrganizationActiveRule(t *testing.T) {
	rule := OrganizationActiveRule{}
	req := activeRequest()
	require.False(t, rule.AppliesTo(req))

	req.Context.OrganizationID = "org-1"
	require.True(t, rule.AppliesTo(req))
	// No status in metadata: nothing to check.
	require.NoError(t, rule.Validate(context.Background(), req))

	req.Context.Metadata = map[string]any{MetaOrganizationStatus: shared.StatusActive}
	require.NoError(t, rule.Validate(context.Background(), req))

	req.Context.Metadata[MetaOrganizationStatus] = shared.StatusSuspended
	require.Error(t, rule.Validate(context.Background(), req))

	// Status alone, without an organization id, still applies.
	statusOnly := activeRequest()
	statusOnly.Context.Metadata = map[string]any{MetaOrganizationStatus: shared.StatusInactive}
	require.True(t, rule.AppliesTo(statusOnly))
	require.Error(t, rule.Validate(context.Background(), statusOnly))
}

func TestOrganizationMembershipRule(t *testing.T) {
	rule := OrganizationMembershipRule{}
	req := activeRequest()
	require.False(t, rule.AppliesTo(req))

	req.Actor.OrganizationID = "org-1"
	req.Context.OrganizationID = "org-1"
	require.True(t, rule.AppliesTo(req))
	require.NoError(t, rule.Validate(context.Background(), req))

	req.Context.OrganizationID = "org-2"
	require.Error(t, rule.Validate(context.Background(), req))
}

func TestResourceOwnershipRule(t *testing.T) {
	rule := ResourceOwnershipRule{}

	read := activeRequest()
	read.Context.ResourceID = "w-1"
	require.False(t, rule.AppliesTo(read))

	update := activeRequest()
	update.Action = shared.ActionUpdate
	require.False(t, rule.AppliesTo(update))

	update.Context.ResourceID = "w-1"
	require.True(t, rule.AppliesTo(update))

	// Unknown creator fails closed.
	require.Error(t, rule.Validate(context.Background(), update))

	update.Context.Metadata = map[string]any{MetaCreatedBy: "u1"}
	require.NoError(t, rule.Validate(context.Background(), update))

	update.Context.Metadata[MetaCreatedBy] = "someone-else"
	require.Error(t, rule.Validate(context.Background(), update))
}

func TestBuiltinRulesRegister(t *testing.T) {
	v, err := NewValidator(nil, BuiltinRules()...)
	require.NoError(t, err)

	result := v.Validate(context.Background(), activeRequest())
	require.True(t, result.Valid)
}
