package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

func TestServiceCreateRejectsInvalidPolicy(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{}
	svc := NewService(store, nil)

	_, err := svc.Create(ctx, "", "", Target{}, []Rule{{Effect: EffectPermit}}, 0)
	require.Error(t, err)
	require.True(t, shared.IsValidation(err))
	require.Empty(t, store.policies)

	created, err := svc.Create(ctx, "after-hours", "deny outside business hours", Target{},
		[]Rule{{ID: "r1", Effect: EffectDeny}}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Len(t, store.policies, 1)
}

func TestServiceActivationTogglesEvaluationVisibility(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{}
	svc := NewService(store, nil)

	created, err := svc.Create(ctx, "after-hours", "", Target{}, []Rule{{ID: "r1", Effect: EffectDeny}}, 10)
	require.NoError(t, err)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, svc.Deactivate(ctx, created.ID))
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, svc.Activate(ctx, created.ID))
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.Error(t, svc.Activate(ctx, "ghost"))
}

func TestServiceUpdateRevalidates(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{}
	svc := NewService(store, nil)

	created, err := svc.Create(ctx, "after-hours", "", Target{}, []Rule{{ID: "r1", Effect: EffectDeny}}, 10)
	require.NoError(t, err)

	broken := *created
	broken.Rules = nil
	_, err = svc.Update(ctx, created.ID, broken)
	require.Error(t, err)

	changed := *created
	changed.Priority = 20
	updated, err := svc.Update(ctx, created.ID, changed)
	require.NoError(t, err)
	require.Equal(t, 20, updated.Priority)
	require.True(t, updated.UpdatedAt.After(created.CreatedAt) || updated.UpdatedAt.Equal(created.CreatedAt))
}

func TestServiceDelete(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{}
	svc := NewService(store, nil)

	created, err := svc.Create(ctx, "after-hours", "", Target{}, []Rule{{ID: "r1", Effect: EffectDeny}}, 10)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, created.ID), shared.ErrNotFound)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
