package shared

import "context"

// Actor statuses.
const (
	StatusActive    = "ACTIVE"
	StatusInactive  = "INACTIVE"
	StatusSuspended = "SUSPENDED"
)

// Actor describes the authenticated principal a decision is made for.
// Identity resolution (sessions, tokens) happens upstream; by the time the
// authorization core sees an Actor it is a plain value.
type Actor struct {
	ID             string
	Role           string
	OrganizationID string
	Status         string
}

// IsActive reports whether the actor may act at all.
func (a Actor) IsActive() bool {
	return a.Status == StatusActive
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
