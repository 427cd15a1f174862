package permission

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Grant allows a set of actions on one resource type.
type Grant struct {
	ResourceType string   `json:"resourceType"`
	Actions      []string `json:"actions"`
}

// Allows reports whether the grant covers the action.
func (g Grant) Allows(action string) bool {
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Set is the immutable permission matrix for one role. Mutation happens only
// through Update, which returns a fresh value with a bumped version.
type Set struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Grants      []Grant   `json:"grants"`
	Description string    `json:"description"`
	Version     int       `json:"version"`
	IsActive    bool      `json:"isActive"`
	IsDraft     bool      `json:"isDraft"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CreatedBy   string    `json:"createdBy"`
}

// NewSet validates and builds a permission set for a role.
func NewSet(role string, grants []Grant, description, createdBy string) (Set, error) {
	now := time.Now().UTC()
	s := Set{
		ID:          uuid.NewString(),
		Role:        strings.TrimSpace(role),
		Grants:      cloneGrants(grants),
		Description: strings.TrimSpace(description),
		Version:     1,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
	}
	if err := s.validate(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// Allows reports whether the set grants the action on the resource type.
func (s Set) Allows(resource, action string) bool {
	g, ok := s.Grant(resource)
	if !ok {
		return false
	}
	return g.Allows(action)
}

// Grant returns the entry for the resource type, if any.
func (s Set) Grant(resource string) (Grant, bool) {
	for _, g := range s.Grants {
		if g.ResourceType == resource {
			return g, true
		}
	}
	return Grant{}, false
}

// Patch carries the fields Update may change. Nil means "keep".
type Patch struct {
	Grants      []Grant
	Description *string
	IsActive    *bool
	IsDraft     *bool
	ExpiresAt   *time.Time
}

// Update returns a structural copy with the patch applied, the version
// incremented and UpdatedAt refreshed. The receiver is never touched.
func (s Set) Update(patch Patch) (Set, error) {
	next := s
	next.Grants = cloneGrants(s.Grants)
	if patch.Grants != nil {
		next.Grants = cloneGrants(patch.Grants)
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	if patch.IsDraft != nil {
		next.IsDraft = *patch.IsDraft
	}
	if patch.ExpiresAt != nil {
		next.ExpiresAt = *patch.ExpiresAt
	}
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()
	if !next.UpdatedAt.After(s.UpdatedAt) {
		next.UpdatedAt = s.UpdatedAt.Add(time.Nanosecond)
	}
	if err := next.validate(); err != nil {
		return Set{}, err
	}
	return next, nil
}

// Usable reports whether the set may back authorization decisions.
func (s Set) Usable() bool {
	return s.IsActive && !s.Expired()
}

// Expired reports whether the optional expiry has passed.
func (s Set) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

func (s Set) validate() error {
	if s.Role == "" {
		return shared.NewValidationError("role", "required")
	}
	if s.Description == "" {
		return shared.NewValidationError("description", "required")
	}
	seen := make(map[string]struct{}, len(s.Grants))
	for _, g := range s.Grants {
		if g.ResourceType == "" {
			return shared.NewValidationError("grants", "resource type required")
		}
		if _, dup := seen[g.ResourceType]; dup {
			return shared.NewValidationError("grants", "duplicate resource type "+g.ResourceType)
		}
		seen[g.ResourceType] = struct{}{}
	}
	return nil
}

func cloneGrants(grants []Grant) []Grant {
	out := make([]Grant, len(grants))
	for i, g := range grants {
		actions := make([]string, len(g.Actions))
		copy(actions, g.Actions)
		sort.Strings(actions)
		out[i] = Grant{ResourceType: g.ResourceType, Actions: actions}
	}
	return out
}
