package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/anansi"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

// viewerCtxKey is the context key for storing the viewer.
type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
// Use this for testing or simple use cases.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string {
	return v.UserID
}

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string {
	return v.Roles
}

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string {
	return v.TenantID
}

// DenyIfNoViewer returns a rule that denies access if no viewer is present in the context.
// This is typically used as the first rule in a policy to require authentication.
//
// Example:
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role.
// Skips if the viewer doesn't have the role (allows next rule to evaluate).
//
// Example:
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func HasRole(role string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if slices.Contains(viewer.GetRoles(), role) {
			return Allow
		}
		return Skip
	})
}

// HasAnyRole returns a rule that allows access if the viewer has any of the specified roles.
// Skips if the viewer doesn't have any of the roles (allows next rule to evaluate).
//
// Example:
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasAnyRole("admin", "moderator"),
//	    privacy.AlwaysDenyRule(),
//	}
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows access to records whose field holds
// the viewer's ID. Queries are narrowed to the viewer's records; a
// record-less delete is narrowed the same way.
//
// Example:
//
//	privacy.Policy{
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.IsOwner("user_id"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}
func IsOwner(field string) QueryMutationRule {
	return scopedRule{
		field: field,
		value: func(v Viewer) string { return v.GetID() },
		miss:  Skip,
	}
}

// OwnerQueryRule returns a query rule that denies queries without a viewer.
// Use it as a guard ahead of IsOwner.
func OwnerQueryRule() QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ *Query) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("privacy: viewer required for owner-filtered query")
		}
		return Skip
	})
}

// TenantRule returns a rule isolating the viewer's tenant. Queries and
// record-less deletes are narrowed to the tenant; records of another
// tenant are denied.
//
// Example:
//
//	privacy.Policy{
//	    Query:    privacy.QueryPolicy{privacy.TenantQueryRule(), privacy.TenantRule("tenant_id")},
//	    Mutation: privacy.MutationPolicy{privacy.DenyIfNoViewer(), privacy.TenantRule("tenant_id")},
//	}
func TenantRule(field string) QueryMutationRule {
	return scopedRule{
		field: field,
		value: func(v Viewer) string { return v.GetTenantID() },
		miss:  Denyf("privacy: tenant mismatch"),
	}
}

// TenantQueryRule returns a query rule that denies queries if no viewer
// or tenant is present.
func TenantQueryRule() QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ *Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		return Skip
	})
}

// scopedRule matches a record field against a viewer attribute. A record
// matching it is allowed and a mismatch yields miss. Queries and
// record-less deletes are narrowed and the chain continues.
type scopedRule struct {
	field string
	value func(Viewer) string
	miss  error
}

func (r scopedRule) scope(ctx context.Context) (string, bool) {
	viewer := ViewerFromContext(ctx)
	if viewer == nil {
		return "", false
	}
	v := r.value(viewer)
	return v, v != ""
}

func (r scopedRule) EvalQuery(ctx context.Context, q *Query) error {
	v, ok := r.scope(ctx)
	if !ok {
		return Skip
	}
	q.Where(anansi.Q(r.field).Is(v))
	return Skip
}

func (r scopedRule) EvalMutation(ctx context.Context, m *Mutation) error {
	v, ok := r.scope(ctx)
	if !ok {
		return Skip
	}
	if m.Where(anansi.Q(r.field).Is(v)) {
		return Skip
	}
	value, ok := m.Field(r.field)
	if !ok || value == nil {
		return Skip
	}
	if fmt.Sprint(value) == v {
		return Allow
	}
	return r.miss
}
