package auth

import (
	"context"
	"errors"
	"fmt"
)

// Identity is the authenticated caller as resolved from a bearer token.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`
	// Permissions is the stored set of an administrative profile, nil otherwise.
	Permissions *PermissionSet `json:"permissions,omitempty"`
}

// EffectivePermissions returns the derived set for table roles and the stored
// set for every other role.
func (id *Identity) EffectivePermissions() PermissionSet {
	if id == nil {
		return PermissionSet{}
	}
	if set, ok := DerivePermissions(id.Role); ok {
		return set
	}
	if id.Permissions != nil {
		return *id.Permissions
	}
	return PermissionSet{}
}

// HasAny reports whether the identity holds at least one of caps.
func (id *Identity) HasAny(caps ...Capability) bool {
	set := id.EffectivePermissions()
	for _, c := range caps {
		if set.Has(c) {
			return true
		}
	}
	return false
}

// Action is a route declaration: who may call it and what it touches.
type Action struct {
	Name string
	// Roles is the acceptable role set; empty accepts any authenticated identity.
	Roles []Role
	// Capabilities are alternatives; one of them must be held.
	Capabilities []Capability
	// Scoped actions target a single owned resource.
	Scoped bool
	// Override lists capabilities that bypass the ownership check.
	Override []Capability
}

// Reason is the machine-readable outcome code of an authorization decision.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonRoleNotPermitted  Reason = "role-not-permitted"
	ReasonCapabilityMissing Reason = "capability-missing"
	ReasonNotOwner          Reason = "not-owner"
	ReasonNotFound          Reason = "not-found"
)

// Decision is the result of Gate.Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Internal carries storage failures met while resolving ownership.
	Internal error
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason Reason) Decision { return Decision{Reason: reason} }

// Err converts a denial into an error the caller can return unchanged.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Internal != nil {
		return d.Internal
	}
	return &DenyError{Reason: d.Reason}
}

// DenyError is returned for every negative decision.
type DenyError struct {
	Reason Reason
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("auth: denied (%s)", e.Reason)
}

func (e *DenyError) Unwrap() error {
	switch e.Reason {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonNotFound:
		return ErrNotFound
	default:
		return ErrForbidden
	}
}

// ReasonOf extracts the denial reason from err, if any.
func ReasonOf(err error) Reason {
	var de *DenyError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ReasonNone
}

// Gate is the request-time authorization decision procedure.
type Gate struct {
	owners *Resolver
}

func NewGate(owners *Resolver) *Gate {
	return &Gate{owners: owners}
}

// Authorize evaluates identity presence, role membership, capability and
// ownership in that order and stops at the first failure. It never mutates state.
func (g *Gate) Authorize(ctx context.Context, id *Identity, action Action, ref *ResourceRef) Decision {
	if id == nil || id.UserID == "" || !id.Active {
		return deny(ReasonUnauthenticated)
	}
	if len(action.Roles) > 0 && !roleIn(id.Role, action.Roles) {
		return deny(ReasonRoleNotPermitted)
	}
	if len(action.Capabilities) > 0 && !id.HasAny(action.Capabilities...) {
		return deny(ReasonCapabilityMissing)
	}
	if !action.Scoped {
		return allow()
	}
	if len(action.Override) > 0 && id.HasAny(action.Override...) {
		return allow()
	}
	if ref == nil || g.owners == nil {
		return deny(ReasonNotOwner)
	}
	owner, err := g.owners.IsOwner(ctx, id.UserID, *ref)
	switch {
	case errors.Is(err, ErrNotFound):
		return deny(ReasonNotFound)
	case err != nil:
		return Decision{Internal: fmt.Errorf("resolve owner of %s %s: %w", ref.Kind, ref.ID, err)}
	case !owner:
		return deny(ReasonNotOwner)
	}
	return allow()
}

// Require is Authorize followed by Decision.Err.
func (g *Gate) Require(ctx context.Context, id *Identity, action Action, ref *ResourceRef) error {
	return g.Authorize(ctx, id, action, ref).Err()
}

func roleIn(role Role, roles []Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
