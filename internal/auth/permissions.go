package auth

import (
	"fmt"
	"strings"
)

// Role is either an administrative role or a marketplace account role.
type Role string

const (
	RoleSuperAdmin          Role = "super-admin"
	RoleAdmin               Role = "admin"
	RoleVerificationOfficer Role = "verification-officer"
	RoleSupportOfficer      Role = "support-officer"
	RoleFinanceOfficer      Role = "finance-officer"
	RoleModerator           Role = "moderator"
	RoleSecretary           Role = "secretary"

	RoleClient    Role = "client"
	RoleFundi     Role = "fundi"
	RoleShopOwner Role = "shop-owner"
)

// AdministrativeRoles lists every role an administrative profile may hold.
var AdministrativeRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleVerificationOfficer,
	RoleSupportOfficer,
	RoleFinanceOfficer,
	RoleModerator,
	RoleSecretary,
}

// AccountRoles lists the roles of ordinary marketplace accounts.
var AccountRoles = []Role{RoleClient, RoleFundi, RoleShopOwner}

// ParseRole normalises and validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if role.IsAdministrative() {
		return role, nil
	}
	for _, r := range AccountRoles {
		if r == role {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
}

// IsAdministrative reports whether the role belongs to the fixed administrative set.
func (r Role) IsAdministrative() bool {
	for _, a := range AdministrativeRoles {
		if a == r {
			return true
		}
	}
	return false
}

// Capability is a single named permission flag.
type Capability string

const (
	CapUserManagement     Capability = "user-management"
	CapFundiVerification  Capability = "fundi-verification"
	CapClientVerification Capability = "client-verification"
	CapShopVerification   Capability = "shop-verification"
	CapDisputeManagement  Capability = "dispute-management"
	CapPaymentManagement  Capability = "payment-management"
	CapContentModeration  Capability = "content-moderation"
	CapAnalyticsView      Capability = "analytics-view"
	CapSystemSettings     Capability = "system-settings"
)

// AllCapabilities is the canonical flag order.
var AllCapabilities = []Capability{
	CapUserManagement,
	CapFundiVerification,
	CapClientVerification,
	CapShopVerification,
	CapDisputeManagement,
	CapPaymentManagement,
	CapContentModeration,
	CapAnalyticsView,
	CapSystemSettings,
}

// PermissionSet holds the nine capability flags of an administrative profile.
type PermissionSet struct {
	UserManagement     bool `json:"user_management"`
	FundiVerification  bool `json:"fundi_verification"`
	ClientVerification bool `json:"client_verification"`
	ShopVerification   bool `json:"shop_verification"`
	DisputeManagement  bool `json:"dispute_management"`
	PaymentManagement  bool `json:"payment_management"`
	ContentModeration  bool `json:"content_moderation"`
	AnalyticsView      bool `json:"analytics_view"`
	SystemSettings     bool `json:"system_settings"`
}

func (p *PermissionSet) flag(c Capability) *bool {
	switch c {
	case CapUserManagement:
		return &p.UserManagement
	case CapFundiVerification:
		return &p.FundiVerification
	case CapClientVerification:
		return &p.ClientVerification
	case CapShopVerification:
		return &p.ShopVerification
	case CapDisputeManagement:
		return &p.DisputeManagement
	case CapPaymentManagement:
		return &p.PaymentManagement
	case CapContentModeration:
		return &p.ContentModeration
	case CapAnalyticsView:
		return &p.AnalyticsView
	case CapSystemSettings:
		return &p.SystemSettings
	}
	return nil
}

// Has reports whether the capability flag is set.
func (p PermissionSet) Has(c Capability) bool {
	f := p.flag(c)
	return f != nil && *f
}

// With returns a copy of the set with the given capabilities enabled.
func (p PermissionSet) With(caps ...Capability) PermissionSet {
	for _, c := range caps {
		if f := p.flag(c); f != nil {
			*f = true
		}
	}
	return p
}

// Capabilities lists enabled flags in canonical order.
func (p PermissionSet) Capabilities() []Capability {
	var out []Capability
	for _, c := range AllCapabilities {
		if p.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

var permissionMatrix = map[Role]PermissionSet{
	RoleSuperAdmin: PermissionSet{}.With(AllCapabilities...),
	RoleVerificationOfficer: PermissionSet{}.With(
		CapFundiVerification, CapClientVerification, CapShopVerification, CapAnalyticsView,
	),
	RoleSupportOfficer: PermissionSet{}.With(
		CapDisputeManagement, CapContentModeration, CapAnalyticsView,
	),
	RoleFinanceOfficer: PermissionSet{}.With(
		CapPaymentManagement, CapAnalyticsView,
	),
	RoleModerator: PermissionSet{}.With(
		CapDisputeManagement, CapContentModeration, CapAnalyticsView,
	),
}

// DerivePermissions returns the canonical permission set for role. The boolean is
// false for roles without a table row (admin, secretary, account roles).
func DerivePermissions(role Role) (PermissionSet, bool) {
	set, ok := permissionMatrix[role]
	return set, ok
}

// ResolvePermissions computes the set to persist alongside role. Roles with a table
// row always receive it and may not carry a custom set; other administrative roles
// must be given one explicitly.
func ResolvePermissions(role Role, custom *PermissionSet) (PermissionSet, error) {
	if !role.IsAdministrative() {
		return PermissionSet{}, fmt.Errorf("%w: %q is not an administrative role", ErrInvalidInput, role)
	}
	if derived, ok := DerivePermissions(role); ok {
		if custom != nil && *custom != derived {
			return PermissionSet{}, fmt.Errorf("%w: permissions of role %q are derived and cannot be customised", ErrInvalidInput, role)
		}
		return derived, nil
	}
	if custom == nil {
		return PermissionSet{}, fmt.Errorf("%w: %q requires an explicit permission set", ErrDerivationGap, role)
	}
	return *custom, nil
}
