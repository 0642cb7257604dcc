package auth

import (
	"errors"
	"slices"
	"testing"
)

func TestDerivePermissionsTable(t *testing.T) {
	cases := map[Role][]Capability{
		RoleSuperAdmin:          AllCapabilities,
		RoleVerificationOfficer: {CapFundiVerification, CapClientVerification, CapShopVerification, CapAnalyticsView},
		RoleSupportOfficer:      {CapDisputeManagement, CapContentModeration, CapAnalyticsView},
		RoleFinanceOfficer:      {CapPaymentManagement, CapAnalyticsView},
		RoleModerator:           {CapDisputeManagement, CapContentModeration, CapAnalyticsView},
	}
	for role, want := range cases {
		set, ok := DerivePermissions(role)
		if !ok {
			t.Fatalf("%s: expected derivation", role)
		}
		if got := set.Capabilities(); !slices.Equal(got, want) {
			t.Fatalf("%s: got %v, want %v", role, got, want)
		}
	}
}

func TestDerivePermissionsGap(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleSecretary, RoleClient, Role("custom")} {
		if set, ok := DerivePermissions(role); ok || set != (PermissionSet{}) {
			t.Fatalf("%s: expected no derivation, got %v", role, set.Capabilities())
		}
	}
}

func TestResolvePermissions(t *testing.T) {
	derived, err := ResolvePermissions(RoleFinanceOfficer, nil)
	if err != nil {
		t.Fatalf("resolve finance officer: %v", err)
	}
	if !derived.Has(CapPaymentManagement) || derived.Has(CapSystemSettings) {
		t.Fatalf("unexpected derived set: %v", derived.Capabilities())
	}

	custom := PermissionSet{}.With(CapSystemSettings)
	if _, err := ResolvePermissions(RoleModerator, &custom); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for customised derived role, got %v", err)
	}
	same, _ := DerivePermissions(RoleModerator)
	if _, err := ResolvePermissions(RoleModerator, &same); err != nil {
		t.Fatalf("identical set should be accepted: %v", err)
	}

	if _, err := ResolvePermissions(RoleSecretary, nil); !errors.Is(err, ErrDerivationGap) {
		t.Fatalf("expected ErrDerivationGap, got %v", err)
	}
	got, err := ResolvePermissions(RoleAdmin, &custom)
	if err != nil {
		t.Fatalf("resolve admin: %v", err)
	}
	if got != custom {
		t.Fatalf("expected custom set preserved, got %v", got.Capabilities())
	}

	if _, err := ResolvePermissions(RoleShopOwner, &custom); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected account role rejected, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  Verification-Officer ")
	if err != nil || role != RoleVerificationOfficer {
		t.Fatalf("unexpected parse result %q, %v", role, err)
	}
	if _, err := ParseRole("root"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
