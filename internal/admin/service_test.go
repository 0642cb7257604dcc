package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/store/memory"
)

var root = &auth.Identity{UserID: "u-root", Role: auth.RoleSuperAdmin, Active: true}

func newService(t *testing.T) (*admin.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, id := range []string{"u-root", "u-1", "u-2", "u-3"} {
		store.PutAccount(auth.Account{ID: id, Email: id + "@fundimart.local", Role: auth.RoleClient, Status: auth.AccountStatusActive})
	}
	svc, err := admin.NewService(store, store, auth.NewGate(auth.NewResolver(store)))
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	return svc, store
}

func TestPromoteDerivesPermissions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Promote(ctx, root, "u-1", auth.RoleFinanceOfficer, nil)
	require.NoError(t, err)
	want, _ := auth.DerivePermissions(auth.RoleFinanceOfficer)
	assert.Equal(t, want, p.Permissions)
	assert.NotEmpty(t, p.ID)

	_, err = svc.Promote(ctx, root, "u-1", auth.RoleModerator, nil)
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestPromoteDerivationGap(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Promote(ctx, root, "u-1", auth.RoleSecretary, nil)
	assert.ErrorIs(t, err, auth.ErrDerivationGap)

	custom := auth.PermissionSet{}.With(auth.CapAnalyticsView)
	p, err := svc.Promote(ctx, root, "u-1", auth.RoleSecretary, &custom)
	require.NoError(t, err)
	assert.Equal(t, custom, p.Permissions)

	tampered := auth.PermissionSet{}.With(auth.CapSystemSettings)
	_, err = svc.Promote(ctx, root, "u-2", auth.RoleModerator, &tampered)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = svc.Promote(ctx, root, "u-2", auth.RoleShopOwner, nil)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = svc.Promote(ctx, root, "u-missing", auth.RoleModerator, nil)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestPromoteRequiresUserManagement(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	moderator := &auth.Identity{UserID: "u-mod", Role: auth.RoleModerator, Active: true}
	_, err := svc.Promote(ctx, moderator, "u-1", auth.RoleModerator, nil)
	assert.Equal(t, auth.ReasonRoleNotPermitted, auth.ReasonOf(err))

	plainAdmin := &auth.Identity{UserID: "u-adm", Role: auth.RoleAdmin, Active: true, Permissions: &auth.PermissionSet{}}
	_, err = svc.Promote(ctx, plainAdmin, "u-1", auth.RoleModerator, nil)
	assert.Equal(t, auth.ReasonCapabilityMissing, auth.ReasonOf(err))
}

func TestChangeRoleReplacesPermissions(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	p, err := svc.Promote(ctx, root, "u-1", auth.RoleSupportOfficer, nil)
	require.NoError(t, err)

	p, err = svc.ChangeRole(ctx, root, p.ID, auth.RoleVerificationOfficer, nil)
	require.NoError(t, err)
	want, _ := auth.DerivePermissions(auth.RoleVerificationOfficer)
	assert.Equal(t, auth.RoleVerificationOfficer, p.Role)
	assert.Equal(t, want, p.Permissions)

	grant, err := store.AdminGrant(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, want, grant.Permissions)

	_, err = svc.ChangeRole(ctx, root, p.ID, auth.RoleAdmin, nil)
	assert.ErrorIs(t, err, auth.ErrDerivationGap)
	unchanged, err := svc.Get(ctx, root, p.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleVerificationOfficer, unchanged.Role)
}

func TestChangeRoleKeepsCustomPermissions(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	custom := auth.PermissionSet{}.With(auth.CapAnalyticsView)
	p, err := svc.Promote(ctx, root, "u-1", auth.RoleAdmin, &custom)
	require.NoError(t, err)

	p, err = svc.ChangeRole(ctx, root, p.ID, auth.RoleSecretary, nil)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleSecretary, p.Role)
	assert.Equal(t, custom, p.Permissions)

	p, err = svc.ChangeRole(ctx, root, p.ID, auth.RoleAdmin, nil)
	require.NoError(t, err)
	assert.Equal(t, custom, p.Permissions)

	grant, err := store.AdminGrant(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, grant.Role)
	assert.Equal(t, custom, grant.Permissions)

	replaced := auth.PermissionSet{}.With(auth.CapUserManagement)
	p, err = svc.ChangeRole(ctx, root, p.ID, auth.RoleSecretary, &replaced)
	require.NoError(t, err)
	assert.Equal(t, replaced, p.Permissions)

	_, err = svc.ChangeRole(ctx, root, "adm_missing", auth.RoleAdmin, nil)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSetCustomPermissions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	custom := auth.PermissionSet{}.With(auth.CapUserManagement)
	adm, err := svc.Promote(ctx, root, "u-1", auth.RoleAdmin, &custom)
	require.NoError(t, err)

	next := custom.With(auth.CapSystemSettings)
	adm, err = svc.SetCustomPermissions(ctx, root, adm.ID, next)
	require.NoError(t, err)
	assert.True(t, adm.Permissions.Has(auth.CapSystemSettings))

	mod, err := svc.Promote(ctx, root, "u-2", auth.RoleModerator, nil)
	require.NoError(t, err)
	_, err = svc.SetCustomPermissions(ctx, root, mod.ID, next)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestHistoryAndStats(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Promote(ctx, root, "u-1", auth.RoleVerificationOfficer, nil)
	require.NoError(t, err)

	require.NoError(t, svc.RecordLogin(ctx, "u-1", "10.1.1.1", "firefox"))
	require.NoError(t, svc.RecordLogin(ctx, "u-1", "10.1.1.2", ""))
	require.NoError(t, svc.RecordLogin(ctx, "u-3", "10.1.1.3", ""), "accounts without a profile are skipped")

	require.NoError(t, svc.IncrementStat(ctx, "u-1", admin.StatVerifiedCount))
	require.NoError(t, svc.IncrementStat(ctx, "u-1", admin.StatVerifiedCount))
	require.NoError(t, svc.IncrementStat(ctx, "u-3", admin.StatVerifiedCount))
	assert.ErrorIs(t, svc.IncrementStat(ctx, "u-1", "karma"), auth.ErrInvalidInput)

	got, err := svc.Get(ctx, root, p.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.Equal(t, "10.1.1.1", got.History[0].Origin)
	assert.Equal(t, int64(2), got.Stats.VerifiedCount)
}

func TestList(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Promote(ctx, root, "u-1", auth.RoleModerator, nil)
	require.NoError(t, err)
	_, err = svc.Promote(ctx, root, "u-2", auth.RoleFinanceOfficer, nil)
	require.NoError(t, err)

	all, err := svc.List(ctx, root, admin.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mods, err := svc.List(ctx, root, admin.Filter{Role: auth.RoleModerator})
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "u-1", mods[0].UserID)

	_, err = svc.List(ctx, root, admin.Filter{Role: auth.RoleFundi})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}
