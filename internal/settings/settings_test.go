package settings_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundimart.org/internal/auth"
	"fundimart.org/internal/settings"
	"fundimart.org/internal/store/memory"
)

func newService(t *testing.T) *settings.Service {
	t.Helper()
	store := memory.New()
	svc, err := settings.NewService(store, auth.NewGate(auth.NewResolver(store)))
	require.NoError(t, err)
	return svc
}

func TestGetReturnsDefaults(t *testing.T) {
	svc := newService(t)
	moderator := &auth.Identity{UserID: "m", Role: auth.RoleModerator, Active: true}

	got, err := svc.Get(context.Background(), moderator)
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults(), got)

	fundi := &auth.Identity{UserID: "f", Role: auth.RoleFundi, Active: true}
	_, err = svc.Get(context.Background(), fundi)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestUpdateRequiresSystemSettings(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	next := settings.Defaults()
	next.MaintenanceMode = true

	moderator := &auth.Identity{UserID: "m", Role: auth.RoleModerator, Active: true}
	_, err := svc.Update(ctx, moderator, next)
	assert.Equal(t, auth.ReasonCapabilityMissing, auth.ReasonOf(err))

	root := &auth.Identity{UserID: "root", Role: auth.RoleSuperAdmin, Active: true}
	saved, err := svc.Update(ctx, root, next)
	require.NoError(t, err)
	assert.Equal(t, "root", saved.UpdatedBy)
	assert.False(t, saved.UpdatedAt.IsZero())

	cur, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.True(t, cur.MaintenanceMode)

	limit, err := svc.MaxReceiptBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, next.MaxReceiptBytes, limit)
}

func TestValidate(t *testing.T) {
	s := settings.Defaults()
	require.NoError(t, s.Validate())

	bad := s
	bad.CommissionBasisPoints = 10001
	assert.ErrorIs(t, bad.Validate(), auth.ErrInvalidInput)

	bad = s
	bad.SupportEmail = "not-an-email"
	assert.ErrorIs(t, bad.Validate(), auth.ErrInvalidInput)

	bad = s
	bad.MaxReceiptBytes = 0
	assert.ErrorIs(t, bad.Validate(), auth.ErrInvalidInput)
}

func TestDefaultsEncodeUpdatedAt(t *testing.T) {
	raw, err := json.Marshal(settings.Defaults())
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body, "updated_at")
	assert.NotContains(t, body, "updated_by")
}
