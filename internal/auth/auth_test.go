package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeIdentityStore struct {
	accounts map[string]Account
	grants   map[string]AdminGrant
}

func (f *fakeIdentityStore) Account(_ context.Context, id string) (Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (f *fakeIdentityStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	for _, a := range f.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (f *fakeIdentityStore) AdminGrant(_ context.Context, userID string) (AdminGrant, error) {
	g, ok := f.grants[userID]
	if !ok {
		return AdminGrant{}, ErrNotFound
	}
	return g, nil
}

type fakeRevoker map[string]time.Time

func (f fakeRevoker) Revoke(_ context.Context, id string, until time.Time) error {
	f[id] = until
	return nil
}

func (f fakeRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	_, ok := f[id]
	return ok, nil
}

func newTestService(t *testing.T) (*Service, *fakeIdentityStore) {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store := &fakeIdentityStore{
		accounts: map[string]Account{
			"u-admin":  {ID: "u-admin", Email: "admin@example.com", PasswordHash: hash, Role: RoleClient, Status: AccountStatusActive},
			"u-fundi":  {ID: "u-fundi", Email: "fundi@example.com", PasswordHash: hash, Role: RoleFundi, Status: AccountStatusActive},
			"u-banned": {ID: "u-banned", Email: "banned@example.com", PasswordHash: hash, Role: RoleClient, Status: AccountStatusDisabled},
		},
		grants: map[string]AdminGrant{
			"u-admin": {Role: RoleSecretary, Permissions: PermissionSet{}.With(CapAnalyticsView)},
		},
	}
	tokens, err := NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	svc, err := NewService(store, tokens, WithRevoker(fakeRevoker{}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	signed, claims, err := tokens.Issue("user-42")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parsed, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Subject != "user-42" || parsed.ID != claims.ID {
		t.Fatalf("unexpected claims: %+v", parsed)
	}

	other, _ := NewTokens("other-secret", time.Minute)
	if _, err := other.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := tokens.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens("  ", time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestServiceLoginAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, id, err := svc.Login(ctx, " Admin@Example.com ", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id.Role != RoleSecretary || id.Permissions == nil || !id.Permissions.Has(CapAnalyticsView) {
		t.Fatalf("admin grant not applied: %+v", id)
	}

	got, err := svc.Authenticate(ctx, session.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.UserID != "u-admin" || !got.Active {
		t.Fatalf("unexpected identity: %+v", got)
	}

	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}
}

func TestServiceRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "fundi@example.com", "wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown email, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "banned@example.com", "s3cret"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for disabled account, got %v", err)
	}
}

func TestServiceReadsRoleAtRequestTime(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	session, _, err := svc.Login(ctx, "fundi@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	store.grants["u-fundi"] = AdminGrant{Role: RoleModerator, Permissions: PermissionSet{}.With(CapDisputeManagement, CapContentModeration, CapAnalyticsView)}
	id, err := svc.Authenticate(ctx, session.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Role != RoleModerator {
		t.Fatalf("expected promoted role, got %s", id.Role)
	}

	acct := store.accounts["u-fundi"]
	acct.Status = AccountStatusDisabled
	store.accounts["u-fundi"] = acct
	if _, err := svc.Authenticate(ctx, session.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected disabled account rejected, got %v", err)
	}
}
