package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundimart.org/internal/auth"
	"fundimart.org/internal/ids"
)

var managers = []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin}

var (
	// ActionManage covers promotions, role changes and permission edits.
	ActionManage = auth.Action{
		Name:         "admin.manage",
		Roles:        managers,
		Capabilities: []auth.Capability{auth.CapUserManagement},
	}
	ActionRead = auth.Action{
		Name:         "admin.read",
		Roles:        managers,
		Capabilities: []auth.Capability{auth.CapUserManagement},
	}
)

const maxListLimit = 200

// Service applies the administrative profile rules on top of a Store.
type Service struct {
	store    Store
	accounts AccountLookup
	gate     *auth.Gate
	now      func() time.Time
}

// NewService wires the profile service.
func NewService(store Store, accounts AccountLookup, gate *auth.Gate) (*Service, error) {
	if store == nil || accounts == nil || gate == nil {
		return nil, errors.New("admin: store, accounts and gate are required")
	}
	return &Service{store: store, accounts: accounts, gate: gate, now: time.Now}, nil
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Promote creates the administrative profile of userID with role. Permissions are
// resolved before the write; custom is only accepted for roles without a table row.
func (s *Service) Promote(ctx context.Context, actor *auth.Identity, userID string, role auth.Role, custom *auth.PermissionSet) (Profile, error) {
	if err := s.gate.Require(ctx, actor, ActionManage, nil); err != nil {
		return Profile{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, fmt.Errorf("%w: user id is required", auth.ErrInvalidInput)
	}
	perms, err := auth.ResolvePermissions(role, custom)
	if err != nil {
		return Profile{}, err
	}
	if _, err := s.accounts.Account(ctx, userID); err != nil {
		return Profile{}, fmt.Errorf("lookup account %s: %w", userID, err)
	}
	now := s.now().UTC()
	p := Profile{
		ID:          ids.WithPrefix("adm"),
		UserID:      userID,
		Role:        role,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ChangeRole replaces the role of a profile and recomputes its permissions in
// the same store call. Moving between roles without a table row keeps the stored
// custom set unless custom replaces it.
func (s *Service) ChangeRole(ctx context.Context, actor *auth.Identity, profileID string, role auth.Role, custom *auth.PermissionSet) (Profile, error) {
	if err := s.gate.Require(ctx, actor, ActionManage, nil); err != nil {
		return Profile{}, err
	}
	if _, derived := auth.DerivePermissions(role); custom == nil && !derived {
		current, err := s.store.Profile(ctx, profileID)
		if err != nil {
			return Profile{}, err
		}
		// Sets stored under a role without a table row were given explicitly.
		if _, wasDerived := auth.DerivePermissions(current.Role); !wasDerived {
			custom = &current.Permissions
		}
	}
	perms, err := auth.ResolvePermissions(role, custom)
	if err != nil {
		return Profile{}, err
	}
	return s.store.UpdateRole(ctx, profileID, role, perms, s.now().UTC())
}

// SetCustomPermissions replaces the stored set of a profile whose role has no
// derivation row.
func (s *Service) SetCustomPermissions(ctx context.Context, actor *auth.Identity, profileID string, perms auth.PermissionSet) (Profile, error) {
	if err := s.gate.Require(ctx, actor, ActionManage, nil); err != nil {
		return Profile{}, err
	}
	current, err := s.store.Profile(ctx, profileID)
	if err != nil {
		return Profile{}, err
	}
	if _, derived := auth.DerivePermissions(current.Role); derived {
		return Profile{}, fmt.Errorf("%w: permissions of role %q are derived", auth.ErrInvalidInput, current.Role)
	}
	return s.store.UpdatePermissions(ctx, profileID, current.Role, perms, s.now().UTC())
}

func (s *Service) Get(ctx context.Context, actor *auth.Identity, profileID string) (Profile, error) {
	if err := s.gate.Require(ctx, actor, ActionRead, nil); err != nil {
		return Profile{}, err
	}
	return s.store.Profile(ctx, profileID)
}

func (s *Service) List(ctx context.Context, actor *auth.Identity, f Filter) ([]Profile, error) {
	if err := s.gate.Require(ctx, actor, ActionRead, nil); err != nil {
		return nil, err
	}
	if f.Role != "" && !f.Role.IsAdministrative() {
		return nil, fmt.Errorf("%w: unknown administrative role %q", auth.ErrInvalidInput, f.Role)
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.ListProfiles(ctx, f)
}

// RecordLogin appends to the history of userID; accounts without a profile are skipped.
func (s *Service) RecordLogin(ctx context.Context, userID, origin, hint string) error {
	err := s.store.AppendHistory(ctx, userID, HistoryEntry{
		At:     s.now().UTC(),
		Origin: origin,
		Hint:   hint,
	})
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	return err
}

// IncrementStat bumps a counter of userID's profile; accounts without a profile are skipped.
func (s *Service) IncrementStat(ctx context.Context, userID string, stat Stat) error {
	if !stat.valid() {
		return fmt.Errorf("%w: unknown statistic %q", auth.ErrInvalidInput, stat)
	}
	err := s.store.IncrementStat(ctx, userID, stat)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	return err
}
