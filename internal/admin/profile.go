// Package admin manages administrative profiles: promotion, role changes,
// custom permission sets, login history and workflow statistics.
package admin

import (
	"context"
	"time"

	"fundimart.org/internal/auth"
)

// Stat names a monotonically increasing profile counter.
type Stat string

const (
	StatVerifiedCount    Stat = "verified-count"
	StatResolvedDisputes Stat = "resolved-disputes"
	StatReportsGenerated Stat = "reports-generated"
)

func (s Stat) valid() bool {
	switch s {
	case StatVerifiedCount, StatResolvedDisputes, StatReportsGenerated:
		return true
	}
	return false
}

// Stats are the workflow counters of a profile.
type Stats struct {
	VerifiedCount    int64 `json:"verified_count"`
	ResolvedDisputes int64 `json:"resolved_disputes"`
	ReportsGenerated int64 `json:"reports_generated"`
}

// Add returns s with stat incremented by one.
func (s Stats) Add(stat Stat) Stats {
	switch stat {
	case StatVerifiedCount:
		s.VerifiedCount++
	case StatResolvedDisputes:
		s.ResolvedDisputes++
	case StatReportsGenerated:
		s.ReportsGenerated++
	}
	return s
}

// HistoryEntry is one login or action record.
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Origin string    `json:"origin"`
	Hint   string    `json:"hint,omitempty"`
}

// Profile is the administrative side of a user account.
type Profile struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Role        auth.Role          `json:"role"`
	Permissions auth.PermissionSet `json:"permissions"`
	Stats       Stats              `json:"stats"`
	History     []HistoryEntry     `json:"history,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Filter narrows profile listings.
type Filter struct {
	Role  auth.Role
	Limit int
}

// Store persists administrative profiles.
type Store interface {
	// CreateProfile fails with auth.ErrConflict when the user already has a profile.
	CreateProfile(ctx context.Context, p Profile) error
	Profile(ctx context.Context, id string) (Profile, error)
	ProfileByUser(ctx context.Context, userID string) (Profile, error)
	ListProfiles(ctx context.Context, f Filter) ([]Profile, error)
	// UpdateRole writes role and permissions together in one operation.
	UpdateRole(ctx context.Context, id string, role auth.Role, perms auth.PermissionSet, at time.Time) (Profile, error)
	// UpdatePermissions replaces the permission set only while the profile still
	// holds expectRole; otherwise it fails with auth.ErrConflict.
	UpdatePermissions(ctx context.Context, id string, expectRole auth.Role, perms auth.PermissionSet, at time.Time) (Profile, error)
	AppendHistory(ctx context.Context, userID string, e HistoryEntry) error
	IncrementStat(ctx context.Context, userID string, stat Stat) error
}

// AccountLookup confirms the user being promoted exists.
type AccountLookup interface {
	Account(ctx context.Context, id string) (auth.Account, error)
}
