package auth

import (
	"context"
	"time"
)

const (
	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// Account is a marketplace user record as seen by the identity lookup.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// AdminGrant is the administrative part of an identity.
type AdminGrant struct {
	Role        Role
	Permissions PermissionSet
}

// IdentityStore describes the persistence operations required by identity lookup.
type IdentityStore interface {
	Account(ctx context.Context, id string) (Account, error)
	AccountByEmail(ctx context.Context, email string) (Account, error)
	// AdminGrant returns ErrNotFound when the account has no administrative profile.
	AdminGrant(ctx context.Context, userID string) (AdminGrant, error)
}
