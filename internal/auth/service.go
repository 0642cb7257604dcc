package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Revoker tracks access tokens that were logged out before expiry.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Session is an issued access token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service resolves identities from credentials and bearer tokens.
type Service struct {
	store   IdentityStore
	tokens  *Tokens
	revoker Revoker
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithRevoker enables logout by recording revoked token ids.
func WithRevoker(r Revoker) ServiceOption {
	return func(s *Service) error {
		s.revoker = r
		return nil
	}
}

// WithClock overrides the token time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.tokens.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store IdentityStore, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	if tokens == nil {
		return nil, errors.New("token codec is required")
	}
	svc := &Service{store: store, tokens: tokens}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, Identity{}, ErrUnauthenticated
	}
	acct, err := s.store.AccountByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, Identity{}, ErrUnauthenticated
	}
	if err != nil {
		return Session{}, Identity{}, err
	}
	if err := VerifyPassword(acct.PasswordHash, password); err != nil {
		return Session{}, Identity{}, ErrUnauthenticated
	}
	id, err := s.Identify(ctx, acct.ID)
	if err != nil {
		return Session{}, Identity{}, err
	}
	token, claims, err := s.tokens.Issue(acct.ID)
	if err != nil {
		return Session{}, Identity{}, err
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt.Time}, id, nil
}

// Authenticate validates an access token and resolves the current identity.
// Role and permissions are read from storage on every call, never from the token.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Identity{}, ErrInvalidToken
		}
	}
	return s.Identify(ctx, claims.Subject)
}

// Identify loads the identity for userID. Unknown and inactive accounts are
// reported as ErrUnauthenticated.
func (s *Service) Identify(ctx context.Context, userID string) (Identity, error) {
	acct, err := s.store.Account(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrUnauthenticated
	}
	if err != nil {
		return Identity{}, err
	}
	if acct.Status != AccountStatusActive {
		return Identity{}, ErrUnauthenticated
	}
	id := Identity{UserID: acct.ID, Role: acct.Role, Active: true}
	grant, err := s.store.AdminGrant(ctx, acct.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Identity{}, err
	default:
		perms := grant.Permissions
		id.Role = grant.Role
		id.Permissions = &perms
	}
	return id, nil
}

// Logout revokes the token until its natural expiry.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.revoker == nil {
		return fmt.Errorf("%w: token revocation is not configured", ErrInvalidInput)
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
