// Package settings holds the single system-wide configuration document.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"fundimart.org/internal/auth"
)

// SingletonID is the only key the settings document is stored under.
const SingletonID = "global"

// Settings is the marketplace-wide configuration.
type Settings struct {
	CommissionBasisPoints int       `json:"commission_basis_points"`
	MaintenanceMode       bool      `json:"maintenance_mode"`
	SupportEmail          string    `json:"support_email"`
	MaxReceiptBytes       int64     `json:"max_receipt_bytes"`
	UpdatedBy             string    `json:"updated_by,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Defaults is served until an administrator saves the document.
func Defaults() Settings {
	return Settings{
		CommissionBasisPoints: 1000,
		SupportEmail:          "support@fundimart.local",
		MaxReceiptBytes:       10 << 20,
	}
}

// Validate checks field ranges.
func (s Settings) Validate() error {
	if s.CommissionBasisPoints < 0 || s.CommissionBasisPoints > 10000 {
		return fmt.Errorf("%w: commission_basis_points must be within 0..10000", auth.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(s.SupportEmail); err != nil {
		return fmt.Errorf("%w: support_email: %v", auth.ErrInvalidInput, err)
	}
	if s.MaxReceiptBytes <= 0 {
		return fmt.Errorf("%w: max_receipt_bytes must be positive", auth.ErrInvalidInput)
	}
	return nil
}

// Store persists the singleton. Load returns auth.ErrNotFound before the first save.
type Store interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

var (
	ActionRead = auth.Action{
		Name:  "settings.read",
		Roles: auth.AdministrativeRoles,
	}
	ActionUpdate = auth.Action{
		Name:         "settings.update",
		Roles:        auth.AdministrativeRoles,
		Capabilities: []auth.Capability{auth.CapSystemSettings},
	}
)

// Service exposes the settings document to administrators.
type Service struct {
	store Store
	gate  *auth.Gate
	now   func() time.Time
}

func NewService(store Store, gate *auth.Gate) (*Service, error) {
	if store == nil || gate == nil {
		return nil, errors.New("settings: store and gate are required")
	}
	return &Service{store: store, gate: gate, now: time.Now}, nil
}

// Current returns the stored document or the defaults, without authorization.
// It is meant for in-process collaborators such as upload limits.
func (s *Service) Current(ctx context.Context) (Settings, error) {
	cur, err := s.store.LoadSettings(ctx)
	if errors.Is(err, auth.ErrNotFound) {
		return Defaults(), nil
	}
	return cur, err
}

func (s *Service) Get(ctx context.Context, actor *auth.Identity) (Settings, error) {
	if err := s.gate.Require(ctx, actor, ActionRead, nil); err != nil {
		return Settings{}, err
	}
	return s.Current(ctx)
}

// Update replaces the whole document.
func (s *Service) Update(ctx context.Context, actor *auth.Identity, next Settings) (Settings, error) {
	if err := s.gate.Require(ctx, actor, ActionUpdate, nil); err != nil {
		return Settings{}, err
	}
	next.SupportEmail = strings.TrimSpace(next.SupportEmail)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSettings(ctx, next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

// MaxReceiptBytes adapts Current to the receipt upload limit hook.
func (s *Service) MaxReceiptBytes(ctx context.Context) (int64, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return 0, err
	}
	return cur.MaxReceiptBytes, nil
}
