// Package catalog serves shops and products, the chain-owned resources of the
// marketplace.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundimart.org/internal/auth"
)

// Shop is a storefront owned by a shop-owner account.
type Shop struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// Product belongs to a shop; its owner is the shop's owner.
type Product struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id,omitempty"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"price_minor"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProductUpdate is a partial product change; nil fields are left as they are.
type ProductUpdate struct {
	Name       *string `json:"name"`
	PriceMinor *int64  `json:"price_minor"`
}

// Apply returns p with the update applied at the given time.
func (u ProductUpdate) Apply(p Product, at time.Time) Product {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.PriceMinor != nil {
		p.PriceMinor = *u.PriceMinor
	}
	p.UpdatedAt = at
	return p
}

// Store persists catalog records.
type Store interface {
	Shop(ctx context.Context, id string) (Shop, error)
	Product(ctx context.Context, id string) (Product, error)
	UpdateProduct(ctx context.Context, id string, u ProductUpdate, at time.Time) (Product, error)
}

// ActionUpdateProduct lets shop owners edit their own products and moderators any.
var ActionUpdateProduct = auth.Action{
	Name: "product.update",
	Roles: []auth.Role{
		auth.RoleShopOwner, auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleModerator,
	},
	Scoped:   true,
	Override: []auth.Capability{auth.CapContentModeration},
}

type Service struct {
	store Store
	gate  *auth.Gate
	now   func() time.Time
}

func NewService(store Store, gate *auth.Gate) (*Service, error) {
	if store == nil || gate == nil {
		return nil, errors.New("catalog: store and gate are required")
	}
	return &Service{store: store, gate: gate, now: time.Now}, nil
}

// GetProduct is a public read.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	return s.store.Product(ctx, id)
}

// UpdateProduct authorizes actor against the product's owner chain before writing.
func (s *Service) UpdateProduct(ctx context.Context, actor *auth.Identity, id string, u ProductUpdate) (Product, error) {
	ref := auth.ResourceRef{Kind: auth.KindProduct, ID: id}
	if err := s.gate.Require(ctx, actor, ActionUpdateProduct, &ref); err != nil {
		return Product{}, err
	}
	if u.Name == nil && u.PriceMinor == nil {
		return Product{}, fmt.Errorf("%w: empty product update", auth.ErrInvalidInput)
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name must not be empty", auth.ErrInvalidInput)
		}
		u.Name = &name
	}
	if u.PriceMinor != nil && *u.PriceMinor < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", auth.ErrInvalidInput)
	}
	return s.store.UpdateProduct(ctx, id, u, s.now().UTC())
}
