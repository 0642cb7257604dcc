package memory

import (
	"context"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/catalog"
)

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "fundimart-demo"

type demoUser struct {
	id, email string
	role      auth.Role
}

var demoUsers = []demoUser{
	{"usr_superadmin", "root@fundimart.local", auth.RoleSuperAdmin},
	{"usr_verifier", "verifier@fundimart.local", auth.RoleVerificationOfficer},
	{"usr_support", "support@fundimart.local", auth.RoleSupportOfficer},
	{"usr_finance", "finance@fundimart.local", auth.RoleFinanceOfficer},
	{"usr_moderator", "moderator@fundimart.local", auth.RoleModerator},
	{"usr_shopowner", "owner@fundimart.local", auth.RoleShopOwner},
	{"usr_fundi", "fundi@fundimart.local", auth.RoleFundi},
	{"usr_client", "client@fundimart.local", auth.RoleClient},
}

// SeedDemo loads accounts for every table role plus a shop and a product, so an
// in-memory API is usable without Postgres.
func SeedDemo(ctx context.Context, s *Store) error {
	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, u := range demoUsers {
		acct := auth.Account{
			ID:           u.id,
			Email:        u.email,
			PasswordHash: hash,
			Role:         u.role,
			Status:       auth.AccountStatusActive,
			CreatedAt:    now,
		}
		s.PutAccount(acct)
		if !u.role.IsAdministrative() {
			continue
		}
		perms, err := auth.ResolvePermissions(u.role, nil)
		if err != nil {
			return err
		}
		err = s.CreateProfile(ctx, admin.Profile{
			ID:          "adm_" + u.id,
			UserID:      u.id,
			Role:        u.role,
			Permissions: perms,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
	}
	s.PutShop(catalog.Shop{ID: "shp_demo", OwnerID: "usr_shopowner", Name: "Demo Hardware"})
	s.PutProduct(catalog.Product{ID: "prd_cement", ShopID: "shp_demo", Name: "Cement 50kg", PriceMinor: 85000, UpdatedAt: now})
	s.PutProduct(catalog.Product{ID: "prd_orphan", Name: "Unlisted sand", PriceMinor: 12000, UpdatedAt: now})
	return nil
}
