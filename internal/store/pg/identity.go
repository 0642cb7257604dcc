package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fundimart.org/internal/auth"
)

const accountColumns = `id, email, password_hash, role, status, created_at`

func scanAccount(row rowScanner) (auth.Account, error) {
	var a auth.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.Status, &a.CreatedAt)
	return a, err
}

func (s *Store) Account(ctx context.Context, id string) (auth.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, notFound("account", id)
	}
	return a, err
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, notFound("account", email)
	}
	return a, err
}

// CreateAccount inserts a marketplace account.
func (s *Store) CreateAccount(ctx context.Context, a auth.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (id, email, password_hash, role, status, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Email, a.PasswordHash, string(a.Role), a.Status, a.CreatedAt)
	return mapWriteErr(err, "account "+a.Email)
}

func (s *Store) AdminGrant(ctx context.Context, userID string) (auth.AdminGrant, error) {
	var (
		grant auth.AdminGrant
		raw   []byte
	)
	err := s.db.QueryRowContext(ctx, `select role, permissions from admin_profiles where user_id = $1`, userID).
		Scan(&grant.Role, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AdminGrant{}, notFound("admin profile for user", userID)
	}
	if err != nil {
		return auth.AdminGrant{}, err
	}
	if err := json.Unmarshal(raw, &grant.Permissions); err != nil {
		return auth.AdminGrant{}, fmt.Errorf("decode permissions: %w", err)
	}
	return grant, nil
}

var ownerQueries = map[auth.ResourceKind]string{
	auth.KindProduct: `select coalesce(shop_id, '') from products where id = $1`,
	auth.KindShop:    `select owner_id from shops where id = $1`,
	auth.KindReceipt: `select uploader_id from receipts where id = $1`,
	auth.KindReport:  `select created_by from reports where id = $1`,
}

func (s *Store) Ownership(ctx context.Context, ref auth.ResourceRef) (auth.Ownership, error) {
	q, ok := ownerQueries[ref.Kind]
	if !ok {
		return auth.Ownership{}, fmt.Errorf("%w: unknown resource kind %q", auth.ErrInvalidInput, ref.Kind)
	}
	var value string
	err := s.db.QueryRowContext(ctx, q, ref.ID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Ownership{}, notFound(string(ref.Kind), ref.ID)
	}
	if err != nil {
		return auth.Ownership{}, err
	}
	if ref.Kind == auth.KindProduct {
		if value == "" {
			return auth.Ownership{}, nil
		}
		return auth.Ownership{Parent: &auth.ResourceRef{Kind: auth.KindShop, ID: value}}, nil
	}
	return auth.Ownership{OwnerID: value}, nil
}
