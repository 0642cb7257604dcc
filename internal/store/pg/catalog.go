package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fundimart.org/internal/catalog"
)

const productColumns = `id, coalesce(shop_id, ''), name, price_minor, updated_at`

func scanProduct(row rowScanner) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceMinor, &p.UpdatedAt)
	return p, err
}

func (s *Store) Shop(ctx context.Context, id string) (catalog.Shop, error) {
	var sh catalog.Shop
	err := s.db.QueryRowContext(ctx, `select id, owner_id, name from shops where id = $1`, id).
		Scan(&sh.ID, &sh.OwnerID, &sh.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Shop{}, notFound("shop", id)
	}
	return sh, err
}

func (s *Store) Product(ctx context.Context, id string) (catalog.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `select `+productColumns+` from products where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, notFound("product", id)
	}
	return p, err
}

func (s *Store) UpdateProduct(ctx context.Context, id string, u catalog.ProductUpdate, at time.Time) (catalog.Product, error) {
	var (
		name  sql.NullString
		price sql.NullInt64
	)
	if u.Name != nil {
		name = sql.NullString{String: *u.Name, Valid: true}
	}
	if u.PriceMinor != nil {
		price = sql.NullInt64{Int64: *u.PriceMinor, Valid: true}
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		update products
		set name = coalesce($2, name), price_minor = coalesce($3, price_minor), updated_at = $4
		where id = $1
		returning `+productColumns, id, name, price, at))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, notFound("product", id)
	}
	return p, err
}
