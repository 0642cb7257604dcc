package pg

import (
	"context"
	"database/sql"
	"errors"

	"fundimart.org/internal/settings"
)

func (s *Store) LoadSettings(ctx context.Context) (settings.Settings, error) {
	var (
		out       settings.Settings
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select commission_basis_points, maintenance_mode, support_email, max_receipt_bytes, updated_by, updated_at
		from system_settings where id = $1
	`, settings.SingletonID).Scan(&out.CommissionBasisPoints, &out.MaintenanceMode, &out.SupportEmail,
		&out.MaxReceiptBytes, &updatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, notFound("settings", settings.SingletonID)
	}
	if err != nil {
		return settings.Settings{}, err
	}
	out.UpdatedBy = updatedBy.String
	if updatedAt.Valid {
		out.UpdatedAt = updatedAt.Time
	}
	return out, nil
}

// SaveSettings upserts the only row; the table's check constraint rejects any other id.
func (s *Store) SaveSettings(ctx context.Context, next settings.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		insert into system_settings (id, commission_basis_points, maintenance_mode, support_email, max_receipt_bytes, updated_by, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (id) do update set
			commission_basis_points = excluded.commission_basis_points,
			maintenance_mode = excluded.maintenance_mode,
			support_email = excluded.support_email,
			max_receipt_bytes = excluded.max_receipt_bytes,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`, settings.SingletonID, next.CommissionBasisPoints, next.MaintenanceMode, next.SupportEmail,
		next.MaxReceiptBytes, nullIfEmpty(next.UpdatedBy), next.UpdatedAt)
	return err
}
