package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
)

const profileColumns = `id, user_id, role, permissions, verified_count, resolved_disputes, reports_generated, created_at, updated_at`

func scanProfile(row rowScanner) (admin.Profile, error) {
	var (
		p   admin.Profile
		raw []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Role, &raw,
		&p.Stats.VerifiedCount, &p.Stats.ResolvedDisputes, &p.Stats.ReportsGenerated,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return admin.Profile{}, err
	}
	if err := json.Unmarshal(raw, &p.Permissions); err != nil {
		return admin.Profile{}, fmt.Errorf("decode permissions: %w", err)
	}
	return p, nil
}

func (s *Store) loadHistory(ctx context.Context, p *admin.Profile) error {
	rows, err := s.db.QueryContext(ctx, `
		select at, origin, hint from admin_history
		where profile_id = $1
		order by id asc
	`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e admin.HistoryEntry
		if err := rows.Scan(&e.At, &e.Origin, &e.Hint); err != nil {
			return err
		}
		p.History = append(p.History, e)
	}
	return rows.Err()
}

func (s *Store) profileWhere(ctx context.Context, where string, arg string) (admin.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `select `+profileColumns+` from admin_profiles where `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return admin.Profile{}, notFound("admin profile", arg)
	}
	if err != nil {
		return admin.Profile{}, err
	}
	if err := s.loadHistory(ctx, &p); err != nil {
		return admin.Profile{}, err
	}
	return p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p admin.Profile) error {
	perms, err := json.Marshal(p.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into admin_profiles (id, user_id, role, permissions, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, string(p.Role), perms, p.CreatedAt, p.UpdatedAt)
	return mapWriteErr(err, "admin profile for user "+p.UserID)
}

func (s *Store) Profile(ctx context.Context, id string) (admin.Profile, error) {
	return s.profileWhere(ctx, `id = $1`, id)
}

func (s *Store) ProfileByUser(ctx context.Context, userID string) (admin.Profile, error) {
	return s.profileWhere(ctx, `user_id = $1`, userID)
}

// ListProfiles returns profiles without their history.
func (s *Store) ListProfiles(ctx context.Context, f admin.Filter) ([]admin.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+` from admin_profiles
		where ($1 = '' or role = $1)
		order by id asc
		limit $2
	`, string(f.Role), clampLimit(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []admin.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateRole writes role and permissions in one statement.
func (s *Store) UpdateRole(ctx context.Context, id string, role auth.Role, perms auth.PermissionSet, at time.Time) (admin.Profile, error) {
	raw, err := json.Marshal(perms)
	if err != nil {
		return admin.Profile{}, fmt.Errorf("marshal permissions: %w", err)
	}
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		update admin_profiles set role = $2, permissions = $3, updated_at = $4
		where id = $1
		returning `+profileColumns, id, string(role), raw, at))
	if errors.Is(err, sql.ErrNoRows) {
		return admin.Profile{}, notFound("admin profile", id)
	}
	if err != nil {
		return admin.Profile{}, err
	}
	if err := s.loadHistory(ctx, &p); err != nil {
		return admin.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpdatePermissions(ctx context.Context, id string, expectRole auth.Role, perms auth.PermissionSet, at time.Time) (admin.Profile, error) {
	raw, err := json.Marshal(perms)
	if err != nil {
		return admin.Profile{}, fmt.Errorf("marshal permissions: %w", err)
	}
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		update admin_profiles set permissions = $3, updated_at = $4
		where id = $1 and role = $2
		returning `+profileColumns, id, string(expectRole), raw, at))
	if errors.Is(err, sql.ErrNoRows) {
		var current string
		lookup := s.db.QueryRowContext(ctx, `select role from admin_profiles where id = $1`, id).Scan(&current)
		if errors.Is(lookup, sql.ErrNoRows) {
			return admin.Profile{}, notFound("admin profile", id)
		}
		if lookup != nil {
			return admin.Profile{}, lookup
		}
		return admin.Profile{}, fmt.Errorf("%w: role of profile %s changed to %s", auth.ErrConflict, id, current)
	}
	if err != nil {
		return admin.Profile{}, err
	}
	if err := s.loadHistory(ctx, &p); err != nil {
		return admin.Profile{}, err
	}
	return p, nil
}

func (s *Store) AppendHistory(ctx context.Context, userID string, e admin.HistoryEntry) error {
	res, err := s.db.ExecContext(ctx, `
		insert into admin_history (profile_id, at, origin, hint)
		select id, $2, $3, $4 from admin_profiles where user_id = $1
	`, userID, e.At, e.Origin, e.Hint)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("admin profile for user", userID)
	}
	return nil
}

var statColumns = map[admin.Stat]string{
	admin.StatVerifiedCount:    "verified_count",
	admin.StatResolvedDisputes: "resolved_disputes",
	admin.StatReportsGenerated: "reports_generated",
}

func (s *Store) IncrementStat(ctx context.Context, userID string, stat admin.Stat) error {
	col, ok := statColumns[stat]
	if !ok {
		return fmt.Errorf("%w: unknown statistic %q", auth.ErrInvalidInput, stat)
	}
	res, err := s.db.ExecContext(ctx,
		`update admin_profiles set `+col+` = `+col+` + 1 where user_id = $1`, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("admin profile for user", userID)
	}
	return nil
}
