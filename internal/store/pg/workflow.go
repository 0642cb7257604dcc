package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fundimart.org/internal/workflow"
)

const receiptColumns = `id, uploader_id, coalesce(parent_kind, ''), coalesce(parent_id, ''), file_ref, size_bytes,
	status, notes, coalesce(verified_by, ''), verified_at, coalesce(rejected_by, ''), rejected_at, created_at, updated_at`

func scanReceipt(row rowScanner) (workflow.Receipt, error) {
	var (
		r                      workflow.Receipt
		verifiedAt, rejectedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.UploaderID, &r.ParentKind, &r.ParentID, &r.FileRef, &r.SizeBytes,
		&r.Status, &r.Notes, &r.VerifiedBy, &verifiedAt, &r.RejectedBy, &rejectedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return workflow.Receipt{}, err
	}
	r.VerifiedAt = timePtr(verifiedAt)
	r.RejectedAt = timePtr(rejectedAt)
	return r, nil
}

func (s *Store) CreateReceipt(ctx context.Context, r workflow.Receipt) error {
	_, err := s.db.ExecContext(ctx, `
		insert into receipts (id, uploader_id, parent_kind, parent_id, file_ref, size_bytes, status, notes, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.UploaderID, nullIfEmpty(r.ParentKind), nullIfEmpty(r.ParentID), r.FileRef, r.SizeBytes,
		string(r.Status), r.Notes, r.CreatedAt, r.UpdatedAt)
	return mapWriteErr(err, "receipt "+r.ID)
}

func (s *Store) Receipt(ctx context.Context, id string) (workflow.Receipt, error) {
	r, err := scanReceipt(s.db.QueryRowContext(ctx, `select `+receiptColumns+` from receipts where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Receipt{}, notFound("receipt", id)
	}
	return r, err
}

func (s *Store) ListReceipts(ctx context.Context, f workflow.ReceiptFilter) ([]workflow.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+receiptColumns+` from receipts
		where ($1 = '' or status = $1) and ($2 = '' or uploader_id = $2)
		order by id asc
		limit $3
	`, string(f.Status), f.UploaderID, clampLimit(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var receiptTransitionSQL = map[workflow.ReceiptStatus]string{
	workflow.ReceiptVerified: `
		update receipts
		set status = 'verified', verified_by = $2, verified_at = $3, updated_at = $3, notes = coalesce($4, notes)
		where id = $1 and status = 'pending'
		returning ` + receiptColumns,
	workflow.ReceiptRejected: `
		update receipts
		set status = 'rejected', rejected_by = $2, rejected_at = $3, updated_at = $3, notes = coalesce($4, notes)
		where id = $1 and status = 'pending'
		returning ` + receiptColumns,
}

// TransitionReceipt is a single conditional UPDATE; the pending guard in the
// WHERE clause decides concurrent races.
func (s *Store) TransitionReceipt(ctx context.Context, id string, t workflow.ReceiptTransition) (workflow.Receipt, error) {
	q, ok := receiptTransitionSQL[t.To]
	if !ok {
		return workflow.Receipt{}, workflow.InvalidReceiptTransition(id, t.To)
	}
	var notes sql.NullString
	if t.Notes != nil {
		notes = sql.NullString{String: *t.Notes, Valid: true}
	}
	r, err := scanReceipt(s.db.QueryRowContext(ctx, q, id, t.Actor, t.At, notes))
	if !errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	var current string
	err = s.db.QueryRowContext(ctx, `select status from receipts where id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Receipt{}, notFound("receipt", id)
	}
	if err != nil {
		return workflow.Receipt{}, err
	}
	return workflow.Receipt{}, workflow.InvalidReceiptTransition(id, workflow.ReceiptStatus(current))
}

const reportColumns = `id, created_by, template, params, status, coalesce(result_url, ''), coalesce(error, ''),
	created_at, updated_at, completed_at`

func scanReport(row rowScanner) (workflow.Report, error) {
	var (
		r         workflow.Report
		params    []byte
		completed sql.NullTime
	)
	err := row.Scan(&r.ID, &r.CreatedBy, &r.Template, &params, &r.Status, &r.ResultURL, &r.Error,
		&r.CreatedAt, &r.UpdatedAt, &completed)
	if err != nil {
		return workflow.Report{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return workflow.Report{}, fmt.Errorf("decode report params: %w", err)
		}
	}
	r.CompletedAt = timePtr(completed)
	return r, nil
}

func (s *Store) CreateReport(ctx context.Context, r workflow.Report) error {
	params := []byte("{}")
	if len(r.Params) > 0 {
		raw, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("marshal report params: %w", err)
		}
		params = raw
	}
	_, err := s.db.ExecContext(ctx, `
		insert into reports (id, created_by, template, params, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.CreatedBy, r.Template, params, string(r.Status), r.CreatedAt, r.UpdatedAt)
	return mapWriteErr(err, "report "+r.ID)
}

func (s *Store) Report(ctx context.Context, id string) (workflow.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, `select `+reportColumns+` from reports where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Report{}, notFound("report", id)
	}
	return r, err
}

func (s *Store) ListReports(ctx context.Context, f workflow.ReportFilter) ([]workflow.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+reportColumns+` from reports
		where ($1 = '' or status = $1) and ($2 = '' or template = $2) and ($3 = '' or created_by = $3)
		order by id asc
		limit $4
	`, string(f.Status), f.Template, f.CreatedBy, clampLimit(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []workflow.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AdvanceReport updates the report only while it is still in status from.
func (s *Store) AdvanceReport(ctx context.Context, id string, from workflow.ReportStatus, u workflow.ReportUpdate) (workflow.Report, error) {
	var completed sql.NullTime
	if u.To.Terminal() {
		completed = sql.NullTime{Time: u.At, Valid: true}
	}
	r, err := scanReport(s.db.QueryRowContext(ctx, `
		update reports
		set status = $3,
		    result_url = coalesce($4, result_url),
		    error = coalesce($5, error),
		    updated_at = $6,
		    completed_at = coalesce($7, completed_at)
		where id = $1 and status = $2
		returning `+reportColumns,
		id, string(from), string(u.To), nullIfEmpty(u.Result.URL), nullIfEmpty(u.Result.Error), u.At, completed))
	if !errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	var current string
	err = s.db.QueryRowContext(ctx, `select status from reports where id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Report{}, notFound("report", id)
	}
	if err != nil {
		return workflow.Report{}, err
	}
	return workflow.Report{}, workflow.InvalidReportTransition(id, workflow.ReportStatus(current))
}
