package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/workflow"
)

var receiptCols = []string{
	"id", "uploader_id", "parent_kind", "parent_id", "file_ref", "size_bytes",
	"status", "notes", "verified_by", "verified_at", "rejected_by", "rejected_at", "created_at", "updated_at",
}

var profileCols = []string{
	"id", "user_id", "role", "permissions", "verified_count", "resolved_disputes", "reports_generated", "created_at", "updated_at",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionReceiptVerified(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("update receipts\\s+set status = 'verified'").
		WithArgs("rcp_1", "officer", at, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(receiptCols).
			AddRow("rcp_1", "u1", "", "", "s3://f", int64(10), "verified", "", "officer", at, "", nil, at, at))

	r, err := store.TransitionReceipt(context.Background(), "rcp_1", workflow.ReceiptTransition{
		To: workflow.ReceiptVerified, Actor: "officer", At: at,
	})
	if err != nil {
		t.Fatalf("TransitionReceipt: %v", err)
	}
	if r.Status != workflow.ReceiptVerified || r.VerifiedBy != "officer" {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	if r.VerifiedAt == nil || !r.VerifiedAt.Equal(at) || r.RejectedAt != nil {
		t.Fatalf("unexpected audit timestamps: %+v", r)
	}
	checkExpectations(t, mock)
}

func TestTransitionReceiptNotPending(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now().UTC()

	mock.ExpectQuery("update receipts").WillReturnRows(sqlmock.NewRows(receiptCols))
	mock.ExpectQuery("select status from receipts").WithArgs("rcp_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("rejected"))

	_, err := store.TransitionReceipt(context.Background(), "rcp_1", workflow.ReceiptTransition{
		To: workflow.ReceiptVerified, Actor: "officer", At: at,
	})
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestTransitionReceiptMissing(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("update receipts").WillReturnRows(sqlmock.NewRows(receiptCols))
	mock.ExpectQuery("select status from receipts").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := store.TransitionReceipt(context.Background(), "nope", workflow.ReceiptTransition{
		To: workflow.ReceiptRejected, Actor: "officer", At: time.Now(),
	})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestCreateProfileConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into admin_profiles").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateProfile(context.Background(), admin.Profile{ID: "adm_1", UserID: "u1", Role: auth.RoleModerator})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestUpdateRoleSingleStatement(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	perms, _ := auth.DerivePermissions(auth.RoleModerator)
	raw, err := json.Marshal(perms)
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery("update admin_profiles set role = \\$2, permissions = \\$3").
		WithArgs("adm_1", "moderator", raw, at).
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow("adm_1", "u1", "moderator", raw, int64(3), int64(0), int64(1), at, at))
	mock.ExpectQuery("select at, origin, hint from admin_history").WithArgs("adm_1").
		WillReturnRows(sqlmock.NewRows([]string{"at", "origin", "hint"}).AddRow(at, "10.0.0.1", "cli"))

	p, err := store.UpdateRole(context.Background(), "adm_1", auth.RoleModerator, perms, at)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if p.Role != auth.RoleModerator || p.Permissions != perms {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.Stats.VerifiedCount != 3 || len(p.History) != 1 {
		t.Fatalf("unexpected stats/history: %+v", p)
	}
	checkExpectations(t, mock)
}

func TestUpdatePermissionsRoleChanged(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("update admin_profiles set permissions").WillReturnRows(sqlmock.NewRows(profileCols))
	mock.ExpectQuery("select role from admin_profiles").WithArgs("adm_1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("moderator"))

	_, err := store.UpdatePermissions(context.Background(), "adm_1", auth.RoleAdmin, auth.PermissionSet{}, time.Now())
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestIncrementStatWithoutProfile(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update admin_profiles set verified_count = verified_count \\+ 1").
		WithArgs("u-client").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.IncrementStat(context.Background(), "u-client", admin.StatVerifiedCount)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.IncrementStat(context.Background(), "u", "karma"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestAdvanceReportRace(t *testing.T) {
	store, mock := newMock(t)
	reportCols := []string{"id", "created_by", "template", "params", "status", "result_url", "error", "created_at", "updated_at", "completed_at"}

	mock.ExpectQuery("update reports").WillReturnRows(sqlmock.NewRows(reportCols))
	mock.ExpectQuery("select status from reports").WithArgs("rpt_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ready"))

	_, err := store.AdvanceReport(context.Background(), "rpt_1", workflow.ReportProcessing, workflow.ReportUpdate{
		To: workflow.ReportFailed, Result: workflow.ReportResult{Error: "boom"}, At: time.Now(),
	})
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestOwnershipProductChain(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("select coalesce\\(shop_id, ''\\) from products").WithArgs("prd_1").
		WillReturnRows(sqlmock.NewRows([]string{"shop_id"}).AddRow("shp_1"))
	mock.ExpectQuery("select owner_id from shops").WithArgs("shp_1").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("u-owner"))

	ok, err := auth.NewResolver(store).IsOwner(context.Background(), "u-owner", auth.ResourceRef{Kind: auth.KindProduct, ID: "prd_1"})
	if err != nil {
		t.Fatalf("IsOwner: %v", err)
	}
	if !ok {
		t.Fatal("expected owner via shop")
	}
	checkExpectations(t, mock)
}

func TestLoadSettingsMissing(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("from system_settings where id = \\$1").WithArgs("global").
		WillReturnRows(sqlmock.NewRows([]string{"commission_basis_points"}))

	if _, err := store.LoadSettings(context.Background()); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	checkExpectations(t, mock)
}
