package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/ownership"
	"spendtrack.org/internal/record"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantInsertMapsForeignKeyViolation(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into record_access_grants").
		WithArgs("g-1", "asset", "a-missing", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Read", "adm-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Grants().Insert(context.Background(), grant.Grant{
		ID:         "g-1",
		RecordType: ownership.TypeAsset,
		RecordID:   "a-missing",
		UserID:     "u-1",
		Level:      authz.LevelRead,
		GrantedBy:  "adm-1",
		GrantedAt:  time.Now(),
	})
	if !errors.Is(err, grant.ErrNotFound) {
		t.Fatalf("expected grant.ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestGrantGetNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select id, record_type, record_id.*from record_access_grants").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Grants().Get(context.Background(), "missing")
	if !errors.Is(err, grant.ErrNotFound) {
		t.Fatalf("expected grant.ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestGrantListForScansNullableColumns(t *testing.T) {
	store, mock := newMock(t)
	granted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := granted.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "record_type", "record_id", "user_id", "group_id",
		"access_level", "granted_by", "granted_at", "expires_at",
	}).
		AddRow("g-1", "asset", "a-1", "u-1", nil, "Write", "adm-1", granted, expires).
		AddRow("g-2", "asset", "a-1", nil, "grp-1", "Read", "adm-1", granted, nil)
	mock.ExpectQuery("select id, record_type, record_id.*from record_access_grants").
		WithArgs("asset", "a-1").
		WillReturnRows(rows)

	got, err := store.Grants().ListFor(context.Background(), ownership.TypeAsset, "a-1")
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(got))
	}
	if got[0].UserID != "u-1" || got[0].GroupID != "" || got[0].ExpiresAt == nil {
		t.Fatalf("user grant scanned wrong: %+v", got[0])
	}
	if got[1].GroupID != "grp-1" || got[1].UserID != "" || got[1].ExpiresAt != nil {
		t.Fatalf("group grant scanned wrong: %+v", got[1])
	}
	expectationsMet(t, mock)
}

func TestGrantDeleteMissingIsNoop(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from record_access_grants").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Grants().Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("Delete must be idempotent, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRecordInsertMapsMissingParent(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into records").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Records().Insert(context.Background(), record.Record{
		Type:         ownership.TypeBusinessCase,
		ID:           "bc-1",
		ParentID:     "dangling",
		OwnerGroupID: "g-1",
		CreatedBy:    "u-1",
	})
	if !errors.Is(err, ownership.ErrMissingParent) {
		t.Fatalf("expected ownership.ErrMissingParent, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRecordGetScansFields(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"record_type", "id", "parent_id", "owner_group_id", "created_by",
		"updated_by", "created_at", "updated_at", "fields",
	}).AddRow("budget_item", "b-1", nil, "g-fin", "u-1", nil, now, now, []byte(`{"name":"FY26 capex","amount":100000}`))
	mock.ExpectQuery("select record_type, id, parent_id.*from records").
		WithArgs("budget_item", "b-1").
		WillReturnRows(rows)

	r, err := store.Records().Get(context.Background(), ownership.TypeBudgetItem, "b-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.OwnerGroupID != "g-fin" || r.ParentID != "" {
		t.Fatalf("record scanned wrong: %+v", r)
	}
	if r.Fields["name"] != "FY26 capex" {
		t.Fatalf("fields not decoded: %v", r.Fields)
	}
	expectationsMet(t, mock)
}

func TestRecordUpdateNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("update records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Records().Update(context.Background(), record.Record{
		Type: ownership.TypeAsset, ID: "missing", Fields: map[string]any{},
	})
	if !errors.Is(err, record.ErrNotFound) {
		t.Fatalf("expected record.ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestAuditListBuildsFilteredQuery(t *testing.T) {
	store, mock := newMock(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	ts := start.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "table_name", "record_id", "action", "user_id", "old_values", "new_values", "ts",
	}).AddRow("e-1", "budget_item", "b-1", "UPDATE", "u-1",
		[]byte(`{"amount":100}`), []byte(`{"amount":120}`), ts)

	mock.ExpectQuery(`and user_id = \$1 and ts >= \$2 and ts <= \$3 order by ts desc, id desc limit \$4`).
		WithArgs("u-1", start, end, 50).
		WillReturnRows(rows)

	got, err := store.Audit().List(context.Background(), audit.Filter{
		UserID: "u-1", Start: &start, End: &end, Limit: 50,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Action != audit.ActionUpdate || e.OldValues["amount"] != float64(100) || e.NewValues["amount"] != float64(120) {
		t.Fatalf("entry scanned wrong: %+v", e)
	}
	expectationsMet(t, mock)
}

func TestAuditAppendMarshalsValues(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into audit_log").
		WithArgs("e-1", "records", "r-1", "CREATE", "u-1", nil, []byte(`{"name":"x"}`), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Audit().Append(context.Background(), audit.Entry{
		ID:        "e-1",
		TableName: "records",
		RecordID:  "r-1",
		Action:    audit.ActionCreate,
		UserID:    "u-1",
		NewValues: map[string]any{"name": "x"},
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	expectationsMet(t, mock)
}
