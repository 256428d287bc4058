package crud

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"catalogapi/internal/audit"
	"catalogapi/internal/database"
	"catalogapi/internal/domain"
)

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeFiles) Delete(ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeFiles) deletedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type auditCall struct {
	Action   audit.Action
	Table    string
	RecordID int64
	ActorID  int64
	Actor    string
	Details  map[string]any
}

type fakeAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (f *fakeAudit) Record(action audit.Action, table string, recordID, actorID int64, actorName string, details map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, auditCall{action, table, recordID, actorID, actorName, details})
}

func (f *fakeAudit) recorded() []auditCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auditCall(nil), f.calls...)
}

var testPrincipal = Principal{ID: 7, Name: "admin"}

func newTestEngine(t *testing.T) (*Engine, *fakeFiles, *fakeAudit, *gorm.DB) {
	t.Helper()

	db, err := database.Connect(":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A pooled in-memory sqlite would open one empty database per
	// connection; pin the pool to a single connection.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.User{},
		&domain.ProductLine{},
		&domain.Product{},
		&domain.AuditLog{},
	))

	files := &fakeFiles{}
	recorder := &fakeAudit{}

	e := NewEngine(db, DefaultRegistry(5), files, recorder)
	e.dispatch = func(fn func()) { fn() }

	return e, files, recorder, db
}

func seedProductLine(t *testing.T, db *gorm.DB, name, attachments string) int64 {
	t.Helper()
	line := domain.ProductLine{Name: name, Attachments: attachments}
	require.NoError(t, db.Create(&line).Error)
	return line.ID
}

func TestCreate_FiltersUnknownColumns(t *testing.T) {
	e, _, _, db := newTestEngine(t)

	rec, err := e.Create(context.Background(), "product_lines", map[string]any{
		"name":        "Alpha",
		"description": "flagship",
		"bogus_field": "injected",
		"created_by":  int64(999),
	}, testPrincipal, nil)
	require.NoError(t, err)

	assert.NotContains(t, rec, "bogus_field")
	assert.Equal(t, int64(7), toInt64(t, rec["created_by"]))
	assert.Equal(t, int64(7), toInt64(t, rec["updated_by"]))

	var line domain.ProductLine
	require.NoError(t, db.First(&line, "name = ?", "Alpha").Error)
	assert.Equal(t, "flagship", line.Description)
	assert.Equal(t, int64(7), line.CreatedBy)
}

func TestCreate_MissingRequiredField(t *testing.T) {
	e, files, _, _ := newTestEngine(t)

	_, err := e.Create(context.Background(), "product_lines", map[string]any{
		"description": "nameless",
	}, testPrincipal, []string{"uploads/a.pdf"})
	require.ErrorIs(t, err, ErrValidation)

	// Files uploaded for a failed create are orphans and must be removed.
	assert.Equal(t, []string{"uploads/a.pdf"}, files.deletedRefs())
}

func TestCreate_StoresUploadedReferences(t *testing.T) {
	e, files, recorder, _ := newTestEngine(t)

	rec, err := e.Create(context.Background(), "product_lines", map[string]any{
		"name": "Alpha",
	}, testPrincipal, []string{"uploads/a.pdf", "uploads/b.pdf"})
	require.NoError(t, err)

	var refs []string
	require.NoError(t, json.Unmarshal([]byte(rec["attachments"].(string)), &refs))
	assert.Equal(t, []string{"uploads/a.pdf", "uploads/b.pdf"}, refs)
	assert.Empty(t, files.deletedRefs())

	calls := recorder.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, audit.ActionCreate, calls[0].Action)
	assert.Equal(t, "product_lines", calls[0].Table)
	assert.Equal(t, toInt64(t, rec["id"]), calls[0].RecordID)
}

func TestCreate_DuplicateNameConflicts(t *testing.T) {
	e, files, _, db := newTestEngine(t)
	seedProductLine(t, db, "Alpha", "")

	_, err := e.Create(context.Background(), "product_lines", map[string]any{
		"name": "Alpha",
	}, testPrincipal, []string{"uploads/dup.pdf"})
	require.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, []string{"uploads/dup.pdf"}, files.deletedRefs())
}

func TestCreate_ReferenceNotFoundAbortsBeforeWrite(t *testing.T) {
	e, files, recorder, db := newTestEngine(t)

	_, err := e.Create(context.Background(), "products", map[string]any{
		"product_name": "X",
		"product_line": "Alpha",
	}, testPrincipal, []string{"uploads/x.png"})
	require.ErrorIs(t, err, ErrReferenceNotFound)
	assert.Contains(t, err.Error(), `"Alpha"`)

	var count int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.Equal(t, []string{"uploads/x.png"}, files.deletedRefs())
	assert.Empty(t, recorder.recorded())
}

func TestCreate_ResolvesProductLineName(t *testing.T) {
	e, _, _, db := newTestEngine(t)
	lineID := seedProductLine(t, db, "Alpha", "")

	rec, err := e.Create(context.Background(), "products", map[string]any{
		"product_name": "Widget",
		"product_line": "Alpha",
	}, testPrincipal, nil)
	require.NoError(t, err)

	assert.Equal(t, lineID, toInt64(t, rec["product_line_id"]))
	assert.NotContains(t, rec, "product_line")
}

func TestCreate_HashesUserPassword(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	rec, err := e.Create(context.Background(), "users", map[string]any{
		"username":     "editor",
		"password":     "s3cret",
		"display_name": "Editor",
		"role":         "editor",
	}, testPrincipal, nil)
	require.NoError(t, err)

	hash := rec["password"].(string)
	assert.NotEqual(t, "s3cret", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestAudit_DetailsOmitPasswordHash(t *testing.T) {
	e, _, recorder, _ := newTestEngine(t)

	rec, err := e.Create(context.Background(), "users", map[string]any{
		"username": "editor",
		"password": "s3cret",
	}, testPrincipal, nil)
	require.NoError(t, err)

	_, err = e.Update(context.Background(), "users", toInt64(t, rec["id"]), map[string]any{
		"display_name": "Editor",
	}, testPrincipal, nil, nil)
	require.NoError(t, err)

	calls := recorder.recorded()
	require.Len(t, calls, 2)

	created := calls[0].Details["new"].(Record)
	assert.Equal(t, "editor", created["username"])
	assert.NotContains(t, created, "password")

	for _, key := range []string{"prior", "new"} {
		row := calls[1].Details[key].(Record)
		assert.NotContains(t, row, "password")
	}
}

func TestCreate_ReadOnlyTableRejected(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	_, err := e.Create(context.Background(), "audit_logs", map[string]any{
		"action": "CREATE",
	}, testPrincipal, nil)
	require.ErrorIs(t, err, ErrReadOnlyTable)
}

func TestCreate_UnknownTableCleansUploads(t *testing.T) {
	e, files, _, _ := newTestEngine(t)

	_, err := e.Create(context.Background(), "secrets", map[string]any{"a": 1}, testPrincipal, []string{"uploads/s.txt"})
	require.ErrorIs(t, err, ErrUnknownTable)
	assert.Equal(t, []string{"uploads/s.txt"}, files.deletedRefs())
}

func TestCreate_UploadsToFilelessTableRejected(t *testing.T) {
	e, files, _, _ := newTestEngine(t)

	_, err := e.Create(context.Background(), "users", map[string]any{
		"username": "bob",
		"password": "pw",
	}, testPrincipal, []string{"uploads/avatar.png"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{"uploads/avatar.png"}, files.deletedRefs())
}

func TestCreate_PayloadCannotSetFileColumn(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	rec, err := e.Create(context.Background(), "product_lines", map[string]any{
		"name":        "Alpha",
		"attachments": "not-a-json-array",
	}, testPrincipal, nil)
	require.NoError(t, err)

	attachments, _ := rec["attachments"].(string)
	assert.Empty(t, attachments)
}

func TestUpdate_PayloadCannotOverwriteFileColumn(t *testing.T) {
	e, files, _, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", `["uploads/a.pdf","uploads/c.pdf"]`)

	rec, err := e.Update(context.Background(), "product_lines", id, map[string]any{
		"description": "still attached",
		"attachments": "[]",
	}, testPrincipal, nil, nil)
	require.NoError(t, err)

	// The column only changes through the retained/uploaded reference sets;
	// a raw payload value must neither rewrite it nor orphan stored files.
	assert.Equal(t, `["uploads/a.pdf","uploads/c.pdf"]`, rec["attachments"])
	assert.Empty(t, files.deletedRefs())
}

func TestUpdate_ReconcilesFileReferences(t *testing.T) {
	e, files, recorder, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", `["uploads/a.pdf","uploads/c.pdf"]`)

	rec, err := e.Update(context.Background(), "product_lines", id, map[string]any{},
		testPrincipal, []string{"uploads/b.pdf"}, []string{"uploads/a.pdf"})
	require.NoError(t, err)

	var refs []string
	require.NoError(t, json.Unmarshal([]byte(rec["attachments"].(string)), &refs))
	assert.Equal(t, []string{"uploads/a.pdf", "uploads/b.pdf"}, refs)

	// Only the dropped reference is deleted; retained and new stay on disk.
	assert.Equal(t, []string{"uploads/c.pdf"}, files.deletedRefs())

	calls := recorder.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, audit.ActionUpdate, calls[0].Action)
	require.Contains(t, calls[0].Details, "prior")
	require.Contains(t, calls[0].Details, "new")
}

func TestUpdate_EmptyUpdateFails(t *testing.T) {
	e, files, recorder, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", `["uploads/a.pdf"]`)

	_, err := e.Update(context.Background(), "product_lines", id, map[string]any{
		"id":         int64(42),
		"created_by": int64(1),
	}, testPrincipal, nil, nil)
	require.ErrorIs(t, err, ErrEmptyUpdate)

	var line domain.ProductLine
	require.NoError(t, db.First(&line, id).Error)
	assert.Equal(t, `["uploads/a.pdf"]`, line.Attachments)
	assert.Empty(t, files.deletedRefs())
	assert.Empty(t, recorder.recorded())
}

func TestUpdate_NotFound(t *testing.T) {
	e, files, _, _ := newTestEngine(t)

	_, err := e.Update(context.Background(), "product_lines", 999, map[string]any{
		"description": "x",
	}, testPrincipal, []string{"uploads/new.pdf"}, nil)
	require.ErrorIs(t, err, ErrNotFound)

	// The fresh upload belongs to no row and is cleaned up.
	assert.Equal(t, []string{"uploads/new.pdf"}, files.deletedRefs())
}

func TestUpdate_StripsServerManagedFields(t *testing.T) {
	e, _, _, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", "")

	var before domain.ProductLine
	require.NoError(t, db.First(&before, id).Error)

	rec, err := e.Update(context.Background(), "product_lines", id, map[string]any{
		"description": "updated",
		"created_by":  int64(999),
		"id":          int64(12345),
	}, testPrincipal, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "updated", rec["description"])
	assert.Equal(t, id, toInt64(t, rec["id"]))
	assert.Equal(t, before.CreatedBy, toInt64(t, rec["created_by"]))
	assert.Equal(t, int64(7), toInt64(t, rec["updated_by"]))
}

func TestUpdate_NilRetainedLeavesFilesAlone(t *testing.T) {
	e, files, _, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", `["uploads/a.pdf"]`)

	rec, err := e.Update(context.Background(), "product_lines", id, map[string]any{
		"description": "text only",
	}, testPrincipal, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `["uploads/a.pdf"]`, rec["attachments"])
	assert.Empty(t, files.deletedRefs())
}

func TestUpdate_EmptyRetainedWipesFiles(t *testing.T) {
	e, files, _, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", `["uploads/a.pdf","uploads/b.pdf"]`)

	rec, err := e.Update(context.Background(), "product_lines", id, map[string]any{},
		testPrincipal, nil, []string{})
	require.NoError(t, err)

	assert.Equal(t, "[]", rec["attachments"])
	assert.ElementsMatch(t, []string{"uploads/a.pdf", "uploads/b.pdf"}, files.deletedRefs())
}

func TestUpdate_MalformedFileColumnIsNotFatal(t *testing.T) {
	e, files, _, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", "not-json")

	rec, err := e.Update(context.Background(), "product_lines", id, map[string]any{},
		testPrincipal, []string{"uploads/new.pdf"}, []string{})
	require.NoError(t, err)

	assert.Equal(t, `["uploads/new.pdf"]`, rec["attachments"])
	// Malformed prior value reads as "no existing files": nothing to delete.
	assert.Empty(t, files.deletedRefs())
}

func TestUpdate_ResolvesProductLineName(t *testing.T) {
	e, _, _, db := newTestEngine(t)
	alphaID := seedProductLine(t, db, "Alpha", "")
	betaID := seedProductLine(t, db, "Beta", "")

	product := domain.Product{ProductName: "Widget", ProductLineID: alphaID}
	require.NoError(t, db.Create(&product).Error)

	rec, err := e.Update(context.Background(), "products", product.ID, map[string]any{
		"product_line": "Beta",
	}, testPrincipal, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, betaID, toInt64(t, rec["product_line_id"]))

	_, err = e.Update(context.Background(), "products", product.ID, map[string]any{
		"product_line": "Gamma",
	}, testPrincipal, nil, nil)
	require.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestDelete_RemovesRowThenFiles(t *testing.T) {
	e, files, recorder, db := newTestEngine(t)
	id := seedProductLine(t, db, "Alpha", `["uploads/a.pdf","uploads/b.pdf"]`)

	require.NoError(t, e.Delete(context.Background(), "product_lines", id, testPrincipal))

	var count int64
	require.NoError(t, db.Model(&domain.ProductLine{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.ElementsMatch(t, []string{"uploads/a.pdf", "uploads/b.pdf"}, files.deletedRefs())

	calls := recorder.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, audit.ActionDelete, calls[0].Action)
	assert.Equal(t, id, calls[0].RecordID)
}

func TestDelete_NotFound(t *testing.T) {
	e, files, recorder, _ := newTestEngine(t)

	err := e.Delete(context.Background(), "product_lines", 999, testPrincipal)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, files.deletedRefs())
	assert.Empty(t, recorder.recorded())
}

func TestList_OrdersNewestFirst(t *testing.T) {
	e, _, _, db := newTestEngine(t)

	old := domain.ProductLine{Name: "Old", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(&old).Error)
	recent := domain.ProductLine{Name: "Recent", CreatedAt: time.Now()}
	require.NoError(t, db.Create(&recent).Error)

	rows, err := e.List(context.Background(), "product_lines")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Recent", rows[0]["name"])
	assert.Equal(t, "Old", rows[1]["name"])
}

func TestList_AuditExcludesSessionActionsAndCaps(t *testing.T) {
	e, _, _, db := newTestEngine(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		entry := domain.AuditLog{Action: "CREATE", Entity: "products", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.Create(&entry).Error)
	}
	login := domain.AuditLog{Action: "LOGIN", Entity: "users", CreatedAt: time.Now()}
	require.NoError(t, db.Create(&login).Error)

	rows, err := e.List(context.Background(), "audit_logs")
	require.NoError(t, err)

	// Registry caps the audit listing at 5 rows in tests.
	require.Len(t, rows, 5)
	for _, row := range rows {
		assert.NotEqual(t, "LOGIN", row["action"])
	}
}

func TestList_UsersOmitsPasswordHash(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	_, err := e.Create(context.Background(), "users", map[string]any{
		"username": "editor",
		"password": "s3cret",
	}, testPrincipal, nil)
	require.NoError(t, err)

	rows, err := e.List(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "editor", rows[0]["username"])
	assert.NotContains(t, rows[0], "password")
}

func TestList_UnknownTable(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	_, err := e.List(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownTable)
}

func toInt64(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		t.Fatalf("unexpected numeric type %T", v)
		return 0
	}
}
