// Package crud implements the generic table CRUD engine: create, update,
// delete and list over the registry's fixed table set, with transactional
// reconciliation of on-disk file attachments against each table's file
// column.
package crud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"catalogapi/internal/audit"
)

// Record is one row of a configured table, column name to value.
type Record map[string]any

// Principal is the acting user an operation is attributed to.
type Principal struct {
	ID   int64
	Name string
}

// FileStore deletes stored attachments by reference. Deletion is idempotent;
// an absent file is not an error.
type FileStore interface {
	Delete(ref string) error
}

// AuditRecorder appends a mutation fact. Implementations must swallow their
// own failures; the engine never checks an outcome.
type AuditRecorder interface {
	Record(action audit.Action, table string, recordID, actorID int64, actorName string, details map[string]any)
}

type Engine struct {
	db       *gorm.DB
	registry *Registry
	files    FileStore
	audit    AuditRecorder

	// dispatch runs post-commit work (file deletion, audit append). It is
	// fire-and-forget in production; tests run it inline.
	dispatch func(func())
}

func NewEngine(db *gorm.DB, registry *Registry, files FileStore, recorder AuditRecorder) *Engine {
	return &Engine{
		db:       db,
		registry: registry,
		files:    files,
		audit:    recorder,
		dispatch: func(fn func()) { go fn() },
	}
}

// Create inserts a row built from payload. uploaded references (already
// stored by the file store) become the table's file column. On any failure
// the uploaded files are removed again: they belong to no committed row and
// would otherwise be orphans.
func (e *Engine) Create(ctx context.Context, table string, payload map[string]any, p Principal, uploaded []string) (Record, error) {
	spec, err := e.mutableSpec(table)
	if err == nil && spec.FileColumn == "" && len(uploaded) > 0 {
		err = fmt.Errorf("%w: %s does not accept file attachments", ErrValidation, table)
	}
	if err != nil {
		e.removeFiles(uploaded)
		return nil, err
	}

	var rec Record
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := e.resolveNameRef(tx, spec, payload)
		if err != nil {
			return err
		}
		values, err := filterColumns(spec, resolved)
		if err != nil {
			return err
		}
		if err := checkRequired(spec, values); err != nil {
			return err
		}
		if spec.FileColumn != "" && len(uploaded) > 0 {
			values[spec.FileColumn] = encodeRefs(uploaded)
		}

		now := time.Now().UTC()
		values["created_at"] = now
		values["created_by"] = p.ID
		values["updated_at"] = now
		values["updated_by"] = p.ID

		id, err := e.insertRow(tx, spec, values)
		if err != nil {
			if isConflict(err) {
				return fmt.Errorf("%w: %s", ErrConflict, spec.Name)
			}
			return err
		}

		rec, err = e.fetchRow(tx, spec, id)
		return err
	})
	if err != nil {
		e.removeFiles(uploaded)
		return nil, err
	}

	e.dispatch(func() {
		e.audit.Record(audit.ActionCreate, spec.Name, recordID(rec), p.ID, p.Name, map[string]any{"new": spec.redact(rec)})
	})

	return rec, nil
}

// Update mutates an existing row. retained is the subset of the record's
// current file references the caller keeps; the final reference set is
// retained followed by uploaded. References dropped from the row are deleted
// from the file store strictly after the transaction commits. A nil retained
// together with zero uploads leaves the file column untouched.
func (e *Engine) Update(ctx context.Context, table string, id int64, payload map[string]any, p Principal, uploaded, retained []string) (Record, error) {
	spec, err := e.mutableSpec(table)
	if err == nil && spec.FileColumn == "" && len(uploaded) > 0 {
		err = fmt.Errorf("%w: %s does not accept file attachments", ErrValidation, table)
	}
	if err != nil {
		e.removeFiles(uploaded)
		return nil, err
	}

	finalRefs := mergeRefs(retained, uploaded)
	touchFiles := spec.FileColumn != "" && (retained != nil || len(uploaded) > 0)

	var rec, prior Record
	var filesToDelete []string
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		prior, err = e.fetchRow(tx, spec, id)
		if err != nil {
			return err
		}

		resolved, err := e.resolveNameRef(tx, spec, payload)
		if err != nil {
			return err
		}
		values, err := filterColumns(spec, resolved)
		if err != nil {
			return err
		}
		if len(values) == 0 && !touchFiles {
			return ErrEmptyUpdate
		}
		if touchFiles {
			values[spec.FileColumn] = encodeRefs(finalRefs)
		}

		values["updated_at"] = time.Now().UTC()
		values["updated_by"] = p.ID

		res := tx.Table(spec.Name).Where("id = ?", id).Updates(values)
		if res.Error != nil {
			if isConflict(res.Error) {
				return fmt.Errorf("%w: %s", ErrConflict, spec.Name)
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if touchFiles {
			filesToDelete = diffRefs(decodeRefs(spec.Name, prior[spec.FileColumn]), finalRefs)
		}

		rec, err = e.fetchRow(tx, spec, id)
		return err
	})
	if err != nil {
		// Only the freshly uploaded files are orphans; retained references
		// still belong to the committed row.
		e.removeFiles(uploaded)
		return nil, err
	}

	e.dispatch(func() {
		e.removeFiles(filesToDelete)
		e.audit.Record(audit.ActionUpdate, spec.Name, id, p.ID, p.Name, map[string]any{"prior": spec.redact(prior), "new": spec.redact(rec)})
	})

	return rec, nil
}

// Delete removes a row, then its attachments. File deletion happens only
// after the row delete commits: a crash in between leaves a harmless orphan
// file, never a live record pointing at a deleted file.
func (e *Engine) Delete(ctx context.Context, table string, id int64, p Principal) error {
	spec, err := e.mutableSpec(table)
	if err != nil {
		return err
	}

	var prior Record
	var refs []string
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		prior, err = e.fetchRow(tx, spec, id)
		if err != nil {
			return err
		}
		if spec.FileColumn != "" {
			refs = decodeRefs(spec.Name, prior[spec.FileColumn])
		}

		res := tx.Exec("DELETE FROM "+spec.Name+" WHERE id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.dispatch(func() {
		e.removeFiles(refs)
		e.audit.Record(audit.ActionDelete, spec.Name, id, p.ID, p.Name, map[string]any{"prior": spec.redact(prior)})
	})

	return nil
}

// List returns every row of a table in its configured order, narrowed by the
// spec's list scope where one is set.
func (e *Engine) List(ctx context.Context, table string) ([]Record, error) {
	spec, ok := e.registry.Get(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	q := e.db.WithContext(ctx).Table(spec.Name)
	if spec.ListScope != nil {
		q = spec.ListScope(q)
	}
	if spec.OrderBy != "" {
		q = q.Order(spec.OrderBy)
	}

	var rows []map[string]interface{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = Record(row)
	}
	return out, nil
}

func (e *Engine) mutableSpec(table string) (TableSpec, error) {
	spec, ok := e.registry.Get(table)
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if spec.ReadOnly {
		return TableSpec{}, fmt.Errorf("%w: %s", ErrReadOnlyTable, table)
	}
	return spec, nil
}

// resolveNameRef swaps the spec's name field for the referenced row's id.
// Runs inside the operation's transaction, before any write.
func (e *Engine) resolveNameRef(tx *gorm.DB, spec TableSpec, payload map[string]any) (map[string]any, error) {
	ref := spec.NameRef
	if ref == nil {
		return payload, nil
	}
	raw, ok := payload[ref.Field]
	if !ok {
		return payload, nil
	}

	name := strings.TrimSpace(fmt.Sprint(raw))
	if name == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrValidation, ref.Field)
	}

	var ids []int64
	err := tx.Table(ref.Table).Where(ref.NameColumn+" = ?", name).Limit(1).Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no %s named %q", ErrReferenceNotFound, ref.Table, name)
	}

	out := clonePayload(payload)
	delete(out, ref.Field)
	out[ref.IDColumn] = ids[0]
	return out, nil
}

// insertRow inserts values and returns the new id. Table and column names
// come exclusively from the registry; only values are bound as parameters.
func (e *Engine) insertRow(tx *gorm.DB, spec TableSpec, values map[string]any) (int64, error) {
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	args := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for _, col := range columns {
		args = append(args, values[col])
		placeholders = append(placeholders, "?")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		spec.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	var id int64
	if err := tx.Raw(query, args...).Scan(&id).Error; err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) fetchRow(tx *gorm.DB, spec TableSpec, id int64) (Record, error) {
	row := map[string]interface{}{}
	err := tx.Table(spec.Name).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s id %d", ErrNotFound, spec.Name, id)
	}
	if err != nil {
		return nil, err
	}
	return Record(row), nil
}

func (e *Engine) removeFiles(refs []string) {
	for _, ref := range refs {
		if err := e.files.Delete(ref); err != nil {
			log.Printf("crud: failed to delete file %q: %v", ref, err)
		}
	}
}

func recordID(rec Record) int64 {
	switch v := rec["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func isConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
