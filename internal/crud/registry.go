package crud

import (
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// NormalizeFunc rewrites a payload value before persistence (trimming,
// password hashing). Returning an error aborts the operation as a
// validation failure.
type NormalizeFunc func(value any) (any, error)

// NameRef resolves a human-readable payload field to a foreign id column
// before persistence. A lookup miss is a caller error, not a system fault.
type NameRef struct {
	Field      string // payload field carrying the name
	Table      string // lookup table
	NameColumn string // column matched against the name
	IDColumn   string // column on the owning table receiving the id
}

// TableSpec is the closed, configured description of one table the engine
// may operate on. Every identifier the engine interpolates into SQL comes
// from a spec, never from the request.
type TableSpec struct {
	Name       string
	Columns    []string // allow-listed persistable columns
	Required   []string // columns that must be present on create
	FileColumn string   // JSON-array column of attachment refs, "" for none
	NameRef    *NameRef
	OrderBy    string
	Normalize  map[string]NormalizeFunc
	Redact     []string // columns stripped from audit detail snapshots
	ReadOnly   bool
	// ListScope narrows listings (row caps, excluded rows). Applied before
	// ordering.
	ListScope func(*gorm.DB) *gorm.DB

	columnSet map[string]bool
}

func (s TableSpec) allows(column string) bool {
	return s.columnSet[column]
}

// redact returns a copy of rec without the spec's redacted columns. Audit
// detail snapshots go through here so credential material never lands in a
// listable table.
func (s TableSpec) redact(rec Record) Record {
	if len(s.Redact) == 0 || rec == nil {
		return rec
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, col := range s.Redact {
		delete(out, col)
	}
	return out
}

// Registry holds the fixed set of tables the engine serves.
type Registry struct {
	tables map[string]TableSpec
}

// NewRegistry builds a registry from specs. Panics on duplicate or unnamed
// specs: the table set is static configuration, not runtime input.
func NewRegistry(specs ...TableSpec) *Registry {
	r := &Registry{tables: make(map[string]TableSpec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			panic("crud: table spec without a name")
		}
		if _, exists := r.tables[spec.Name]; exists {
			panic(fmt.Sprintf("crud: table already registered: %s", spec.Name))
		}
		spec.columnSet = make(map[string]bool, len(spec.Columns))
		for _, col := range spec.Columns {
			spec.columnSet[col] = true
		}
		r.tables[spec.Name] = spec
	}
	return r
}

// Get returns a table spec by name. Returns false if not registered.
func (r *Registry) Get(name string) (TableSpec, bool) {
	spec, ok := r.tables[name]
	return spec, ok
}

// All returns every registered spec, sorted by name.
func (r *Registry) All() []TableSpec {
	result := make([]TableSpec, 0, len(r.tables))
	for _, spec := range r.tables {
		result = append(result, spec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
