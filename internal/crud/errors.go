package crud

import "errors"

var (
	// ErrUnknownTable means the table identifier is not in the registry.
	ErrUnknownTable = errors.New("unknown table")
	// ErrReadOnlyTable means a mutation was attempted on a read-only table.
	ErrReadOnlyTable = errors.New("table is read-only")
	// ErrValidation covers missing or malformed required fields.
	ErrValidation = errors.New("validation failed")
	// ErrReferenceNotFound means a name-to-id lookup matched no row.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrConflict is a uniqueness violation at the storage layer.
	ErrConflict = errors.New("record conflicts with an existing record")
	// ErrNotFound means the target id matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrEmptyUpdate is an update with nothing to change and no new files.
	ErrEmptyUpdate = errors.New("nothing to update")
)
