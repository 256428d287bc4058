package crud

import (
	"encoding/json"
	"fmt"
	"log"
)

// Payload stages. Each stage takes a map and returns a new one; the input is
// never mutated, so every stage can be tested in isolation.

// serverManaged columns are assigned by the engine and stripped from caller
// input regardless of the allow-list.
var serverManaged = map[string]bool{
	"id":         true,
	"created_at": true,
	"created_by": true,
	"updated_at": true,
	"updated_by": true,
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// encodeRefs renders a reference list as the JSON array value stored in a
// file column. A nil list encodes as [].
func encodeRefs(refs []string) string {
	if refs == nil {
		refs = []string{}
	}
	encoded, _ := json.Marshal(refs)
	return string(encoded)
}

// filterColumns reduces the payload to allow-listed columns, applying any
// per-column normalizers. Unknown fields are dropped silently; server-managed
// fields and the table's file column are dropped even if a spec were to
// allow-list them — the file column is written only through the engine's
// reference reconciliation, never from raw caller input.
func filterColumns(spec TableSpec, payload map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for field, value := range payload {
		if !spec.allows(field) || serverManaged[field] {
			continue
		}
		if spec.FileColumn != "" && field == spec.FileColumn {
			continue
		}
		if normalize, ok := spec.Normalize[field]; ok {
			normalized, err := normalize(value)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrValidation, field, err)
			}
			value = normalized
		}
		out[field] = value
	}
	return out, nil
}

func checkRequired(spec TableSpec, values map[string]any) error {
	for _, col := range spec.Required {
		v, ok := values[col]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return fmt.Errorf("%w: missing required field %q", ErrValidation, col)
		}
	}
	return nil
}

// RefList normalizes an attachment-reference value to a string slice. A
// single scalar becomes a one-element list; nil stays nil.
func RefList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// mergeRefs is retained ∪ uploaded, retained first, duplicates dropped.
func mergeRefs(retained, uploaded []string) []string {
	out := make([]string, 0, len(retained)+len(uploaded))
	seen := make(map[string]bool, len(retained)+len(uploaded))
	for _, ref := range retained {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	for _, ref := range uploaded {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

// diffRefs is existing − final: the references no longer held by the record.
func diffRefs(existing, final []string) []string {
	keep := make(map[string]bool, len(final))
	for _, ref := range final {
		keep[ref] = true
	}
	var out []string
	for _, ref := range existing {
		if ref != "" && !keep[ref] {
			out = append(out, ref)
		}
	}
	return out
}

// decodeRefs reads a stored file-column value. Malformed JSON is treated as
// "no existing files" with a logged anomaly; a half-broken column must never
// fail the mutation it is read under.
func decodeRefs(table string, value any) []string {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		raw = []byte(v)
	case []byte:
		if len(v) == 0 {
			return nil
		}
		raw = v
	default:
		log.Printf("crud: unexpected file column type %T on %s, ignoring", value, table)
		return nil
	}

	var refs []string
	if err := json.Unmarshal(raw, &refs); err != nil {
		log.Printf("crud: malformed file column on %s: %v", table, err)
		return nil
	}
	return refs
}
