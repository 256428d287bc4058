package crud

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"catalogapi/internal/audit"
)

// DefaultRegistry configures the tables the API serves. auditLimit caps the
// audit listing so the response stays bounded.
func DefaultRegistry(auditLimit int) *Registry {
	return NewRegistry(
		TableSpec{
			Name:     "users",
			Columns:  []string{"username", "password", "display_name", "role"},
			Required: []string{"username", "password"},
			Redact:   []string{"password"},
			Normalize: map[string]NormalizeFunc{
				"username": trimmedString,
				"password": hashedPassword,
			},
			OrderBy: "created_at DESC",
			// Password hashes stay out of listings.
			ListScope: func(db *gorm.DB) *gorm.DB {
				return db.Select("id", "username", "display_name", "role",
					"created_at", "created_by", "updated_at", "updated_by")
			},
		},
		TableSpec{
			Name:       "product_lines",
			Columns:    []string{"name", "description"},
			Required:   []string{"name"},
			FileColumn: "attachments",
			Normalize: map[string]NormalizeFunc{
				"name": trimmedString,
			},
			OrderBy: "created_at DESC",
		},
		TableSpec{
			Name:       "products",
			Columns:    []string{"product_name", "product_line_id", "description", "sku"},
			Required:   []string{"product_name"},
			FileColumn: "attachments",
			NameRef: &NameRef{
				Field:      "product_line",
				Table:      "product_lines",
				NameColumn: "name",
				IDColumn:   "product_line_id",
			},
			Normalize: map[string]NormalizeFunc{
				"product_name": trimmedString,
			},
			OrderBy: "created_at DESC",
		},
		TableSpec{
			Name:     "audit_logs",
			ReadOnly: true,
			OrderBy:  "created_at DESC",
			ListScope: func(db *gorm.DB) *gorm.DB {
				return db.Where("action NOT IN ?", audit.SessionActions).Limit(auditLimit)
			},
		},
	)
}

func trimmedString(value any) (any, error) {
	s := strings.TrimSpace(fmt.Sprint(value))
	if s == "" {
		return nil, fmt.Errorf("must not be empty")
	}
	return s, nil
}

func hashedPassword(value any) (any, error) {
	plain, ok := value.(string)
	if !ok || plain == "" {
		return nil, fmt.Errorf("must be a non-empty string")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return string(hash), nil
}
