package domain

import "time"

// ProductLine groups products under a human-readable name. The attachments
// column holds a JSON array of relative file references managed by the CRUD
// engine's reconciliation step.
type ProductLine struct {
	ID          int64     `json:"id" gorm:"column:id;primaryKey"`
	Name        string    `json:"name" gorm:"column:name;uniqueIndex" validate:"required"`
	Description string    `json:"description" gorm:"column:description"`
	Attachments string    `json:"attachments,omitempty" gorm:"column:attachments;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	CreatedBy   int64     `json:"created_by" gorm:"column:created_by"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
	UpdatedBy   int64     `json:"updated_by" gorm:"column:updated_by"`
}

func (ProductLine) TableName() string { return "product_lines" }

type Product struct {
	ID            int64     `json:"id" gorm:"column:id;primaryKey"`
	ProductName   string    `json:"product_name" gorm:"column:product_name" validate:"required"`
	ProductLineID int64     `json:"product_line_id" gorm:"column:product_line_id;index"`
	Description   string    `json:"description" gorm:"column:description"`
	SKU           string    `json:"sku,omitempty" gorm:"column:sku"`
	Attachments   string    `json:"attachments,omitempty" gorm:"column:attachments;type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
	CreatedBy     int64     `json:"created_by" gorm:"column:created_by"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at"`
	UpdatedBy     int64     `json:"updated_by" gorm:"column:updated_by"`
}

func (Product) TableName() string { return "products" }
