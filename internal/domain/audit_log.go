package domain

import "time"

// AuditLog is an append-only record of a mutation. Rows are only ever
// inserted; the API exposes them read-only.
type AuditLog struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey"`
	Action    string    `json:"action" gorm:"column:action;index"`
	Entity    string    `json:"table_name" gorm:"column:table_name"`
	RecordID  int64     `json:"record_id" gorm:"column:record_id"`
	UserID    int64     `json:"user_id" gorm:"column:user_id"`
	Username  string    `json:"username" gorm:"column:username"`
	Details   string    `json:"details,omitempty" gorm:"column:details;type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
