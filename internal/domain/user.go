package domain

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor"
	RoleViewer UserRole = "viewer"
)

type User struct {
	ID          int64     `json:"id" gorm:"column:id;primaryKey"`
	Username    string    `json:"username" gorm:"column:username;uniqueIndex" validate:"required"`
	Password    string    `json:"-" gorm:"column:password"` // bcrypt hash
	DisplayName string    `json:"display_name" gorm:"column:display_name"`
	Role        UserRole  `json:"role" gorm:"column:role"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	CreatedBy   int64     `json:"created_by" gorm:"column:created_by"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
	UpdatedBy   int64     `json:"updated_by" gorm:"column:updated_by"`
}

func (User) TableName() string { return "users" }
