package entity

import "time"

// 内置角色
const (
	RoleAdmin = "admin"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User 用户
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"size:128;not null"`
	Email        string    `json:"email" gorm:"size:128"`
	Role         string    `json:"role" gorm:"size:32;not null;default:'user'"`
	Organization string    `json:"organization" gorm:"size:64"`
	Status       string    `json:"status" gorm:"size:20;not null;default:'active'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
