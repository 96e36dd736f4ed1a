package models

import (
	"strings"
	"time"
)

const UserTable = "itb_users"

type UserRole string

const (
	RoleStaff   UserRole = "Staff"
	RoleStudent UserRole = "Student"
	RoleAdmin   UserRole = "Admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleStaff, RoleStudent, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive    UserStatus = "Active"
	UserSuspended UserStatus = "Suspended"
)

func (s UserStatus) Valid() bool { return s == UserActive || s == UserSuspended }

// User 密码只存 bcrypt 哈希，永远不序列化
type User struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:120;not null" json:"username"`
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         UserRole   `gorm:"size:20;not null;default:'Student'" json:"role"`
	Status       UserStatus `gorm:"size:20;not null;default:'Active'" json:"status"`
	ProfilePic   string     `gorm:"type:text" json:"profilepic"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return UserTable }

// DisplayName is what feeds and audit messages show for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return "Unknown User"
	}
	if strings.TrimSpace(u.Username) != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return "Unknown User"
}
