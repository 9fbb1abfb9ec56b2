package model

import (
	"time"
)

// User marketplace account. A user can be both buyer and seller.
type User struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement;comment:user id" json:"id"`
	Username     string     `gorm:"type:varchar(50);uniqueIndex;not null;comment:login name" json:"username"`
	Phone        *string    `gorm:"type:varchar(20);uniqueIndex;comment:phone number" json:"phone,omitempty"`
	Email        *string    `gorm:"type:varchar(100);uniqueIndex;comment:email" json:"email,omitempty"`
	PasswordHash string     `gorm:"type:varchar(255);not null;comment:bcrypt hash" json:"-"`
	Salt         string     `gorm:"type:varchar(32);not null;comment:password salt" json:"-"`
	Nickname     *string    `gorm:"type:varchar(50);comment:display name" json:"nickname,omitempty"`
	Avatar       *string    `gorm:"type:varchar(255);comment:avatar url" json:"avatar,omitempty"`
	Role         string     `gorm:"type:varchar(20);not null;default:'user';comment:user or admin" json:"role"`
	Status       int8       `gorm:"type:tinyint;not null;default:1;index;comment:1 normal 2 disabled" json:"status"`
	LastLoginAt  *time.Time `gorm:"type:timestamp;comment:last login time" json:"last_login_at,omitempty"`
	LastLoginIP  *string    `gorm:"type:varchar(45);comment:last login ip" json:"last_login_ip,omitempty"`
	CreatedAt    time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// UserStatus user status const
const (
	UserStatusNormal   = 1
	UserStatusDisabled = 2
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IsActive check if user is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusNormal
}

// DisplayName returns the nickname when set, otherwise the username
func (u *User) DisplayName() string {
	if u.Nickname != nil && *u.Nickname != "" {
		return *u.Nickname
	}
	return u.Username
}
