package models

import "time"

// UserRole is a role membership. A nil ExpiresAt never expires.
type UserRole struct {
	UserID    int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoleID    int64      `gorm:"primaryKey;autoIncrement:false;index" json:"role_id"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

func (UserRole) TableName() string { return "user_roles" }

// UserPermission is a direct grant. Allowed=false rows are stored but never grant.
type UserPermission struct {
	UserID       int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PermissionID int64      `gorm:"primaryKey;autoIncrement:false;index" json:"permission_id"`
	Allowed      bool       `gorm:"not null" json:"allowed"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`
	Reason       string     `gorm:"type:text" json:"reason"`
}

func (UserPermission) TableName() string { return "user_permissions" }

// DelegatedPermission lends FromUserID's permission to ToUserID until ExpiresAt.
type DelegatedPermission struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	FromUserID   int64      `gorm:"not null;uniqueIndex:idx_delegation_key" json:"from_user_id"`
	ToUserID     int64      `gorm:"not null;uniqueIndex:idx_delegation_key;index" json:"to_user_id"`
	PermissionID int64      `gorm:"not null;uniqueIndex:idx_delegation_key" json:"permission_id"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	Reason       string     `gorm:"type:text" json:"reason"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

func (DelegatedPermission) TableName() string { return "delegated_permissions" }
