package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role groups permissions. Roles are soft deleted; Version only ever grows.
type Role struct {
	ID               int64                       `gorm:"primaryKey" json:"id"`
	Name             string                      `gorm:"size:255;not null;index" json:"name"`
	Description      string                      `gorm:"type:text" json:"description"`
	OrgUnit          string                      `gorm:"size:255" json:"org_unit"`
	ComplianceTags   datatypes.JSONSlice[string] `json:"compliance_tags"`
	Notes            string                      `gorm:"type:text" json:"notes"`
	IsDeleted        bool                        `gorm:"not null;index" json:"is_deleted"`
	Version          int                         `gorm:"not null" json:"version"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	CreatedByID      *int64                      `json:"created_by_id,omitempty"`
	LastModifiedByID *int64                      `json:"last_modified_by_id,omitempty"`
}

func (Role) TableName() string { return "roles" }

// RolePermission maps a permission onto a role. Only Allowed rows grant access.
type RolePermission struct {
	RoleID       int64     `gorm:"primaryKey;autoIncrement:false" json:"role_id"`
	PermissionID int64     `gorm:"primaryKey;autoIncrement:false;index" json:"permission_id"`
	Allowed      bool      `gorm:"not null" json:"allowed"`
	AssignedBy   *int64    `json:"assigned_by,omitempty"`
	AssignedAt   time.Time `gorm:"not null" json:"assigned_at"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// Tags converts compliance tags for the JSON column, never storing null.
func Tags(values []string) datatypes.JSONSlice[string] {
	if values == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](values)
}
