package models

import "time"

// Permission request states. Approved and denied are terminal.
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusDenied   = "denied"
)

// PermissionRequest is a user's request for a permission awaiting a human decision.
type PermissionRequest struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	UserID       int64      `gorm:"not null;index" json:"user_id"`
	PermissionID int64      `gorm:"not null" json:"permission_id"`
	Reason       string     `gorm:"type:text" json:"reason"`
	Status       string     `gorm:"size:16;not null;index" json:"status"`
	RequestedAt  time.Time  `gorm:"not null" json:"requested_at"`
	DecidedBy    *int64     `json:"decided_by,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	Comment      string     `gorm:"type:text" json:"comment"`

	Permission *Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
}

func (PermissionRequest) TableName() string { return "permission_requests" }

// Terminal reports whether the request has been decided.
func (r PermissionRequest) Terminal() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusDenied
}
