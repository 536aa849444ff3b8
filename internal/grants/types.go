package grants

import "time"

// DirectGrant is a user_permissions row joined with its permission code.
type DirectGrant struct {
	UserID       int64      `json:"user_id"`
	PermissionID int64      `json:"permission_id"`
	Code         string     `json:"code"`
	Allowed      bool       `json:"allowed"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Reason       string     `json:"reason"`
}

// RoleGrant is a role_permissions row joined with its permission code.
type RoleGrant struct {
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	Code         string    `json:"code"`
	Allowed      bool      `json:"allowed"`
	AssignedBy   *int64    `json:"assigned_by,omitempty"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// Delegation is a delegated_permissions row joined with its permission code.
type Delegation struct {
	ID           int64      `json:"id"`
	FromUserID   int64      `json:"from_user_id"`
	ToUserID     int64      `json:"to_user_id"`
	PermissionID int64      `json:"permission_id"`
	Code         string     `json:"code"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Reason       string     `json:"reason"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the delegation grants access at now. A delegation
// expiring exactly at now no longer grants.
func (d Delegation) Active(now time.Time) bool {
	return d.RevokedAt == nil && d.ExpiresAt.After(now)
}

// Membership is a user_roles row joined with the role name.
type Membership struct {
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	RoleName  string     `json:"role_name"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PurgeResult reports how many expired rows a purge removed per table.
type PurgeResult struct {
	UserRoles       int64 `json:"user_roles"`
	UserPermissions int64 `json:"user_permissions"`
	Delegations     int64 `json:"delegations"`
}

// Total returns the number of rows removed across all tables.
func (r PurgeResult) Total() int64 {
	return r.UserRoles + r.UserPermissions + r.Delegations
}
