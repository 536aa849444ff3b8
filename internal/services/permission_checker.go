package services

import "context"

// PermissionChecker abstracts permission evaluation for callers guarding
// privileged operations.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, code string) (bool, error)
}
