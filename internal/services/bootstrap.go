package services

import (
	"context"
	"errors"

	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/models"
	"github.com/yasgmp/gmpauthz/internal/permissions"
)

const (
	administratorDescription = "Manages roles, grants, delegations and the audit trail"
	bootstrapReason          = "bootstrap administrator"
)

// AdminBootstrap reports what EnsureAdministrators changed.
type AdminBootstrap struct {
	RoleID      int64
	RoleCreated bool
	CodesAdded  []string
	Granted     []int64
}

// EnsureAdministrators makes sure the administrator role exists, maps every
// rbac and audit permission, and is held permanently by each of userIDs.
// Changes are made by the system actor and audited like any other mutation.
// Running it again against a bootstrapped database changes nothing.
func EnsureAdministrators(ctx context.Context, roles *RoleService, authz *AuthorizationService, userIDs []int64) (*AdminBootstrap, error) {
	if roles == nil || authz == nil {
		return nil, errors.New("bootstrap administrators: role and authorization services are required")
	}
	ctx = ensureContext(ctx)
	result := &AdminBootstrap{}
	if len(userIDs) == 0 {
		return result, nil
	}

	role, err := findLiveRole(ctx, roles, permissions.AdministratorRole)
	if err != nil {
		return nil, err
	}
	if role == nil {
		role, err = roles.CreateRole(ctx, auditctx.System, RoleInput{
			Name:        permissions.AdministratorRole,
			Description: administratorDescription,
		})
		if err != nil {
			return nil, err
		}
		result.RoleCreated = true
	}
	result.RoleID = role.ID

	mapped, err := roles.RolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(mapped))
	for _, grant := range mapped {
		have[grant.Code] = struct{}{}
	}
	for _, code := range permissions.AdministratorCodes() {
		if _, ok := have[code]; ok {
			continue
		}
		if err := roles.AddPermissionToRole(ctx, auditctx.System, role.ID, code, bootstrapReason); err != nil {
			return nil, err
		}
		result.CodesAdded = append(result.CodesAdded, code)
	}

	for _, userID := range userIDs {
		held, err := holdsPermanently(ctx, authz, userID, role.ID)
		if err != nil {
			return nil, err
		}
		if held {
			continue
		}
		if err := authz.GrantRole(ctx, auditctx.System, userID, role.ID, nil, bootstrapReason); err != nil {
			return nil, err
		}
		result.Granted = append(result.Granted, userID)
	}
	return result, nil
}

func findLiveRole(ctx context.Context, roles *RoleService, name string) (*models.Role, error) {
	live, err := roles.ListRoles(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if live[i].Name == name {
			return &live[i], nil
		}
	}
	return nil, nil
}

// holdsPermanently ignores expiring memberships so they get replaced.
func holdsPermanently(ctx context.Context, authz *AuthorizationService, userID, roleID int64) (bool, error) {
	memberships, err := authz.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.RoleID == roleID && m.ExpiresAt == nil {
			return true, nil
		}
	}
	return false, nil
}
