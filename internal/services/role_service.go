package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

// RoleService manages the role lifecycle and role to permission mappings.
type RoleService struct {
	store *grants.Store
	opts  serviceOptions
}

// NewRoleService constructs a RoleService using the provided store.
func NewRoleService(store *grants.Store, recorder AuditRecorder, opts ...Option) (*RoleService, error) {
	if store == nil {
		return nil, errors.New("role service: store is required")
	}
	return &RoleService{store: store, opts: buildOptions(recorder, opts)}, nil
}

// RoleInput carries the editable role attributes.
type RoleInput struct {
	Name           string
	Description    string
	OrgUnit        string
	ComplianceTags []string
	Notes          string
}

func (in RoleInput) validate() (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, apperrors.NewBadRequest("role name is required")
	}
	in.Description = strings.TrimSpace(in.Description)
	in.OrgUnit = strings.TrimSpace(in.OrgUnit)
	in.Notes = strings.TrimSpace(in.Notes)
	in.ComplianceTags = normaliseTags(in.ComplianceTags)
	return in, nil
}

// CreateRole registers a new role at version 1.
func (s *RoleService) CreateRole(ctx context.Context, actor auditctx.Actor, input RoleInput) (_ *models.Role, err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("create_role", err) }()

	input, err = input.validate()
	if err != nil {
		return nil, err
	}

	role := &models.Role{
		Name:             input.Name,
		Description:      input.Description,
		OrgUnit:          input.OrgUnit,
		ComplianceTags:   models.Tags(input.ComplianceTags),
		Notes:            input.Notes,
		CreatedByID:      actor.UserRef(),
		LastModifiedByID: actor.UserRef(),
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		ChangeType: "role",
		RoleID:     int64Ptr(role.ID),
		Action:     "create",
		Details:    fmt.Sprintf("name=%s; version=%d", role.Name, role.Version),
	}, trailEntry{
		action:   "ROLE_CREATE",
		details:  fmt.Sprintf("Role %q created", role.Name),
		table:    "roles",
		recordID: int64Ptr(role.ID),
	})
	return role, nil
}

// RolePatch carries a partial role update. Nil fields keep their stored value.
type RolePatch struct {
	Name           *string
	Description    *string
	OrgUnit        *string
	ComplianceTags *[]string
	Notes          *string
}

func (p RolePatch) empty() bool {
	return p.Name == nil && p.Description == nil && p.OrgUnit == nil && p.ComplianceTags == nil && p.Notes == nil
}

// merge overlays the patch on the stored role.
func (p RolePatch) merge(role *models.Role) RoleInput {
	in := RoleInput{
		Name:           role.Name,
		Description:    role.Description,
		OrgUnit:        role.OrgUnit,
		ComplianceTags: []string(role.ComplianceTags),
		Notes:          role.Notes,
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.OrgUnit != nil {
		in.OrgUnit = *p.OrgUnit
	}
	if p.ComplianceTags != nil {
		in.ComplianceTags = *p.ComplianceTags
	}
	if p.Notes != nil {
		in.Notes = *p.Notes
	}
	return in
}

// UpdateRole applies patch to a live role and advances the version.
func (s *RoleService) UpdateRole(ctx context.Context, actor auditctx.Actor, roleID int64, patch RolePatch) (_ *models.Role, err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("update_role", err) }()

	if patch.empty() {
		return nil, apperrors.NewBadRequest("no role attributes to update")
	}
	current, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	input, err := patch.merge(current).validate()
	if err != nil {
		return nil, err
	}

	role, err := s.store.UpdateRole(ctx, roleID, grants.RoleUpdate{
		Name:           input.Name,
		Description:    input.Description,
		OrgUnit:        input.OrgUnit,
		ComplianceTags: input.ComplianceTags,
		Notes:          input.Notes,
		ModifiedBy:     actor.UserRef(),
	})
	if err != nil {
		return nil, err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		ChangeType: "role",
		RoleID:     int64Ptr(role.ID),
		Action:     "update",
		Details:    fmt.Sprintf("name=%s; version=%d", role.Name, role.Version),
	}, trailEntry{
		action:   "ROLE_UPDATE",
		details:  fmt.Sprintf("Role %q updated to version %d", role.Name, role.Version),
		table:    "roles",
		recordID: int64Ptr(role.ID),
	})
	return role, nil
}

// DeleteRole soft deletes a role and purges its memberships and mappings.
func (s *RoleService) DeleteRole(ctx context.Context, actor auditctx.Actor, roleID int64, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("delete_role", err) }()

	if err := s.store.SoftDeleteRole(ctx, roleID, actor.UserRef()); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		ChangeType: "role",
		RoleID:     int64Ptr(roleID),
		Action:     "delete",
		Reason:     reason,
	}, trailEntry{
		action:   "ROLE_DELETE",
		details:  withReason(fmt.Sprintf("Role %d deleted", roleID), reason),
		table:    "roles",
		recordID: int64Ptr(roleID),
	})
	return nil
}

// AddPermissionToRole maps code onto roleID. Repeating the call refreshes the
// assignment metadata.
func (s *RoleService) AddPermissionToRole(ctx context.Context, actor auditctx.Actor, roleID int64, code, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("add_role_permission", err) }()
	reason = strings.TrimSpace(reason)

	permID, err := s.store.GetPermissionIDByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.store.UpsertRolePermission(ctx, models.RolePermission{
		RoleID:       roleID,
		PermissionID: permID,
		Allowed:      true,
		AssignedBy:   actor.UserRef(),
		AssignedAt:   s.opts.clock(),
	}); err != nil {
		return err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		ChangeType:   "role_permission",
		RoleID:       int64Ptr(roleID),
		PermissionID: int64Ptr(permID),
		Action:       "assign",
		Reason:       reason,
	}, trailEntry{
		action:   "ROLE_PERMISSION_GRANT",
		details:  withReason(fmt.Sprintf("Permission %s added to role %d", models.NormalizeCode(code), roleID), reason),
		table:    "role_permissions",
		recordID: int64Ptr(roleID),
	})
	return nil
}

// RemovePermissionFromRole deletes the mapping of code from roleID.
func (s *RoleService) RemovePermissionFromRole(ctx context.Context, actor auditctx.Actor, roleID int64, code, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("remove_role_permission", err) }()
	reason = strings.TrimSpace(reason)

	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	permID, err := s.store.GetPermissionIDByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRolePermission(ctx, roleID, permID); err != nil {
		return err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		ChangeType:   "role_permission",
		RoleID:       int64Ptr(roleID),
		PermissionID: int64Ptr(permID),
		Action:       "remove",
		Reason:       reason,
	}, trailEntry{
		action:   "ROLE_PERMISSION_REVOKE",
		details:  withReason(fmt.Sprintf("Permission %s removed from role %d", models.NormalizeCode(code), roleID), reason),
		table:    "role_permissions",
		recordID: int64Ptr(roleID),
	})
	return nil
}

// GetRole loads a live role.
func (s *RoleService) GetRole(ctx context.Context, roleID int64) (*models.Role, error) {
	return s.store.GetRole(ensureContext(ctx), roleID)
}

// ListRoles lists roles ordered by name.
func (s *RoleService) ListRoles(ctx context.Context, includeDeleted bool) ([]models.Role, error) {
	return s.store.ListRoles(ensureContext(ctx), includeDeleted)
}

// RolePermissions lists the permission mappings of a live role.
func (s *RoleService) RolePermissions(ctx context.Context, roleID int64) ([]grants.RoleGrant, error) {
	ctx = ensureContext(ctx)
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.RolePermissionGrants(ctx, []int64{roleID}, "")
}

// PermissionsNotInRole lists registered permissions roleID does not map.
func (s *RoleService) PermissionsNotInRole(ctx context.Context, roleID int64) ([]models.Permission, error) {
	ctx = ensureContext(ctx)
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.PermissionsNotInRole(ctx, roleID)
}

// ListPermissions lists the permission catalog, optionally for one module.
func (s *RoleService) ListPermissions(ctx context.Context, module string) ([]models.Permission, error) {
	return s.store.ListPermissions(ensureContext(ctx), strings.TrimSpace(module))
}
