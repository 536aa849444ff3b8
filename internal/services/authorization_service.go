package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/models"
	"github.com/yasgmp/gmpauthz/internal/permissions"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

// AuthorizationService is the public authorization contract: permission
// checks plus grant, revoke and delegation mutations. Every mutation writes
// the store first and audits second; an audit failure never undoes a grant.
type AuthorizationService struct {
	store    *grants.Store
	resolver *permissions.Resolver
	opts     serviceOptions
}

// NewAuthorizationService wires the facade over its store, resolver and audit sink.
func NewAuthorizationService(store *grants.Store, resolver *permissions.Resolver, recorder AuditRecorder, opts ...Option) (*AuthorizationService, error) {
	if store == nil {
		return nil, errors.New("authorization service: store is required")
	}
	if resolver == nil {
		return nil, errors.New("authorization service: resolver is required")
	}
	return &AuthorizationService{
		store:    store,
		resolver: resolver,
		opts:     buildOptions(recorder, opts),
	}, nil
}

// PermissionGrant describes a direct grant. Deny stores an explicit deny row,
// which the resolver currently ignores.
type PermissionGrant struct {
	Code      string
	Deny      bool
	ExpiresAt *time.Time
	Reason    string
}

// DelegationInput describes a delegation from one principal to another.
type DelegationInput struct {
	FromUserID int64
	ToUserID   int64
	Code       string
	ExpiresAt  time.Time
	Reason     string
}

// HasPermission reports whether userID currently holds code.
func (s *AuthorizationService) HasPermission(ctx context.Context, userID int64, code string) (bool, error) {
	return s.resolver.HasPermission(ensureContext(ctx), userID, code)
}

// AssertPermission fails with ErrAuthorizationDenied unless userID holds code.
func (s *AuthorizationService) AssertPermission(ctx context.Context, userID int64, code string) error {
	return s.resolver.AssertPermission(ensureContext(ctx), userID, code)
}

// GetAllUserPermissions returns the effective permission codes of userID.
func (s *AuthorizationService) GetAllUserPermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.resolver.EffectivePermissions(ensureContext(ctx), userID)
}

// RolesForUser lists userID's role memberships, including expired ones.
func (s *AuthorizationService) RolesForUser(ctx context.Context, userID int64) ([]grants.Membership, error) {
	return s.store.RolesForUser(ensureContext(ctx), userID)
}

// RolesNotAssignedTo lists live roles userID holds no membership in, for
// grant pickers.
func (s *AuthorizationService) RolesNotAssignedTo(ctx context.Context, userID int64) ([]models.Role, error) {
	return s.store.RolesNotAssignedTo(ensureContext(ctx), userID)
}

// DelegationsTo lists every delegation targeting userID.
func (s *AuthorizationService) DelegationsTo(ctx context.Context, userID int64) ([]grants.Delegation, error) {
	return s.store.DelegationsTo(ensureContext(ctx), userID, "")
}

// GrantRole adds userID to roleID, replacing the expiry of an existing membership.
func (s *AuthorizationService) GrantRole(ctx context.Context, actor auditctx.Actor, userID, roleID int64, expiresAt *time.Time, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("grant_role", err) }()
	reason = strings.TrimSpace(reason)

	if userID <= 0 {
		return apperrors.NewBadRequest("user id is required")
	}

	now := s.opts.clock()
	if err := s.store.UpsertUserRole(ctx, models.UserRole{
		UserID:    userID,
		RoleID:    roleID,
		GrantedBy: actor.UserRef(),
		GrantedAt: now,
		ExpiresAt: utcPtr(expiresAt),
	}); err != nil {
		return err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(userID),
		ChangeType:   "role",
		RoleID:       int64Ptr(roleID),
		Action:       "grant",
		Reason:       reason,
		ExpiresAt:    expiresAt,
	}, trailEntry{
		action:   "GRANT_ROLE",
		details:  withReason(fmt.Sprintf("Role %d granted to user %d", roleID, userID), reason),
		table:    "user_roles",
		recordID: int64Ptr(userID),
	})
	return nil
}

// RevokeRole removes userID from roleID. Revoking an absent membership succeeds.
func (s *AuthorizationService) RevokeRole(ctx context.Context, actor auditctx.Actor, userID, roleID int64, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("revoke_role", err) }()
	reason = strings.TrimSpace(reason)

	if err := s.store.DeleteUserRole(ctx, userID, roleID); err != nil {
		return err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(userID),
		ChangeType:   "role",
		RoleID:       int64Ptr(roleID),
		Action:       "revoke",
		Reason:       reason,
	}, trailEntry{
		action:   "REVOKE_ROLE",
		details:  withReason(fmt.Sprintf("Role %d revoked from user %d", roleID, userID), reason),
		table:    "user_roles",
		recordID: int64Ptr(userID),
	})
	return nil
}

// GrantPermission writes a direct grant of grant.Code to userID.
func (s *AuthorizationService) GrantPermission(ctx context.Context, actor auditctx.Actor, userID int64, grant PermissionGrant) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("grant_permission", err) }()

	if userID <= 0 {
		return apperrors.NewBadRequest("user id is required")
	}
	permID, err := s.store.GetPermissionIDByCode(ctx, grant.Code)
	if err != nil {
		return err
	}

	reason := strings.TrimSpace(grant.Reason)
	if err := s.store.UpsertUserPermission(ctx, models.UserPermission{
		UserID:       userID,
		PermissionID: permID,
		Allowed:      !grant.Deny,
		GrantedBy:    actor.UserRef(),
		GrantedAt:    s.opts.clock(),
		ExpiresAt:    utcPtr(grant.ExpiresAt),
		Reason:       reason,
	}); err != nil {
		return err
	}

	details := "allowed=true"
	if grant.Deny {
		details = "allowed=false"
	}
	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(userID),
		ChangeType:   "direct",
		PermissionID: int64Ptr(permID),
		Action:       "grant",
		Reason:       reason,
		ExpiresAt:    grant.ExpiresAt,
		Details:      details,
	}, trailEntry{
		action:   "GRANT_PERMISSION",
		details:  withReason(fmt.Sprintf("Permission %s granted to user %d", models.NormalizeCode(grant.Code), userID), reason),
		table:    "user_permissions",
		recordID: int64Ptr(userID),
	})
	return nil
}

// RevokePermission deletes userID's direct grant of code.
func (s *AuthorizationService) RevokePermission(ctx context.Context, actor auditctx.Actor, userID int64, code, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("revoke_permission", err) }()
	reason = strings.TrimSpace(reason)

	permID, err := s.store.GetPermissionIDByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUserPermission(ctx, userID, permID); err != nil {
		return err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(userID),
		ChangeType:   "direct",
		PermissionID: int64Ptr(permID),
		Action:       "revoke",
		Reason:       reason,
	}, trailEntry{
		action:   "REVOKE_PERMISSION",
		details:  withReason(fmt.Sprintf("Permission %s revoked from user %d", models.NormalizeCode(code), userID), reason),
		table:    "user_permissions",
		recordID: int64Ptr(userID),
	})
	return nil
}

// DelegatePermission lends in.Code from in.FromUserID to in.ToUserID until
// in.ExpiresAt. Re-delegating the same permission between the same users
// replaces the previous delegation.
func (s *AuthorizationService) DelegatePermission(ctx context.Context, actor auditctx.Actor, in DelegationInput) (_ *models.DelegatedPermission, err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("delegate_permission", err) }()

	now := s.opts.clock()
	switch {
	case in.FromUserID <= 0 || in.ToUserID <= 0:
		return nil, apperrors.NewBadRequest("delegation requires both users")
	case in.FromUserID == in.ToUserID:
		return nil, apperrors.NewBadRequest("cannot delegate a permission to the same user")
	case !in.ExpiresAt.After(now):
		return nil, apperrors.NewBadRequest("delegation expiry must be in the future")
	}

	permID, err := s.store.GetPermissionIDByCode(ctx, in.Code)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(in.Reason)
	row := &models.DelegatedPermission{
		FromUserID:   in.FromUserID,
		ToUserID:     in.ToUserID,
		PermissionID: permID,
		GrantedBy:    actor.UserRef(),
		GrantedAt:    now,
		ExpiresAt:    in.ExpiresAt.UTC(),
		Reason:       reason,
	}
	if err := s.store.UpsertDelegation(ctx, row); err != nil {
		return nil, err
	}

	expires := row.ExpiresAt
	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(in.ToUserID),
		ChangeType:   "delegation",
		PermissionID: int64Ptr(permID),
		Action:       "delegate",
		Reason:       reason,
		ExpiresAt:    &expires,
		Details:      fmt.Sprintf("delegationId=%d; from=%d; to=%d", row.ID, in.FromUserID, in.ToUserID),
	}, trailEntry{
		action:   "DELEGATE_PERMISSION",
		details:  withReason(fmt.Sprintf("Permission %s delegated from user %d to user %d", models.NormalizeCode(in.Code), in.FromUserID, in.ToUserID), reason),
		table:    "delegated_permissions",
		recordID: int64Ptr(row.ID),
	})
	return row, nil
}

// RevokeDelegatedPermission ends a delegation before its expiry.
func (s *AuthorizationService) RevokeDelegatedPermission(ctx context.Context, actor auditctx.Actor, delegationID int64, reason string) (err error) {
	ctx = ensureContext(ctx)
	defer func() { countMutation("revoke_delegation", err) }()
	reason = strings.TrimSpace(reason)

	delegation, err := s.store.GetDelegation(ctx, delegationID)
	if err != nil {
		return err
	}
	if err := s.store.RevokeDelegation(ctx, delegationID, s.opts.clock()); err != nil {
		return err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(delegation.ToUserID),
		ChangeType:   "delegation",
		PermissionID: int64Ptr(delegation.PermissionID),
		Action:       "revoke_delegation",
		Reason:       reason,
		Details:      fmt.Sprintf("delegationId=%d; from=%d; to=%d", delegation.ID, delegation.FromUserID, delegation.ToUserID),
	}, trailEntry{
		action:   "REVOKE_DELEGATED_PERMISSION",
		details:  withReason(fmt.Sprintf("Delegation %d revoked", delegation.ID), reason),
		table:    "delegated_permissions",
		recordID: int64Ptr(delegation.ID),
	})
	return nil
}
