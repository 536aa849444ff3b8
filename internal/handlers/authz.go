package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/services"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

// AuthzHandler exposes permission checks and grant administration.
type AuthzHandler struct {
	svc *services.AuthorizationService
}

func NewAuthzHandler(svc *services.AuthorizationService) (*AuthzHandler, error) {
	if svc == nil {
		return nil, errors.New("AUTHZ_HANDLER", "authorization service is required", http.StatusInternalServerError)
	}
	return &AuthzHandler{svc: svc}, nil
}

type checkRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Code   string `json:"code" validate:"required,permcode"`
}

type grantRoleRequest struct {
	RoleID    int64      `json:"role_id" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason" validate:"max=500"`
}

type grantPermissionRequest struct {
	Code      string     `json:"code" validate:"required,permcode"`
	Deny      bool       `json:"deny"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason" validate:"max=500"`
}

type delegateRequest struct {
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id" validate:"required,gt=0"`
	Code       string    `json:"code" validate:"required,permcode"`
	ExpiresAt  time.Time `json:"expires_at" validate:"required"`
	Reason     string    `json:"reason" validate:"max=500"`
}

// GET /api/authz/me/permissions
func (h *AuthzHandler) MyPermissions(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	codes, err := h.svc.GetAllUserPermissions(requestContext(c), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user_id": actor.UserID, "permissions": codes})
}

// POST /api/authz/check
func (h *AuthzHandler) Check(c *gin.Context) {
	var body checkRequest
	if !bindAndValidate(c, &body) {
		return
	}
	allowed, err := h.svc.HasPermission(requestContext(c), body.UserID, body.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user_id": body.UserID, "code": body.Code, "allowed": allowed})
}

// GET /api/authz/users/:id/permissions
func (h *AuthzHandler) UserPermissions(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	codes, err := h.svc.GetAllUserPermissions(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user_id": userID, "permissions": codes})
}

// GET /api/authz/users/:id/roles
//
// With ?assigned=false the endpoint lists live roles the user does not hold.
func (h *AuthzHandler) UserRoles(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if assigned, err := strconv.ParseBool(c.DefaultQuery("assigned", "true")); err == nil && !assigned {
		roles, err := h.svc.RolesNotAssignedTo(requestContext(c), userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, roles)
		return
	}
	roles, err := h.svc.RolesForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

// GET /api/authz/users/:id/delegations
func (h *AuthzHandler) UserDelegations(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	delegations, err := h.svc.DelegationsTo(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, delegations)
}

// POST /api/authz/users/:id/roles
func (h *AuthzHandler) GrantRole(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body grantRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.svc.GrantRole(requestContext(c), actor, userID, body.RoleID, body.ExpiresAt, body.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user_id": userID, "role_id": body.RoleID, "expires_at": body.ExpiresAt})
}

// DELETE /api/authz/users/:id/roles/:roleID
func (h *AuthzHandler) RevokeRole(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	roleID, ok := parseIDParam(c, "roleID")
	if !ok {
		return
	}
	reason, ok := bindOptionalReason(c)
	if !ok {
		return
	}
	if err := h.svc.RevokeRole(requestContext(c), actor, userID, roleID, reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/authz/users/:id/permissions
func (h *AuthzHandler) GrantPermission(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body grantPermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}
	err := h.svc.GrantPermission(requestContext(c), actor, userID, services.PermissionGrant{
		Code:      body.Code,
		Deny:      body.Deny,
		ExpiresAt: body.ExpiresAt,
		Reason:    body.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user_id": userID, "code": body.Code, "allowed": !body.Deny})
}

// DELETE /api/authz/users/:id/permissions/:code
func (h *AuthzHandler) RevokePermission(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	reason, ok := bindOptionalReason(c)
	if !ok {
		return
	}
	if err := h.svc.RevokePermission(requestContext(c), actor, userID, c.Param("code"), reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/authz/delegations
//
// The delegator defaults to the caller.
func (h *AuthzHandler) Delegate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body delegateRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.FromUserID == 0 {
		body.FromUserID = actor.UserID
	}
	delegation, err := h.svc.DelegatePermission(requestContext(c), actor, services.DelegationInput{
		FromUserID: body.FromUserID,
		ToUserID:   body.ToUserID,
		Code:       body.Code,
		ExpiresAt:  body.ExpiresAt,
		Reason:     body.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, delegation)
}

// DELETE /api/authz/delegations/:id
func (h *AuthzHandler) RevokeDelegation(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	reason, ok := bindOptionalReason(c)
	if !ok {
		return
	}
	if err := h.svc.RevokeDelegatedPermission(requestContext(c), actor, id, reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
