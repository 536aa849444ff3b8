package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/services"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

// RoleHandler exposes role administration and the permission catalog.
type RoleHandler struct {
	svc *services.RoleService
}

func NewRoleHandler(svc *services.RoleService) (*RoleHandler, error) {
	if svc == nil {
		return nil, errors.New("ROLE_HANDLER", "role service is required", http.StatusInternalServerError)
	}
	return &RoleHandler{svc: svc}, nil
}

type roleRequest struct {
	Name           string   `json:"name" validate:"required,max=128"`
	Description    string   `json:"description" validate:"max=500"`
	OrgUnit        string   `json:"org_unit" validate:"max=128"`
	ComplianceTags []string `json:"compliance_tags" validate:"max=32,dive,max=64"`
	Notes          string   `json:"notes"`
}

func (r roleRequest) input() services.RoleInput {
	return services.RoleInput{
		Name:           r.Name,
		Description:    r.Description,
		OrgUnit:        r.OrgUnit,
		ComplianceTags: r.ComplianceTags,
		Notes:          r.Notes,
	}
}

// rolePatchRequest carries only the attributes a PATCH sets; absent fields keep
// their stored values.
type rolePatchRequest struct {
	Name           *string   `json:"name" validate:"omitempty,min=1,max=128"`
	Description    *string   `json:"description" validate:"omitempty,max=500"`
	OrgUnit        *string   `json:"org_unit" validate:"omitempty,max=128"`
	ComplianceTags *[]string `json:"compliance_tags" validate:"omitempty,max=32,dive,max=64"`
	Notes          *string   `json:"notes"`
}

func (r rolePatchRequest) patch() services.RolePatch {
	return services.RolePatch{
		Name:           r.Name,
		Description:    r.Description,
		OrgUnit:        r.OrgUnit,
		ComplianceTags: r.ComplianceTags,
		Notes:          r.Notes,
	}
}

type rolePermissionRequest struct {
	Code   string `json:"code" validate:"required,permcode"`
	Reason string `json:"reason" validate:"max=500"`
}

// GET /api/roles
func (h *RoleHandler) List(c *gin.Context) {
	includeDeleted, _ := strconv.ParseBool(c.DefaultQuery("include_deleted", "false"))
	roles, err := h.svc.ListRoles(requestContext(c), includeDeleted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

// GET /api/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	role, err := h.svc.GetRole(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// POST /api/roles
func (h *RoleHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body roleRequest
	if !bindAndValidate(c, &body) {
		return
	}
	role, err := h.svc.CreateRole(requestContext(c), actor, body.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

// PATCH /api/roles/:id
//
// Only the fields present in the body change.
func (h *RoleHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body rolePatchRequest
	if !bindAndValidate(c, &body) {
		return
	}
	role, err := h.svc.UpdateRole(requestContext(c), actor, id, body.patch())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/roles/:id
//
// A JSON body with a reason is optional.
func (h *RoleHandler) Delete(c *gin.Context) {
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
	if err := h.svc.DeleteRole(requestContext(c), actor, id, reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/roles/:id/permissions
//
// With ?assigned=false the endpoint lists catalog permissions the role lacks.
func (h *RoleHandler) Permissions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if assigned, err := strconv.ParseBool(c.DefaultQuery("assigned", "true")); err == nil && !assigned {
		perms, err := h.svc.PermissionsNotInRole(requestContext(c), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, perms)
		return
	}
	grants, err := h.svc.RolePermissions(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, grants)
}

// POST /api/roles/:id/permissions
func (h *RoleHandler) AddPermission(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body rolePermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if err := h.svc.AddPermissionToRole(requestContext(c), actor, id, body.Code, body.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"role_id": id, "code": body.Code})
}

// DELETE /api/roles/:id/permissions/:code
func (h *RoleHandler) RemovePermission(c *gin.Context) {
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
	if err := h.svc.RemovePermissionFromRole(requestContext(c), actor, id, c.Param("code"), reason); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// GET /api/permissions
func (h *RoleHandler) Catalog(c *gin.Context) {
	perms, err := h.svc.ListPermissions(requestContext(c), c.Query("module"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}
