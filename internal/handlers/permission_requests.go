package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/services"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

// PermissionRequestHandler exposes the request and decision workflow.
type PermissionRequestHandler struct {
	svc *services.ApprovalService
}

func NewPermissionRequestHandler(svc *services.ApprovalService) (*PermissionRequestHandler, error) {
	if svc == nil {
		return nil, errors.New("REQUEST_HANDLER", "approval service is required", http.StatusInternalServerError)
	}
	return &PermissionRequestHandler{svc: svc}, nil
}

type permissionRequestBody struct {
	Code   string `json:"code" validate:"required,permcode"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

type decisionBody struct {
	Comment string `json:"comment" validate:"max=1000"`
}

// POST /api/permission-requests
func (h *PermissionRequestHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body permissionRequestBody
	if !bindAndValidate(c, &body) {
		return
	}
	id, err := h.svc.RequestPermission(requestContext(c), actor, body.Code, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := h.svc.GetRequest(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, req)
}

// GET /api/permission-requests
func (h *PermissionRequestHandler) List(c *gin.Context) {
	reqs, err := h.svc.ListRequests(requestContext(c), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, reqs)
}

// GET /api/permission-requests/:id
func (h *PermissionRequestHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	req, err := h.svc.GetRequest(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, req)
}

// POST /api/permission-requests/:id/approve
func (h *PermissionRequestHandler) Approve(c *gin.Context) {
	h.decide(c, h.svc.Approve)
}

// POST /api/permission-requests/:id/deny
func (h *PermissionRequestHandler) Deny(c *gin.Context) {
	h.decide(c, h.svc.Deny)
}

type decideFunc func(ctx context.Context, actor auditctx.Actor, id int64, comment string) error

func (h *PermissionRequestHandler) decide(c *gin.Context, fn decideFunc) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body decisionBody
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}
	if err := fn(requestContext(c), actor, id, body.Comment); err != nil {
		response.Error(c, err)
		return
	}
	req, err := h.svc.GetRequest(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, req)
}
