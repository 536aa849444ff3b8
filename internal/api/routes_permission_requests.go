package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/handlers"
	"github.com/yasgmp/gmpauthz/internal/middleware"
	"github.com/yasgmp/gmpauthz/internal/permissions"
	"github.com/yasgmp/gmpauthz/internal/services"
)

func registerPermissionRequestRoutes(api *gin.RouterGroup, checker services.PermissionChecker, svc *services.ApprovalService) error {
	handler, err := handlers.NewPermissionRequestHandler(svc)
	if err != nil {
		return err
	}

	reqs := api.Group("/permission-requests")
	{
		reqs.POST("", handler.Create)
		reqs.GET("", middleware.RequirePermission(checker, permissions.RBACView), handler.List)
		reqs.GET("/:id", middleware.RequirePermission(checker, permissions.RBACView), handler.Get)
		reqs.POST("/:id/approve", middleware.RequirePermission(checker, permissions.RBACApprove), handler.Approve)
		reqs.POST("/:id/deny", middleware.RequirePermission(checker, permissions.RBACApprove), handler.Deny)
	}
	return nil
}
