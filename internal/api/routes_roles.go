package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/handlers"
	"github.com/yasgmp/gmpauthz/internal/middleware"
	"github.com/yasgmp/gmpauthz/internal/permissions"
	"github.com/yasgmp/gmpauthz/internal/services"
)

func registerRoleRoutes(api *gin.RouterGroup, checker services.PermissionChecker, svc *services.RoleService) error {
	handler, err := handlers.NewRoleHandler(svc)
	if err != nil {
		return err
	}

	view := middleware.RequirePermission(checker, permissions.RBACView)
	manage := middleware.RequirePermission(checker, permissions.RBACManage)

	roles := api.Group("/roles")
	{
		roles.GET("", view, handler.List)
		roles.POST("", manage, handler.Create)
		roles.GET("/:id", view, handler.Get)
		roles.PATCH("/:id", manage, handler.Update)
		roles.DELETE("/:id", manage, handler.Delete)
		roles.GET("/:id/permissions", view, handler.Permissions)
		roles.POST("/:id/permissions", manage, handler.AddPermission)
		roles.DELETE("/:id/permissions/:code", manage, handler.RemovePermission)
	}

	api.GET("/permissions", view, handler.Catalog)
	return nil
}
