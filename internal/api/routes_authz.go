package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/handlers"
	"github.com/yasgmp/gmpauthz/internal/middleware"
	"github.com/yasgmp/gmpauthz/internal/permissions"
	"github.com/yasgmp/gmpauthz/internal/services"
)

func registerAuthzRoutes(api *gin.RouterGroup, authz *services.AuthorizationService) error {
	handler, err := handlers.NewAuthzHandler(authz)
	if err != nil {
		return err
	}

	group := api.Group("/authz")
	{
		group.GET("/me/permissions", handler.MyPermissions)
		group.POST("/check", middleware.RequirePermission(authz, permissions.RBACView), handler.Check)

		users := group.Group("/users/:id")
		users.GET("/permissions", middleware.RequirePermission(authz, permissions.RBACView), handler.UserPermissions)
		users.GET("/roles", middleware.RequirePermission(authz, permissions.RBACView), handler.UserRoles)
		users.GET("/delegations", middleware.RequirePermission(authz, permissions.RBACView), handler.UserDelegations)
		users.POST("/roles", middleware.RequirePermission(authz, permissions.RBACManage), handler.GrantRole)
		users.DELETE("/roles/:roleID", middleware.RequirePermission(authz, permissions.RBACManage), handler.RevokeRole)
		users.POST("/permissions", middleware.RequirePermission(authz, permissions.RBACManage), handler.GrantPermission)
		users.DELETE("/permissions/:code", middleware.RequirePermission(authz, permissions.RBACManage), handler.RevokePermission)

		group.POST("/delegations", middleware.RequirePermission(authz, permissions.RBACDelegate), handler.Delegate)
		group.DELETE("/delegations/:id", middleware.RequirePermission(authz, permissions.RBACDelegate), handler.RevokeDelegation)
	}
	return nil
}
