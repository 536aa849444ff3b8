package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/handlers"
	"github.com/yasgmp/gmpauthz/internal/middleware"
	"github.com/yasgmp/gmpauthz/internal/permissions"
	"github.com/yasgmp/gmpauthz/internal/services"
)

func registerAuditRoutes(api *gin.RouterGroup, checker services.PermissionChecker, events handlers.EventLister) error {
	handler, err := handlers.NewAuditHandler(events)
	if err != nil {
		return err
	}

	api.GET("/audit/events", middleware.RequirePermission(checker, permissions.AuditView), handler.List)
	return nil
}
