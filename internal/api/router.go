package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yasgmp/gmpauthz/internal/handlers"
	"github.com/yasgmp/gmpauthz/internal/middleware"
	"github.com/yasgmp/gmpauthz/internal/monitoring"
	"github.com/yasgmp/gmpauthz/internal/services"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Verifier  middleware.TokenVerifier
	Authz     *services.AuthorizationService
	Roles     *services.RoleService
	Approvals *services.ApprovalService
	Events    handlers.EventLister
	Health    *monitoring.HealthManager

	// MetricsEnabled exposes /metrics from the default Prometheus registry.
	MetricsEnabled bool
}

func (d Deps) validate() error {
	switch {
	case d.Verifier == nil:
		return errors.New("api: token verifier must be provided")
	case d.Authz == nil:
		return errors.New("api: authorization service must be provided")
	case d.Roles == nil:
		return errors.New("api: role service must be provided")
	case d.Approvals == nil:
		return errors.New("api: approval service must be provided")
	case d.Events == nil:
		return errors.New("api: event lister must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.NoRoute(middleware.NotFoundHandler)

	registerHealthRoutes(r, deps.Health)
	if deps.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))

	if err := registerAuthzRoutes(api, deps.Authz); err != nil {
		return nil, err
	}
	if err := registerRoleRoutes(api, deps.Authz, deps.Roles); err != nil {
		return nil, err
	}
	if err := registerPermissionRequestRoutes(api, deps.Authz, deps.Approvals); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(api, deps.Authz, deps.Events); err != nil {
		return nil, err
	}

	return r, nil
}
