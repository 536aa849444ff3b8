package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/middleware"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireActor returns the authenticated actor, writing a 401 when absent.
func requireActor(c *gin.Context) (auditctx.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok || actor.IsSystem() {
		response.Error(c, errors.ErrUnauthorized)
		return auditctx.Actor{}, false
	}
	return actor, true
}
