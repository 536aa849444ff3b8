package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yasgmp/gmpauthz/internal/auditctx"
	iauth "github.com/yasgmp/gmpauthz/internal/auth"
	"github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxActorKey  = "actor"

	maxDeviceInfoLength = 255
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*iauth.Claims, error)
}

// Auth enforces bearer token authentication and attaches the audit actor to
// the request. Requests without a session claim fall back to the request id.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := verifier.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		sessionID := claims.SessionID
		if sessionID == "" {
			sessionID = c.GetString(CtxRequestIDKey)
		}
		device := c.Request.UserAgent()
		if len(device) > maxDeviceInfoLength {
			device = device[:maxDeviceInfoLength]
		}
		actor := auditctx.Actor{
			UserID:     claims.UserID,
			IPAddress:  c.ClientIP(),
			DeviceInfo: device,
			SessionID:  sessionID,
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxActorKey, actor)
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

// ActorFrom returns the actor attached by Auth.
func ActorFrom(c *gin.Context) (auditctx.Actor, bool) {
	v, ok := c.Get(CtxActorKey)
	if !ok {
		return auditctx.Actor{}, false
	}
	actor, ok := v.(auditctx.Actor)
	return actor, ok
}
