package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yasgmp/gmpauthz/internal/auditctx"
	iauth "github.com/yasgmp/gmpauthz/internal/auth"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/logger"
	"github.com/yasgmp/gmpauthz/pkg/metrics"
	"github.com/yasgmp/gmpauthz/pkg/response"
)

const testSecret = "middleware-secret"

func testToken(t *testing.T, claims iauth.Claims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func testVerifier(t *testing.T) *iauth.Verifier {
	t.Helper()
	v, err := iauth.NewVerifier(iauth.JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return v
}

type stubChecker struct {
	allowed map[string]bool
	err     error
	calls   int
}

func (s *stubChecker) HasPermission(_ context.Context, userID int64, code string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[code], nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestAuthAttachesActor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/secure", Auth(testVerifier(t)), func(c *gin.Context) {
		actor, ok := auditctx.FromContext(c.Request.Context())
		require.True(t, ok)
		fromGin, ok := ActorFrom(c)
		require.True(t, ok)
		require.Equal(t, actor, fromGin)
		c.JSON(http.StatusOK, actor)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, iauth.Claims{UserID: 42, SessionID: "sess-42"}))
	req.Header.Set("User-Agent", "qa-station/1.0")
	req.RemoteAddr = "10.1.2.3:5555"
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var actor auditctx.Actor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actor))
	require.EqualValues(t, 42, actor.UserID)
	require.Equal(t, "sess-42", actor.SessionID)
	require.Equal(t, "10.1.2.3", actor.IPAddress)
	require.Equal(t, "qa-station/1.0", actor.DeviceInfo)
}

func TestAuthFallsBackToRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/secure", Auth(testVerifier(t)), func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, actor.SessionID)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, iauth.Claims{UserID: 9}))
	req.Header.Set(HeaderRequestID, "req-123")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-123", w.Body.String())
	require.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 500))
	r.ServeHTTP(w, req)
	require.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	token := testToken(t, iauth.Claims{UserID: 5})

	run := func(checker *stubChecker, withAuth bool) *httptest.ResponseRecorder {
		r := gin.New()
		handlers := []gin.HandlerFunc{}
		if withAuth {
			handlers = append(handlers, Auth(testVerifier(t)))
		}
		handlers = append(handlers, RequirePermission(checker, "user.lock"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		r.POST("/lock", handlers...)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/lock", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		return w
	}

	unauth := &stubChecker{}
	require.Equal(t, http.StatusUnauthorized, run(unauth, false).Code)
	require.Zero(t, unauth.calls)

	require.Equal(t, http.StatusNoContent, run(&stubChecker{allowed: map[string]bool{"user.lock": true}}, true).Code)

	w := run(&stubChecker{}, true)
	require.Equal(t, http.StatusForbidden, w.Code)
	env := decode(t, w)
	require.Equal(t, apperrors.ErrAuthorizationDenied.Code, env.Error.Code)
	require.Equal(t, "user 5 does not have permission: user.lock", env.Error.Message)

	w = run(&stubChecker{err: apperrors.StoreFailure("load grants", errors.New("db down"))}, true)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, apperrors.ErrStoreUnavailable.Code, decode(t, w).Error.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w)
	require.False(t, env.Success)
	require.Equal(t, "INTERNAL_SERVER_ERROR", env.Error.Code)
}

func TestNotFoundHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.NoRoute(NotFoundHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, decode(t, w).Error.Message, "route /missing not found")
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/ping", fields["path"])
	require.EqualValues(t, http.StatusOK, fields["status"])
	require.NotEmpty(t, fields["request_id"])
}

func TestMetricsAndSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics(), SecurityHeaders())
	r.GET("/api/roles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/roles/7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	require.GreaterOrEqual(t, testutil.CollectAndCount(metrics.APILatency), 2)
}
