package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yasgmp/gmpauthz/internal/app"
	iauth "github.com/yasgmp/gmpauthz/internal/auth"
	"github.com/yasgmp/gmpauthz/internal/database"
	"github.com/yasgmp/gmpauthz/internal/models"
	"github.com/yasgmp/gmpauthz/internal/permissions"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	return &app.Config{
		Server: app.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "gmpauthz.sqlite"),
		},
		Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "bootstrap-secret"}},
		Audit: app.AuditConfig{
			Shapes:      []string{"full", "hash_only", "minimal"},
			MirrorTrail: true,
		},
		Maintenance: app.MaintenanceConfig{
			Enabled:  true,
			Schedule: "@hourly",
			Timeout:  time.Minute,
			MaxAge:   time.Hour,
		},
		Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Enabled: true}},
	}
}

func TestBootstrapRuntimeServesRoutes(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Cleaner)

	version, err := database.SchemaVersion(context.Background(), stack.DB)
	require.NoError(t, err)
	require.Equal(t, database.LatestVersion(), version)

	var catalog int64
	require.NoError(t, stack.DB.Model(&models.Permission{}).Count(&catalog).Error)
	require.NotZero(t, catalog)

	live := httptest.NewRecorder()
	stack.Router.ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, live.Code)

	ready := httptest.NewRecorder()
	stack.Router.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, ready.Code)

	metrics := httptest.NewRecorder()
	stack.Router.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metrics.Code)

	anon := httptest.NewRecorder()
	stack.Router.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/api/authz/me/permissions", nil))
	require.Equal(t, http.StatusUnauthorized, anon.Code)
}

func TestBootstrapRuntimeGrantsAdministrators(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.BootstrapAdminUserIDs = []int64{3}
	require.NoError(t, cfg.Validate())

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &iauth.Claims{
		UserID: 3,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(cfg.Auth.JWT.Secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), permissions.AdministratorRole)

	stack.Shutdown(context.Background(), zap.NewNop())

	// A restart against the same database leaves the grants untouched.
	var before int64
	reopened, err := database.Open(cfg.Database.DatabaseSettings())
	require.NoError(t, err)
	require.NoError(t, reopened.Model(&models.SystemEvent{}).Count(&before).Error)
	require.NoError(t, database.Close(reopened))

	stack, err = bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	var after, admins int64
	require.NoError(t, stack.DB.Model(&models.SystemEvent{}).Count(&after).Error)
	require.Equal(t, before, after)
	require.NoError(t, stack.DB.Model(&models.Role{}).Where("name = ?", permissions.AdministratorRole).Count(&admins).Error)
	require.EqualValues(t, 1, admins)
}

func TestBootstrapRuntimeWithoutMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false
	cfg.Monitoring.Prometheus.Enabled = false

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Cleaner)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBootstrapRuntimeRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "open database")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}
