package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/database/testutil"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/models"
	"github.com/yasgmp/gmpauthz/internal/permissions"
)

var admin = auditctx.Actor{UserID: 1, IPAddress: "10.0.0.1", DeviceInfo: "qa-admin-pc", SessionID: "sess-admin"}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db        *gorm.DB
	store     *grants.Store
	sink      *audit.Sink
	clock     *testClock
	authz     *AuthorizationService
	roles     *RoleService
	approvals *ApprovalService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())
	_, err := permissions.Sync(context.Background(), db)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
	store, err := grants.NewStore(db)
	require.NoError(t, err)
	sink, err := audit.NewSink(db, audit.WithClock(clock.Now))
	require.NoError(t, err)
	resolver, err := permissions.NewResolver(store, permissions.WithClock(clock.Now))
	require.NoError(t, err)

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	authz, err := NewAuthorizationService(store, resolver, sink, opts...)
	require.NoError(t, err)
	roles, err := NewRoleService(store, sink, opts...)
	require.NoError(t, err)
	approvals, err := NewApprovalService(store, sink, opts...)
	require.NoError(t, err)

	return &testEnv{db: db, store: store, sink: sink, clock: clock, authz: authz, roles: roles, approvals: approvals}
}

func (e *testEnv) events(t *testing.T) []models.SystemEvent {
	t.Helper()
	var events []models.SystemEvent
	require.NoError(t, e.db.Order("id ASC").Find(&events).Error)
	return events
}

func (e *testEnv) eventTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, ev := range e.events(t) {
		types = append(types, ev.EventType)
	}
	return types
}

func (e *testEnv) mustRole(t *testing.T, name string, codes ...string) *models.Role {
	t.Helper()
	ctx := context.Background()
	role, err := e.roles.CreateRole(ctx, admin, RoleInput{Name: name})
	require.NoError(t, err)
	for _, code := range codes {
		require.NoError(t, e.roles.AddPermissionToRole(ctx, admin, role.ID, code, ""))
	}
	return role
}

func (e *testEnv) requireAllowed(t *testing.T, userID int64, code string, want bool) {
	t.Helper()
	ok, err := e.authz.HasPermission(context.Background(), userID, code)
	require.NoError(t, err)
	require.Equal(t, want, ok, "HasPermission(%d, %q)", userID, code)
}

type recordingAudit struct {
	changes []audit.PermissionChange
	trail   []string
}

func (r *recordingAudit) LogPermissionChange(_ context.Context, _ auditctx.Actor, change audit.PermissionChange) {
	r.changes = append(r.changes, change)
}

func (r *recordingAudit) LogSystemEvent(_ context.Context, _ auditctx.Actor, action, _, _ string, _ *int64) {
	r.trail = append(r.trail, action)
}
