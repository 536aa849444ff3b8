package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
	dbtestutil "github.com/yasgmp/gmpauthz/internal/database/testutil"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/models"
	"github.com/yasgmp/gmpauthz/internal/monitoring"
	"github.com/yasgmp/gmpauthz/pkg/metrics"
)

var now = time.Date(2026, 4, 20, 3, 0, 0, 0, time.UTC)

type recorded struct {
	actor  auditctx.Actor
	change audit.PermissionChange
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) LogPermissionChange(_ context.Context, actor auditctx.Actor, change audit.PermissionChange) {
	f.calls = append(f.calls, recorded{actor: actor, change: change})
}

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context, time.Time) (grants.PurgeResult, error) {
	return grants.PurgeResult{}, errors.New("database is locked")
}

func seedGrants(t *testing.T, store *grants.Store) {
	t.Helper()
	db := store.DB()
	perm := models.Permission{Code: "capa.view", Name: "View CAPA", Module: "capa"}
	require.NoError(t, db.Create(&perm).Error)
	role := models.Role{Name: "qa", Version: 1}
	require.NoError(t, db.Create(&role).Error)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, db.Create(&[]models.UserRole{
		{UserID: 1, RoleID: role.ID, GrantedAt: past, ExpiresAt: &past},
		{UserID: 2, RoleID: role.ID, GrantedAt: past, ExpiresAt: &future},
		{UserID: 3, RoleID: role.ID, GrantedAt: past},
	}).Error)
	require.NoError(t, db.Create(&[]models.UserPermission{
		{UserID: 1, PermissionID: perm.ID, Allowed: true, GrantedAt: past, ExpiresAt: &now},
		{UserID: 2, PermissionID: perm.ID, Allowed: true, GrantedAt: past},
	}).Error)
	require.NoError(t, db.Create(&[]models.DelegatedPermission{
		{FromUserID: 1, ToUserID: 2, PermissionID: perm.ID, GrantedAt: past, ExpiresAt: past},
		{FromUserID: 1, ToUserID: 3, PermissionID: perm.ID, GrantedAt: past, ExpiresAt: future, RevokedAt: &past},
		{FromUserID: 1, ToUserID: 4, PermissionID: perm.ID, GrantedAt: past, ExpiresAt: future},
	}).Error)
}

func TestCleanerRunOncePurgesExpiredGrants(t *testing.T) {
	db := dbtestutil.MustOpenTestDB(t, dbtestutil.WithMigrations())
	store, err := grants.NewStore(db)
	require.NoError(t, err)
	seedGrants(t, store)

	recorder := &fakeRecorder{}
	tracker := monitoring.NewJobTracker()
	cleaner, err := NewCleaner(store,
		WithNow(func() time.Time { return now }),
		WithRecorder(recorder),
		WithTracker(tracker),
	)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.ExpiredGrantsPurged.WithLabelValues("delegations"))
	require.NoError(t, cleaner.RunOnce(context.Background()))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.ExpiredGrantsPurged.WithLabelValues("delegations")))

	count := func(model any) int64 {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		return n
	}
	require.EqualValues(t, 2, count(&models.UserRole{}))
	require.EqualValues(t, 1, count(&models.UserPermission{}))
	require.EqualValues(t, 2, count(&models.DelegatedPermission{}))

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	require.True(t, call.actor.IsSystem())
	require.Equal(t, "purge", call.change.Action)
	require.Equal(t, "userRoles=1; userPermissions=1; delegations=1", call.change.Details)

	// A second pass finds nothing and stays silent.
	require.NoError(t, cleaner.RunOnce(context.Background()))
	require.Len(t, recorder.calls, 1)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 1)
	require.EqualValues(t, 2, jobs[0].TotalRuns)
	require.True(t, jobs[0].LastRunAt.Equal(now))
}

func TestCleanerRunOnceRecordsFailure(t *testing.T) {
	tracker := monitoring.NewJobTracker()
	cleaner, err := NewCleaner(failingPurger{}, WithTracker(tracker))
	require.NoError(t, err)

	err = cleaner.RunOnce(context.Background())
	require.ErrorContains(t, err, "database is locked")

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 1)
	require.EqualValues(t, 1, jobs[0].ConsecutiveFailures)
}

func TestCleanerStartValidatesSchedule(t *testing.T) {
	_, err := NewCleaner(nil)
	require.Error(t, err)

	cleaner, err := NewCleaner(failingPurger{}, WithSchedule("every now and then"))
	require.NoError(t, err)
	require.Error(t, cleaner.Start())

	cleaner, err = NewCleaner(failingPurger{}, WithSchedule("@every 1h"))
	require.NoError(t, err)
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}
