package grants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/database/testutil"
	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithMigrations())
	store, err := NewStore(db)
	require.NoError(t, err)
	return store, db
}

func seedPermission(t *testing.T, db *gorm.DB, code string) models.Permission {
	t.Helper()
	perm := models.Permission{Code: code, Module: "test"}
	require.NoError(t, db.Create(&perm).Error)
	return perm
}

func seedRole(t *testing.T, store *Store, name string) models.Role {
	t.Helper()
	role := models.Role{Name: name}
	require.NoError(t, store.CreateRole(context.Background(), &role))
	return role
}

func ptr[T any](v T) *T { return &v }

func TestNewStoreRequiresDB(t *testing.T) {
	_, err := NewStore(nil)
	require.Error(t, err)
}

func TestGetPermissionIDByCodeIsCaseInsensitive(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "capa.approve")

	id, err := store.GetPermissionIDByCode(ctx, "  CAPA.Approve ")
	require.NoError(t, err)
	require.Equal(t, perm.ID, id)
}

func TestGetPermissionIDByCodeUnknownIsNotFound(t *testing.T) {
	store, db := newTestStore(t)

	_, err := store.GetPermissionIDByCode(context.Background(), "capa.nuke")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&count).Error)
	require.Zero(t, count, "unknown codes must not be created")
}

func TestUpsertRolePermissionIsIdempotent(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "capa.approve")
	role := seedRole(t, store, "qa-reviewer")

	require.NoError(t, store.UpsertRolePermission(ctx, models.RolePermission{
		RoleID: role.ID, PermissionID: perm.ID, Allowed: true, AssignedBy: ptr(int64(1)), AssignedAt: t0,
	}))
	require.NoError(t, store.UpsertRolePermission(ctx, models.RolePermission{
		RoleID: role.ID, PermissionID: perm.ID, Allowed: true, AssignedBy: ptr(int64(2)), AssignedAt: t0.Add(time.Hour),
	}))

	var rows []models.RolePermission
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.EqualValues(t, 2, *rows[0].AssignedBy)
	require.True(t, rows[0].AssignedAt.Equal(t0.Add(time.Hour)))
}

func TestUpsertRolePermissionRejectsMissingRole(t *testing.T) {
	store, db := newTestStore(t)
	perm := seedPermission(t, db, "capa.approve")

	err := store.UpsertRolePermission(context.Background(), models.RolePermission{RoleID: 99, PermissionID: perm.ID, Allowed: true, AssignedAt: t0})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReadsReturnExpiredRows(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "deviation.close")
	role := seedRole(t, store, "qa")
	past := t0.Add(-time.Hour)

	require.NoError(t, store.UpsertUserPermission(ctx, models.UserPermission{
		UserID: 3, PermissionID: perm.ID, Allowed: true, GrantedAt: t0, ExpiresAt: &past,
	}))
	require.NoError(t, store.UpsertUserRole(ctx, models.UserRole{UserID: 3, RoleID: role.ID, GrantedAt: t0, ExpiresAt: &past}))

	direct, err := store.UserPermissionGrants(ctx, 3, "")
	require.NoError(t, err)
	require.Len(t, direct, 1)
	require.Equal(t, "deviation.close", direct[0].Code)
	require.NotNil(t, direct[0].ExpiresAt)

	roles, err := store.UserRoles(ctx, 3)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	ids, err := store.GetUserRoleIDs(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []int64{role.ID}, ids)
}

func TestUpsertUserPermissionOverwrites(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "supplier.approve")

	require.NoError(t, store.UpsertUserPermission(ctx, models.UserPermission{UserID: 4, PermissionID: perm.ID, Allowed: true, GrantedAt: t0, Reason: "first"}))
	require.NoError(t, store.UpsertUserPermission(ctx, models.UserPermission{UserID: 4, PermissionID: perm.ID, Allowed: false, GrantedAt: t0, Reason: "second"}))

	rows, err := store.UserPermissionGrants(ctx, 4, "SUPPLIER.APPROVE")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].Allowed)
	require.Equal(t, "second", rows[0].Reason)

	require.NoError(t, store.DeleteUserPermission(ctx, 4, perm.ID))
	rows, err = store.UserPermissionGrants(ctx, 4, "")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRolePermissionGrantsBatchesRoles(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	capa := seedPermission(t, db, "capa.approve")
	cal := seedPermission(t, db, "calibration.sign")
	r1 := seedRole(t, store, "qa")
	r2 := seedRole(t, store, "metrology")

	require.NoError(t, store.UpsertRolePermission(ctx, models.RolePermission{RoleID: r1.ID, PermissionID: capa.ID, Allowed: true, AssignedAt: t0}))
	require.NoError(t, store.UpsertRolePermission(ctx, models.RolePermission{RoleID: r2.ID, PermissionID: cal.ID, Allowed: true, AssignedAt: t0}))

	rows, err := store.RolePermissionGrants(ctx, []int64{r1.ID, r2.ID}, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = store.RolePermissionGrants(ctx, []int64{r1.ID, r2.ID}, "calibration.sign")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, r2.ID, rows[0].RoleID)

	rows, err = store.RolePermissionGrants(ctx, nil, "")
	require.NoError(t, err)
	require.Empty(t, rows)

	codes, err := store.GetRolePermissionCodes(ctx, r1.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"capa.approve"}, codes)

	missing, err := store.PermissionsNotInRole(ctx, r1.ID)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "calibration.sign", missing[0].Code)
}

func TestUpdateRoleIncrementsVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	role := seedRole(t, store, "qa")
	require.Equal(t, 1, role.Version)

	updated, err := store.UpdateRole(ctx, role.ID, RoleUpdate{Name: "qa-lead", ComplianceTags: []string{"gmp", "annex11"}, ModifiedBy: ptr(int64(8))})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "qa-lead", updated.Name)
	require.Equal(t, []string{"gmp", "annex11"}, []string(updated.ComplianceTags))

	updated, err = store.UpdateRole(ctx, role.ID, RoleUpdate{Name: "qa-lead"})
	require.NoError(t, err)
	require.Equal(t, 3, updated.Version)
}

func TestRolesNotAssignedTo(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	qa := seedRole(t, store, "qa")
	ops := seedRole(t, store, "operations")
	lapsed := seedRole(t, store, "auditor")
	retired := seedRole(t, store, "retired")
	past := t0.Add(-time.Hour)

	require.NoError(t, store.UpsertUserRole(ctx, models.UserRole{UserID: 7, RoleID: qa.ID, GrantedAt: t0}))
	require.NoError(t, store.UpsertUserRole(ctx, models.UserRole{UserID: 7, RoleID: lapsed.ID, GrantedAt: past, ExpiresAt: &past}))
	require.NoError(t, store.SoftDeleteRole(ctx, retired.ID, nil))

	roles, err := store.RolesNotAssignedTo(ctx, 7)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, ops.ID, roles[0].ID)

	roles, err = store.RolesNotAssignedTo(ctx, 8)
	require.NoError(t, err)
	require.Len(t, roles, 3)
}

func TestSoftDeleteRoleCascades(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "capa.approve")
	role := seedRole(t, store, "qa")

	require.NoError(t, store.UpsertRolePermission(ctx, models.RolePermission{RoleID: role.ID, PermissionID: perm.ID, Allowed: true, AssignedAt: t0}))
	require.NoError(t, store.UpsertUserRole(ctx, models.UserRole{UserID: 42, RoleID: role.ID, GrantedAt: t0}))

	require.NoError(t, store.SoftDeleteRole(ctx, role.ID, ptr(int64(1))))

	var stored models.Role
	require.NoError(t, db.First(&stored, role.ID).Error)
	require.True(t, stored.IsDeleted)
	require.Equal(t, 2, stored.Version)

	var joins int64
	require.NoError(t, db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&joins).Error)
	require.Zero(t, joins)
	require.NoError(t, db.Model(&models.UserRole{}).Where("role_id = ?", role.ID).Count(&joins).Error)
	require.Zero(t, joins)

	require.ErrorIs(t, store.SoftDeleteRole(ctx, role.ID, nil), apperrors.ErrNotFound)
	_, err := store.UpdateRole(ctx, role.ID, RoleUpdate{Name: "again"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	roles, err := store.ListRoles(ctx, false)
	require.NoError(t, err)
	require.Empty(t, roles)
	roles, err = store.ListRoles(ctx, true)
	require.NoError(t, err)
	require.Len(t, roles, 1)
}

func TestUpsertDelegationClearsRevocation(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "calibration.sign")

	first := &models.DelegatedPermission{FromUserID: 7, ToUserID: 9, PermissionID: perm.ID, GrantedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, store.UpsertDelegation(ctx, first))
	require.NotZero(t, first.ID)

	require.NoError(t, store.RevokeDelegation(ctx, first.ID, t0.Add(time.Minute)))
	require.NoError(t, store.RevokeDelegation(ctx, first.ID, t0.Add(2*time.Minute)))
	revoked, err := store.GetDelegation(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	require.True(t, revoked.RevokedAt.Equal(t0.Add(time.Minute)))

	again := &models.DelegatedPermission{FromUserID: 7, ToUserID: 9, PermissionID: perm.ID, GrantedAt: t0, ExpiresAt: t0.Add(2 * time.Hour), Reason: "cover"}
	require.NoError(t, store.UpsertDelegation(ctx, again))
	require.Equal(t, first.ID, again.ID)
	require.Nil(t, again.RevokedAt)
	require.Equal(t, "cover", again.Reason)

	rows, err := store.DelegationsTo(ctx, 9, "calibration.sign")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(7), rows[0].FromUserID)

	require.ErrorIs(t, store.RevokeDelegation(ctx, 404, t0), apperrors.ErrNotFound)
}

func TestDecidePermissionRequestOnlyFromPending(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "capa.approve")

	req := &models.PermissionRequest{UserID: 5, PermissionID: perm.ID, Reason: "backup approver", RequestedAt: t0}
	require.NoError(t, store.CreatePermissionRequest(ctx, req))
	require.NotZero(t, req.ID)

	require.NoError(t, store.DecidePermissionRequest(ctx, req.ID, models.RequestStatusApproved, ptr(int64(1)), "ok", t0))

	err := store.DecidePermissionRequest(ctx, req.ID, models.RequestStatusDenied, ptr(int64(1)), "changed mind", t0)
	require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	stored, err := store.GetPermissionRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, stored.Status)
	require.Equal(t, "ok", stored.Comment)
	require.NotNil(t, stored.Permission)
	require.Equal(t, "capa.approve", stored.Permission.Code)

	err = store.DecidePermissionRequest(ctx, 777, models.RequestStatusDenied, nil, "", t0)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	pending, err := store.ListPermissionRequests(ctx, models.RequestStatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestPurgeExpired(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	perm := seedPermission(t, db, "workorder.close")
	role := seedRole(t, store, "maintenance")
	past := t0.Add(-time.Minute)
	future := t0.Add(time.Hour)

	require.NoError(t, store.UpsertUserRole(ctx, models.UserRole{UserID: 1, RoleID: role.ID, GrantedAt: t0, ExpiresAt: &past}))
	require.NoError(t, store.UpsertUserRole(ctx, models.UserRole{UserID: 2, RoleID: role.ID, GrantedAt: t0}))
	require.NoError(t, store.UpsertUserPermission(ctx, models.UserPermission{UserID: 1, PermissionID: perm.ID, Allowed: true, GrantedAt: t0, ExpiresAt: &past}))
	require.NoError(t, store.UpsertUserPermission(ctx, models.UserPermission{UserID: 2, PermissionID: perm.ID, Allowed: true, GrantedAt: t0, ExpiresAt: &future}))
	live := &models.DelegatedPermission{FromUserID: 1, ToUserID: 2, PermissionID: perm.ID, GrantedAt: t0, ExpiresAt: future}
	require.NoError(t, store.UpsertDelegation(ctx, live))
	revoked := &models.DelegatedPermission{FromUserID: 3, ToUserID: 2, PermissionID: perm.ID, GrantedAt: t0, ExpiresAt: future}
	require.NoError(t, store.UpsertDelegation(ctx, revoked))
	require.NoError(t, store.RevokeDelegation(ctx, revoked.ID, t0))
	lapsed := &models.DelegatedPermission{FromUserID: 4, ToUserID: 2, PermissionID: perm.ID, GrantedAt: past, ExpiresAt: past}
	require.NoError(t, store.UpsertDelegation(ctx, lapsed))

	result, err := store.PurgeExpired(ctx, t0)
	require.NoError(t, err)
	require.Equal(t, PurgeResult{UserRoles: 1, UserPermissions: 1, Delegations: 1}, result)
	require.EqualValues(t, 3, result.Total())

	_, err = store.GetDelegation(ctx, live.ID)
	require.NoError(t, err)

	kept, err := store.GetDelegation(ctx, revoked.ID)
	require.NoError(t, err)
	require.NotNil(t, kept.RevokedAt)

	_, err = store.GetDelegation(ctx, lapsed.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStoreErrorsAreStoreUnavailable(t *testing.T) {
	store, db := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.UserRoles(ctx, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrStoreUnavailable), "got %v", err)

	require.NoError(t, db.Migrator().DropTable(&models.UserPermission{}))
	_, err = store.UserPermissionGrants(context.Background(), 1, "")
	require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
