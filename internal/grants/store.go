package grants

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

// Store is the gorm-backed data layer for permissions, roles and the three
// grant tables. It applies no expiry filtering: reads return every row and
// callers decide what is currently valid.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store using the provided database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("grant store: db is required")
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx)
}

func failure(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.StoreFailure("grant store: "+op, err)
}

// GetPermissionByCode returns the permission registered under code.
func (s *Store) GetPermissionByCode(ctx context.Context, code string) (*models.Permission, error) {
	code = models.NormalizeCode(code)
	if code == "" {
		return nil, apperrors.NewBadRequest("permission code is required")
	}

	var perm models.Permission
	err := s.conn(ctx).Where("LOWER(code) = ?", code).First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("permission %q is not registered", code)
	}
	if err != nil {
		return nil, failure("load permission", err)
	}
	return &perm, nil
}

// GetPermissionIDByCode resolves a code to its id. Unknown codes are NotFound;
// codes are never created implicitly.
func (s *Store) GetPermissionIDByCode(ctx context.Context, code string) (int64, error) {
	perm, err := s.GetPermissionByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	return perm.ID, nil
}

// GetPermission loads a permission by id.
func (s *Store) GetPermission(ctx context.Context, id int64) (*models.Permission, error) {
	var perm models.Permission
	err := s.conn(ctx).First(&perm, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("permission %d not found", id)
	}
	if err != nil {
		return nil, failure("load permission", err)
	}
	return &perm, nil
}

// ListPermissions returns registered permissions ordered by code, optionally
// limited to one module.
func (s *Store) ListPermissions(ctx context.Context, module string) ([]models.Permission, error) {
	query := s.conn(ctx).Order("code ASC")
	if module != "" {
		query = query.Where("module = ?", module)
	}

	var perms []models.Permission
	if err := query.Find(&perms).Error; err != nil {
		return nil, failure("list permissions", err)
	}
	return perms, nil
}

// GetRole loads a role that has not been soft deleted.
func (s *Store) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	var role models.Role
	err := s.conn(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("role %d not found", id)
	}
	if err != nil {
		return nil, failure("load role", err)
	}
	return &role, nil
}

// ListRoles returns roles ordered by name.
func (s *Store) ListRoles(ctx context.Context, includeDeleted bool) ([]models.Role, error) {
	query := s.conn(ctx).Order("name ASC").Order("id ASC")
	if !includeDeleted {
		query = query.Where("is_deleted = ?", false)
	}

	var roles []models.Role
	if err := query.Find(&roles).Error; err != nil {
		return nil, failure("list roles", err)
	}
	return roles, nil
}

// CreateRole inserts role with version 1.
func (s *Store) CreateRole(ctx context.Context, role *models.Role) error {
	role.ID = 0
	role.Version = 1
	role.IsDeleted = false
	if err := s.conn(ctx).Create(role).Error; err != nil {
		return failure("create role", err)
	}
	return nil
}

// RoleUpdate carries the mutable role columns.
type RoleUpdate struct {
	Name           string
	Description    string
	OrgUnit        string
	ComplianceTags []string
	Notes          string
	ModifiedBy     *int64
}

// UpdateRole overwrites the mutable columns and increments the version. A
// missing or soft-deleted role is NotFound.
func (s *Store) UpdateRole(ctx context.Context, id int64, update RoleUpdate) (*models.Role, error) {
	result := s.conn(ctx).
		Model(&models.Role{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{
			"name":                update.Name,
			"description":         update.Description,
			"org_unit":            update.OrgUnit,
			"compliance_tags":     models.Tags(update.ComplianceTags),
			"notes":               update.Notes,
			"last_modified_by_id": update.ModifiedBy,
			"version":             gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, failure("update role", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NotFoundf("role %d not found", id)
	}
	return s.GetRole(ctx, id)
}

// SoftDeleteRole flags the role deleted, bumps its version and purges its
// memberships and permission mappings in a single transaction.
func (s *Store) SoftDeleteRole(ctx context.Context, id int64, deletedBy *int64) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Role{}).
			Where("id = ? AND is_deleted = ?", id, false).
			Updates(map[string]any{
				"is_deleted":          true,
				"last_modified_by_id": deletedBy,
				"version":             gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NotFoundf("role %d not found", id)
		}
		if err := tx.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Where("role_id = ?", id).Delete(&models.UserRole{}).Error
	})
	if err != nil {
		return failure("delete role", err)
	}
	return nil
}

// UserPermissionGrants returns every direct grant of userID, optionally for a single code.
func (s *Store) UserPermissionGrants(ctx context.Context, userID int64, code string) ([]DirectGrant, error) {
	query := s.conn(ctx).
		Table("user_permissions").
		Select("user_permissions.user_id, user_permissions.permission_id, permissions.code, user_permissions.allowed, " +
			"user_permissions.granted_by, user_permissions.granted_at, user_permissions.expires_at, user_permissions.reason").
		Joins("JOIN permissions ON permissions.id = user_permissions.permission_id").
		Where("user_permissions.user_id = ?", userID)
	if code = models.NormalizeCode(code); code != "" {
		query = query.Where("LOWER(permissions.code) = ?", code)
	}

	var rows []DirectGrant
	if err := query.Order("permissions.code ASC").Scan(&rows).Error; err != nil {
		return nil, failure("load direct grants", err)
	}
	return rows, nil
}

// UserRoles returns every membership row of userID.
func (s *Store) UserRoles(ctx context.Context, userID int64) ([]models.UserRole, error) {
	var rows []models.UserRole
	if err := s.conn(ctx).Where("user_id = ?", userID).Order("role_id ASC").Find(&rows).Error; err != nil {
		return nil, failure("load user roles", err)
	}
	return rows, nil
}

// GetUserRoleIDs returns the role ids of every membership row of userID.
func (s *Store) GetUserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).Model(&models.UserRole{}).Where("user_id = ?", userID).Order("role_id ASC").Pluck("role_id", &ids).Error
	if err != nil {
		return nil, failure("load user role ids", err)
	}
	return ids, nil
}

// RolesForUser returns userID's memberships with role names for display.
func (s *Store) RolesForUser(ctx context.Context, userID int64) ([]Membership, error) {
	var rows []Membership
	err := s.conn(ctx).
		Table("user_roles").
		Select("user_roles.user_id, user_roles.role_id, roles.name AS role_name, user_roles.granted_by, user_roles.granted_at, user_roles.expires_at").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, failure("load memberships", err)
	}
	return rows, nil
}

// RolesNotAssignedTo returns live roles userID has no membership row in,
// ordered by name. Expired memberships still count as assigned.
func (s *Store) RolesNotAssignedTo(ctx context.Context, userID int64) ([]models.Role, error) {
	var roles []models.Role
	err := s.conn(ctx).
		Where("is_deleted = ?", false).
		Where("id NOT IN (?)", s.conn(ctx).Model(&models.UserRole{}).Select("role_id").Where("user_id = ?", userID)).
		Order("name ASC").
		Order("id ASC").
		Find(&roles).Error
	if err != nil {
		return nil, failure("list unassigned roles", err)
	}
	return roles, nil
}

// RolePermissionGrants returns the permission mappings of all roleIDs in one
// query, optionally for a single code.
func (s *Store) RolePermissionGrants(ctx context.Context, roleIDs []int64, code string) ([]RoleGrant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query := s.conn(ctx).
		Table("role_permissions").
		Select("role_permissions.role_id, role_permissions.permission_id, permissions.code, role_permissions.allowed, " +
			"role_permissions.assigned_by, role_permissions.assigned_at").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("role_permissions.role_id IN ?", roleIDs)
	if code = models.NormalizeCode(code); code != "" {
		query = query.Where("LOWER(permissions.code) = ?", code)
	}

	var rows []RoleGrant
	if err := query.Order("role_permissions.role_id ASC, permissions.code ASC").Scan(&rows).Error; err != nil {
		return nil, failure("load role grants", err)
	}
	return rows, nil
}

// GetRolePermissionCodes returns the codes a role allows.
func (s *Store) GetRolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.RolePermissionGrants(ctx, []int64{roleID}, "")
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Allowed {
			codes = append(codes, row.Code)
		}
	}
	return codes, nil
}

// PermissionsNotInRole lists registered permissions that roleID has no mapping for.
func (s *Store) PermissionsNotInRole(ctx context.Context, roleID int64) ([]models.Permission, error) {
	var perms []models.Permission
	err := s.conn(ctx).
		Where("id NOT IN (?)", s.conn(ctx).Model(&models.RolePermission{}).Select("permission_id").Where("role_id = ?", roleID)).
		Order("code ASC").
		Find(&perms).Error
	if err != nil {
		return nil, failure("list unassigned permissions", err)
	}
	return perms, nil
}

// DelegationsTo returns every delegation targeting userID, including expired
// and revoked rows.
func (s *Store) DelegationsTo(ctx context.Context, userID int64, code string) ([]Delegation, error) {
	query := s.conn(ctx).
		Table("delegated_permissions").
		Select("delegated_permissions.id, delegated_permissions.from_user_id, delegated_permissions.to_user_id, " +
			"delegated_permissions.permission_id, permissions.code, delegated_permissions.granted_by, " +
			"delegated_permissions.granted_at, delegated_permissions.expires_at, delegated_permissions.reason, " +
			"delegated_permissions.revoked_at").
		Joins("JOIN permissions ON permissions.id = delegated_permissions.permission_id").
		Where("delegated_permissions.to_user_id = ?", userID)
	if code = models.NormalizeCode(code); code != "" {
		query = query.Where("LOWER(permissions.code) = ?", code)
	}

	var rows []Delegation
	if err := query.Order("delegated_permissions.id ASC").Scan(&rows).Error; err != nil {
		return nil, failure("load delegations", err)
	}
	return rows, nil
}

// GetDelegation loads a delegation by id.
func (s *Store) GetDelegation(ctx context.Context, id int64) (*models.DelegatedPermission, error) {
	var row models.DelegatedPermission
	err := s.conn(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("delegation %d not found", id)
	}
	if err != nil {
		return nil, failure("load delegation", err)
	}
	return &row, nil
}

// UpsertUserRole grants a role membership, refreshing grantor and expiry when
// the membership already exists.
func (s *Store) UpsertUserRole(ctx context.Context, row models.UserRole) error {
	if _, err := s.GetRole(ctx, row.RoleID); err != nil {
		return err
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"granted_by", "granted_at", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return failure("upsert user role", err)
	}
	return nil
}

// DeleteUserRole removes a membership. Removing an absent membership is not an error.
func (s *Store) DeleteUserRole(ctx context.Context, userID, roleID int64) error {
	err := s.conn(ctx).Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRole{}).Error
	if err != nil {
		return failure("delete user role", err)
	}
	return nil
}

// UpsertUserPermission writes a direct grant keyed by (user, permission).
func (s *Store) UpsertUserPermission(ctx context.Context, row models.UserPermission) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"allowed", "granted_by", "granted_at", "expires_at", "reason"}),
	}).Create(&row).Error
	if err != nil {
		return failure("upsert user permission", err)
	}
	return nil
}

// DeleteUserPermission removes a direct grant outright.
func (s *Store) DeleteUserPermission(ctx context.Context, userID, permissionID int64) error {
	err := s.conn(ctx).Where("user_id = ? AND permission_id = ?", userID, permissionID).Delete(&models.UserPermission{}).Error
	if err != nil {
		return failure("delete user permission", err)
	}
	return nil
}

// UpsertDelegation writes a delegation keyed by (from, to, permission). A
// re-delegation replaces expiry and reason and clears any revocation. The
// stored id is written back to row.
func (s *Store) UpsertDelegation(ctx context.Context, row *models.DelegatedPermission) error {
	row.ID = 0
	row.RevokedAt = nil
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "from_user_id"}, {Name: "to_user_id"}, {Name: "permission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"granted_by", "granted_at", "expires_at", "reason", "revoked_at"}),
	}).Create(row).Error
	if err != nil {
		return failure("upsert delegation", err)
	}

	var stored models.DelegatedPermission
	err = s.conn(ctx).
		Where("from_user_id = ? AND to_user_id = ? AND permission_id = ?", row.FromUserID, row.ToUserID, row.PermissionID).
		First(&stored).Error
	if err != nil {
		return failure("reload delegation", err)
	}
	*row = stored
	return nil
}

// RevokeDelegation marks a delegation revoked at the given time. Revoking an
// already revoked delegation keeps the original timestamp.
func (s *Store) RevokeDelegation(ctx context.Context, id int64, at time.Time) error {
	result := s.conn(ctx).
		Model(&models.DelegatedPermission{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if result.Error != nil {
		return failure("revoke delegation", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetDelegation(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpsertRolePermission maps a permission onto a live role, updating the
// assignment metadata when the mapping exists.
func (s *Store) UpsertRolePermission(ctx context.Context, row models.RolePermission) error {
	if _, err := s.GetRole(ctx, row.RoleID); err != nil {
		return err
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "permission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"allowed", "assigned_by", "assigned_at"}),
	}).Create(&row).Error
	if err != nil {
		return failure("upsert role permission", err)
	}
	return nil
}

// DeleteRolePermission removes a role mapping.
func (s *Store) DeleteRolePermission(ctx context.Context, roleID, permissionID int64) error {
	err := s.conn(ctx).Where("role_id = ? AND permission_id = ?", roleID, permissionID).Delete(&models.RolePermission{}).Error
	if err != nil {
		return failure("delete role permission", err)
	}
	return nil
}

// PurgeExpired deletes memberships, direct grants and delegations that expired
// at or before now. Revoked delegations stay until their expiry so revoked_at
// remains on record.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error) {
	var result PurgeResult
	db := s.conn(ctx)

	res := db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&models.UserRole{})
	if res.Error != nil {
		return result, failure("purge user roles", res.Error)
	}
	result.UserRoles = res.RowsAffected

	res = db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&models.UserPermission{})
	if res.Error != nil {
		return result, failure("purge user permissions", res.Error)
	}
	result.UserPermissions = res.RowsAffected

	res = db.Where("expires_at <= ?", now).Delete(&models.DelegatedPermission{})
	if res.Error != nil {
		return result, failure("purge delegations", res.Error)
	}
	result.Delegations = res.RowsAffected

	return result, nil
}
