package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/models"
)

func openOfflineMySQL(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "gmp:gmp@tcp(127.0.0.1:3306)/gmpauthz?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestMySQLEventTimeDefaultMatchesPrecision(t *testing.T) {
	db := openOfflineMySQL(t)

	stmt := &gorm.Statement{DB: db}
	require.NoError(t, stmt.Parse(&models.SystemEvent{}))
	field := stmt.Schema.LookUpField("EventTime")
	require.NotNil(t, field)

	ddl := db.Migrator().FullDataTypeOf(field).SQL
	require.Equal(t, "datetime NOT NULL DEFAULT CURRENT_TIMESTAMP", ddl)
}

func TestMySQLTimestampDefaultsAreValid(t *testing.T) {
	db := openOfflineMySQL(t)

	for _, model := range []any{
		&models.Permission{},
		&models.Role{},
		&models.RolePermission{},
		&models.UserRole{},
		&models.UserPermission{},
		&models.DelegatedPermission{},
		&models.PermissionRequest{},
		&models.SystemEvent{},
		&models.SchemaMigration{},
	} {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))

		for _, field := range stmt.Schema.Fields {
			if !strings.Contains(strings.ToUpper(field.DefaultValue), "CURRENT_TIMESTAMP") {
				continue
			}
			ddl := db.Migrator().FullDataTypeOf(field).SQL
			if strings.Contains(ddl, "datetime(") {
				require.Contains(t, ddl, "CURRENT_TIMESTAMP(", "%s.%s: %s", stmt.Schema.Table, field.DBName, ddl)
			}
		}
	}
}
