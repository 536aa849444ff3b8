package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/models"
)

type migration struct {
	version int
	name    string
	apply   func(tx *gorm.DB) error
}

// migrations is append-only. Never renumber or edit an applied step.
var migrations = []migration{
	{
		version: 1,
		name:    "authorization_tables",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Permission{},
				&models.Role{},
				&models.RolePermission{},
				&models.UserRole{},
				&models.UserPermission{},
				&models.DelegatedPermission{},
				&models.PermissionRequest{},
			)
		},
	},
	{
		version: 2,
		name:    "system_event_log",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.SystemEvent{})
		},
	},
}

// LatestVersion is the schema version produced by Migrate.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every pending schema step in order. Each step runs in its
// own transaction together with its schema_migrations record.
func Migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&models.SchemaMigration{}); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []int
	if err := db.Model(&models.SchemaMigration{}).Pluck("version", &applied).Error; err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}

	for _, m := range migrations {
		if _, ok := done[m.version]; ok {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.apply(tx); err != nil {
				return err
			}
			return tx.Create(&models.SchemaMigration{
				Version:   m.version,
				Name:      m.name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 for an empty database.
func SchemaVersion(ctx context.Context, db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&models.SchemaMigration{}) {
		return 0, nil
	}
	var version int
	err := db.WithContext(ctx).
		Model(&models.SchemaMigration{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
