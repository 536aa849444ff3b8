package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yasgmp/gmpauthz/internal/models"
)

// Sync upserts every registered definition into the permissions table. Rows
// for codes no longer registered are left in place so historical grants and
// audit references stay resolvable.
func Sync(ctx context.Context, db *gorm.DB) (int, error) {
	if db == nil {
		return 0, errors.New("permission: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defs := All()
	tx := db.WithContext(ctx)
	for _, def := range defs {
		record := models.Permission{
			Code:        def.Code,
			Name:        def.Name,
			Module:      def.Module,
			Description: def.Description,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "module", "description"}),
		}).Create(&record).Error; err != nil {
			return 0, fmt.Errorf("permission: sync %s: %w", def.Code, err)
		}
	}
	return len(defs), nil
}
