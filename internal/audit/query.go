package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

// Filters narrows List results.
type Filters struct {
	UserID    *int64
	EventType string
	TableName string
	Module    string
	Since     *time.Time
	Until     *time.Time
}

// ListOptions controls pagination and filtering for List.
type ListOptions struct {
	Page     int
	PageSize int
	Filters  Filters
}

// List returns events newest first together with the total match count. It
// reads the full shape; deployments on a narrower table get a store error.
func (s *Sink) List(ctx context.Context, opts ListOptions) ([]models.SystemEvent, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := applyFilters(s.db.WithContext(ctx).Table(s.table), opts.Filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.StoreFailure("audit: count events", err)
	}

	var events []models.SystemEvent
	err := query.
		Order("event_time DESC").
		Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&events).Error
	if err != nil {
		return nil, 0, apperrors.StoreFailure("audit: list events", err)
	}
	return events, total, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.EventType != "" {
		query = query.Where("event_type = ?", filters.EventType)
	}
	if filters.TableName != "" {
		query = query.Where("table_name = ?", filters.TableName)
	}
	if filters.Module != "" {
		query = query.Where("related_module = ?", filters.Module)
	}
	if filters.Since != nil {
		query = query.Where("event_time >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("event_time <= ?", *filters.Until)
	}
	return query
}
