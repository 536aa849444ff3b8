package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

// CreatePermissionRequest inserts a pending request and writes its id back.
func (s *Store) CreatePermissionRequest(ctx context.Context, req *models.PermissionRequest) error {
	req.ID = 0
	req.Status = models.RequestStatusPending
	req.DecidedBy = nil
	req.DecidedAt = nil
	if err := s.conn(ctx).Omit("Permission").Create(req).Error; err != nil {
		return failure("create permission request", err)
	}
	return nil
}

// GetPermissionRequest loads a request with its permission.
func (s *Store) GetPermissionRequest(ctx context.Context, id int64) (*models.PermissionRequest, error) {
	var req models.PermissionRequest
	err := s.conn(ctx).Preload("Permission").First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("permission request %d not found", id)
	}
	if err != nil {
		return nil, failure("load permission request", err)
	}
	return &req, nil
}

// ListPermissionRequests returns requests newest first, optionally filtered by status.
func (s *Store) ListPermissionRequests(ctx context.Context, status string) ([]models.PermissionRequest, error) {
	query := s.conn(ctx).Preload("Permission").Order("requested_at DESC").Order("id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var reqs []models.PermissionRequest
	if err := query.Find(&reqs).Error; err != nil {
		return nil, failure("list permission requests", err)
	}
	return reqs, nil
}

// DecidePermissionRequest moves a pending request to status. The update is
// conditional on the request still being pending, so a second decision fails
// with ErrInvalidStateTransition even under concurrent callers.
func (s *Store) DecidePermissionRequest(ctx context.Context, id int64, status string, decidedBy *int64, comment string, at time.Time) error {
	result := s.conn(ctx).
		Model(&models.PermissionRequest{}).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Updates(map[string]any{
			"status":     status,
			"decided_by": decidedBy,
			"decided_at": at,
			"comment":    comment,
		})
	if result.Error != nil {
		return failure("decide permission request", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	req, err := s.GetPermissionRequest(ctx, id)
	if err != nil {
		return err
	}
	if !req.Terminal() {
		return failure("decide permission request", fmt.Errorf("request %d still pending after update", id))
	}
	return apperrors.ErrInvalidStateTransition.WithMessage(
		"permission request " + req.Status + "; only pending requests can be decided",
	)
}
