package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
)

// ApprovalService records permission requests and their decisions. A decision
// is a record only: approving a request never grants the permission.
type ApprovalService struct {
	store *grants.Store
	opts  serviceOptions
}

// NewApprovalService constructs an ApprovalService using the provided store.
func NewApprovalService(store *grants.Store, recorder AuditRecorder, opts ...Option) (*ApprovalService, error) {
	if store == nil {
		return nil, errors.New("approval service: store is required")
	}
	return &ApprovalService{store: store, opts: buildOptions(recorder, opts)}, nil
}

// RequestPermission files a pending request by actor for code.
func (s *ApprovalService) RequestPermission(ctx context.Context, actor auditctx.Actor, code, reason string) (int64, error) {
	ctx = ensureContext(ctx)

	if actor.IsSystem() {
		return 0, apperrors.NewBadRequest("permission requests require a user")
	}
	perm, err := s.store.GetPermissionByCode(ctx, code)
	if err != nil {
		return 0, err
	}

	req := &models.PermissionRequest{
		UserID:       actor.UserID,
		PermissionID: perm.ID,
		Reason:       strings.TrimSpace(reason),
		RequestedAt:  s.opts.clock(),
	}
	if err := s.store.CreatePermissionRequest(ctx, req); err != nil {
		return 0, err
	}

	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(actor.UserID),
		ChangeType:   "request",
		PermissionID: int64Ptr(perm.ID),
		Action:       "request",
		Reason:       req.Reason,
		Details:      fmt.Sprintf("requestId=%d; code=%s", req.ID, perm.Code),
	}, trailEntry{})
	return req.ID, nil
}

// Approve marks a pending request approved.
func (s *ApprovalService) Approve(ctx context.Context, actor auditctx.Actor, requestID int64, comment string) error {
	return s.decide(ctx, actor, requestID, models.RequestStatusApproved, comment)
}

// Deny marks a pending request denied.
func (s *ApprovalService) Deny(ctx context.Context, actor auditctx.Actor, requestID int64, comment string) error {
	return s.decide(ctx, actor, requestID, models.RequestStatusDenied, comment)
}

func (s *ApprovalService) decide(ctx context.Context, actor auditctx.Actor, requestID int64, status, comment string) error {
	ctx = ensureContext(ctx)
	comment = strings.TrimSpace(comment)

	if err := s.store.DecidePermissionRequest(ctx, requestID, status, actor.UserRef(), comment, s.opts.clock()); err != nil {
		return err
	}
	req, err := s.store.GetPermissionRequest(ctx, requestID)
	if err != nil {
		return err
	}

	action, trail := "approve", "PERMISSION_REQUEST_APPROVED"
	if status == models.RequestStatusDenied {
		action, trail = "deny", "PERMISSION_REQUEST_DENIED"
	}
	s.opts.recordChange(ctx, actor, audit.PermissionChange{
		TargetUserID: int64Ptr(req.UserID),
		ChangeType:   "request",
		PermissionID: int64Ptr(req.PermissionID),
		Action:       action,
		Reason:       comment,
		Details:      fmt.Sprintf("requestId=%d", req.ID),
	}, trailEntry{
		action:   trail,
		details:  fmt.Sprintf("Permission request %d %s", req.ID, status),
		table:    "permission_requests",
		recordID: int64Ptr(req.ID),
	})
	return nil
}

// GetRequest loads a request by id.
func (s *ApprovalService) GetRequest(ctx context.Context, requestID int64) (*models.PermissionRequest, error) {
	return s.store.GetPermissionRequest(ensureContext(ctx), requestID)
}

// ListRequests lists requests, optionally filtered by status.
func (s *ApprovalService) ListRequests(ctx context.Context, status string) ([]models.PermissionRequest, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", models.RequestStatusPending, models.RequestStatusApproved, models.RequestStatusDenied:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown request status %q", status))
	}
	return s.store.ListPermissionRequests(ensureContext(ctx), status)
}
