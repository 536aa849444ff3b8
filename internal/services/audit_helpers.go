package services

import (
	"context"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
)

// AuditRecorder is the write side of the audit sink. Implementations must not
// fail the caller; audit is best-effort.
type AuditRecorder interface {
	LogPermissionChange(ctx context.Context, actor auditctx.Actor, change audit.PermissionChange)
	LogSystemEvent(ctx context.Context, actor auditctx.Actor, action, details, table string, recordID *int64)
}

// recordChange writes the permission-change event, then the optional
// narrative trail entry.
func (o serviceOptions) recordChange(ctx context.Context, actor auditctx.Actor, change audit.PermissionChange, trail trailEntry) {
	if o.audit == nil {
		return
	}
	o.audit.LogPermissionChange(ctx, actor, change)
	if o.mirrorTrail && trail.action != "" {
		o.audit.LogSystemEvent(ctx, actor, trail.action, trail.details, trail.table, trail.recordID)
	}
}

type trailEntry struct {
	action   string
	details  string
	table    string
	recordID *int64
}

// withReason appends the caller's reason to a trail narrative.
func withReason(details, reason string) string {
	if reason == "" {
		return details
	}
	return details + " (reason: " + reason + ")"
}
