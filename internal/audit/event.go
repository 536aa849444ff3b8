package audit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults applied to events with blank fields.
const (
	DefaultEventType = "EVENT"
	DefaultTable     = "system"
	DefaultSeverity  = "info"

	SeverityAudit = "audit"
	ModuleRBAC    = "RBAC"
)

// Event is a single audit record. Pointer fields are nullable columns.
type Event struct {
	UserID        *int64
	EventType     string
	TableName     string
	Module        string
	RecordID      *int64
	Description   string
	SourceIP      string
	Severity      string
	DeviceInfo    string
	SessionID     string
	FieldName     *string
	OldValue      *string
	NewValue      *string
	SignatureID   *int64
	SignatureHash string
}

func (e Event) normalize() Event {
	e.EventType = strings.TrimSpace(e.EventType)
	if e.EventType == "" {
		e.EventType = DefaultEventType
	}
	e.TableName = strings.TrimSpace(e.TableName)
	if e.TableName == "" {
		e.TableName = DefaultTable
	}
	e.Severity = strings.TrimSpace(e.Severity)
	if e.Severity == "" {
		e.Severity = DefaultSeverity
	}
	e.SignatureHash = strings.TrimSpace(e.SignatureHash)
	if e.SignatureID != nil || e.SignatureHash != "" {
		e.Description += signatureSuffix(e.SignatureID, e.SignatureHash)
	}
	return e
}

func signatureSuffix(id *int64, hash string) string {
	idText := "-"
	if id != nil {
		idText = strconv.FormatInt(*id, 10)
	}
	if hash == "" {
		hash = "-"
	}
	return fmt.Sprintf(" [sigId=%s; sigHash=%s]", idText, hash)
}

// values maps every known column to its bind value.
func (e Event) values(at time.Time) map[string]any {
	var hash any
	if e.SignatureHash != "" {
		hash = e.SignatureHash
	}
	return map[string]any{
		"event_time":           at,
		"user_id":              e.UserID,
		"event_type":           e.EventType,
		"table_name":           e.TableName,
		"related_module":       e.Module,
		"record_id":            e.RecordID,
		"field_name":           e.FieldName,
		"old_value":            e.OldValue,
		"new_value":            e.NewValue,
		"description":          e.Description,
		"source_ip":            e.SourceIP,
		"device_info":          e.DeviceInfo,
		"session_id":           e.SessionID,
		"severity":             e.Severity,
		"digital_signature_id": e.SignatureID,
		"digital_signature":    hash,
	}
}

// PermissionChange describes an authorization mutation for LogPermissionChange.
type PermissionChange struct {
	TargetUserID *int64
	ChangeType   string
	RoleID       *int64
	PermissionID *int64
	Action       string
	Reason       string
	ExpiresAt    *time.Time
	Details      string
}

func (c PermissionChange) description(changedBy int64) string {
	expires := ""
	if c.ExpiresAt != nil {
		expires = c.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("change=%s; action=%s; roleId=%s; permId=%s; by=%d; reason=%s; expiresAt=%s; details=%s",
		c.ChangeType, c.Action, optionalID(c.RoleID), optionalID(c.PermissionID), changedBy, c.Reason, expires, c.Details)
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
