package models

import "time"

// SystemEvent is a row of the append-only system_event_log in its full shape.
type SystemEvent struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	EventTime          time.Time `gorm:"not null;precision:0;default:CURRENT_TIMESTAMP;index" json:"event_time"`
	UserID             *int64    `gorm:"index" json:"user_id,omitempty"`
	EventType          string    `gorm:"size:64;not null;index" json:"event_type"`
	Table              string    `gorm:"column:table_name;size:64;not null" json:"table_name"`
	RelatedModule      string    `gorm:"size:64;index" json:"related_module"`
	RecordID           *int64    `json:"record_id,omitempty"`
	FieldName          *string   `gorm:"size:128" json:"field_name,omitempty"`
	OldValue           *string   `gorm:"type:text" json:"old_value,omitempty"`
	NewValue           *string   `gorm:"type:text" json:"new_value,omitempty"`
	Description        string    `gorm:"type:text" json:"description"`
	SourceIP           string    `gorm:"size:64" json:"source_ip"`
	DeviceInfo         string    `gorm:"size:255" json:"device_info"`
	SessionID          string    `gorm:"size:128" json:"session_id"`
	Severity           string    `gorm:"size:16;not null" json:"severity"`
	DigitalSignatureID *int64    `json:"digital_signature_id,omitempty"`
	DigitalSignature   *string   `gorm:"size:255" json:"digital_signature,omitempty"`
}

func (SystemEvent) TableName() string { return "system_event_log" }
