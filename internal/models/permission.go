package models

import "strings"

// Permission is a registered permission code such as "capa.approve".
// Codes are stored lower-case.
type Permission struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Code        string `gorm:"size:128;uniqueIndex;not null" json:"code"`
	Name        string `gorm:"size:255" json:"name"`
	Module      string `gorm:"size:64;index" json:"module"`
	Description string `gorm:"type:text" json:"description"`
}

func (Permission) TableName() string { return "permissions" }

// NormalizeCode canonicalises a permission code for storage and comparison.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
