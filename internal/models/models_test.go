package models

import "testing"

func TestPermissionRequestTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		RequestStatusPending:  false,
		RequestStatusApproved: true,
		RequestStatusDenied:   true,
	} {
		if got := (PermissionRequest{Status: status}).Terminal(); got != want {
			t.Fatalf("Terminal() for %q = %v, want %v", status, got, want)
		}
	}
}

func TestTableNames(t *testing.T) {
	names := map[string]string{
		Permission{}.TableName():          "permissions",
		Role{}.TableName():                "roles",
		RolePermission{}.TableName():      "role_permissions",
		UserRole{}.TableName():            "user_roles",
		UserPermission{}.TableName():      "user_permissions",
		DelegatedPermission{}.TableName(): "delegated_permissions",
		PermissionRequest{}.TableName():   "permission_requests",
		SystemEvent{}.TableName():         "system_event_log",
		SchemaMigration{}.TableName():     "schema_migrations",
	}
	for got, want := range names {
		if got != want {
			t.Fatalf("table name %q, want %q", got, want)
		}
	}
}
