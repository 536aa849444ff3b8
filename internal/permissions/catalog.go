package permissions

// Codes guarding the authorization API itself.
const (
	RBACView     = "rbac.view"
	RBACManage   = "rbac.manage"
	RBACDelegate = "rbac.delegate"
	RBACApprove  = "rbac.approve"
	AuditView    = "audit.view"
)

// AdministratorRole is the role bootstrap administrators are granted.
const AdministratorRole = "administrator"

func init() {
	registerCatalog()
}

// AdministratorCodes lists the codes held by AdministratorRole: every rbac
// and audit permission.
func AdministratorCodes() []string {
	var codes []string
	for _, module := range []string{"rbac", "audit"} {
		for _, def := range ByModule(module) {
			codes = append(codes, def.Code)
		}
	}
	return codes
}

func registerCatalog() {
	MustRegister(
		&Definition{Code: RBACView, Name: "View access control", Description: "View roles, grants and effective permissions"},
		&Definition{Code: RBACManage, Name: "Manage access control", Description: "Create roles and grant or revoke roles and permissions"},
		&Definition{Code: RBACDelegate, Name: "Delegate permissions", Description: "Temporarily delegate permissions to another user"},
		&Definition{Code: RBACApprove, Name: "Decide permission requests", Description: "Approve or deny permission requests"},
		&Definition{Code: AuditView, Name: "View audit trail", Description: "Read the system event log"},
		&Definition{Code: "audit.export", Name: "Export audit trail", Description: "Export system event log entries"},

		&Definition{Code: "capa.view", Name: "View CAPA"},
		&Definition{Code: "capa.create", Name: "Create CAPA"},
		&Definition{Code: "capa.edit", Name: "Edit CAPA"},
		&Definition{Code: "capa.approve", Name: "Approve CAPA", Description: "Approve corrective and preventive actions"},
		&Definition{Code: "capa.close", Name: "Close CAPA"},

		&Definition{Code: "deviation.view", Name: "View deviations"},
		&Definition{Code: "deviation.create", Name: "Report deviations"},
		&Definition{Code: "deviation.investigate", Name: "Investigate deviations"},
		&Definition{Code: "deviation.close", Name: "Close deviations"},

		&Definition{Code: "calibration.view", Name: "View calibrations"},
		&Definition{Code: "calibration.edit", Name: "Record calibrations"},
		&Definition{Code: "calibration.sign", Name: "Sign calibrations", Description: "Apply an electronic signature to a calibration record"},

		&Definition{Code: "workorder.view", Name: "View work orders"},
		&Definition{Code: "workorder.edit", Name: "Edit work orders"},
		&Definition{Code: "workorder.close", Name: "Close work orders"},

		&Definition{Code: "supplier.view", Name: "View suppliers"},
		&Definition{Code: "supplier.edit", Name: "Edit suppliers"},
		&Definition{Code: "supplier.approve", Name: "Approve suppliers"},

		&Definition{Code: "part.view", Name: "View parts"},
		&Definition{Code: "part.edit", Name: "Edit parts"},

		&Definition{Code: "validation.view", Name: "View validations"},
		&Definition{Code: "validation.execute", Name: "Execute validations"},
		&Definition{Code: "validation.approve", Name: "Approve validations"},

		&Definition{Code: "user.view", Name: "View users"},
		&Definition{Code: "user.edit", Name: "Edit users"},
		&Definition{Code: "user.lock", Name: "Lock user accounts"},
	)
}
