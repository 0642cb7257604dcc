package workflow

import "fundimart.org/internal/auth"

var (
	ActionReceiptUpload = auth.Action{Name: "receipt.upload"}

	ActionReceiptVerify = auth.Action{
		Name:         "receipt.verify",
		Roles:        []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleVerificationOfficer},
		Capabilities: []auth.Capability{auth.CapFundiVerification, auth.CapShopVerification},
	}

	ActionReceiptReject = auth.Action{
		Name:         "receipt.reject",
		Roles:        ActionReceiptVerify.Roles,
		Capabilities: ActionReceiptVerify.Capabilities,
	}

	ActionReceiptRead = auth.Action{
		Name: "receipt.read",
		Roles: []auth.Role{
			auth.RoleSuperAdmin, auth.RoleAdmin,
			auth.RoleVerificationOfficer, auth.RoleSupportOfficer,
		},
	}

	ActionReportCreate = auth.Action{
		Name:         "report.create",
		Roles:        []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleFinanceOfficer},
		Capabilities: []auth.Capability{auth.CapAnalyticsView},
	}

	ActionReportRead = auth.Action{
		Name:         "report.read",
		Capabilities: []auth.Capability{auth.CapAnalyticsView},
	}
)
