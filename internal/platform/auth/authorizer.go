package auth

// Authorizer is the permission gate consumed by services: is this actor
// allowed to perform this named action. Implementations resolve the actor's
// roles; the service only sees the boolean.
type Authorizer interface {
	IsAllowed(roles []string, action string) bool
}

// Intervention workflow actions.
const (
	ActionInterventionCreate = "intervention:create"
	ActionInterventionUpdate = "intervention:update"
	ActionInterventionDelete = "intervention:delete"
	ActionInterventionRead   = "intervention:read"
	ActionAssignmentManage   = "intervention:assign"
	ActionOutcomeRecord      = "intervention:outcome"
	ActionReportsView        = "reports:view"
	ActionReportsExport      = "reports:export"
	ActionAuditView          = "audit:view"
)

// rolePermissions maps each role to the actions it may perform. Admins are
// handled in IsAllowed directly.
var rolePermissions = map[string][]string{
	"pharmacist": {
		ActionInterventionCreate, ActionInterventionUpdate, ActionInterventionDelete,
		ActionInterventionRead, ActionAssignmentManage, ActionOutcomeRecord,
		ActionReportsView, ActionReportsExport,
	},
	"pharmacy_technician": {
		ActionInterventionCreate, ActionInterventionUpdate, ActionInterventionRead,
	},
	"physician": {
		ActionInterventionRead, ActionOutcomeRecord, ActionReportsView,
	},
	"nurse": {
		ActionInterventionRead,
	},
	"auditor": {
		ActionInterventionRead, ActionReportsView, ActionAuditView,
	},
}

// StaticAuthorizer answers permission checks from the built-in role table.
type StaticAuthorizer struct{}

func (StaticAuthorizer) IsAllowed(roles []string, action string) bool {
	for _, role := range roles {
		if role == "admin" {
			return true
		}
		for _, allowed := range rolePermissions[role] {
			if allowed == action {
				return true
			}
		}
	}
	return false
}
