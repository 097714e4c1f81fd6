package workflow

import (
	"fmt"
	"strings"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

// grant says role may perform action while the request sits in one of from.
type grant struct {
	role domain.Role
	from []domain.Status
}

// gate is the full permission table. Admin appears on every action, so it is a
// superset of each specific role without bypassing the transition table. DAO
// entries include "submitted" because new submissions are treated as awaiting
// DAO triage.
var gate = map[domain.Action][]grant{
	domain.ActionSubmit: {
		{domain.RoleRequestor, []domain.Status{domain.StatusDraft}},
		{domain.RoleAdmin, []domain.Status{domain.StatusDraft}},
	},
	domain.ActionAdvanceDAO: {
		{domain.RoleDAO, []domain.Status{domain.StatusSubmitted}},
		{domain.RoleAdmin, []domain.Status{domain.StatusSubmitted}},
	},
	domain.ActionAdvanceSkipDAO: {
		{domain.RoleDAO, []domain.Status{domain.StatusSubmitted}},
		{domain.RoleAdmin, []domain.Status{domain.StatusSubmitted}},
	},
	domain.ActionDAOApprove: {
		{domain.RoleDAO, []domain.Status{domain.StatusPendingDAO}},
		{domain.RoleAdmin, []domain.Status{domain.StatusPendingDAO}},
	},
	domain.ActionApproverApprove: {
		{domain.RoleApprover, []domain.Status{domain.StatusPendingApprover}},
		{domain.RoleAdmin, []domain.Status{domain.StatusPendingApprover}},
	},
	domain.ActionCPSOApprove: {
		{domain.RoleCPSO, []domain.Status{domain.StatusPendingCPSO}},
		{domain.RoleAdmin, []domain.Status{domain.StatusPendingCPSO}},
	},
	domain.ActionReject: {
		{domain.RoleDAO, []domain.Status{domain.StatusSubmitted, domain.StatusPendingDAO}},
		{domain.RoleApprover, []domain.Status{domain.StatusPendingApprover}},
		{domain.RoleCPSO, []domain.Status{domain.StatusPendingCPSO}},
		{domain.RoleAdmin, []domain.Status{domain.StatusSubmitted, domain.StatusPendingDAO, domain.StatusPendingApprover, domain.StatusPendingCPSO}},
	},
	domain.ActionReturnToDraft: {
		{domain.RoleRequestor, []domain.Status{domain.StatusSubmitted, domain.StatusPendingDAO, domain.StatusPendingApprover, domain.StatusPendingCPSO, domain.StatusRejected}},
		{domain.RoleAdmin, []domain.Status{domain.StatusSubmitted, domain.StatusPendingDAO, domain.StatusPendingApprover, domain.StatusPendingCPSO, domain.StatusRejected}},
	},
	domain.ActionInitiateTransfer: {
		{domain.RoleDTA, []domain.Status{domain.StatusApproved, domain.StatusPendingDTA}},
		{domain.RoleAdmin, []domain.Status{domain.StatusApproved, domain.StatusPendingDTA}},
	},
	domain.ActionSMESign: {
		{domain.RoleSME, []domain.Status{domain.StatusActiveTransfer}},
		{domain.RoleAdmin, []domain.Status{domain.StatusActiveTransfer}},
	},
	domain.ActionCompleteTransfer: {
		{domain.RoleDTA, []domain.Status{domain.StatusActiveTransfer, domain.StatusPendingSME}},
		{domain.RoleAdmin, []domain.Status{domain.StatusActiveTransfer, domain.StatusPendingSME}},
	},
	domain.ActionDispositionComplete: {
		{domain.RoleMediaCustodian, []domain.Status{domain.StatusPendingMediaCustodian}},
		{domain.RoleAdmin, []domain.Status{domain.StatusPendingMediaCustodian}},
	},
	domain.ActionDispositionDispose: {
		{domain.RoleMediaCustodian, []domain.Status{domain.StatusPendingMediaCustodian}},
		{domain.RoleAdmin, []domain.Status{domain.StatusPendingMediaCustodian}},
	},
	domain.ActionCancel: {
		{domain.RoleRequestor, []domain.Status{domain.StatusDraft}},
		{domain.RoleAdmin, []domain.Status{domain.StatusDraft}},
	},
}

// Authorize checks whether any role in the set permits action at status. A
// deny always names either the missing role or the required status; it never
// reduces to a bare "forbidden". Requestor ownership is the orchestrator's
// concern, not the gate's.
func Authorize(roles []domain.Role, status domain.Status, action domain.Action) error {
	grants, ok := gate[action]
	if !ok {
		return AuthorizationError{
			Roles: roles, Status: status, Action: action,
			Reason: fmt.Sprintf("action %s is not a gated lifecycle action", action),
		}
	}

	roleMatched := false
	var requiredStatuses []domain.Status
	for _, g := range grants {
		if !holdsRole(roles, g.role) {
			continue
		}
		roleMatched = true
		for _, s := range g.from {
			if s == status {
				return nil
			}
		}
		requiredStatuses = append(requiredStatuses, g.from...)
	}

	if !roleMatched {
		return AuthorizationError{
			Roles: roles, Status: status, Action: action,
			Reason: fmt.Sprintf("action %s requires one of roles %s; actor holds %s",
				action, joinRoles(grantRoles(grants)), joinRoles(roles)),
		}
	}
	return AuthorizationError{
		Roles: roles, Status: status, Action: action,
		Reason: fmt.Sprintf("action %s requires status %s, current status is %s",
			action, joinStatuses(requiredStatuses), status),
	}
}

// PermittedActions lists the gating actions a role set may take at a status.
// Used by the API to advertise next steps, never to authorize.
func PermittedActions(roles []domain.Role, status domain.Status) []domain.Action {
	var out []domain.Action
	for _, action := range domain.Actions {
		if Authorize(roles, status, action) == nil {
			out = append(out, action)
		}
	}
	return out
}

func holdsRole(roles []domain.Role, want domain.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func grantRoles(grants []grant) []domain.Role {
	var roles []domain.Role
	for _, g := range grants {
		if !holdsRole(roles, g.role) {
			roles = append(roles, g.role)
		}
	}
	return roles
}

func joinRoles(roles []domain.Role) string {
	if len(roles) == 0 {
		return "(none)"
	}
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func joinStatuses(statuses []domain.Status) string {
	seen := map[domain.Status]bool{}
	var parts []string
	for _, s := range statuses {
		if !seen[s] {
			seen[s] = true
			parts = append(parts, string(s))
		}
	}
	return strings.Join(parts, " or ")
}
