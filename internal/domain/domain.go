package domain

import "fmt"

// Status is the lifecycle position of an AFT request. It is persisted as the
// exact string value; unknown values on load are a data-integrity failure.
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusPendingDAO            Status = "pending_dao"
	StatusPendingApprover       Status = "pending_approver"
	StatusPendingCPSO           Status = "pending_cpso"
	StatusApproved              Status = "approved"
	StatusPendingDTA            Status = "pending_dta"
	StatusActiveTransfer        Status = "active_transfer"
	StatusPendingSME            Status = "pending_sme"
	StatusPendingMediaCustodian Status = "pending_media_custodian"
	StatusCompleted             Status = "completed"
	StatusDisposed              Status = "disposed"
	StatusRejected              Status = "rejected"
	StatusCancelled             Status = "cancelled"
)

// Statuses lists every lifecycle state in workflow order.
var Statuses = []Status{
	StatusDraft, StatusSubmitted, StatusPendingDAO, StatusPendingApprover,
	StatusPendingCPSO, StatusApproved, StatusPendingDTA, StatusActiveTransfer,
	StatusPendingSME, StatusPendingMediaCustodian, StatusCompleted,
	StatusDisposed, StatusRejected, StatusCancelled,
}

// ParseStatus validates a persisted status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// Terminal reports whether no further transitions exist from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDisposed || s == StatusCancelled
}

// Action is a lifecycle operation on an AFT request.
type Action string

const (
	ActionSubmit              Action = "submit"
	ActionAdvanceDAO          Action = "advance-dao"
	ActionAdvanceSkipDAO      Action = "advance-skip-dao"
	ActionDAOApprove          Action = "dao-approve"
	ActionApproverApprove     Action = "approver-approve"
	ActionCPSOApprove         Action = "cpso-approve"
	ActionReject              Action = "reject"
	ActionReturnToDraft       Action = "return-to-draft"
	ActionInitiateTransfer    Action = "initiate-transfer"
	ActionSMESign             Action = "sme-sign"
	ActionCompleteTransfer    Action = "complete-transfer"
	ActionDispositionComplete Action = "disposition-complete"
	ActionDispositionDispose  Action = "disposition-dispose"
	ActionCancel              Action = "cancel"
)

// Actions lists every lifecycle action.
var Actions = []Action{
	ActionSubmit, ActionAdvanceDAO, ActionAdvanceSkipDAO, ActionDAOApprove,
	ActionApproverApprove, ActionCPSOApprove, ActionReject, ActionReturnToDraft,
	ActionInitiateTransfer, ActionSMESign, ActionCompleteTransfer,
	ActionDispositionComplete, ActionDispositionDispose, ActionCancel,
}

// ParseAction validates an action string from the API or CLI.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Role identifies a workflow responsibility. An actor may hold several.
type Role string

const (
	RoleRequestor      Role = "requestor"
	RoleDAO            Role = "dao"
	RoleApprover       Role = "approver"
	RoleCPSO           Role = "cpso"
	RoleDTA            Role = "dta"
	RoleSME            Role = "sme"
	RoleMediaCustodian Role = "media_custodian"
	RoleAdmin          Role = "admin"
)

var Roles = []Role{
	RoleRequestor, RoleDAO, RoleApprover, RoleCPSO,
	RoleDTA, RoleSME, RoleMediaCustodian, RoleAdmin,
}

func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Classification levels ordered by sensitivity.
type Classification string

const (
	ClassUnclassified Classification = "unclassified"
	ClassCUI          Classification = "cui"
	ClassConfidential Classification = "confidential"
	ClassSecret       Classification = "secret"
	ClassTopSecret    Classification = "top-secret"
	ClassTopSecretSCI Classification = "top-secret-sci"
)

var classificationOrder = map[Classification]int{
	ClassUnclassified: 0,
	ClassCUI:          1,
	ClassConfidential: 2,
	ClassSecret:       3,
	ClassTopSecret:    4,
	ClassTopSecretSCI: 5,
}

func ParseClassification(s string) (Classification, error) {
	c := Classification(s)
	if _, ok := classificationOrder[c]; !ok {
		return "", fmt.Errorf("unknown classification %q", s)
	}
	return c, nil
}

// AtLeast reports whether c is as sensitive as other or more.
func (c Classification) AtLeast(other Classification) bool {
	return classificationOrder[c] >= classificationOrder[other]
}

// TransferType describes the direction of an assured transfer.
type TransferType string

const (
	TransferLowToLow   TransferType = "low-to-low"
	TransferLowToHigh  TransferType = "low-to-high"
	TransferHighToLow  TransferType = "high-to-low"
	TransferHighToHigh TransferType = "high-to-high"
)

func ParseTransferType(s string) (TransferType, error) {
	switch t := TransferType(s); t {
	case TransferLowToLow, TransferLowToHigh, TransferHighToLow, TransferHighToHigh:
		return t, nil
	}
	return "", fmt.Errorf("unknown transfer type %q", s)
}

// AFTRequest is one assured-file-transfer request. Status only changes through
// the orchestrator; Version guards concurrent writers.
type AFTRequest struct {
	ID                  string         `json:"id"`
	RequestNumber       string         `json:"request_number"`
	Status              Status         `json:"status" enum:"draft,submitted,pending_dao,pending_approver,pending_cpso,approved,pending_dta,active_transfer,pending_sme,pending_media_custodian,completed,disposed,rejected,cancelled"`
	Classification      Classification `json:"classification" enum:"unclassified,cui,confidential,secret,top-secret,top-secret-sci"`
	TransferType        TransferType   `json:"transfer_type" enum:"low-to-low,low-to-high,high-to-low,high-to-high"`
	RequestorID         string         `json:"requestor_id"`
	Description         string         `json:"description,omitempty"`
	RequiresDAO         *bool          `json:"requires_dao,omitempty"`
	EnableDualSignature bool           `json:"enable_dual_signature"`
	SecondarySignerType *string        `json:"secondary_signer_type,omitempty" enum:"dta,sme"`
	SecondarySignerID   *string        `json:"secondary_signer_id,omitempty"`
	ApprovalData        map[string]any `json:"approval_data,omitempty"`
	TransferData        map[string]any `json:"transfer_data,omitempty"`
	RejectionReason     string         `json:"rejection_reason,omitempty"`
	Version             int64          `json:"version"`
	Archived            bool           `json:"archived"`
	CreatedAt           string         `json:"created_at" format:"date-time"`
	UpdatedAt           string         `json:"updated_at" format:"date-time"`
	ApprovalDate        *string        `json:"approval_date,omitempty" format:"date-time"`
	ActualStartDate     *string        `json:"actual_start_date,omitempty" format:"date-time"`
	ActualEndDate       *string        `json:"actual_end_date,omitempty" format:"date-time"`
}

// AuditEntry is one row of the append-only transition log.
type AuditEntry struct {
	ID            int64  `json:"id"`
	RequestID     string `json:"request_id"`
	ActorID       string `json:"actor_id"`
	ActorRoleUsed string `json:"actor_role_used,omitempty"`
	Action        string `json:"action"`
	FromStatus    string `json:"from_status"`
	ToStatus      string `json:"to_status,omitempty"`
	Outcome       string `json:"outcome" enum:"success,denied,error"`
	Reason        string `json:"reason,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	TS            string `json:"ts" format:"date-time"`
}

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Signature is a recorded certificate-backed signature for one workflow step.
// At most one exists per (request, step, signer).
type Signature struct {
	ID                    string `json:"id"`
	RequestID             string `json:"request_id"`
	SignerID              string `json:"signer_id"`
	StepType              string `json:"step_type"`
	SignatureMaterial     string `json:"signature_material"`
	CertificateThumbprint string `json:"certificate_thumbprint"`
	IsVerified            bool   `json:"is_verified"`
	CreatedAt             string `json:"created_at" format:"date-time"`
}

// Actor is a resolvable principal with one primary role and any number of
// additional roles. Actors are deactivated, never deleted.
type Actor struct {
	ID          string `json:"id"`
	PrimaryRole Role   `json:"primary_role"`
	Roles       []Role `json:"roles"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// HasRole reports whether the actor holds r (primary or additional).
func (a Actor) HasRole(r Role) bool {
	if a.PrimaryRole == r {
		return true
	}
	for _, held := range a.Roles {
		if held == r {
			return true
		}
	}
	return false
}

// AllRoles returns the primary role plus additional roles, deduplicated.
func (a Actor) AllRoles() []Role {
	roles := []Role{a.PrimaryRole}
	for _, r := range a.Roles {
		if r != a.PrimaryRole {
			roles = append(roles, r)
		}
	}
	return roles
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
