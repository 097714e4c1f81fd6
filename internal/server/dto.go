package server

import (
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/signature"
)

type CreateRequestRequest struct {
	Classification      string  `json:"classification" enum:"unclassified,cui,confidential,secret,top-secret,top-secret-sci"`
	TransferType        string  `json:"transfer_type" enum:"low-to-low,low-to-high,high-to-low,high-to-high"`
	Description         *string `json:"description,omitempty"`
	EnableDualSignature *bool   `json:"enable_dual_signature,omitempty"`
	SecondarySignerType *string `json:"secondary_signer_type,omitempty" enum:"dta,sme"`
	SecondarySignerID   *string `json:"secondary_signer_id,omitempty"`
}

type UpdateRequestRequest struct {
	Classification      *string `json:"classification,omitempty"`
	TransferType        *string `json:"transfer_type,omitempty"`
	Description         *string `json:"description,omitempty"`
	EnableDualSignature *bool   `json:"enable_dual_signature,omitempty"`
	SecondarySignerType *string `json:"secondary_signer_type,omitempty" enum:"dta,sme"`
	SecondarySignerID   *string `json:"secondary_signer_id,omitempty"`
	ExpectedVersion     int64   `json:"expected_version,omitempty"`
}

// SignatureInput mirrors signature.Input for the wire.
type SignatureInput struct {
	SignerID              string `json:"signer_id"`
	SignatureMaterial     string `json:"signature_material"`
	CertificateThumbprint string `json:"certificate_thumbprint"`
}

func (s *SignatureInput) toVerifier() *signature.Input {
	if s == nil {
		return nil
	}
	return &signature.Input{
		SignerID:              s.SignerID,
		SignatureMaterial:     s.SignatureMaterial,
		CertificateThumbprint: s.CertificateThumbprint,
	}
}

// ActionRequest is the body for every lifecycle action endpoint. Which fields
// matter depends on the action; the orchestrator validates.
type ActionRequest struct {
	Reason            string          `json:"reason,omitempty"`
	Acknowledged      bool            `json:"acknowledged,omitempty"`
	DispositionMethod string          `json:"disposition_method,omitempty"`
	Data              map[string]any  `json:"data,omitempty"`
	Signature         *SignatureInput `json:"signature,omitempty"`
	SecondSignature   *SignatureInput `json:"second_signature,omitempty"`
	ExpectedVersion   int64           `json:"expected_version,omitempty"`
}

type paginatedRequests struct {
	Items      []domain.AFTRequest `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type paginatedAudit struct {
	Items      []domain.AuditEntry `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type MeResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Active  bool     `json:"active"`
	Source  string   `json:"source"`
}

type CreateActorRequest struct {
	ID          string   `json:"id"`
	PrimaryRole string   `json:"primary_role" enum:"requestor,dao,approver,cpso,dta,sme,media_custodian,admin"`
	Roles       []string `json:"roles,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type CreateAPIKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Key     string `json:"key"`
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func actionsToStrings(actions []domain.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
