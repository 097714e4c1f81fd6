// Package signature validates that a lifecycle action carries the signatures
// it requires, including the two-person-integrity rule on transfer completion.
package signature

import (
	"fmt"
	"strings"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

// Step types recorded with each signature.
const (
	StepRequestor        = "requestor_submit"
	StepDAOApproval      = "dao_approval"
	StepApproverApproval = "approver_approval"
	StepCPSOApproval     = "cpso_approval"
	StepDTATransfer      = "dta_transfer"
	StepSecondaryTPI     = "secondary_tpi"
	StepSMEReview        = "sme_review"
	StepCustodian        = "custodian_disposition"
)

// Error indicates a missing, malformed, or duplicate signature for a step.
type Error struct {
	Step   string
	Reason string
}

func (e Error) Error() string {
	return fmt.Sprintf("signature for step %s: %s", e.Step, e.Reason)
}

// TPIViolationError indicates both transfer signatures resolve to one identity.
type TPIViolationError struct {
	SignerID string
}

func (e TPIViolationError) Error() string {
	return fmt.Sprintf("two-person integrity violation: both signatures resolve to signer %s", e.SignerID)
}

// Input is one signature as supplied with an action payload.
type Input struct {
	SignerID              string `json:"signer_id"`
	SignatureMaterial     string `json:"signature_material"`
	CertificateThumbprint string `json:"certificate_thumbprint"`
}

// Payload carries the signatures attached to an action.
type Payload struct {
	Signature       *Input
	SecondSignature *Input
}

// stepFor maps each signature-gated action to the step its signature records.
var stepFor = map[domain.Action]string{
	domain.ActionSubmit:              StepRequestor,
	domain.ActionDAOApprove:          StepDAOApproval,
	domain.ActionApproverApprove:     StepApproverApproval,
	domain.ActionCPSOApprove:         StepCPSOApproval,
	domain.ActionCompleteTransfer:    StepDTATransfer,
	domain.ActionSMESign:             StepSMEReview,
	domain.ActionDispositionComplete: StepCustodian,
	domain.ActionDispositionDispose:  StepCustodian,
}

// Required reports whether the action needs at least one signature.
func Required(action domain.Action) bool {
	_, ok := stepFor[action]
	return ok
}

// Verify checks the signatures an action must carry and returns the Signature
// rows to record, in the order they should be persisted. Identity is
// established by certificate thumbprint, not by any name field.
func Verify(req domain.AFTRequest, action domain.Action, p Payload) ([]domain.Signature, error) {
	step, ok := stepFor[action]
	if !ok {
		return nil, nil
	}

	primary, err := checkInput(step, p.Signature)
	if err != nil {
		return nil, err
	}
	sigs := []domain.Signature{toSignature(req.ID, step, primary)}

	if action != domain.ActionCompleteTransfer {
		return sigs, nil
	}
	if !req.EnableDualSignature {
		return sigs, nil
	}

	second, err := checkInput(StepSecondaryTPI, p.SecondSignature)
	if err != nil {
		return nil, err
	}
	if second.CertificateThumbprint == primary.CertificateThumbprint || second.SignerID == primary.SignerID {
		return nil, TPIViolationError{SignerID: primary.SignerID}
	}
	if req.SecondarySignerID != nil && *req.SecondarySignerID != "" && second.SignerID != *req.SecondarySignerID {
		return nil, Error{
			Step:   StepSecondaryTPI,
			Reason: fmt.Sprintf("secondary signature must come from configured signer %s, got %s", *req.SecondarySignerID, second.SignerID),
		}
	}
	return append(sigs, toSignature(req.ID, StepSecondaryTPI, second)), nil
}

func checkInput(step string, in *Input) (Input, error) {
	if in == nil {
		return Input{}, Error{Step: step, Reason: "signature is required"}
	}
	if strings.TrimSpace(in.SignerID) == "" {
		return Input{}, Error{Step: step, Reason: "signer_id is required"}
	}
	if strings.TrimSpace(in.SignatureMaterial) == "" {
		return Input{}, Error{Step: step, Reason: "signature_material is required"}
	}
	if strings.TrimSpace(in.CertificateThumbprint) == "" {
		return Input{}, Error{Step: step, Reason: "certificate_thumbprint is required"}
	}
	return *in, nil
}

func toSignature(requestID, step string, in Input) domain.Signature {
	return domain.Signature{
		RequestID:             requestID,
		SignerID:              in.SignerID,
		StepType:              step,
		SignatureMaterial:     in.SignatureMaterial,
		CertificateThumbprint: in.CertificateThumbprint,
		IsVerified:            true,
	}
}
