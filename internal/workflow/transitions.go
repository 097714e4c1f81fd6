// Package workflow holds the two pure lookups that govern the AFT request
// lifecycle: the transition table (what happens) and the authorization gate
// (who may act). They are checked separately so a caller with the wrong role
// is refused even when the transition itself would be legal.
package workflow

import "github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"

// Attributes are the request fields the transition table consults. RequiresDAO
// is frozen at submission time; nil means the request was never submitted.
type Attributes struct {
	Classification         domain.Classification
	TransferType           domain.TransferType
	RequiresDAO            *bool
	SecondarySMEConfigured bool
	DualSignatureEnabled   bool
}

// RequiresDAOReview decides the approval chain branch from the request
// attributes as they stand at submission. High-to-low transfers and anything
// classified secret or above go through the DAO stage.
func RequiresDAOReview(classification domain.Classification, transferType domain.TransferType) bool {
	return transferType == domain.TransferHighToLow || classification.AtLeast(domain.ClassSecret)
}

// Next computes the status an action leads to from the current status, or an
// IllegalTransitionError. It is a total function over the fixed action table;
// it performs no role or signature checks.
func Next(status domain.Status, action domain.Action, attrs Attributes) (domain.Status, error) {
	illegal := func(reason string) (domain.Status, error) {
		return "", IllegalTransitionError{Status: status, Action: action, Reason: reason}
	}

	switch action {
	case domain.ActionSubmit:
		if status == domain.StatusDraft {
			return domain.StatusSubmitted, nil
		}
	case domain.ActionAdvanceDAO:
		if status == domain.StatusSubmitted {
			if attrs.RequiresDAO == nil || !*attrs.RequiresDAO {
				return illegal("request does not require DAO review")
			}
			return domain.StatusPendingDAO, nil
		}
	case domain.ActionAdvanceSkipDAO:
		if status == domain.StatusSubmitted {
			if attrs.RequiresDAO != nil && *attrs.RequiresDAO {
				return illegal("request requires DAO review and cannot skip it")
			}
			return domain.StatusPendingApprover, nil
		}
	case domain.ActionDAOApprove:
		if status == domain.StatusPendingDAO {
			return domain.StatusPendingApprover, nil
		}
	case domain.ActionApproverApprove:
		if status == domain.StatusPendingApprover {
			return domain.StatusPendingCPSO, nil
		}
	case domain.ActionCPSOApprove:
		if status == domain.StatusPendingCPSO {
			return domain.StatusApproved, nil
		}
	case domain.ActionReject:
		switch status {
		case domain.StatusSubmitted, domain.StatusPendingDAO,
			domain.StatusPendingApprover, domain.StatusPendingCPSO:
			return domain.StatusRejected, nil
		}
	case domain.ActionReturnToDraft:
		switch status {
		case domain.StatusSubmitted, domain.StatusPendingDAO,
			domain.StatusPendingApprover, domain.StatusPendingCPSO,
			domain.StatusRejected:
			return domain.StatusDraft, nil
		}
	case domain.ActionInitiateTransfer:
		switch status {
		case domain.StatusApproved, domain.StatusPendingDTA:
			return domain.StatusActiveTransfer, nil
		}
	case domain.ActionSMESign:
		if status == domain.StatusActiveTransfer {
			if !attrs.SecondarySMEConfigured {
				return illegal("no secondary SME signer configured")
			}
			return domain.StatusPendingSME, nil
		}
	case domain.ActionCompleteTransfer:
		switch status {
		case domain.StatusActiveTransfer, domain.StatusPendingSME:
			return domain.StatusPendingMediaCustodian, nil
		}
	case domain.ActionDispositionComplete:
		if status == domain.StatusPendingMediaCustodian {
			return domain.StatusCompleted, nil
		}
	case domain.ActionDispositionDispose:
		if status == domain.StatusPendingMediaCustodian {
			return domain.StatusDisposed, nil
		}
	case domain.ActionCancel:
		if status == domain.StatusDraft {
			return domain.StatusCancelled, nil
		}
	}
	return illegal("")
}
