package workflow_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/workflow"
)

func boolPtr(b bool) *bool { return &b }

func TestRequiresDAOReview(t *testing.T) {
	cases := []struct {
		name           string
		classification domain.Classification
		transferType   domain.TransferType
		want           bool
	}{
		{"cui low-to-low", domain.ClassCUI, domain.TransferLowToLow, false},
		{"unclassified low-to-high", domain.ClassUnclassified, domain.TransferLowToHigh, false},
		{"cui high-to-low", domain.ClassCUI, domain.TransferHighToLow, true},
		{"secret low-to-low", domain.ClassSecret, domain.TransferLowToLow, true},
		{"top-secret high-to-high", domain.ClassTopSecret, domain.TransferHighToHigh, true},
		{"top-secret-sci low-to-high", domain.ClassTopSecretSCI, domain.TransferLowToHigh, true},
		{"confidential high-to-high", domain.ClassConfidential, domain.TransferHighToHigh, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, workflow.RequiresDAOReview(tc.classification, tc.transferType))
		})
	}
}

func TestNextHappyPaths(t *testing.T) {
	daoAttrs := workflow.Attributes{RequiresDAO: boolPtr(true)}
	skipAttrs := workflow.Attributes{RequiresDAO: boolPtr(false)}
	smeAttrs := workflow.Attributes{SecondarySMEConfigured: true}

	cases := []struct {
		from   domain.Status
		action domain.Action
		attrs  workflow.Attributes
		to     domain.Status
	}{
		{domain.StatusDraft, domain.ActionSubmit, skipAttrs, domain.StatusSubmitted},
		{domain.StatusDraft, domain.ActionCancel, skipAttrs, domain.StatusCancelled},
		{domain.StatusSubmitted, domain.ActionAdvanceDAO, daoAttrs, domain.StatusPendingDAO},
		{domain.StatusSubmitted, domain.ActionAdvanceSkipDAO, skipAttrs, domain.StatusPendingApprover},
		{domain.StatusSubmitted, domain.ActionReject, skipAttrs, domain.StatusRejected},
		{domain.StatusSubmitted, domain.ActionReturnToDraft, skipAttrs, domain.StatusDraft},
		{domain.StatusPendingDAO, domain.ActionDAOApprove, daoAttrs, domain.StatusPendingApprover},
		{domain.StatusPendingDAO, domain.ActionReject, daoAttrs, domain.StatusRejected},
		{domain.StatusPendingApprover, domain.ActionApproverApprove, skipAttrs, domain.StatusPendingCPSO},
		{domain.StatusPendingApprover, domain.ActionReject, skipAttrs, domain.StatusRejected},
		{domain.StatusPendingCPSO, domain.ActionCPSOApprove, skipAttrs, domain.StatusApproved},
		{domain.StatusPendingCPSO, domain.ActionReject, skipAttrs, domain.StatusRejected},
		{domain.StatusRejected, domain.ActionReturnToDraft, skipAttrs, domain.StatusDraft},
		{domain.StatusApproved, domain.ActionInitiateTransfer, skipAttrs, domain.StatusActiveTransfer},
		{domain.StatusPendingDTA, domain.ActionInitiateTransfer, skipAttrs, domain.StatusActiveTransfer},
		{domain.StatusActiveTransfer, domain.ActionSMESign, smeAttrs, domain.StatusPendingSME},
		{domain.StatusActiveTransfer, domain.ActionCompleteTransfer, skipAttrs, domain.StatusPendingMediaCustodian},
		{domain.StatusPendingSME, domain.ActionCompleteTransfer, smeAttrs, domain.StatusPendingMediaCustodian},
		{domain.StatusPendingMediaCustodian, domain.ActionDispositionComplete, skipAttrs, domain.StatusCompleted},
		{domain.StatusPendingMediaCustodian, domain.ActionDispositionDispose, skipAttrs, domain.StatusDisposed},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			got, err := workflow.Next(tc.from, tc.action, tc.attrs)
			require.NoError(t, err)
			assert.Equal(t, tc.to, got)
		})
	}
}

func TestNextRejectsEveryOtherPair(t *testing.T) {
	// Enumerate the full status x action grid and check that everything
	// outside the legal table comes back as IllegalTransitionError.
	type pair struct {
		from   domain.Status
		action domain.Action
	}
	legal := map[pair]bool{
		{domain.StatusDraft, domain.ActionSubmit}:                              true,
		{domain.StatusDraft, domain.ActionCancel}:                              true,
		{domain.StatusSubmitted, domain.ActionAdvanceDAO}:                      true,
		{domain.StatusSubmitted, domain.ActionAdvanceSkipDAO}:                  true,
		{domain.StatusSubmitted, domain.ActionReject}:                          true,
		{domain.StatusSubmitted, domain.ActionReturnToDraft}:                   true,
		{domain.StatusPendingDAO, domain.ActionDAOApprove}:                     true,
		{domain.StatusPendingDAO, domain.ActionReject}:                         true,
		{domain.StatusPendingDAO, domain.ActionReturnToDraft}:                  true,
		{domain.StatusPendingApprover, domain.ActionApproverApprove}:           true,
		{domain.StatusPendingApprover, domain.ActionReject}:                    true,
		{domain.StatusPendingApprover, domain.ActionReturnToDraft}:             true,
		{domain.StatusPendingCPSO, domain.ActionCPSOApprove}:                   true,
		{domain.StatusPendingCPSO, domain.ActionReject}:                        true,
		{domain.StatusPendingCPSO, domain.ActionReturnToDraft}:                 true,
		{domain.StatusRejected, domain.ActionReturnToDraft}:                    true,
		{domain.StatusApproved, domain.ActionInitiateTransfer}:                 true,
		{domain.StatusPendingDTA, domain.ActionInitiateTransfer}:               true,
		{domain.StatusActiveTransfer, domain.ActionSMESign}:                    true,
		{domain.StatusActiveTransfer, domain.ActionCompleteTransfer}:           true,
		{domain.StatusPendingSME, domain.ActionCompleteTransfer}:               true,
		{domain.StatusPendingMediaCustodian, domain.ActionDispositionComplete}: true,
		{domain.StatusPendingMediaCustodian, domain.ActionDispositionDispose}:  true,
	}
	attrs := workflow.Attributes{RequiresDAO: boolPtr(true), SecondarySMEConfigured: true}
	// AdvanceDAO is legal with RequiresDAO, AdvanceSkipDAO with its negation;
	// use the permissive attribute set and special-case the skip action.
	for _, status := range domain.Statuses {
		for _, action := range domain.Actions {
			if legal[pair{status, action}] {
				continue
			}
			a := attrs
			if action == domain.ActionAdvanceSkipDAO {
				a.RequiresDAO = boolPtr(false)
			}
			_, err := workflow.Next(status, action, a)
			var illegal workflow.IllegalTransitionError
			assert.True(t, errors.As(err, &illegal), "expected illegal transition for %s/%s, got %v", status, action, err)
		}
	}
}

func TestNextBranchGuards(t *testing.T) {
	t.Run("advance-dao without requirement", func(t *testing.T) {
		_, err := workflow.Next(domain.StatusSubmitted, domain.ActionAdvanceDAO, workflow.Attributes{RequiresDAO: boolPtr(false)})
		var illegal workflow.IllegalTransitionError
		require.ErrorAs(t, err, &illegal)
		assert.Contains(t, illegal.Reason, "does not require DAO review")
	})
	t.Run("advance-dao never submitted", func(t *testing.T) {
		_, err := workflow.Next(domain.StatusSubmitted, domain.ActionAdvanceDAO, workflow.Attributes{})
		require.Error(t, err)
	})
	t.Run("skip-dao when required", func(t *testing.T) {
		_, err := workflow.Next(domain.StatusSubmitted, domain.ActionAdvanceSkipDAO, workflow.Attributes{RequiresDAO: boolPtr(true)})
		var illegal workflow.IllegalTransitionError
		require.ErrorAs(t, err, &illegal)
		assert.Contains(t, illegal.Reason, "cannot skip")
	})
	t.Run("sme-sign without secondary signer", func(t *testing.T) {
		_, err := workflow.Next(domain.StatusActiveTransfer, domain.ActionSMESign, workflow.Attributes{})
		var illegal workflow.IllegalTransitionError
		require.ErrorAs(t, err, &illegal)
		assert.Contains(t, illegal.Reason, "no secondary SME signer")
	})
}

func TestTerminalStatusesAdmitNoAction(t *testing.T) {
	attrs := workflow.Attributes{RequiresDAO: boolPtr(true), SecondarySMEConfigured: true}
	for _, status := range []domain.Status{domain.StatusCompleted, domain.StatusDisposed, domain.StatusCancelled} {
		for _, action := range domain.Actions {
			_, err := workflow.Next(status, action, attrs)
			assert.Error(t, err, "terminal %s should not admit %s", status, action)
		}
	}
	// rejected is terminal except for return-to-draft
	for _, action := range domain.Actions {
		_, err := workflow.Next(domain.StatusRejected, action, attrs)
		if action == domain.ActionReturnToDraft {
			assert.NoError(t, err)
		} else {
			assert.Error(t, err)
		}
	}
}
