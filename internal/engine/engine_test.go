package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/audit"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/config"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/db"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/engine"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/migrate"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/repo"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/signature"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var testActors = map[string]domain.Role{
	"req-1":  domain.RoleRequestor,
	"req-2":  domain.RoleRequestor,
	"dao-1":  domain.RoleDAO,
	"app-1":  domain.RoleApprover,
	"cpso-1": domain.RoleCPSO,
	"dta-1":  domain.RoleDTA,
	"sme-1":  domain.RoleSME,
	"mc-1":   domain.RoleMediaCustodian,
	"adm-1":  domain.RoleAdmin,
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("test-org"))
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	now := eng.Now().Format(time.RFC3339)
	for id, role := range testActors {
		if err := eng.Repo.EnsureActor(ctx, nil, id, role, now); err != nil {
			t.Fatalf("seed actor %s: %v", id, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func sigInput(signer string) *signature.Input {
	return &signature.Input{
		SignerID:              signer,
		SignatureMaterial:     "material-" + signer,
		CertificateThumbprint: "thumb-" + signer,
	}
}

func (env testEnv) createDraft(t *testing.T, classification, transferType string) domain.AFTRequest {
	t.Helper()
	dual := false
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ActorID:             "req-1",
		Classification:      classification,
		TransferType:        transferType,
		Description:         "test transfer",
		EnableDualSignature: &dual,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (env testEnv) act(t *testing.T, in engine.ActionInput) domain.AFTRequest {
	t.Helper()
	req, err := env.Engine.PerformAction(env.Ctx, in)
	if err != nil {
		t.Fatalf("%s by %s: %v", in.Action, in.ActorID, err)
	}
	return req
}

func TestCreateRequestNumbering(t *testing.T) {
	env := newTestEnv(t)
	first := env.createDraft(t, "cui", "low-to-low")
	second := env.createDraft(t, "cui", "low-to-low")
	if first.RequestNumber != "AFT-2026-0001" {
		t.Fatalf("unexpected first number %s", first.RequestNumber)
	}
	if second.RequestNumber != "AFT-2026-0002" {
		t.Fatalf("unexpected second number %s", second.RequestNumber)
	}
	if first.Status != domain.StatusDraft || first.Version != 1 {
		t.Fatalf("unexpected draft state: %s v%d", first.Status, first.Version)
	}
	if first.RequiresDAO != nil {
		t.Fatalf("requires_dao should be unset before submission")
	}
}

func TestFullLifecycleLowToLow(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true,
		Signature: sigInput("req-1"),
	})
	if req.Status != domain.StatusSubmitted {
		t.Fatalf("after submit: %s", req.Status)
	}
	if req.RequiresDAO == nil || *req.RequiresDAO {
		t.Fatalf("cui low-to-low should freeze requires_dao=false")
	}

	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO})
	if req.Status != domain.StatusPendingApprover {
		t.Fatalf("after skip-dao: %s", req.Status)
	}

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "app-1", Action: domain.ActionApproverApprove,
		Signature: sigInput("app-1"),
	})
	if req.Status != domain.StatusPendingCPSO {
		t.Fatalf("after approver: %s", req.Status)
	}

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "cpso-1", Action: domain.ActionCPSOApprove,
		Signature: sigInput("cpso-1"),
	})
	if req.Status != domain.StatusApproved {
		t.Fatalf("after cpso: %s", req.Status)
	}
	if req.ApprovalDate == nil {
		t.Fatalf("cpso approval should set approval date")
	}

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "dta-1", Action: domain.ActionInitiateTransfer,
		Acknowledged: true,
	})
	if req.Status != domain.StatusActiveTransfer {
		t.Fatalf("after initiate: %s", req.Status)
	}
	if req.ActualStartDate == nil {
		t.Fatalf("initiate should set actual start date")
	}

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "dta-1", Action: domain.ActionCompleteTransfer,
		Signature: sigInput("dta-1"),
	})
	if req.Status != domain.StatusPendingMediaCustodian {
		t.Fatalf("after complete: %s", req.Status)
	}
	if req.ActualEndDate == nil {
		t.Fatalf("complete should set actual end date")
	}

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "mc-1", Action: domain.ActionDispositionComplete,
		DispositionMethod: "returned-to-owner",
		Signature:         sigInput("mc-1"),
	})
	if req.Status != domain.StatusCompleted {
		t.Fatalf("after disposition: %s", req.Status)
	}

	sigs, err := env.Engine.ListSignatures(env.Ctx, req.ID)
	if err != nil {
		t.Fatalf("list signatures: %v", err)
	}
	if len(sigs) != 5 {
		t.Fatalf("expected 5 signatures, got %d", len(sigs))
	}
}

func TestHighToLowRoutesThroughDAO(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "high-to-low")

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true,
		Signature: sigInput("req-1"),
	})
	if req.RequiresDAO == nil || !*req.RequiresDAO {
		t.Fatalf("high-to-low should freeze requires_dao=true")
	}

	// skipping DAO must be refused
	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO,
	})
	var illegal workflow.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceDAO})
	if req.Status != domain.StatusPendingDAO {
		t.Fatalf("after advance-dao: %s", req.Status)
	}
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionDAOApprove,
		Signature: sigInput("dao-1"),
	})
	if req.Status != domain.StatusPendingApprover {
		t.Fatalf("after dao-approve: %s", req.Status)
	}
}

func TestSecretClassificationRequiresDAO(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "secret", "low-to-low")
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true,
		Signature: sigInput("req-1"),
	})
	if req.RequiresDAO == nil || !*req.RequiresDAO {
		t.Fatalf("secret should freeze requires_dao=true")
	}
}

func TestDeniedActionIsAudited(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true,
		Signature: sigInput("req-1"),
	})

	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "cpso-1", Action: domain.ActionCPSOApprove,
		Signature: sigInput("cpso-1"),
	})
	var authz workflow.AuthorizationError
	if !errors.As(err, &authz) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	entries, err := env.Engine.ListAudit(env.Ctx, audit.Filters{RequestID: req.ID, Limit: 1})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != domain.OutcomeDenied {
		t.Fatalf("expected latest entry denied, got %+v", entries)
	}
	if entries[0].ActorID != "cpso-1" || entries[0].Action != string(domain.ActionCPSOApprove) {
		t.Fatalf("denied entry misattributed: %+v", entries[0])
	}

	// the request itself is untouched
	cur, err := env.Engine.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusSubmitted || cur.Version != req.Version {
		t.Fatalf("denied action mutated request: %s v%d", cur.Status, cur.Version)
	}
}

func TestUnknownActorInvocationIsAudited(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	before, err := env.Engine.Audit.CountForRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "ghost", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("ghost"),
	})
	var authn engine.AuthenticationError
	if !errors.As(err, &authn) {
		t.Fatalf("expected authentication error, got %v", err)
	}

	after, err := env.Engine.Audit.CountForRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after != before+1 {
		t.Fatalf("unknown actor left no audit trace: before=%d after=%d", before, after)
	}
	entries, err := env.Engine.ListAudit(env.Ctx, audit.Filters{RequestID: req.ID, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Outcome != domain.OutcomeDenied || entries[0].ActorID != "ghost" {
		t.Fatalf("denied entry wrong: %+v", entries)
	}
}

func TestUnknownRequestInvocationIsAudited(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: "no-such-request", ActorID: "dao-1", Action: domain.ActionAdvanceDAO,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	entries, err := env.Engine.ListAudit(env.Ctx, audit.Filters{RequestID: "no-such-request"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Outcome != domain.OutcomeDenied || entries[0].ActorID != "dao-1" {
		t.Fatalf("missing-request entry wrong: %+v", entries)
	}
}

func TestExactlyOneAuditEntryPerInvocation(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	invocations := 1 // create

	env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})
	invocations++
	env.Engine.PerformAction(env.Ctx, engine.ActionInput{RequestID: req.ID, ActorID: "cpso-1", Action: domain.ActionCPSOApprove})
	invocations++
	env.Engine.PerformAction(env.Ctx, engine.ActionInput{RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionReject})
	invocations++ // denied: empty reason
	env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO})
	invocations++

	count, err := env.Engine.Audit.CountForRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if count != invocations {
		t.Fatalf("expected %d audit entries, got %d", invocations, count)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})

	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionReject,
	})
	var valErr engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionReject,
		Reason: "incomplete justification",
	})
	if req.Status != domain.StatusRejected || req.RejectionReason != "incomplete justification" {
		t.Fatalf("reject outcome wrong: %s %q", req.Status, req.RejectionReason)
	}

	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionReturnToDraft})
	if req.Status != domain.StatusDraft || req.RejectionReason != "" {
		t.Fatalf("return-to-draft should clear rejection reason: %s %q", req.Status, req.RejectionReason)
	}
}

func TestSubmitRequiresAcknowledgement(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit,
		Signature: sigInput("req-1"),
	})
	var valErr engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	cur, err := env.Engine.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != domain.StatusDraft {
		t.Fatalf("unacknowledged submit moved request: %s", cur.Status)
	}
}

func TestInitiateTransferNeedsNoAcknowledgement(t *testing.T) {
	env := newTestEnv(t)
	req := approvedRequest(t, env)
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "dta-1", Action: domain.ActionInitiateTransfer,
	})
	if req.Status != domain.StatusActiveTransfer {
		t.Fatalf("after initiate: %s", req.Status)
	}
}

func TestOwnershipGate(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")

	// a different requestor cannot submit someone else's draft
	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-2", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-2"),
	})
	var authz workflow.AuthorizationError
	if !errors.As(err, &authz) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if authz.Action != domain.ActionSubmit {
		t.Fatalf("ownership denial should carry the action, got %q", authz.Action)
	}

	// admin bypasses ownership
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "adm-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("adm-1"),
	})
	if req.Status != domain.StatusSubmitted {
		t.Fatalf("admin submit failed: %s", req.Status)
	}
}

func TestStaleVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	stale := req.Version

	env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})

	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO,
		ExpectedVersion: stale,
	})
	var conflict engine.ConcurrentModificationError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected concurrent modification error, got %v", err)
	}
}

func TestConcurrentActorsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})
	version := req.Version

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.PerformAction(env.Ctx, engine.ActionInput{
				RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO,
				ExpectedVersion: version,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict engine.ConcurrentModificationError
		var illegal workflow.IllegalTransitionError
		if !errors.As(err, &conflict) && !errors.As(err, &illegal) {
			t.Fatalf("unexpected racer error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
}

func TestDualSignatureTPI(t *testing.T) {
	env := newTestEnv(t)
	dual := true
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ActorID:             "req-1",
		Classification:      "cui",
		TransferType:        "low-to-low",
		EnableDualSignature: &dual,
		SecondarySignerType: "sme",
		SecondarySignerID:   "sme-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	req = driveToActiveTransfer(t, env, req)

	// same thumbprint on both signatures
	_, err = env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "dta-1", Action: domain.ActionCompleteTransfer,
		Signature: sigInput("dta-1"),
		SecondSignature: &signature.Input{
			SignerID: "sme-1", SignatureMaterial: "m2", CertificateThumbprint: "thumb-dta-1",
		},
	})
	var tpi signature.TPIViolationError
	if !errors.As(err, &tpi) {
		t.Fatalf("expected TPI violation, got %v", err)
	}

	// distinct signers succeed, recording both signatures
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "dta-1", Action: domain.ActionCompleteTransfer,
		Signature:       sigInput("dta-1"),
		SecondSignature: sigInput("sme-1"),
	})
	if req.Status != domain.StatusPendingMediaCustodian {
		t.Fatalf("after dual complete: %s", req.Status)
	}
	sigs, err := env.Engine.ListSignatures(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	steps := map[string]bool{}
	for _, s := range sigs {
		steps[s.StepType] = true
	}
	if !steps[signature.StepDTATransfer] || !steps[signature.StepSecondaryTPI] {
		t.Fatalf("missing transfer signature steps: %+v", steps)
	}
}

func TestSMESignNeedsSMESecondary(t *testing.T) {
	env := newTestEnv(t)
	dual := true

	// secondary signer is a DTA: the SME review detour is not available
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ActorID: "req-1", Classification: "cui", TransferType: "low-to-low",
		EnableDualSignature: &dual,
		SecondarySignerType: "dta",
		SecondarySignerID:   "dta-2",
	})
	if err != nil {
		t.Fatal(err)
	}
	req = driveToActiveTransfer(t, env, req)
	_, err = env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "sme-1", Action: domain.ActionSMESign,
		Signature: sigInput("sme-1"),
	})
	var illegal workflow.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	// secondary signer is an SME: the detour is open
	req, err = env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ActorID: "req-1", Classification: "cui", TransferType: "low-to-low",
		EnableDualSignature: &dual,
		SecondarySignerType: "sme",
		SecondarySignerID:   "sme-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	req = driveToActiveTransfer(t, env, req)
	req = env.act(t, engine.ActionInput{
		RequestID: req.ID, ActorID: "sme-1", Action: domain.ActionSMESign,
		Signature: sigInput("sme-1"),
	})
	if req.Status != domain.StatusPendingSME {
		t.Fatalf("after sme-sign: %s", req.Status)
	}
}

func TestCreateRequestRejectsUnknownSecondaryType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ActorID: "req-1", Classification: "cui", TransferType: "low-to-low",
		SecondarySignerType: "media_custodian",
	})
	var valErr engine.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArchiveTerminalOnly(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")

	if err := env.Engine.Archive(env.Ctx, req.ID, "adm-1"); err == nil {
		t.Fatalf("expected archive of draft to fail")
	}

	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionCancel})
	if req.Status != domain.StatusCancelled {
		t.Fatalf("after cancel: %s", req.Status)
	}

	if err := env.Engine.Archive(env.Ctx, req.ID, "req-1"); err == nil {
		t.Fatalf("expected non-admin archive to fail")
	}
	if err := env.Engine.Archive(env.Ctx, req.ID, "adm-1"); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// archived requests refuse further actions
	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1"),
	})
	if err == nil {
		t.Fatalf("expected action on archived request to fail")
	}
}

func TestDeactivatedActorRefused(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")
	if err := env.Engine.Repo.SetActorActive(env.Ctx, "req-1", false); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.PerformAction(env.Ctx, engine.ActionInput{
		RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1"),
	})
	var authn engine.AuthenticationError
	if !errors.As(err, &authn) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestUpdateDraftOnly(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")

	desc := "updated description"
	updated, err := env.Engine.UpdateDraft(env.Ctx, engine.DraftUpdateOptions{
		RequestID: req.ID, ActorID: "req-1", Description: &desc,
	})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if updated.Description != desc || updated.Version != req.Version+1 {
		t.Fatalf("update wrong: %q v%d", updated.Description, updated.Version)
	}

	env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})
	_, err = env.Engine.UpdateDraft(env.Ctx, engine.DraftUpdateOptions{
		RequestID: req.ID, ActorID: "req-1", Description: &desc,
	})
	var illegal workflow.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected illegal transition for non-draft edit, got %v", err)
	}
}

func TestStageDataMerging(t *testing.T) {
	env := newTestEnv(t)
	req := approvedRequest(t, env)
	cur, err := env.Engine.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cur.ApprovalData[string(domain.ActionCPSOApprove)]; !ok {
		t.Fatalf("expected cpso stage data, got %+v", cur.ApprovalData)
	}
}

func TestPermittedActions(t *testing.T) {
	env := newTestEnv(t)
	req := env.createDraft(t, "cui", "low-to-low")

	actions, err := env.Engine.PermittedActions(env.Ctx, req.ID, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if !containsAction(actions, domain.ActionSubmit) || !containsAction(actions, domain.ActionCancel) {
		t.Fatalf("owner should see submit and cancel: %v", actions)
	}

	// a non-owner requestor sees no ownership-gated actions
	actions, err = env.Engine.PermittedActions(env.Ctx, req.ID, "req-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 0 {
		t.Fatalf("non-owner should see nothing: %v", actions)
	}
}

func containsAction(actions []domain.Action, want domain.Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

// approvedRequest drives a fresh cui low-to-low request to approved.
func approvedRequest(t *testing.T, env testEnv) domain.AFTRequest {
	t.Helper()
	req := env.createDraft(t, "cui", "low-to-low")
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "app-1", Action: domain.ActionApproverApprove, Signature: sigInput("app-1")})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "cpso-1", Action: domain.ActionCPSOApprove, Signature: sigInput("cpso-1"), Data: map[string]any{"note": "ok"}})
	return req
}

// driveToActiveTransfer moves an existing draft through approval into
// active_transfer.
func driveToActiveTransfer(t *testing.T, env testEnv, req domain.AFTRequest) domain.AFTRequest {
	t.Helper()
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "req-1", Action: domain.ActionSubmit, Acknowledged: true, Signature: sigInput("req-1")})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "dao-1", Action: domain.ActionAdvanceSkipDAO})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "app-1", Action: domain.ActionApproverApprove, Signature: sigInput("app-1")})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "cpso-1", Action: domain.ActionCPSOApprove, Signature: sigInput("cpso-1")})
	req = env.act(t, engine.ActionInput{RequestID: req.ID, ActorID: "dta-1", Action: domain.ActionInitiateTransfer, Acknowledged: true})
	return req
}
