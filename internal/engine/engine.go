// Package engine is the lifecycle orchestrator. Every status change goes
// through PerformAction, which runs the full pipeline: resolve actor, gate,
// transition table, payload validation, signature verification, then a single
// transaction holding the version-checked save, the signature rows, and the
// audit entry.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/audit"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/config"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/repo"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/signature"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Recorder
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Recorder{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SeedActors provisions the actors declared in config, adding roles they are
// missing. Existing actors are never downgraded.
func (e Engine) SeedActors(ctx context.Context) error {
	if e.Config == nil || len(e.Config.Actors) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	for _, seed := range e.Config.Actors {
		primary, err := domain.ParseRole(seed.PrimaryRole)
		if err != nil {
			return err
		}
		if err := e.Repo.EnsureActor(ctx, tx, seed.ID, primary, now); err != nil {
			return err
		}
		for _, r := range seed.Roles {
			role, err := domain.ParseRole(r)
			if err != nil {
				return err
			}
			if err := e.Repo.AssignRole(ctx, tx, seed.ID, role); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// RequestCreateOptions are parameters for creating a draft request.
type RequestCreateOptions struct {
	ActorID             string
	Classification      string
	TransferType        string
	Description         string
	EnableDualSignature *bool
	SecondarySignerType string
	SecondarySignerID   string
}

// CreateRequest opens a new request in draft. The acting actor becomes the
// requestor; only the orchestrator may move it out of draft afterwards.
func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (domain.AFTRequest, error) {
	actor, err := e.resolveActor(ctx, opts.ActorID)
	if err != nil {
		return domain.AFTRequest{}, err
	}
	if !actor.HasRole(domain.RoleRequestor) && !actor.HasRole(domain.RoleAdmin) {
		return domain.AFTRequest{}, workflow.AuthorizationError{
			Roles: actor.AllRoles(), Status: domain.StatusDraft, Action: domain.ActionSubmit,
			Reason: fmt.Sprintf("creating a request requires role requestor; actor %s holds neither requestor nor admin", actor.ID),
		}
	}
	classification, err := domain.ParseClassification(opts.Classification)
	if err != nil {
		return domain.AFTRequest{}, ValidationError{Field: "classification", Reason: err.Error()}
	}
	transferType, err := domain.ParseTransferType(opts.TransferType)
	if err != nil {
		return domain.AFTRequest{}, ValidationError{Field: "transfer_type", Reason: err.Error()}
	}

	dual := false
	signerType := opts.SecondarySignerType
	if e.Config != nil {
		dual = e.Config.Transfers.DualSignatureDefault
		if signerType == "" {
			signerType = e.Config.Transfers.SecondarySignerType
		}
	}
	if opts.EnableDualSignature != nil {
		dual = *opts.EnableDualSignature
	}
	if dual && signerType == "" {
		signerType = "sme"
	}
	if signerType != "" && signerType != "dta" && signerType != "sme" {
		return domain.AFTRequest{}, ValidationError{Field: "secondary_signer_type", Reason: "secondary signer type must be dta or sme"}
	}

	now := e.now().UTC()
	number, err := e.nextRequestNumber(ctx, now)
	if err != nil {
		return domain.AFTRequest{}, err
	}
	req := domain.AFTRequest{
		ID:                  uuid.New().String(),
		RequestNumber:       number,
		Status:              domain.StatusDraft,
		Classification:      classification,
		TransferType:        transferType,
		RequestorID:         actor.ID,
		Description:         opts.Description,
		EnableDualSignature: dual,
		SecondarySignerType: optionalString(signerType),
		SecondarySignerID:   optionalString(opts.SecondarySignerID),
		Version:             1,
		CreatedAt:           now.Format(time.RFC3339),
		UpdatedAt:           now.Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AFTRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequestTx(ctx, tx, req); err != nil {
		return domain.AFTRequest{}, err
	}
	entry := domain.AuditEntry{
		RequestID:  req.ID,
		ActorID:    actor.ID,
		Action:     "create",
		FromStatus: string(domain.StatusDraft),
		ToStatus:   string(domain.StatusDraft),
		Outcome:    domain.OutcomeSuccess,
		TS:         req.CreatedAt,
	}
	if err := e.Audit.Append(ctx, tx, entry); err != nil {
		return domain.AFTRequest{}, AuditWriteError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.AFTRequest{}, err
	}
	return req, nil
}

func (e Engine) nextRequestNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := "AFT"
	if e.Config != nil && e.Config.Numbering.Prefix != "" {
		prefix = e.Config.Numbering.Prefix
	}
	count, err := e.Repo.CountRequestsByYear(ctx, now.Year())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, now.Year(), count+1), nil
}

// DraftUpdateOptions are the fields editable while a request sits in draft.
// Nil pointers leave the field untouched.
type DraftUpdateOptions struct {
	ActorID             string
	RequestID           string
	Classification      *string
	TransferType        *string
	Description         *string
	EnableDualSignature *bool
	SecondarySignerType *string
	SecondarySignerID   *string
	ExpectedVersion     int64
}

// UpdateDraft edits request attributes. Only the requestor or an admin may
// edit, and only while the request is in draft.
func (e Engine) UpdateDraft(ctx context.Context, opts DraftUpdateOptions) (domain.AFTRequest, error) {
	actor, err := e.resolveActor(ctx, opts.ActorID)
	if err != nil {
		return domain.AFTRequest{}, err
	}
	req, err := e.Repo.GetRequest(ctx, opts.RequestID)
	if err != nil {
		return domain.AFTRequest{}, err
	}
	if req.Status != domain.StatusDraft {
		return req, workflow.IllegalTransitionError{
			Status: req.Status, Action: "edit",
			Reason: "request attributes are frozen once the request leaves draft",
		}
	}
	if err := e.requireOwnership(actor, req, "edit"); err != nil {
		return req, err
	}

	if opts.Classification != nil {
		c, err := domain.ParseClassification(*opts.Classification)
		if err != nil {
			return req, ValidationError{Field: "classification", Reason: err.Error()}
		}
		req.Classification = c
	}
	if opts.TransferType != nil {
		t, err := domain.ParseTransferType(*opts.TransferType)
		if err != nil {
			return req, ValidationError{Field: "transfer_type", Reason: err.Error()}
		}
		req.TransferType = t
	}
	if opts.Description != nil {
		req.Description = *opts.Description
	}
	if opts.EnableDualSignature != nil {
		req.EnableDualSignature = *opts.EnableDualSignature
	}
	if opts.SecondarySignerType != nil {
		if st := *opts.SecondarySignerType; st != "" && st != "dta" && st != "sme" {
			return req, ValidationError{Field: "secondary_signer_type", Reason: "secondary signer type must be dta or sme"}
		}
		req.SecondarySignerType = optionalString(*opts.SecondarySignerType)
	}
	if opts.SecondarySignerID != nil {
		req.SecondarySignerID = optionalString(*opts.SecondarySignerID)
	}
	req.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	expected := opts.ExpectedVersion
	if expected == 0 {
		expected = req.Version
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveRequest(ctx, tx, &req, expected); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return req, ConcurrentModificationError{RequestID: req.ID, ExpectedVersion: expected}
		}
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	return req, nil
}

// ActionInput is one orchestrator invocation.
type ActionInput struct {
	RequestID string
	ActorID   string
	Action    domain.Action

	// Reason is required for reject; optional context everywhere else.
	Reason string
	// Acknowledged confirms transfer procedures; required at submit.
	Acknowledged bool
	// DispositionMethod is required for the disposition actions.
	DispositionMethod string
	// Data is merged into the request's stage data under the action's key.
	Data map[string]any

	Signature       *signature.Input
	SecondSignature *signature.Input

	// ExpectedVersion guards against concurrent writers; 0 means the version
	// read inside this call.
	ExpectedVersion int64

	IPAddress string
	UserAgent string
}

// PerformAction runs one lifecycle action. Exactly one audit entry is written
// per invocation: atomically with the state change on success, standalone with
// a denied or error outcome otherwise. An audit write failure aborts the
// operation.
func (e Engine) PerformAction(ctx context.Context, in ActionInput) (domain.AFTRequest, error) {
	now := e.now().UTC().Format(time.RFC3339)
	entry := domain.AuditEntry{
		RequestID: in.RequestID,
		ActorID:   in.ActorID,
		Action:    string(in.Action),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		TS:        now,
	}
	var req domain.AFTRequest
	deny := func(cause error) (domain.AFTRequest, error) {
		entry.Outcome = domain.OutcomeDenied
		entry.Reason = cause.Error()
		if aerr := e.Audit.Append(ctx, nil, entry); aerr != nil {
			return req, AuditWriteError{Err: aerr}
		}
		return req, cause
	}
	fail := func(cause error) (domain.AFTRequest, error) {
		entry.Outcome = domain.OutcomeError
		entry.Reason = cause.Error()
		if aerr := e.Audit.Append(ctx, nil, entry); aerr != nil {
			return req, AuditWriteError{Err: aerr}
		}
		return req, cause
	}

	actor, err := e.resolveActor(ctx, in.ActorID)
	if err != nil {
		var authn AuthenticationError
		if errors.As(err, &authn) {
			return deny(err)
		}
		return fail(err)
	}
	req, err = e.Repo.GetRequest(ctx, in.RequestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return deny(err)
		}
		return fail(err)
	}
	entry.FromStatus = string(req.Status)

	if req.Archived {
		return deny(ValidationError{Field: "request", Reason: "request is archived"})
	}
	if err := workflow.Authorize(actor.AllRoles(), req.Status, in.Action); err != nil {
		return deny(err)
	}
	if isOwnershipGated(in.Action) {
		if err := e.requireOwnership(actor, req, in.Action); err != nil {
			return deny(err)
		}
	}
	entry.ActorRoleUsed = string(roleUsed(actor, req.Status, in.Action))

	// submit freezes the DAO branch decision before the table consults it
	if in.Action == domain.ActionSubmit {
		requires := workflow.RequiresDAOReview(req.Classification, req.TransferType)
		req.RequiresDAO = &requires
	}
	next, err := workflow.Next(req.Status, in.Action, workflow.Attributes{
		Classification:         req.Classification,
		TransferType:           req.TransferType,
		RequiresDAO:            req.RequiresDAO,
		SecondarySMEConfigured: secondarySMEConfigured(req),
		DualSignatureEnabled:   req.EnableDualSignature,
	})
	if err != nil {
		return deny(err)
	}
	if err := validatePayload(in); err != nil {
		return deny(err)
	}
	sigs, err := signature.Verify(req, in.Action, signature.Payload{
		Signature:       in.Signature,
		SecondSignature: in.SecondSignature,
	})
	if err != nil {
		return deny(err)
	}

	expected := in.ExpectedVersion
	if expected == 0 {
		expected = req.Version
	}
	applyEffects(&req, in, next, now)
	entry.ToStatus = string(next)

	txErr := func() error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := e.Repo.SaveRequest(ctx, tx, &req, expected); err != nil {
			return err
		}
		for _, sig := range sigs {
			sig.ID = uuid.New().String()
			sig.CreatedAt = now
			if err := e.Repo.InsertSignatureTx(ctx, tx, sig); err != nil {
				return err
			}
		}
		entry.Outcome = domain.OutcomeSuccess
		if err := e.Audit.Append(ctx, tx, entry); err != nil {
			return AuditWriteError{Err: err}
		}
		return tx.Commit()
	}()
	if txErr != nil {
		var awe AuditWriteError
		if errors.As(txErr, &awe) {
			return req, txErr
		}
		if errors.Is(txErr, repo.ErrVersionConflict) {
			return fail(ConcurrentModificationError{RequestID: req.ID, ExpectedVersion: expected})
		}
		if errors.Is(txErr, repo.ErrDuplicateSignature) {
			return deny(signature.Error{Step: stepLabel(sigs), Reason: "signature already recorded for this step and signer"})
		}
		return fail(txErr)
	}
	return req, nil
}

func validatePayload(in ActionInput) error {
	switch in.Action {
	case domain.ActionSubmit:
		if !in.Acknowledged {
			return ValidationError{Field: "acknowledged", Reason: "transfer procedures must be acknowledged at submission"}
		}
	case domain.ActionReject:
		if strings.TrimSpace(in.Reason) == "" {
			return ValidationError{Field: "reason", Reason: "a rejection reason is required"}
		}
	case domain.ActionDispositionComplete, domain.ActionDispositionDispose:
		if strings.TrimSpace(in.DispositionMethod) == "" {
			return ValidationError{Field: "disposition_method", Reason: "a disposition method is required"}
		}
	}
	return nil
}

// applyEffects mutates the request for a committed transition. Stage data is
// keyed by action so earlier stages are never overwritten.
func applyEffects(req *domain.AFTRequest, in ActionInput, next domain.Status, now string) {
	switch in.Action {
	case domain.ActionReject:
		req.RejectionReason = in.Reason
	case domain.ActionReturnToDraft:
		req.RejectionReason = ""
	case domain.ActionCPSOApprove:
		req.ApprovalDate = &now
	case domain.ActionInitiateTransfer:
		req.ActualStartDate = &now
	case domain.ActionCompleteTransfer:
		req.ActualEndDate = &now
	}

	data := in.Data
	if in.DispositionMethod != "" {
		if data == nil {
			data = map[string]any{}
		}
		data["disposition_method"] = in.DispositionMethod
	}
	if data != nil {
		switch in.Action {
		case domain.ActionDAOApprove, domain.ActionApproverApprove,
			domain.ActionCPSOApprove, domain.ActionReject:
			req.ApprovalData = mergeStage(req.ApprovalData, string(in.Action), data)
		case domain.ActionInitiateTransfer, domain.ActionSMESign,
			domain.ActionCompleteTransfer, domain.ActionDispositionComplete,
			domain.ActionDispositionDispose:
			req.TransferData = mergeStage(req.TransferData, string(in.Action), data)
		}
	}

	req.Status = next
	req.UpdatedAt = now
}

func mergeStage(existing map[string]any, stage string, data map[string]any) map[string]any {
	if existing == nil {
		existing = map[string]any{}
	}
	existing[stage] = data
	return existing
}

// Archive soft-hides a terminal request from default listings. Admin only.
func (e Engine) Archive(ctx context.Context, requestID, actorID string) error {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.HasRole(domain.RoleAdmin) {
		return workflow.AuthorizationError{
			Roles: actor.AllRoles(), Action: "archive",
			Reason: "archiving requires role admin",
		}
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !req.Status.Terminal() {
		return workflow.IllegalTransitionError{
			Status: req.Status, Action: "archive",
			Reason: "only requests in a terminal status can be archived",
		}
	}
	return e.Repo.ArchiveRequest(ctx, requestID)
}

func (e Engine) GetRequest(ctx context.Context, id string) (domain.AFTRequest, error) {
	return e.Repo.GetRequest(ctx, id)
}

func (e Engine) GetRequestByNumber(ctx context.Context, number string) (domain.AFTRequest, error) {
	return e.Repo.GetRequestByNumber(ctx, number)
}

func (e Engine) ListRequests(ctx context.Context, f repo.RequestFilters) ([]domain.AFTRequest, error) {
	return e.Repo.ListRequests(ctx, f)
}

func (e Engine) ListAudit(ctx context.Context, f audit.Filters) ([]domain.AuditEntry, error) {
	return e.Audit.List(ctx, f)
}

func (e Engine) ListSignatures(ctx context.Context, requestID string) ([]domain.Signature, error) {
	return e.Repo.ListSignatures(ctx, requestID)
}

// PermittedActions lists what an actor could attempt on a request right now.
// Advisory only; PerformAction re-checks everything.
func (e Engine) PermittedActions(ctx context.Context, requestID, actorID string) ([]domain.Action, error) {
	actor, err := e.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	actions := workflow.PermittedActions(actor.AllRoles(), req.Status)
	if actor.HasRole(domain.RoleAdmin) || actor.ID == req.RequestorID {
		return actions, nil
	}
	out := actions[:0]
	for _, a := range actions {
		if !isOwnershipGated(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (e Engine) resolveActor(ctx context.Context, actorID string) (domain.Actor, error) {
	if actorID == "" {
		return domain.Actor{}, AuthenticationError{ActorID: actorID, Reason: "actor id is required"}
	}
	actor, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Actor{}, AuthenticationError{ActorID: actorID, Reason: "unknown actor"}
		}
		return domain.Actor{}, err
	}
	if !actor.Active {
		return domain.Actor{}, AuthenticationError{ActorID: actorID, Reason: "actor is deactivated"}
	}
	return actor, nil
}

// requireOwnership restricts requestor-side actions to the request's own
// requestor. Admin bypasses ownership, never the gate or the table.
func (e Engine) requireOwnership(actor domain.Actor, req domain.AFTRequest, action domain.Action) error {
	if actor.ID == req.RequestorID || actor.HasRole(domain.RoleAdmin) {
		return nil
	}
	return workflow.AuthorizationError{
		Roles: actor.AllRoles(), Status: req.Status, Action: action,
		Reason: fmt.Sprintf("actor %s is not the requestor of this request", actor.ID),
	}
}

// secondarySMEConfigured reports whether the request names an SME as its
// secondary signer; only then is the sme-sign detour legal.
func secondarySMEConfigured(req domain.AFTRequest) bool {
	if req.SecondarySignerType == nil || *req.SecondarySignerType != "sme" {
		return false
	}
	return req.SecondarySignerID != nil && *req.SecondarySignerID != ""
}

func isOwnershipGated(action domain.Action) bool {
	switch action {
	case domain.ActionSubmit, domain.ActionCancel, domain.ActionReturnToDraft:
		return true
	}
	return false
}

// roleUsed picks the role that satisfied the gate, for the audit trail.
func roleUsed(actor domain.Actor, status domain.Status, action domain.Action) domain.Role {
	for _, r := range actor.AllRoles() {
		if workflow.Authorize([]domain.Role{r}, status, action) == nil {
			return r
		}
	}
	return actor.PrimaryRole
}

func stepLabel(sigs []domain.Signature) string {
	if len(sigs) == 0 {
		return ""
	}
	return sigs[0].StepType
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
