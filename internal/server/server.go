// Package server exposes the request lifecycle over HTTP. One operation is
// registered per lifecycle action; all of them funnel into the orchestrator.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/audit"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/engine"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/logging"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/metrics"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/repo"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/signature"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_transition"`
	Message string         `json:"message" example:"action submit is not legal from status approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the AFT API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger)
	router.Use(WithClientInfo)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	hcfg := huma.DefaultConfig("AFT API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerActors(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

// handleError maps the orchestrator's error taxonomy onto the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var authn engine.AuthenticationError
	if errors.As(err, &authn) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	var authz workflow.AuthorizationError
	if errors.As(err, &authz) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{
			"action": string(authz.Action), "status": string(authz.Status),
		})
	}
	var ite workflow.IllegalTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusUnprocessableEntity, "illegal_transition", err.Error(), map[string]any{
			"action": string(ite.Action), "status": string(ite.Status),
		})
	}
	var tpi signature.TPIViolationError
	if errors.As(err, &tpi) {
		return newAPIError(http.StatusUnprocessableEntity, "tpi_violation", err.Error(), map[string]any{
			"signer_id": tpi.SignerID,
		})
	}
	var sige signature.Error
	if errors.As(err, &sige) {
		return newAPIError(http.StatusUnprocessableEntity, "signature_invalid", err.Error(), map[string]any{
			"step": sige.Step,
		})
	}
	var cme engine.ConcurrentModificationError
	if errors.As(err, &cme) {
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(), map[string]any{
			"expected_version": cme.ExpectedVersion,
		})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var awe engine.AuditWriteError
	if errors.As(err, &awe) {
		return newAPIError(http.StatusInternalServerError, "audit_write_failed", "internal error", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	log := logging.Component("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, r.URL.Path, rec.status, elapsed.Seconds())
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>AFT API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		resp := MeResponse{ActorID: p.ActorID, Source: p.Source}
		actor, err := e.Repo.GetActor(ctx, p.ActorID)
		if err == nil {
			resp.Roles = rolesToStrings(actor.AllRoles())
			resp.Active = actor.Active
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Create request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRequestRequest `json:"body"`
	}) (*struct {
		Body domain.AFTRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.RequestCreateOptions{
			ActorID:             actorID,
			Classification:      input.Body.Classification,
			TransferType:        input.Body.TransferType,
			EnableDualSignature: input.Body.EnableDualSignature,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.SecondarySignerType != nil {
			opts.SecondarySignerType = *input.Body.SecondarySignerType
		}
		if input.Body.SecondarySignerID != nil {
			opts.SecondarySignerID = *input.Body.SecondarySignerID
		}
		req, err := e.CreateRequest(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		metrics.RecordRequestCreated()
		return &struct {
			Body domain.AFTRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status"`
		RequestorID     string `query:"requestor_id"`
		TransferType    string `query:"transfer_type"`
		IncludeArchived bool   `query:"include_archived"`
		Limit           int    `query:"limit" default:"50"`
		Cursor          string `query:"cursor"`
	}) (*struct {
		Body paginatedRequests `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListRequests(ctx, repo.RequestFilters{
			Status:          input.Status,
			RequestorID:     input.RequestorID,
			TransferType:    input.TransferType,
			IncludeArchived: input.IncludeArchived,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedRequests{Items: []domain.AFTRequest{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = items
		return &struct {
			Body paginatedRequests `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{id}",
		Summary:     "Get request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.AFTRequest `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		req, err := e.GetRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AFTRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-request",
		Method:      http.MethodPatch,
		Path:        "/requests/{id}",
		Summary:     "Update draft request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateRequestRequest `json:"body"`
	}) (*struct {
		Body domain.AFTRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.UpdateDraft(ctx, engine.DraftUpdateOptions{
			ActorID:             actorID,
			RequestID:           input.ID,
			Classification:      input.Body.Classification,
			TransferType:        input.Body.TransferType,
			Description:         input.Body.Description,
			EnableDualSignature: input.Body.EnableDualSignature,
			SecondarySignerType: input.Body.SecondarySignerType,
			SecondarySignerID:   input.Body.SecondarySignerID,
			ExpectedVersion:     input.Body.ExpectedVersion,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AFTRequest `json:"body"`
		}{Body: req}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/archive",
		Summary:     "Archive request",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Archive(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-signatures",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/signatures",
		Summary:     "List request signatures",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Signature `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetRequest(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		sigs, err := e.ListSignatures(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if sigs == nil {
			sigs = []domain.Signature{}
		}
		return &struct {
			Body []domain.Signature `json:"body"`
		}{Body: sigs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-permitted-actions",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/actions",
		Summary:     "Actions the caller may attempt",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actions, err := e.PermittedActions(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: actionsToStrings(actions)}, nil
	})
}

// registerActions registers one POST operation per lifecycle action. Every
// handler is the same shape; only the action differs.
func registerActions(api huma.API, e engine.Engine) {
	for _, action := range domain.Actions {
		action := action
		huma.Register(api, huma.Operation{
			OperationID: string(action) + "-request",
			Method:      http.MethodPost,
			Path:        "/requests/{id}/" + string(action),
			Summary:     "Perform " + string(action),
			Errors: []int{
				http.StatusBadRequest,
				http.StatusUnauthorized,
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusUnprocessableEntity,
				http.StatusInternalServerError,
			},
		}, func(ctx context.Context, input *struct {
			ID   string        `path:"id"`
			Body ActionRequest `json:"body"`
		}) (*struct {
			Body domain.AFTRequest `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			req, err := e.PerformAction(ctx, engine.ActionInput{
				RequestID:         input.ID,
				ActorID:           actorID,
				Action:            action,
				Reason:            input.Body.Reason,
				Acknowledged:      input.Body.Acknowledged,
				DispositionMethod: input.Body.DispositionMethod,
				Data:              input.Body.Data,
				Signature:         input.Body.Signature.toVerifier(),
				SecondSignature:   input.Body.SecondSignature.toVerifier(),
				ExpectedVersion:   input.Body.ExpectedVersion,
				IPAddress:         remoteAddr(ctx),
				UserAgent:         userAgent(ctx),
			})
			metrics.RecordAction(string(action), actionOutcome(err))
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.AFTRequest `json:"body"`
			}{Body: req}, nil
		})
	}
}

// actionOutcome mirrors the audit outcome for the metrics label.
func actionOutcome(err error) string {
	if err == nil {
		return domain.OutcomeSuccess
	}
	var (
		authn engine.AuthenticationError
		authz workflow.AuthorizationError
		ite   workflow.IllegalTransitionError
		sige  signature.Error
		tpi   signature.TPIViolationError
		ve    engine.ValidationError
	)
	if errors.As(err, &authn) || errors.As(err, &authz) || errors.As(err, &ite) ||
		errors.As(err, &sige) || errors.As(err, &tpi) || errors.As(err, &ve) {
		return domain.OutcomeDenied
	}
	return domain.OutcomeError
}

func registerAudit(api huma.API, e engine.Engine) {
	type auditQuery struct {
		RequestID string `query:"request_id"`
		ActorID   string `query:"actor_id"`
		Action    string `query:"action"`
		Outcome   string `query:"outcome"`
		Since     string `query:"since"`
		Until     string `query:"until"`
		Limit     int    `query:"limit" default:"100"`
		Cursor    string `query:"cursor"`
	}
	list := func(ctx context.Context, f audit.Filters) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		limit := f.Limit
		f.Limit = limit + 1
		entries, err := e.ListAudit(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAudit{Items: []domain.AuditEntry{}}
		if len(entries) > limit {
			resp.NextCursor = strconv.FormatInt(entries[limit].ID, 10)
			entries = entries[:limit]
		}
		resp.Items = entries
		return &struct {
			Body paginatedAudit `json:"body"`
		}{Body: resp}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Query the audit trail",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *auditQuery) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cursorID, err := parseAuditCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		return list(ctx, audit.Filters{
			RequestID: input.RequestID,
			ActorID:   input.ActorID,
			Action:    input.Action,
			Outcome:   input.Outcome,
			Since:     input.Since,
			Until:     input.Until,
			Limit:     normalizeLimit(input.Limit),
			CursorID:  cursorID,
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-audit",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/audit",
		Summary:     "Audit trail for one request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Limit  int    `query:"limit" default:"100"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetRequest(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		cursorID, err := parseAuditCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		return list(ctx, audit.Filters{
			RequestID: input.ID,
			Limit:     normalizeLimit(input.Limit),
			CursorID:  cursorID,
		})
	})
}

func requireAdmin(ctx context.Context, e engine.Engine) (string, huma.StatusError) {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return "", authErr
	}
	actor, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return "", handleError(err)
	}
	if !actor.HasRole(domain.RoleAdmin) {
		return "", newAPIError(http.StatusForbidden, "forbidden", "administrator role required", nil)
	}
	return actorID, nil
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Create or update actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		primary, err := domain.ParseRole(input.Body.PrimaryRole)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.EnsureActor(ctx, nil, input.Body.ID, primary, now); err != nil {
			return nil, handleError(err)
		}
		for _, r := range input.Body.Roles {
			role, err := domain.ParseRole(r)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
			}
			if err := e.Repo.AssignRole(ctx, nil, input.Body.ID, role); err != nil {
				return nil, handleError(err)
			}
		}
		actor, err := e.Repo.GetActor(ctx, input.Body.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: actor}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Actor `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		actors, err := e.Repo.ListActors(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if actors == nil {
			actors = []domain.Actor{}
		}
		return &struct {
			Body []domain.Actor `json:"body"`
		}{Body: actors}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-actor",
		Method:      http.MethodPost,
		Path:        "/actors/{id}/deactivate",
		Summary:     "Deactivate actor",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := requireAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.SetActorActive(ctx, input.ID, false); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-actor-role",
		Method:      http.MethodDelete,
		Path:        "/actors/{id}/roles/{role}",
		Summary:     "Revoke actor role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Role string `path:"role"`
	}) (*struct{}, error) {
		if _, authErr := requireAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		role, err := domain.ParseRole(input.Role)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.Repo.RevokeRole(ctx, nil, input.ID, role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Issue API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		if _, err := e.Repo.GetActor(ctx, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		plaintext := uuid.New().String()
		key := domain.APIKey{
			ID:        uuid.New().String(),
			ActorID:   input.Body.ActorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(plaintext),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{ID: key.ID, ActorID: key.ActorID, Key: plaintext}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := requireAdmin(ctx, e); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// --- cursors and misc helpers ---

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func composeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return parts[0], parts[1], nil
}

func parseAuditCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	return strconv.ParseInt(cursor, 10, 64)
}

type clientInfoKey struct{}

// ClientInfo carries the caller's address and agent into handlers.
type ClientInfo struct {
	RemoteAddr string
	UserAgent  string
}

// WithClientInfo is installed by the router so action handlers can stamp the
// audit trail.
func WithClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientInfoKey{}, ClientInfo{
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func remoteAddr(ctx context.Context) string {
	if info, ok := ctx.Value(clientInfoKey{}).(ClientInfo); ok {
		return info.RemoteAddr
	}
	return ""
}

func userAgent(ctx context.Context) string {
	if info, ok := ctx.Value(clientInfoKey{}).(ClientInfo); ok {
		return info.UserAgent
	}
	return ""
}
