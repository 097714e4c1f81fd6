// Package aftsdk is a minimal client for the AFT HTTP API.
package aftsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one AFT server. Authentication is a bearer token or an API
// key; the token wins when both are set.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Request is the API request model (partial).
type Request struct {
	ID              string `json:"id"`
	RequestNumber   string `json:"request_number"`
	Status          string `json:"status"`
	Classification  string `json:"classification"`
	TransferType    string `json:"transfer_type"`
	RequestorID     string `json:"requestor_id"`
	Description     string `json:"description,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Version         int64  `json:"version"`
}

// AuditEntry is one transition log row.
type AuditEntry struct {
	ID         int64  `json:"id"`
	RequestID  string `json:"request_id"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status,omitempty"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	TS         string `json:"ts"`
}

// Signature is a recorded signature row.
type Signature struct {
	ID                    string `json:"id"`
	RequestID             string `json:"request_id"`
	SignerID              string `json:"signer_id"`
	StepType              string `json:"step_type"`
	CertificateThumbprint string `json:"certificate_thumbprint"`
	IsVerified            bool   `json:"is_verified"`
	CreatedAt             string `json:"created_at"`
}

// SignatureInput is one signature attached to an action.
type SignatureInput struct {
	SignerID              string `json:"signer_id"`
	SignatureMaterial     string `json:"signature_material"`
	CertificateThumbprint string `json:"certificate_thumbprint"`
}

// ActionOptions carries the optional action payload fields.
type ActionOptions struct {
	Reason            string          `json:"reason,omitempty"`
	Acknowledged      bool            `json:"acknowledged,omitempty"`
	DispositionMethod string          `json:"disposition_method,omitempty"`
	Data              map[string]any  `json:"data,omitempty"`
	Signature         *SignatureInput `json:"signature,omitempty"`
	SecondSignature   *SignatureInput `json:"second_signature,omitempty"`
	ExpectedVersion   int64           `json:"expected_version,omitempty"`
}

// Me describes the authenticated actor.
type Me struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Active  bool     `json:"active"`
	Source  string   `json:"source"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRequests wraps request listings with a cursor.
type PaginatedRequests struct {
	Items      []Request `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedAudit wraps audit listings with a cursor.
type PaginatedAudit struct {
	Items      []AuditEntry `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// CreateRequest opens a draft request.
func (c *Client) CreateRequest(ctx context.Context, classification, transferType, description string) (Request, error) {
	body := map[string]any{
		"classification": classification,
		"transfer_type":  transferType,
		"description":    description,
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests", body, &resp)
	return resp, err
}

// GetRequest fetches a request by id.
func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListRequests returns a page of requests, optionally filtered by status.
func (c *Client) ListRequests(ctx context.Context, status string, limit int, cursor string) (PaginatedRequests, error) {
	endpoint := "requests"
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedRequests
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PerformAction runs one lifecycle action against a request.
func (c *Client) PerformAction(ctx context.Context, requestID, action string, opts ActionOptions) (Request, error) {
	var resp Request
	endpoint := fmt.Sprintf("requests/%s/%s", url.PathEscape(requestID), url.PathEscape(action))
	err := c.do(ctx, http.MethodPost, endpoint, opts, &resp)
	return resp, err
}

// PermittedActions lists the actions the caller may attempt on a request.
func (c *Client) PermittedActions(ctx context.Context, requestID string) ([]string, error) {
	var resp []string
	endpoint := fmt.Sprintf("requests/%s/actions", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Signatures lists the signatures recorded for a request.
func (c *Client) Signatures(ctx context.Context, requestID string) ([]Signature, error) {
	var resp []Signature
	endpoint := fmt.Sprintf("requests/%s/signatures", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AuditPage returns a page of a request's audit trail.
func (c *Client) AuditPage(ctx context.Context, requestID string, limit int, cursor string) (PaginatedAudit, error) {
	endpoint := fmt.Sprintf("requests/%s/audit", url.PathEscape(requestID))
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedAudit
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Whoami resolves the authenticated actor.
func (c *Client) Whoami(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
