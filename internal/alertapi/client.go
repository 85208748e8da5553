// Package alertapi is the HTTP client for the remote alert backend.
// Failures are classified at this boundary: *APIError for structured
// server rejections, ErrTransport for anything that never produced a
// server response.
package alertapi

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"

    "quicksecure/internal/model"
)

const defaultTimeout = 30 * time.Second

// ErrTransport marks network-class failures (unreachable, reset, request
// timeout). These are the only failures eligible for offline queuing.
var ErrTransport = errors.New("transport failure")

// APIError is a structured rejection from the backend.
type APIError struct {
    Status int
    Code   string
    Detail string
}

func (e *APIError) Error() string {
    if e.Detail != "" {
        return fmt.Sprintf("server rejected (%d): %s", e.Status, e.Detail)
    }
    return fmt.Sprintf("server rejected (%d)", e.Status)
}

// HeaderSource supplies bearer-style auth headers for each request.
type HeaderSource func(ctx context.Context) (http.Header, error)

type Client struct {
    BaseURL string
    HTTP    *http.Client
    Headers HeaderSource
    Timeout time.Duration
}

func NewClient(baseURL string, headers HeaderSource) *Client {
    return &Client{
        BaseURL: strings.TrimRight(baseURL, "/"),
        HTTP:    &http.Client{},
        Headers: headers,
        Timeout: defaultTimeout,
    }
}

// envelope is the backend's success wrapper for alert endpoints.
type envelope struct {
    Success bool               `json:"success"`
    Message string             `json:"message"`
    Alert   *model.AlertRecord `json:"alert,omitempty"`
}

// apiErrorBody is the backend's error wrapper.
type apiErrorBody struct {
    Error   string          `json:"error"`
    Code    string          `json:"code,omitempty"`
    Details json.RawMessage `json:"details,omitempty"`
}

// AlertsPage is a paginated alert listing.
type AlertsPage struct {
    Alerts     []model.AlertRecord `json:"alerts"`
    Pagination struct {
        Total   int  `json:"total"`
        Limit   int  `json:"limit"`
        Offset  int  `json:"offset"`
        HasMore bool `json:"has_more"`
    } `json:"pagination"`
}

// CreateAlert posts the payload to /mobile/alerts using the client's
// header source and default timeout.
func (c *Client) CreateAlert(ctx context.Context, p model.AlertPayload) (model.AlertRecord, error) {
    hdr, err := c.Headers(ctx)
    if err != nil {
        return model.AlertRecord{}, err
    }
    return c.CreateAlertWithHeaders(ctx, p, hdr)
}

// CreateAlertWithHeaders posts with precomputed headers. The retry drain
// fetches credentials once per cycle and reuses them for every item.
func (c *Client) CreateAlertWithHeaders(ctx context.Context, p model.AlertPayload, hdr http.Header) (model.AlertRecord, error) {
    body, err := c.do(ctx, http.MethodPost, "/mobile/alerts", p, hdr)
    if err != nil {
        return model.AlertRecord{}, err
    }
    var env envelope
    if err := json.Unmarshal(body, &env); err != nil {
        return model.AlertRecord{}, fmt.Errorf("decode alert response: %w", err)
    }
    if env.Alert == nil {
        return model.AlertRecord{}, fmt.Errorf("alert response missing record")
    }
    return *env.Alert, nil
}

// LatestAlert returns the most recent alert, or nil when there is none.
func (c *Client) LatestAlert(ctx context.Context) (*model.AlertRecord, error) {
    body, err := c.do(ctx, http.MethodGet, "/mobile/alerts/latest", nil, nil)
    var apiErr *APIError
    if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    var env envelope
    if err := json.Unmarshal(body, &env); err != nil {
        return nil, fmt.Errorf("decode latest alert: %w", err)
    }
    return env.Alert, nil
}

// ListAlerts pages through stored alerts.
func (c *Client) ListAlerts(ctx context.Context, limit, offset int) (AlertsPage, error) {
    if limit <= 0 { limit = 20 }
    path := fmt.Sprintf("/mobile/alerts?limit=%d&offset=%d", limit, offset)
    body, err := c.do(ctx, http.MethodGet, path, nil, nil)
    if err != nil {
        return AlertsPage{}, err
    }
    var page AlertsPage
    if err := json.Unmarshal(body, &page); err != nil {
        return AlertsPage{}, fmt.Errorf("decode alerts page: %w", err)
    }
    return page, nil
}

// Cancel posts a stand-down to /emergency/cancel. Idempotent server-side.
func (c *Client) Cancel(ctx context.Context, timestamp int64) error {
    _, err := c.do(ctx, http.MethodPost, "/emergency/cancel", map[string]int64{"timestamp": timestamp}, nil)
    return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, hdr http.Header) ([]byte, error) {
    timeout := c.Timeout
    if timeout <= 0 { timeout = defaultTimeout }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    var rd io.Reader
    if payload != nil {
        b, err := json.Marshal(payload)
        if err != nil {
            return nil, err
        }
        rd = bytes.NewReader(b)
    }
    req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
    if err != nil {
        return nil, err
    }
    if hdr == nil {
        if hdr, err = c.Headers(ctx); err != nil {
            return nil, err
        }
    }
    for k, vs := range hdr {
        for _, v := range vs {
            req.Header.Add(k, v)
        }
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Trace-Id", uuid.New().String())

    resp, err := c.HTTP.Do(req)
    if err != nil {
        // request never reached or never returned from the server
        return nil, fmt.Errorf("%w: %v", ErrTransport, err)
    }
    defer func() { _ = resp.Body.Close() }()
    body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrTransport, err)
    }
    if resp.StatusCode >= 200 && resp.StatusCode < 300 {
        return body, nil
    }
    return nil, decodeError(resp.StatusCode, body)
}

func decodeError(status int, body []byte) *APIError {
    var eb apiErrorBody
    _ = json.Unmarshal(body, &eb)
    detail := eb.Error
    if detail == "" && len(eb.Details) > 0 {
        detail = string(eb.Details)
    }
    switch status {
    case http.StatusBadRequest:
        if detail == "" { detail = "invalid payload" }
    case http.StatusForbidden:
        if detail == "" { detail = "insufficient permissions to create this alert" }
    case http.StatusNotFound:
        if detail == "" { detail = "endpoint not found; check backend URL" }
    }
    return &APIError{Status: status, Code: eb.Code, Detail: detail}
}
