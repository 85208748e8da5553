package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "quicksecure/internal/alertapi"
    "quicksecure/internal/model"
)

type dispatchRequest struct {
    Type    string `json:"type"`
    Details string `json:"details"`
}

// DispatchHandler runs the full dispatch pipeline for one alert.
// 200 delivered, 202 queued for retry, 409 rejected with the reason.
func (s *Server) DispatchHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req dispatchRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    who := s.getIdentity(r)
    out := s.Dispatch.Dispatch(r.Context(), who, req.Type, req.Details)
    switch out.Status {
    case model.DispatchDelivered:
        writeJSON(w, http.StatusOK, out)
    case model.DispatchQueued:
        writeJSON(w, http.StatusAccepted, out)
    default:
        writeProblem(w, http.StatusConflict, "Dispatch rejected", out.Reason, r.URL.Path)
    }
}

// CancelHandler stands down an active emergency.
func (s *Server) CancelHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    who := s.getIdentity(r)
    if !who.CanCreateAlerts() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    if err := s.Dispatch.CancelEmergency(r.Context()); err != nil {
        writeProblem(w, http.StatusBadGateway, "Cancel failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

// QueueHandler exposes the offline retry queue: GET lists the pending
// payloads, POST /v1/queue/drain forces a drain cycle. Admin only.
func (s *Server) QueueHandler(w http.ResponseWriter, r *http.Request) {
    who := s.getIdentity(r)
    if !who.CanCreateAlerts() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    if r.URL.Path == "/v1/queue/drain" {
        if r.Method != http.MethodPost {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }
        delivered, remaining, err := s.Dispatch.Queue.DrainOnce(r.Context())
        if err != nil {
            writeProblem(w, http.StatusBadGateway, "Drain failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"delivered": delivered, "remaining": remaining})
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    items, err := s.Dispatch.Queue.Items(r.Context())
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Queue read failed", err.Error(), r.URL.Path)
        return
    }
    if items == nil {
        items = []model.AlertPayload{}
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// AlertsHandler proxies alert reads to the backend: /v1/alerts with
// limit/offset paging and /v1/alerts/latest.
func (s *Server) AlertsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if r.URL.Path == "/v1/alerts/latest" {
        rec, err := s.Alerts.LatestAlert(r.Context())
        if err != nil {
            writeUpstreamError(w, r, err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"alert": rec})
        return
    }
    limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
    offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
    page, err := s.Alerts.ListAlerts(r.Context(), limit, offset)
    if err != nil {
        writeUpstreamError(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, page)
}

func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
    var apiErr *alertapi.APIError
    if errors.As(err, &apiErr) {
        writeProblem(w, apiErr.Status, "Backend rejected request", apiErr.Detail, r.URL.Path)
        return
    }
    if errors.Is(err, alertapi.ErrTransport) {
        writeProblem(w, http.StatusBadGateway, "Backend unreachable", err.Error(), r.URL.Path)
        return
    }
    writeProblem(w, http.StatusInternalServerError, "Backend request failed", err.Error(), r.URL.Path)
}

// EventsStreamHandler streams dispatch lifecycle events over SSE with a
// periodic heartbeat.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe()
    defer s.Broker.Unsubscribe(ch)

    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
    flusher.Flush()

    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt, open := <-ch:
            if !open {
                return
            }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pinger interface {
    Ping(ctx context.Context) error
}

// ReadyHandler pings the backing store when it supports it.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if p, ok := s.store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
        defer cancel()
        if err := p.Ping(ctx); err != nil {
            writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
