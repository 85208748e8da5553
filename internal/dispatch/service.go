package dispatch

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "quicksecure/internal/alertapi"
    "quicksecure/internal/location"
    "quicksecure/internal/metrics"
    "quicksecure/internal/model"
)

// AlertAPI is the slice of the backend client used by the orchestrator.
type AlertAPI interface {
    CreateAlert(ctx context.Context, p model.AlertPayload) (model.AlertRecord, error)
    Cancel(ctx context.Context, timestamp int64) error
}

// Locator acquires the emergency-grade fix.
type Locator interface {
    FreshFix(ctx context.Context) (location.Fix, error)
}

// Event is a dispatch lifecycle notification for UI/status streams.
type Event struct {
    Type string
    Data map[string]any
}

// EventSink receives lifecycle events. Publish must not block.
type EventSink interface {
    Publish(evt Event)
}

// Service is the dispatch orchestrator: one instance per process owning
// the cooldown gate, retry queue, and their persisted state.
type Service struct {
    API      AlertAPI
    Location Locator
    Gate     *CooldownGate
    Queue    *RetryQueue
    Events   EventSink // optional

    DrainInterval time.Duration
}

func NewService(api AlertAPI, loc Locator, gate *CooldownGate, queue *RetryQueue) *Service {
    return &Service{API: api, Location: loc, Gate: gate, Queue: queue, DrainInterval: DefaultDrainInterval}
}

// Submit runs the full submission policy and returns the server-confirmed
// record. The payload of the attempt is returned as well so the caller can
// queue it on transport failure.
func (s *Service) Submit(ctx context.Context, who model.Identity, rawType, details string) (model.AlertRecord, model.AlertPayload, error) {
    t, err := model.NormalizeAlertType(rawType)
    if err != nil {
        return model.AlertRecord{}, model.AlertPayload{}, fmt.Errorf("%w: %v", ErrInvalidType, err)
    }
    if !who.CanCreateAlerts() {
        return model.AlertRecord{}, model.AlertPayload{}, ErrPermission
    }
    if !s.Gate.CanDispatch(ctx) {
        return model.AlertRecord{}, model.AlertPayload{}, ErrCooldown
    }

    s.emit("dispatch.gps_acquiring", map[string]any{"type": string(t)})
    start := time.Now()
    fix, err := s.Location.FreshFix(ctx)
    if err != nil {
        metrics.GPSAcquisition.WithLabelValues("failed").Observe(time.Since(start).Seconds())
        // never submit an emergency silently missing location
        return model.AlertRecord{}, model.AlertPayload{}, fmt.Errorf("%w: %v", ErrLocation, err)
    }
    metrics.GPSAcquisition.WithLabelValues("acquired").Observe(time.Since(start).Seconds())
    location.LogGrade(fix)

    coords := fix.Coordinates()
    payload := model.AlertPayload{
        Type:        t,
        Details:     details,
        Coordinates: &coords,
        Timestamp:   time.Now().UnixMilli(),
    }

    s.emit("dispatch.submitting", map[string]any{"type": string(t)})
    rec, err := s.API.CreateAlert(ctx, payload)
    if err != nil {
        return model.AlertRecord{}, payload, err
    }
    if err := s.Gate.RecordDispatch(ctx); err != nil {
        log.Printf("dispatch: recording cooldown failed: %v", err)
    }
    rec.Sent = payload.Coordinates
    return rec, payload, nil
}

// Dispatch is the public entry point: it submits and maps the result onto
// delivered/queued/rejected. Only transport-class failures are queued;
// policy failures and structured server rejections surface immediately.
func (s *Service) Dispatch(ctx context.Context, who model.Identity, rawType, details string) model.DispatchOutcome {
    rec, payload, err := s.Submit(ctx, who, rawType, details)
    switch {
    case err == nil:
        metrics.DispatchOutcomes.WithLabelValues(rec.Type, "delivered").Inc()
        s.emit("dispatch.delivered", map[string]any{"alertId": rec.ID, "type": rec.Type})
        return model.DispatchOutcome{Status: model.DispatchDelivered, Record: &rec}

    case errors.Is(err, alertapi.ErrTransport):
        if qErr := s.Queue.Enqueue(ctx, payload); qErr != nil {
            log.Printf("dispatch: enqueue after transport failure: %v", qErr)
            metrics.DispatchOutcomes.WithLabelValues(string(payload.Type), "rejected").Inc()
            return model.DispatchOutcome{Status: model.DispatchRejected, Reason: "network failure and offline queue unavailable"}
        }
        metrics.DispatchOutcomes.WithLabelValues(string(payload.Type), "queued").Inc()
        s.emit("dispatch.queued", map[string]any{"type": string(payload.Type)})
        return model.DispatchOutcome{Status: model.DispatchQueued, Reason: "network failure; alert queued for retry"}

    default:
        metrics.DispatchOutcomes.WithLabelValues(rawType, "rejected").Inc()
        s.emit("dispatch.rejected", map[string]any{"reason": err.Error()})
        return model.DispatchOutcome{Status: model.DispatchRejected, Reason: err.Error()}
    }
}

// CancelEmergency notifies the backend to stand down. It does not abort an
// in-flight submission.
func (s *Service) CancelEmergency(ctx context.Context) error {
    if err := s.API.Cancel(ctx, time.Now().UnixMilli()); err != nil {
        return fmt.Errorf("cancel emergency: %w", err)
    }
    s.emit("dispatch.cancelled", nil)
    return nil
}

// StartRetryProcess begins periodic queue drains; tied to app foreground.
func (s *Service) StartRetryProcess() {
    s.Queue.Start(s.DrainInterval)
}

// StopRetryProcess cancels the drain timer; tied to app background.
func (s *Service) StopRetryProcess() {
    s.Queue.Stop()
}

func (s *Service) emit(typ string, data map[string]any) {
    if s.Events == nil {
        return
    }
    if data == nil {
        data = map[string]any{}
    }
    data["ts"] = time.Now().UTC().Format(time.RFC3339)
    s.Events.Publish(Event{Type: typ, Data: data})
}
