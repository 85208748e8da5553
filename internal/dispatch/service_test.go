package dispatch

import (
    "context"
    "fmt"
    "net/http"
    "sync"
    "testing"
    "time"

    "quicksecure/internal/alertapi"
    "quicksecure/internal/kv"
    "quicksecure/internal/location"
    "quicksecure/internal/model"
)

type fakeAPI struct {
    mu      sync.Mutex
    created []model.AlertPayload
    err     error
    cancels int
}

func (f *fakeAPI) CreateAlert(ctx context.Context, p model.AlertPayload) (model.AlertRecord, error) {
    f.mu.Lock()
    f.created = append(f.created, p)
    f.mu.Unlock()
    if f.err != nil {
        return model.AlertRecord{}, f.err
    }
    return model.AlertRecord{ID: 99, Type: string(p.Type), Details: p.Details, CreatedAt: "2025-01-01T00:00:00Z"}, nil
}

func (f *fakeAPI) CreateAlertWithHeaders(ctx context.Context, p model.AlertPayload, hdr http.Header) (model.AlertRecord, error) {
    return f.CreateAlert(ctx, p)
}

func (f *fakeAPI) Cancel(ctx context.Context, ts int64) error {
    f.mu.Lock()
    f.cancels++
    f.mu.Unlock()
    return nil
}

func (f *fakeAPI) createdCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.created)
}

type fakeLocator struct {
    fix location.Fix
    err error
}

func (f *fakeLocator) FreshFix(ctx context.Context) (location.Fix, error) {
    return f.fix, f.err
}

func acc(v float64) *float64 { return &v }

func admin() model.Identity { return model.Identity{UserID: "u1", Role: "admin", DisplayName: "Pat"} }

func newTestDispatch(api *fakeAPI, loc *fakeLocator) (*Service, *kv.Memory) {
    store := kv.NewMemory()
    gate := NewCooldownGate(store)
    queue := NewRetryQueue(store, api, func(ctx context.Context) (http.Header, error) {
        return http.Header{}, nil
    })
    return NewService(api, loc, gate, queue), store
}

func TestDispatchDelivered(t *testing.T) {
    api := &fakeAPI{}
    loc := &fakeLocator{fix: location.Fix{Latitude: 37.0, Longitude: -122.0, Accuracy: acc(8), Timestamp: time.Now()}}
    s, store := newTestDispatch(api, loc)

    out := s.Dispatch(context.Background(), admin(), "fire", "evac")
    if out.Status != model.DispatchDelivered {
        t.Fatalf("status %s (%s)", out.Status, out.Reason)
    }
    if out.Record == nil || out.Record.Sent == nil {
        t.Fatal("delivered outcome missing record or sent coordinates")
    }
    if out.Record.Sent.Latitude != 37.0 || out.Record.Sent.Longitude != -122.0 || *out.Record.Sent.Accuracy != 8 {
        t.Fatalf("sent coordinates wrong: %+v", out.Record.Sent)
    }
    if _, err := store.Get(context.Background(), cooldownKey); err != nil {
        t.Fatal("cooldown timestamp not recorded after success")
    }
}

func TestDispatchCooldownBlocksSecondAttempt(t *testing.T) {
    api := &fakeAPI{}
    loc := &fakeLocator{fix: location.Fix{Latitude: 1, Longitude: 2, Accuracy: acc(5)}}
    s, _ := newTestDispatch(api, loc)

    if out := s.Dispatch(context.Background(), admin(), "fire", "x"); out.Status != model.DispatchDelivered {
        t.Fatalf("first dispatch: %s", out.Status)
    }
    out := s.Dispatch(context.Background(), admin(), "fire", "x")
    if out.Status != model.DispatchRejected {
        t.Fatalf("second dispatch inside window: %s", out.Status)
    }
    if api.createdCount() != 1 {
        t.Fatalf("cooldown-rejected dispatch reached the network: %d calls", api.createdCount())
    }
}

func TestDispatchInvalidTypeNeverReachesNetwork(t *testing.T) {
    api := &fakeAPI{}
    s, _ := newTestDispatch(api, &fakeLocator{})
    for _, raw := range []string{"tornado", "", "emergency!!", "fire drill"} {
        out := s.Dispatch(context.Background(), admin(), raw, "x")
        if out.Status != model.DispatchRejected {
            t.Fatalf("%q: status %s", raw, out.Status)
        }
    }
    if api.createdCount() != 0 {
        t.Fatalf("invalid types reached the network: %d calls", api.createdCount())
    }
}

func TestDispatchUnauthorizedRole(t *testing.T) {
    api := &fakeAPI{}
    s, _ := newTestDispatch(api, &fakeLocator{})
    out := s.Dispatch(context.Background(), model.Identity{UserID: "u2", Role: "teacher"}, "fire", "x")
    if out.Status != model.DispatchRejected {
        t.Fatalf("status %s", out.Status)
    }
    if api.createdCount() != 0 {
        t.Fatal("unauthorized dispatch reached the network")
    }
}

func TestDispatchGPSFailureRejectsWithoutNetworkOrQueue(t *testing.T) {
    api := &fakeAPI{}
    loc := &fakeLocator{err: location.ErrTimeout}
    s, _ := newTestDispatch(api, loc)

    out := s.Dispatch(context.Background(), admin(), "emergency", "help")
    if out.Status != model.DispatchRejected {
        t.Fatalf("status %s", out.Status)
    }
    if api.createdCount() != 0 {
        t.Fatal("dispatch without a fix reached the network")
    }
    items, _ := s.Queue.Items(context.Background())
    if len(items) != 0 {
        t.Fatalf("GPS failure must not queue: %d items", len(items))
    }
}

func TestDispatchTransportFailureQueues(t *testing.T) {
    api := &fakeAPI{err: fmt.Errorf("%w: connection refused", alertapi.ErrTransport)}
    loc := &fakeLocator{fix: location.Fix{Latitude: 1, Longitude: 2, Accuracy: acc(12)}}
    s, _ := newTestDispatch(api, loc)

    out := s.Dispatch(context.Background(), admin(), "lockdown", "drill")
    if out.Status != model.DispatchQueued {
        t.Fatalf("status %s (%s)", out.Status, out.Reason)
    }
    items, _ := s.Queue.Items(context.Background())
    if len(items) != 1 {
        t.Fatalf("queue length %d, want 1", len(items))
    }
    if items[0].Type != model.AlertLockdown || items[0].Coordinates == nil {
        t.Fatalf("queued payload wrong: %+v", items[0])
    }

    // backend recovers; the drain delivers and empties the queue
    api.err = nil
    delivered, remaining, err := s.Queue.DrainOnce(context.Background())
    if err != nil || delivered != 1 || remaining != 0 {
        t.Fatalf("drain: %d,%d,%v", delivered, remaining, err)
    }
}

func TestDispatchServerRejectionNotQueued(t *testing.T) {
    api := &fakeAPI{err: &alertapi.APIError{Status: 400, Detail: "missing details"}}
    loc := &fakeLocator{fix: location.Fix{Latitude: 1, Longitude: 2, Accuracy: acc(12)}}
    s, _ := newTestDispatch(api, loc)

    out := s.Dispatch(context.Background(), admin(), "medical", "x")
    if out.Status != model.DispatchRejected {
        t.Fatalf("status %s", out.Status)
    }
    items, _ := s.Queue.Items(context.Background())
    if len(items) != 0 {
        t.Fatal("server rejection must not be queued")
    }
}

func TestDispatchAliasNormalization(t *testing.T) {
    api := &fakeAPI{}
    loc := &fakeLocator{fix: location.Fix{Latitude: 1, Longitude: 2, Accuracy: acc(9)}}
    s, _ := newTestDispatch(api, loc)

    out := s.Dispatch(context.Background(), admin(), "Admin_Support", "door code")
    if out.Status != model.DispatchDelivered {
        t.Fatalf("status %s (%s)", out.Status, out.Reason)
    }
    if api.created[0].Type != model.AlertAdminSupport {
        t.Fatalf("alias not folded: %q", api.created[0].Type)
    }
}

func TestCancelEmergency(t *testing.T) {
    api := &fakeAPI{}
    s, _ := newTestDispatch(api, &fakeLocator{})
    if err := s.CancelEmergency(context.Background()); err != nil {
        t.Fatalf("cancel: %v", err)
    }
    if api.cancels != 1 {
        t.Fatalf("cancel calls: %d", api.cancels)
    }
}
