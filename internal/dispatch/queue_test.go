package dispatch

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "sync"
    "testing"
    "time"

    "quicksecure/internal/kv"
    "quicksecure/internal/model"
)

type fakePoster struct {
    mu    sync.Mutex
    calls []model.AlertPayload
    fail  func(p model.AlertPayload) bool
}

func (f *fakePoster) CreateAlertWithHeaders(ctx context.Context, p model.AlertPayload, hdr http.Header) (model.AlertRecord, error) {
    f.mu.Lock()
    f.calls = append(f.calls, p)
    f.mu.Unlock()
    if f.fail != nil && f.fail(p) {
        return model.AlertRecord{}, errors.New("still down")
    }
    return model.AlertRecord{ID: 1, Type: string(p.Type)}, nil
}

func (f *fakePoster) callCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.calls)
}

func okHeaders(ctx context.Context) (http.Header, error) {
    h := http.Header{}
    h.Set("Authorization", "Bearer t")
    return h, nil
}

func payloadN(n int) model.AlertPayload {
    return model.AlertPayload{Type: model.AlertEmergency, Details: fmt.Sprintf("alert-%d", n), Timestamp: int64(n)}
}

func TestEnqueueCapacityEviction(t *testing.T) {
    ctx := context.Background()
    q := NewRetryQueue(kv.NewMemory(), &fakePoster{}, okHeaders)
    for i := 0; i < QueueCapacity+1; i++ {
        if err := q.Enqueue(ctx, payloadN(i)); err != nil {
            t.Fatalf("enqueue %d: %v", i, err)
        }
    }
    items, err := q.Items(ctx)
    if err != nil {
        t.Fatalf("items: %v", err)
    }
    if len(items) != QueueCapacity {
        t.Fatalf("queue length %d, want %d", len(items), QueueCapacity)
    }
    if items[0].Details != "alert-1" {
        t.Fatalf("oldest entry not evicted; head is %q", items[0].Details)
    }
    if items[len(items)-1].Details != fmt.Sprintf("alert-%d", QueueCapacity) {
        t.Fatalf("newest entry missing; tail is %q", items[len(items)-1].Details)
    }
}

func TestDrainOnceDeliversAll(t *testing.T) {
    ctx := context.Background()
    p := &fakePoster{}
    q := NewRetryQueue(kv.NewMemory(), p, okHeaders)
    for i := 0; i < 3; i++ {
        _ = q.Enqueue(ctx, payloadN(i))
    }
    delivered, remaining, err := q.DrainOnce(ctx)
    if err != nil {
        t.Fatalf("drain: %v", err)
    }
    if delivered != 3 || remaining != 0 {
        t.Fatalf("delivered=%d remaining=%d", delivered, remaining)
    }
    items, _ := q.Items(ctx)
    if len(items) != 0 {
        t.Fatalf("queue not emptied: %d", len(items))
    }

    // idempotent: nothing left, no duplicate posts
    before := p.callCount()
    delivered, remaining, err = q.DrainOnce(ctx)
    if err != nil || delivered != 0 || remaining != 0 {
        t.Fatalf("second drain: %d,%d,%v", delivered, remaining, err)
    }
    if p.callCount() != before {
        t.Fatal("drain of empty queue performed network calls")
    }
}

func TestDrainOncePartialFailureKeepsOrder(t *testing.T) {
    ctx := context.Background()
    p := &fakePoster{fail: func(pl model.AlertPayload) bool {
        return pl.Details == "alert-1" || pl.Details == "alert-3"
    }}
    q := NewRetryQueue(kv.NewMemory(), p, okHeaders)
    for i := 0; i < 5; i++ {
        _ = q.Enqueue(ctx, payloadN(i))
    }
    delivered, remaining, err := q.DrainOnce(ctx)
    if err != nil {
        t.Fatalf("drain: %v", err)
    }
    if delivered != 3 || remaining != 2 {
        t.Fatalf("delivered=%d remaining=%d", delivered, remaining)
    }
    items, _ := q.Items(ctx)
    if len(items) != 2 || items[0].Details != "alert-1" || items[1].Details != "alert-3" {
        t.Fatalf("failed items not retained in order: %+v", items)
    }
}

func TestDrainAbortsWhenCredentialsUnavailable(t *testing.T) {
    ctx := context.Background()
    p := &fakePoster{}
    q := NewRetryQueue(kv.NewMemory(), p, func(ctx context.Context) (http.Header, error) {
        return nil, errors.New("no token")
    })
    _ = q.Enqueue(ctx, payloadN(0))
    _, remaining, err := q.DrainOnce(ctx)
    if err == nil {
        t.Fatal("expected credential error")
    }
    if remaining != 1 {
        t.Fatalf("remaining=%d", remaining)
    }
    if p.callCount() != 0 {
        t.Fatal("drain attempted items without credentials")
    }
    items, _ := q.Items(ctx)
    if len(items) != 1 {
        t.Fatalf("queue mutated on aborted drain: %d", len(items))
    }
}

func TestQueueRoundTrip(t *testing.T) {
    // a payload queued after a transport failure is delivered on a later
    // drain and never seen again
    ctx := context.Background()
    down := true
    p := &fakePoster{fail: func(model.AlertPayload) bool { return down }}
    q := NewRetryQueue(kv.NewMemory(), p, okHeaders)
    _ = q.Enqueue(ctx, payloadN(7))

    if delivered, remaining, _ := q.DrainOnce(ctx); delivered != 0 || remaining != 1 {
        t.Fatalf("while down: delivered=%d remaining=%d", delivered, remaining)
    }
    down = false
    if delivered, remaining, _ := q.DrainOnce(ctx); delivered != 1 || remaining != 0 {
        t.Fatalf("after recovery: delivered=%d remaining=%d", delivered, remaining)
    }
    if delivered, _, _ := q.DrainOnce(ctx); delivered != 0 {
        t.Fatal("item redelivered after removal")
    }
}

func TestStartStopIdempotent(t *testing.T) {
    ctx := context.Background()
    p := &fakePoster{}
    q := NewRetryQueue(kv.NewMemory(), p, okHeaders)
    q.ItemTimeout = time.Second
    _ = q.Enqueue(ctx, payloadN(0))

    q.Start(10 * time.Millisecond)
    q.Start(10 * time.Millisecond) // replaces, must not double-fire
    deadline := time.Now().Add(time.Second)
    for p.callCount() == 0 && time.Now().Before(deadline) {
        time.Sleep(5 * time.Millisecond)
    }
    if p.callCount() == 0 {
        t.Fatal("periodic drain never ran")
    }
    q.Stop()
    q.Stop() // safe when not running
    time.Sleep(20 * time.Millisecond) // let any in-flight drain settle
    n := p.callCount()
    time.Sleep(50 * time.Millisecond)
    if p.callCount() != n {
        t.Fatal("drain kept running after Stop")
    }
}

func TestQueuePersistsAcrossInstances(t *testing.T) {
    ctx := context.Background()
    store := kv.NewMemory()
    q1 := NewRetryQueue(store, &fakePoster{}, okHeaders)
    _ = q1.Enqueue(ctx, payloadN(3))

    q2 := NewRetryQueue(store, &fakePoster{}, okHeaders)
    items, err := q2.Items(ctx)
    if err != nil || len(items) != 1 || items[0].Details != "alert-3" {
        t.Fatalf("queue not persisted: %+v, %v", items, err)
    }
}
