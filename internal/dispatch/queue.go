package dispatch

import (
    "context"
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "quicksecure/internal/kv"
    "quicksecure/internal/metrics"
    "quicksecure/internal/model"
)

const (
    queueKey             = "qs_queued_alerts"
    QueueCapacity        = 10
    DefaultDrainInterval = 30 * time.Second
    defaultItemTimeout   = 10 * time.Second
)

// AlertPoster resubmits a payload with precomputed credentials.
type AlertPoster interface {
    CreateAlertWithHeaders(ctx context.Context, p model.AlertPayload, hdr http.Header) (model.AlertRecord, error)
}

// HeaderSource supplies the drain's auth headers, fetched once per cycle.
type HeaderSource func(ctx context.Context) (http.Header, error)

// RetryQueue persists alerts that failed to submit and redelivers them on
// a timer. Bounded at QueueCapacity with FIFO eviction; items are only
// removed on confirmed delivery or eviction.
type RetryQueue struct {
    Store       kv.Store
    Poster      AlertPoster
    Headers     HeaderSource
    ItemTimeout time.Duration
    Limiter     *rate.Limiter // paces drain posts; nil means unpaced

    mu   sync.Mutex
    stop chan struct{}
}

func NewRetryQueue(store kv.Store, poster AlertPoster, headers HeaderSource) *RetryQueue {
    return &RetryQueue{
        Store:       store,
        Poster:      poster,
        Headers:     headers,
        ItemTimeout: defaultItemTimeout,
        Limiter:     rate.NewLimiter(rate.Limit(5), 5),
    }
}

func (q *RetryQueue) load(ctx context.Context) ([]model.AlertPayload, error) {
    raw, err := q.Store.Get(ctx, queueKey)
    if errors.Is(err, kv.ErrNotFound) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    var items []model.AlertPayload
    if err := json.Unmarshal([]byte(raw), &items); err != nil {
        // corrupt queue; better to drop it than to wedge every drain
        log.Printf("queue: corrupt persisted queue, resetting: %v", err)
        _ = q.Store.Remove(ctx, queueKey)
        return nil, nil
    }
    return items, nil
}

func (q *RetryQueue) save(ctx context.Context, items []model.AlertPayload) error {
    b, err := json.Marshal(items)
    if err != nil {
        return err
    }
    if err := q.Store.Set(ctx, queueKey, string(b)); err != nil {
        return err
    }
    metrics.QueueDepth.Set(float64(len(items)))
    return nil
}

// Enqueue appends the payload, evicting from the front when over capacity.
func (q *RetryQueue) Enqueue(ctx context.Context, p model.AlertPayload) error {
    q.mu.Lock()
    defer q.mu.Unlock()
    items, err := q.load(ctx)
    if err != nil {
        return err
    }
    items = append(items, p)
    if len(items) > QueueCapacity {
        items = items[len(items)-QueueCapacity:]
    }
    return q.save(ctx, items)
}

// Items returns a copy of the queued payloads, oldest first.
func (q *RetryQueue) Items(ctx context.Context) ([]model.AlertPayload, error) {
    q.mu.Lock()
    defer q.mu.Unlock()
    return q.load(ctx)
}

// DrainOnce attempts redelivery of every queued item concurrently, then
// removes delivered items in a single atomic rewrite preserving the order
// of the remainder. If credential retrieval fails the drain aborts without
// touching the queue. Returns delivered and remaining counts.
func (q *RetryQueue) DrainOnce(ctx context.Context) (delivered, remaining int, err error) {
    q.mu.Lock()
    defer q.mu.Unlock()
    items, err := q.load(ctx)
    if err != nil {
        return 0, 0, err
    }
    if len(items) == 0 {
        return 0, 0, nil
    }
    hdr, err := q.Headers(ctx)
    if err != nil {
        // try again next interval with the queue untouched
        return 0, len(items), err
    }

    ok := make([]bool, len(items))
    var wg sync.WaitGroup
    for i, it := range items {
        wg.Add(1)
        go func(i int, p model.AlertPayload) {
            defer wg.Done()
            if q.Limiter != nil {
                if err := q.Limiter.Wait(ctx); err != nil {
                    return
                }
            }
            itemCtx, cancel := context.WithTimeout(ctx, q.itemTimeout())
            defer cancel()
            if _, err := q.Poster.CreateAlertWithHeaders(itemCtx, p, hdr); err != nil {
                log.Printf("queue: redelivery of %s alert failed: %v", p.Type, err)
                metrics.QueueDrains.WithLabelValues("failed").Inc()
                return
            }
            ok[i] = true
            metrics.QueueDrains.WithLabelValues("delivered").Inc()
        }(i, it)
    }
    wg.Wait()

    rest := items[:0:0]
    for i, it := range items {
        if ok[i] {
            delivered++
        } else {
            rest = append(rest, it)
        }
    }
    if delivered == 0 {
        return 0, len(items), nil
    }
    if err := q.save(ctx, rest); err != nil {
        return delivered, len(rest), err
    }
    return delivered, len(rest), nil
}

func (q *RetryQueue) itemTimeout() time.Duration {
    if q.ItemTimeout > 0 {
        return q.ItemTimeout
    }
    return defaultItemTimeout
}

// Start schedules periodic drains, replacing any running timer.
func (q *RetryQueue) Start(interval time.Duration) {
    if interval <= 0 {
        interval = DefaultDrainInterval
    }
    q.mu.Lock()
    if q.stop != nil {
        close(q.stop)
    }
    stop := make(chan struct{})
    q.stop = stop
    q.mu.Unlock()

    go func() {
        ticker := time.NewTicker(interval)
        defer ticker.Stop()
        for {
            select {
            case <-stop:
                return
            case <-ticker.C:
                if _, _, err := q.DrainOnce(context.Background()); err != nil {
                    log.Printf("queue: drain cycle: %v", err)
                }
            }
        }
    }()
}

// Stop cancels the periodic drain. Safe to call when not running.
func (q *RetryQueue) Stop() {
    q.mu.Lock()
    if q.stop != nil {
        close(q.stop)
        q.stop = nil
    }
    q.mu.Unlock()
}
