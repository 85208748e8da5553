package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "quicksecure/internal/dispatch"
)

// EventBroker distributes dispatch events to stream subscribers.
type EventBroker interface {
    Subscribe() chan dispatch.Event
    Unsubscribe(ch chan dispatch.Event)
    Publish(evt dispatch.Event)
}

// In-memory broker in broker.go satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so several agent
// replicas behind one gateway share one status stream.
type RedisBroker struct {
    rdb *redis.Client

    mu   sync.Mutex
    subs map[chan dispatch.Event]*redis.PubSub
}

const redisEventChannel = "qs:dispatch-events"

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan dispatch.Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe() chan dispatch.Event {
    ch := make(chan dispatch.Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, redisEventChannel)
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        // closing ch here keeps the sender and closer on one goroutine
        defer close(ch)
        for msg := range ps.Channel() {
            var evt dispatch.Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(ch chan dispatch.Event) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ok {
        // drops ps.Channel, which ends the reader goroutine and closes ch
        _ = ps.Close()
    }
}

func (b *RedisBroker) Publish(evt dispatch.Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, redisEventChannel, data).Err()
}
