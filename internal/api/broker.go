package api

import (
    "sync"

    "quicksecure/internal/dispatch"
)

// Broker fans dispatch lifecycle events out to status stream subscribers.
type Broker struct {
    mu   sync.Mutex
    subs map[chan dispatch.Event]struct{}
}

func NewBroker() *Broker {
    return &Broker{subs: map[chan dispatch.Event]struct{}{}}
}

func (b *Broker) Subscribe() chan dispatch.Event {
    ch := make(chan dispatch.Event, 8)
    b.mu.Lock()
    b.subs[ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(ch chan dispatch.Event) {
    b.mu.Lock()
    if _, ok := b.subs[ch]; ok {
        delete(b.subs, ch)
        close(ch)
    }
    b.mu.Unlock()
}

func (b *Broker) Publish(evt dispatch.Event) {
    b.mu.Lock()
    for ch := range b.subs {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
