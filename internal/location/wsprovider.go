package location

import (
    "context"
    "log"
    "sync"
    "time"

    "github.com/gorilla/websocket"
)

// Bridge is a Provider backed by a WebSocket position feed (a device-side
// GPS bridge publishing JSON fixes). Permission maps to the bridge being
// configured; services-enabled maps to the connection being alive.
type Bridge struct {
    URL string

    mu        sync.Mutex
    conn      *websocket.Conn
    connected bool
    last      *Fix
    lastAt    time.Time
    subs      map[chan Fix]struct{}
    closed    bool
}

// bridgeFix is the feed's wire format.
type bridgeFix struct {
    Latitude  float64  `json:"latitude"`
    Longitude float64  `json:"longitude"`
    Accuracy  *float64 `json:"accuracy,omitempty"`
    Timestamp *int64   `json:"timestamp,omitempty"` // epoch ms
}

// DialBridge connects to the feed and starts the read loop.
func DialBridge(url string) (*Bridge, error) {
    c, _, err := websocket.DefaultDialer.Dial(url, nil)
    if err != nil {
        return nil, err
    }
    b := &Bridge{URL: url, conn: c, connected: true, subs: map[chan Fix]struct{}{}}
    go b.readLoop()
    return b, nil
}

func (b *Bridge) readLoop() {
    for {
        b.mu.Lock()
        c := b.conn
        b.mu.Unlock()
        if c == nil {
            return
        }
        var wf bridgeFix
        if err := c.ReadJSON(&wf); err != nil {
            log.Printf("location: bridge read: %v", err)
            b.mu.Lock()
            b.connected = false
            b.mu.Unlock()
            return
        }
        f := Fix{Latitude: wf.Latitude, Longitude: wf.Longitude, Accuracy: wf.Accuracy}
        if wf.Timestamp != nil {
            f.Timestamp = time.UnixMilli(*wf.Timestamp)
        } else {
            f.Timestamp = time.Now()
        }
        b.mu.Lock()
        cp := f
        b.last = &cp
        b.lastAt = time.Now()
        for ch := range b.subs {
            select { case ch <- f: default: }
        }
        b.mu.Unlock()
    }
}

// Close tears down the connection and all watch subscriptions.
func (b *Bridge) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed {
        return nil
    }
    b.closed = true
    b.connected = false
    for ch := range b.subs {
        close(ch)
        delete(b.subs, ch)
    }
    c := b.conn
    b.conn = nil
    if c != nil {
        return c.Close()
    }
    return nil
}

func (b *Bridge) RequestPermission(ctx context.Context) (bool, error) {
    b.mu.Lock(); defer b.mu.Unlock()
    return b.URL != "" && !b.closed, nil
}

func (b *Bridge) ServicesEnabled(ctx context.Context) (bool, error) {
    b.mu.Lock(); defer b.mu.Unlock()
    return b.connected, nil
}

// CurrentFix returns the feed's latest fix, waiting for the first one if
// the feed is fresh. The accuracy tier is advisory for bridge feeds.
func (b *Bridge) CurrentFix(ctx context.Context, tier AccuracyTier) (Fix, error) {
    b.mu.Lock()
    if b.last != nil {
        f := *b.last
        b.mu.Unlock()
        return f, nil
    }
    b.mu.Unlock()

    sub, err := b.WatchFix(ctx, tier)
    if err != nil {
        return Fix{}, err
    }
    defer sub.Cancel()
    select {
    case <-ctx.Done():
        return Fix{}, ErrTimeout
    case f, ok := <-sub.Updates():
        if !ok {
            return Fix{}, ErrUnavailable
        }
        return f, nil
    }
}

func (b *Bridge) WatchFix(ctx context.Context, tier AccuracyTier) (Subscription, error) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.closed || !b.connected {
        return nil, ErrUnavailable
    }
    ch := make(chan Fix, 16)
    b.subs[ch] = struct{}{}
    return &bridgeSub{b: b, ch: ch}, nil
}

type bridgeSub struct {
    b    *Bridge
    ch   chan Fix
    once sync.Once
}

func (s *bridgeSub) Updates() <-chan Fix { return s.ch }

func (s *bridgeSub) Cancel() {
    s.once.Do(func() {
        s.b.mu.Lock()
        if _, ok := s.b.subs[s.ch]; ok {
            delete(s.b.subs, s.ch)
            close(s.ch)
        }
        s.b.mu.Unlock()
    })
}
