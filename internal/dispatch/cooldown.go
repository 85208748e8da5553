package dispatch

import (
    "context"
    "errors"
    "log"
    "strconv"
    "time"

    "quicksecure/internal/kv"
)

const (
    cooldownKey           = "qs_last_alert_time"
    DefaultCooldownWindow = 5 * time.Second
)

// CooldownGate rate-limits dispatch using a persisted last-dispatch
// timestamp. Reads fail open: availability during an emergency beats
// strict rate-limiting.
type CooldownGate struct {
    Store  kv.Store
    Window time.Duration

    now func() time.Time // test hook
}

func NewCooldownGate(s kv.Store) *CooldownGate {
    return &CooldownGate{Store: s, Window: DefaultCooldownWindow, now: time.Now}
}

// CanDispatch reports whether enough time has passed since the last
// successful dispatch. Read-only.
func (g *CooldownGate) CanDispatch(ctx context.Context) bool {
    v, err := g.Store.Get(ctx, cooldownKey)
    if errors.Is(err, kv.ErrNotFound) {
        return true
    }
    if err != nil {
        log.Printf("cooldown: read failed, allowing dispatch: %v", err)
        return true
    }
    last, err := strconv.ParseInt(v, 10, 64)
    if err != nil {
        log.Printf("cooldown: corrupt timestamp %q, allowing dispatch", v)
        return true
    }
    return g.now().UnixMilli()-last > g.Window.Milliseconds()
}

// RecordDispatch overwrites the timestamp with now. Called only after a
// confirmed-successful submission.
func (g *CooldownGate) RecordDispatch(ctx context.Context) error {
    return g.Store.Set(ctx, cooldownKey, strconv.FormatInt(g.now().UnixMilli(), 10))
}
