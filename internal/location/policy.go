package location

import (
    "context"
    "fmt"
    "log"
    "math"
    "sync"
    "time"
)

const (
    defaultFreshTimeout = 20 * time.Second
    defaultSettleWindow = 5 * time.Second
    defaultCacheTTL     = 60 * time.Second

    accuracyExcellentM = 10.0
    accuracyGoodM      = 25.0
    accuracyValidM     = 50.0
)

// Service applies the acquisition policy on top of a Provider. It owns the
// last-known-fix cache; routine callers read through it, the emergency path
// bypasses it entirely.
type Service struct {
    Provider     Provider
    FreshTimeout time.Duration // hard cap on emergency acquisition
    SettleWindow time.Duration // extra listening time after the second update
    CacheTTL     time.Duration

    mu     sync.Mutex
    last   *Fix
    lastAt time.Time
}

func NewService(p Provider) *Service {
    return &Service{
        Provider:     p,
        FreshTimeout: defaultFreshTimeout,
        SettleWindow: defaultSettleWindow,
        CacheTTL:     defaultCacheTTL,
    }
}

// CachedOrCurrent returns the last known fix if unexpired, otherwise one
// balanced-tier read with no retry. Non-emergency callers only.
func (s *Service) CachedOrCurrent(ctx context.Context) (Fix, error) {
    s.mu.Lock()
    if s.last != nil && time.Since(s.lastAt) <= s.CacheTTL {
        f := *s.last
        s.mu.Unlock()
        return f, nil
    }
    s.mu.Unlock()

    granted, err := s.Provider.RequestPermission(ctx)
    if err != nil || !granted {
        return Fix{}, ErrUnavailable
    }
    f, err := s.Provider.CurrentFix(ctx, TierBalanced)
    if err != nil {
        return Fix{}, ErrUnavailable
    }
    s.remember(f)
    return f, nil
}

// FreshFix acquires a position for emergency dispatch. It never returns a
// cached value: the first update from a cold receiver is frequently stale
// even when requested fresh, so a fix is accepted only once at least two
// consecutive stream updates have been observed, taking the best reported
// accuracy among updates two onward. Hard timeout per FreshTimeout.
func (s *Service) FreshFix(ctx context.Context) (Fix, error) {
    granted, err := s.Provider.RequestPermission(ctx)
    if err != nil {
        return Fix{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
    }
    if !granted {
        return Fix{}, ErrPermissionDenied
    }
    enabled, err := s.Provider.ServicesEnabled(ctx)
    if err != nil || !enabled {
        return Fix{}, ErrServicesDisabled
    }

    ctx, cancel := context.WithTimeout(ctx, s.FreshTimeout)
    defer cancel()
    sub, err := s.Provider.WatchFix(ctx, TierHigh)
    if err != nil {
        return Fix{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer sub.Cancel()

    var (
        seen    int
        best    *Fix
        settle  <-chan time.Time
        settleT *time.Timer
    )
    defer func() {
        if settleT != nil { settleT.Stop() }
    }()
    for {
        select {
        case <-ctx.Done():
            if best != nil {
                // ran out of time but we do have a post-warmup fix
                return *best, nil
            }
            return Fix{}, ErrTimeout
        case <-settle:
            return *best, nil
        case f, ok := <-sub.Updates():
            if !ok {
                if best != nil { return *best, nil }
                return Fix{}, ErrUnavailable
            }
            seen++
            if seen < 2 {
                continue // discard the warmup update
            }
            if better(&f, best) {
                cp := f
                best = &cp
            }
            if best.Accuracy != nil && *best.Accuracy <= accuracyGoodM {
                return *best, nil
            }
            if settle == nil {
                settleT = time.NewTimer(s.SettleWindow)
                settle = settleT.C
            }
        }
    }
}

// better reports whether a should replace b. Known accuracy beats unknown;
// lower beats higher.
func better(a, b *Fix) bool {
    if b == nil { return true }
    av, bv := math.Inf(1), math.Inf(1)
    if a.Accuracy != nil { av = *a.Accuracy }
    if b.Accuracy != nil { bv = *b.Accuracy }
    return av < bv
}

func (s *Service) remember(f Fix) {
    s.mu.Lock()
    cp := f
    s.last = &cp
    s.lastAt = time.Now()
    s.mu.Unlock()
}

// AccuracyGrade classifies a fix's reported accuracy.
type AccuracyGrade string

const (
    GradeExcellent AccuracyGrade = "excellent" // <=10m
    GradeGood      AccuracyGrade = "good"      // <=25m
    GradePoor      AccuracyGrade = "poor"      // >25m
    GradeUnknown   AccuracyGrade = "unknown"   // no accuracy reported
)

// ValidateAccuracy grades a fix and reports whether it is usable for
// dispatch (accuracy under 50m). Advisory: callers may still submit a poor
// fix, but must flag it.
func ValidateAccuracy(f Fix) (AccuracyGrade, bool) {
    if f.Accuracy == nil {
        return GradeUnknown, false
    }
    a := *f.Accuracy
    switch {
    case a <= accuracyExcellentM:
        return GradeExcellent, true
    case a <= accuracyGoodM:
        return GradeGood, true
    case a < accuracyValidM:
        return GradePoor, true
    default:
        return GradePoor, false
    }
}

// LogGrade emits the standard advisory line for a dispatched fix.
func LogGrade(f Fix) {
    grade, ok := ValidateAccuracy(f)
    if !ok || grade == GradePoor {
        acc := "n/a"
        if f.Accuracy != nil { acc = fmt.Sprintf("%.0fm", *f.Accuracy) }
        log.Printf("location: dispatching with %s accuracy (%s)", grade, acc)
    }
}
