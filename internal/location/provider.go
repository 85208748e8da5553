// Package location implements the GPS acquisition policy used by alert
// dispatch: cached reads for routine callers and a fresh-fix protocol for
// the emergency path.
package location

import (
    "context"
    "errors"
    "time"

    "quicksecure/internal/model"
)

// AccuracyTier selects the platform accuracy mode for a fix request.
type AccuracyTier int

const (
    TierBalanced AccuracyTier = iota
    TierHigh
)

// Fix is a single position update from the provider.
type Fix struct {
    Latitude  float64
    Longitude float64
    Accuracy  *float64 // meters; nil when the platform did not report one
    Timestamp time.Time
}

// Coordinates converts a fix to the wire representation.
func (f Fix) Coordinates() model.Coordinates {
    c := model.Coordinates{Latitude: f.Latitude, Longitude: f.Longitude}
    if f.Accuracy != nil {
        a := *f.Accuracy
        c.Accuracy = &a
    }
    if !f.Timestamp.IsZero() {
        ms := f.Timestamp.UnixMilli()
        c.Timestamp = &ms
    }
    return c
}

// Subscription is a live position stream. Cancel must be safe to call more
// than once and must release the underlying watcher.
type Subscription interface {
    Updates() <-chan Fix
    Cancel()
}

// Provider abstracts the platform location API.
type Provider interface {
    RequestPermission(ctx context.Context) (bool, error)
    ServicesEnabled(ctx context.Context) (bool, error)
    CurrentFix(ctx context.Context, tier AccuracyTier) (Fix, error)
    WatchFix(ctx context.Context, tier AccuracyTier) (Subscription, error)
}

var (
    ErrPermissionDenied = errors.New("location permission denied")
    ErrServicesDisabled = errors.New("location services disabled")
    ErrTimeout          = errors.New("gps acquisition timed out")
    ErrUnavailable      = errors.New("location unavailable")
)
