package api

import (
    "context"
    "log"
    "strings"
    "time"

    "quicksecure/internal/alertapi"
    "quicksecure/internal/auth"
    "quicksecure/internal/config"
    "quicksecure/internal/dispatch"
    "quicksecure/internal/kv"
    "quicksecure/internal/location"
)

type Server struct {
    Dispatch *dispatch.Service
    Session  auth.Session
    Alerts   *alertapi.Client
    Broker   EventBroker

    store kv.Store
}

// NewServer wires the dispatch core from config. With no DATABASE_URL or
// REDIS_URL the agent runs on the in-memory store (state does not survive
// restarts; fine for dev).
func NewServer(cfg config.Config) (*Server, error) {
    var store kv.Store
    switch {
    case strings.TrimSpace(cfg.DatabaseURL) != "":
        p, err := kv.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        store = p
    case strings.TrimSpace(cfg.RedisURL) != "":
        r, err := kv.NewRedis(cfg.RedisURL, "qs:")
        if err != nil {
            return nil, err
        }
        store = r
    default:
        store = kv.NewMemory()
    }

    session := auth.NewSessionFromEnv()
    client := alertapi.NewClient(cfg.APIBaseURL, alertapi.HeaderSource(session.AuthHeaders))

    var provider location.Provider
    if cfg.GPSBridgeURL != "" {
        b, err := location.DialBridge(cfg.GPSBridgeURL)
        if err != nil {
            return nil, err
        }
        provider = b
    } else {
        log.Printf("api: no GPS bridge configured; dispatch will refuse for lack of location")
        provider = noLocation{}
    }
    locSvc := location.NewService(provider)

    gate := dispatch.NewCooldownGate(store)
    if cfg.CooldownMs > 0 {
        gate.Window = time.Duration(cfg.CooldownMs) * time.Millisecond
    }
    queue := dispatch.NewRetryQueue(store, client, dispatch.HeaderSource(session.AuthHeaders))
    svc := dispatch.NewService(client, locSvc, gate, queue)
    if cfg.DrainIntervalSec > 0 {
        svc.DrainInterval = time.Duration(cfg.DrainIntervalSec) * time.Second
    }

    var broker EventBroker
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    svc.Events = broker

    return &Server{Dispatch: svc, Session: session, Alerts: client, Broker: broker, store: store}, nil
}

// noLocation stands in when no bridge is configured; every acquisition
// fails as permission-denied.
type noLocation struct{}

func (noLocation) RequestPermission(ctx context.Context) (bool, error) { return false, nil }
func (noLocation) ServicesEnabled(ctx context.Context) (bool, error)   { return false, nil }
func (noLocation) CurrentFix(ctx context.Context, tier location.AccuracyTier) (location.Fix, error) {
    return location.Fix{}, location.ErrUnavailable
}
func (noLocation) WatchFix(ctx context.Context, tier location.AccuracyTier) (location.Subscription, error) {
    return nil, location.ErrUnavailable
}
