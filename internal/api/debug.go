package api

import (
    "encoding/json"
    "net/http"
    "os"
    "time"

    "quicksecure/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT":                  os.Getenv("PORT"),
            "QS_API_URL":            os.Getenv("QS_API_URL"),
            "QS_GPS_BRIDGE_URL":     os.Getenv("QS_GPS_BRIDGE_URL"),
            "QS_DRAIN_INTERVAL_SEC": os.Getenv("QS_DRAIN_INTERVAL_SEC"),
            "QS_COOLDOWN_MS":        os.Getenv("QS_COOLDOWN_MS"),
            "HAS_TOKEN":             os.Getenv("QS_TOKEN") != "",
            "HAS_DATABASE_URL":      os.Getenv("DATABASE_URL") != "",
            "HAS_REDIS_URL":         os.Getenv("REDIS_URL") != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
