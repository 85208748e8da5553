package model

import (
    "fmt"
    "strings"
)

// Core domain types for alert dispatch.

// AlertType is the closed set of alert categories accepted by the backend.
type AlertType string

const (
    AlertEmergency    AlertType = "emergency"
    AlertLockdown     AlertType = "lockdown"
    AlertFire         AlertType = "fire"
    AlertMedical      AlertType = "medical"
    AlertAdminSupport AlertType = "admin-support"
    AlertWarning      AlertType = "warning"
    AlertInfo         AlertType = "info"
    AlertMaintenance  AlertType = "maintenance"
    AlertEvacuation   AlertType = "evacuation"
    AlertAllClear     AlertType = "all-clear"
)

var alertTypes = map[AlertType]struct{}{
    AlertEmergency: {}, AlertLockdown: {}, AlertFire: {}, AlertMedical: {},
    AlertAdminSupport: {}, AlertWarning: {}, AlertInfo: {}, AlertMaintenance: {},
    AlertEvacuation: {}, AlertAllClear: {},
}

// alertAliases folds historical spellings to canonical values.
var alertAliases = map[string]AlertType{
    "admin_support": AlertAdminSupport,
    "admin support": AlertAdminSupport,
    "all_clear":     AlertAllClear,
    "all clear":     AlertAllClear,
}

// NormalizeAlertType lowercases, trims, and resolves aliases. Unknown values
// are a hard error; they must never reach the queue or the wire.
func NormalizeAlertType(raw string) (AlertType, error) {
    s := strings.ToLower(strings.TrimSpace(raw))
    if t, ok := alertAliases[s]; ok {
        return t, nil
    }
    t := AlertType(s)
    if _, ok := alertTypes[t]; ok {
        return t, nil
    }
    return "", fmt.Errorf("invalid alert type: %q", raw)
}

// AlertTypes returns the canonical enumeration in declaration order.
func AlertTypes() []AlertType {
    return []AlertType{
        AlertEmergency, AlertLockdown, AlertFire, AlertMedical, AlertAdminSupport,
        AlertWarning, AlertInfo, AlertMaintenance, AlertEvacuation, AlertAllClear,
    }
}

type Priority string

const (
    PriorityLow      Priority = "low"
    PriorityMedium   Priority = "medium"
    PriorityHigh     Priority = "high"
    PriorityCritical Priority = "critical"
)

// Coordinates is a device position as reported by the location layer.
// Accuracy and Timestamp are omitted when the underlying fix lacks them.
type Coordinates struct {
    Latitude  float64  `json:"latitude"`
    Longitude float64  `json:"longitude"`
    Accuracy  *float64 `json:"accuracy,omitempty"`  // meters
    Timestamp *int64   `json:"timestamp,omitempty"` // epoch ms
}

// AlertPayload is the wire body for alert creation. One is built at the
// moment of a submission attempt and lives until confirmed delivery or
// queue eviction.
type AlertPayload struct {
    Type        AlertType    `json:"type"`
    Details     string       `json:"details"`
    Priority    Priority     `json:"priority,omitempty"`
    Location    string       `json:"location,omitempty"`
    Coordinates *Coordinates `json:"coordinates,omitempty"`
    Timestamp   int64        `json:"timestamp"` // epoch ms
}

// AlertRecord is the server-confirmed alert as echoed by the backend.
type AlertRecord struct {
    ID        int64        `json:"id"`
    Type      string       `json:"type"`
    Details   string       `json:"details"`
    Priority  string       `json:"priority,omitempty"`
    Location  string       `json:"location,omitempty"`
    CreatedAt string       `json:"created_at"`
    CreatedBy *CreatedBy   `json:"created_by,omitempty"`
    Sent      *Coordinates `json:"sentCoordinates,omitempty"` // coordinates actually reported
}

type CreatedBy struct {
    UserID    int64  `json:"user_id"`
    Email     string `json:"email"`
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
}

// Identity describes the requester as supplied by the session provider.
type Identity struct {
    UserID      string `json:"userId"`
    Role        string `json:"role"`
    DisplayName string `json:"displayName,omitempty"`
}

// CanCreateAlerts reports whether the role is privileged for alert creation.
func (i Identity) CanCreateAlerts() bool {
    switch strings.ToLower(i.Role) {
    case "admin", "super_admin":
        return true
    }
    return false
}

// DispatchStatus is the terminal state of one dispatch attempt.
type DispatchStatus string

const (
    DispatchDelivered DispatchStatus = "delivered"
    DispatchQueued    DispatchStatus = "queued"
    DispatchRejected  DispatchStatus = "rejected"
)

// DispatchOutcome is returned to callers of the orchestrator.
type DispatchOutcome struct {
    Status DispatchStatus `json:"status"`
    Reason string         `json:"reason,omitempty"`
    Record *AlertRecord   `json:"alert,omitempty"`
}
