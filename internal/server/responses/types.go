// Package responses defines the JSON bodies of the distbuilder service endpoints.
package responses

import (
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/eventstore"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Uptime    float64   `json:"uptime"`
}

// EventView is one recorded pipeline event.
type EventView struct {
	ID        int64             `json:"id"`
	RequestID string            `json:"request_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventsResponse lists recent events, newest first.
type EventsResponse struct {
	Events []EventView `json:"events"`
	Count  int         `json:"count"`
}

// BranchesResponse lists per-branch activity, most recent first.
type BranchesResponse struct {
	Branches     []eventstore.BranchActivity `json:"branches"`
	CachedOnDisk []string                    `json:"cached_on_disk"`
	LastSync     time.Time                   `json:"last_sync,omitzero"`
}

// PurgeResponse reports a cache purge.
type PurgeResponse struct {
	Status   string   `json:"status"`
	Branches []string `json:"branches,omitempty"`
	Count    int      `json:"count"`
}
