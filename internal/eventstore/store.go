// Package eventstore records the history of artifact resolutions in SQLite
// and keeps a per-branch activity projection over it.
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, requestID, eventType string, payload []byte, metadata map[string]string) error

	// GetByRequestID retrieves all events for one resolution.
	GetByRequestID(ctx context.Context, requestID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
