// Package correlation persists the source-record to target-record mapping.
// CreateIfAbsent is the engine's sole cross-event serialization point: it
// must stay atomic per source id so duplicate or overlapping deliveries
// converge on one target record.
package correlation

import (
	"context"

	"bugbridge/internal/bridge/models"
)

// Store is the correlation persistence boundary. Implementations must make
// CreateIfAbsent atomic with respect to concurrent calls for the same
// source id; everything else in the engine is event-local.
type Store interface {
	// Get returns the record for sourceID, or sentinel.ErrNotFound.
	Get(ctx context.Context, sourceID string) (models.CorrelationRecord, error)

	// CreateIfAbsent stores (sourceID, targetID) unless a record already
	// exists, returning the stored record and whether this call created it.
	// Losing the race is not an error: callers adopt the returned record.
	CreateIfAbsent(ctx context.Context, sourceID, targetID string) (models.CorrelationRecord, bool, error)
}
