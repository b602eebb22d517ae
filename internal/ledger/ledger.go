// Package ledger records which logical events have already been dispatched.
// The ledger is the only persisted side effect of the pipeline besides the
// outbound delivery call itself.
package ledger

import (
	"context"
	"time"
)

// DefaultTTL is how long a dispatched marker survives before expiring.
const DefaultTTL = 180 * 24 * time.Hour

// Ledger is the durable dedup store. Exists must reflect every prior
// successful MarkDispatched for the same (session, experiment) pair whose
// TTL has not elapsed. Implementations are shared across concurrent runs but
// do not serialize them; overlapping runs may both pass an Exists check
// before either commits, and the deterministic downstream event identifier
// absorbs that duplicate.
type Ledger interface {
	// Exists reports whether the event for the given pair was already
	// dispatched. Errors must be surfaced, never folded into false: callers
	// fail closed on them.
	Exists(ctx context.Context, sessionID, experiment string) (bool, error)

	// MarkDispatched records a confirmed delivery at the given time.
	MarkDispatched(ctx context.Context, sessionID, experiment string, when time.Time) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
