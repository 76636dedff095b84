// Package statestore holds the one-time OAuth handshake state.
//
// Each entry bridges a single OAuth redirect round-trip: the initiate
// endpoint stores state → redirect destination, the callback consumes it
// exactly once. Entries expire after five minutes if never consumed. State
// keys are cryptographically random, so concurrent Puts never collide and
// no locking is needed beyond the store's per-key atomicity.
package statestore

import (
	"context"
	"errors"
	"time"
)

// TTL is how long an unconsumed handshake state stays valid.
const TTL = 300 * time.Second

// ErrNotFound is returned by Consume for unknown, expired, or
// already-consumed states. The callback treats all three identically
// ("invalid or expired OAuth state") — a double consume finding nothing and
// failing the flow is exactly the safe outcome.
var ErrNotFound = errors.New("statestore: state not found")

// Store is the handshake state store.
//
// Consume is the single-use read: it returns the stored destination and
// removes the entry in one atomic step, so two concurrent callbacks
// presenting the same state can't both succeed.
type Store interface {
	Put(ctx context.Context, state, destination string) error
	Consume(ctx context.Context, state string) (string, error)
	Close() error
}
