// Package lock guards the persisted trade state against concurrent writers:
// an instance lock keeps a second orchestrator from starting, and a short
// mutation lock serializes individual store writes across processes.
package lock

import (
	"context"
	"errors"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock is held by another process")

// InstanceLock is held for the lifetime of a running orchestrator.
type InstanceLock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}
