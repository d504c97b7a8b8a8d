// Package lock provides keyed mutual exclusion for ticket, agent and assignment-pool
// mutations, either within one process or across processes through Redis.
package lock

import (
	"context"
	"errors"
)

// PoolKey serializes agent selection with the fairness stamp it produces.
const PoolKey = "assignment-pool"

// ErrNotAcquired is returned when a lock could not be obtained before the deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Calling it more than once is harmless.
type Unlock func()

// Locker hands out exclusive locks by key. Acquire blocks until the lock is held or
// ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// TicketKey names the lock guarding a single ticket.
func TicketKey(id string) string { return "ticket:" + id }

// AgentKey names the lock guarding a single agent record.
func AgentKey(id string) string { return "agent:" + id }
