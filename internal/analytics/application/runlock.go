package application

import (
	"context"
	"sync"

	"hydromet-cloud/internal/analytics/domain/rollup"
)

// LocalRunLock is an in-process mutex fallback for single-instance
// deployments without Redis.
type LocalRunLock struct {
	mu sync.Mutex
}

// NewLocalRunLock constructs a local run lock.
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

// TryAcquire takes the lock or returns rollup.ErrLockHeld.
func (l *LocalRunLock) TryAcquire(_ context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, rollup.ErrLockHeld
	}
	return l.mu.Unlock, nil
}
