// Package lock provides named in-process locking for protomod sessions.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another session is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate session detection.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10

	// TimeoutLong allows extended waiting for lock acquisition.
	TimeoutLong = 60

	// TimeoutInfinite waits until the lock is acquired or the context ends.
	TimeoutInfinite = -1
)

// table maps lock names to a one-slot semaphore shared by every handle with
// that name.
var table = struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}{slots: make(map[string]chan struct{})}

func slotFor(name string) chan struct{} {
	table.mu.Lock()
	defer table.mu.Unlock()

	slot, ok := table.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		table.slots[name] = slot
	}
	return slot
}

// NamedLock is a handle on a process-wide named lock. Handles with the same
// name exclude each other, and so do goroutines sharing one handle: every
// acquisition goes through the slot, so the lock is never reentrant.
type NamedLock struct {
	mu       sync.Mutex
	slot     chan struct{}
	lockName string
	held     bool
}

// NewNamedLock creates a handle for the lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewNamedLock(lockName string) *NamedLock {
	return &NamedLock{
		slot:     slotFor(lockName),
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the lock within timeoutSeconds.
// Returns true if the lock was acquired, false if the timeout was reached.
// Returns the context error if ctx ends first.
func (a *NamedLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	var timeout <-chan time.Time
	switch {
	case timeoutSeconds == TimeoutImmediate:
		select {
		case a.slot <- struct{}{}:
			a.setHeld(true)
			return true, nil
		default:
			return false, nil
		}
	case timeoutSeconds > 0:
		timer := time.NewTimer(time.Duration(timeoutSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case a.slot <- struct{}{}:
		a.setHeld(true)
		return true, nil
	case <-timeout:
		return false, nil
	case <-ctx.Done():
		return false, fmt.Errorf("failed to acquire lock %q: %w", a.lockName, ctx.Err())
	}
}

// ReleaseLock releases the lock.
// Returns true if the lock was released, false if it was not held.
func (a *NamedLock) ReleaseLock(_ context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.held {
		return false, nil
	}
	select {
	case <-a.slot:
	default:
		a.held = false
		return false, fmt.Errorf("lock %q was marked held but its slot was empty", a.lockName)
	}
	a.held = false
	return true, nil
}

func (a *NamedLock) setHeld(held bool) {
	a.mu.Lock()
	a.held = held
	a.mu.Unlock()
}

// IsHeld returns true if this handle currently holds the lock.
func (a *NamedLock) IsHeld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held
}

// LockName returns the name of the lock.
func (a *NamedLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock without waiting.
func (a *NamedLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail acquires the lock within timeoutSeconds or returns
// ErrLockTimeout.
func (a *NamedLock) AcquireOrFail(ctx context.Context, timeoutSeconds int) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another session", ErrLockTimeout, a.lockName)
	}
	return nil
}

// GenerateNamespaceLockName creates the lock name guarding a module namespace.
// Lock names follow the format: "protomod:namespace:{root}"
//
// Example: GenerateNamespaceLockName("acme.schemas") → "protomod:namespace:acme_schemas"
func GenerateNamespaceLockName(root string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, root)

	return fmt.Sprintf("protomod:namespace:%s", sanitized)
}

// NewNamespaceLock creates the lock for the namespace rooted at root.
func NewNamespaceLock(root string) *NamedLock {
	return NewNamedLock(GenerateNamespaceLockName(root))
}

// IsNamespaceBusy reports whether another session holds the namespace lock.
// The check is not atomic; the state may change right after it returns.
func IsNamespaceBusy(ctx context.Context, root string) (bool, error) {
	lock := NewNamespaceLock(root)

	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check namespace %q: %w", root, err)
	}
	if acquired {
		_, _ = lock.ReleaseLock(ctx)
		return false, nil
	}
	return true, nil
}

// WithLock runs fn while holding the lock and releases it however fn exits,
// including by panic.
//
// Example:
//
//	l := lock.NewNamespaceLock("acme")
//	err := l.WithLock(ctx, lock.TimeoutShort, func() error {
//	    return registerUnits()
//	})
func (a *NamedLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another session", ErrLockTimeout, a.lockName)
	}

	defer func() {
		_, _ = a.ReleaseLock(context.Background())
	}()

	return fn()
}
