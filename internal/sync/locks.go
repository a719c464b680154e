package sync

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/iudanet/medpass/internal/models"
)

// LockManager serializes sessions touching overlapping record ids.
// A session takes all of its ids at once or none, so two sessions never
// deadlock on each other.
type LockManager struct {
	held    map[string]struct{}
	changed chan struct{}
	mu      gosync.Mutex
}

// NewLockManager creates an empty lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		held:    make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

// Acquire waits up to wait for every id to be free and takes them.
// It returns models.ErrSessionConflict when the wait expires.
func (l *LockManager) Acquire(ctx context.Context, ids []string, wait time.Duration) (release func(), err error) {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	if len(ids) == 0 {
		return func() {}, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		if l.free(ids) {
			for _, id := range ids {
				l.held[id] = struct{}{}
			}
			l.mu.Unlock()
			return l.releaser(ids), nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return nil, fmt.Errorf("%w: records locked by another session", models.ErrSessionConflict)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Held reports whether id is currently locked
func (l *LockManager) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.held[id]
	return ok
}

func (l *LockManager) free(ids []string) bool {
	for _, id := range ids {
		if _, ok := l.held[id]; ok {
			return false
		}
	}
	return true
}

func (l *LockManager) releaser(ids []string) func() {
	var once gosync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			for _, id := range ids {
				delete(l.held, id)
			}
			// Будим всех ожидающих
			close(l.changed)
			l.changed = make(chan struct{})
			l.mu.Unlock()
		})
	}
}
