package services

import (
	"slices"
	"sync"
)

// PromptLocks is the per-prompt exclusive lock table shared by training,
// deploy and rollback. Acquisition never blocks.
type PromptLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewPromptLocks creates an empty lock table
func NewPromptLocks() *PromptLocks {
	return &PromptLocks{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for promptID. It returns a release func and true on
// success, or nil and false when the lock is already held.
func (l *PromptLocks) TryAcquire(promptID string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[promptID]; ok {
		return nil, false
	}
	l.held[promptID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, promptID)
			l.mu.Unlock()
		})
	}, true
}

// IsHeld reports whether promptID is currently locked
func (l *PromptLocks) IsHeld(promptID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[promptID]
	return ok
}

// Held returns the locked prompt IDs, sorted
func (l *PromptLocks) Held() []string {
	l.mu.Lock()
	ids := make([]string, 0, len(l.held))
	for id := range l.held {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	slices.Sort(ids)
	return ids
}
