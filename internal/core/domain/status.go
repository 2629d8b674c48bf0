package domain

import (
	"sync"
	"time"
)

// SyncStatus is the process-wide state of the sync orchestrator.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusError   SyncStatus = "error"
)

// StatusChange is delivered to subscribers when the status moves.
type StatusChange struct {
	From SyncStatus
	To   SyncStatus
	At   time.Time
}

// StatusTracker holds the current SyncStatus and fans changes out to
// subscribers. The zero value is not usable; call NewStatusTracker.
type StatusTracker struct {
	mu     sync.RWMutex
	status SyncStatus
	nextID int
	subs   map[int]func(StatusChange)
}

// NewStatusTracker returns a tracker in the idle state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status: StatusIdle,
		subs:   make(map[int]func(StatusChange)),
	}
}

// Get returns the current status.
func (t *StatusTracker) Get() SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Set moves to s and returns the previous status. Subscribers are notified
// outside the lock, and only when the status actually changed.
func (t *StatusTracker) Set(s SyncStatus) SyncStatus {
	t.mu.Lock()
	prev := t.status
	t.status = s
	var subs []func(StatusChange)
	if prev != s {
		subs = make([]func(StatusChange), 0, len(t.subs))
		for _, fn := range t.subs {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	change := StatusChange{From: prev, To: s, At: time.Now()}
	for _, fn := range subs {
		fn(change)
	}
	return prev
}

// Subscribe registers fn for status changes and returns a function that
// removes it.
func (t *StatusTracker) Subscribe(fn func(StatusChange)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
