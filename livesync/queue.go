package livesync

import (
	"log/slog"
	gosync "sync"
)

// RefetchQueue is a thread-safe dedup FIFO of library ids awaiting a
// snapshot refetch. A burst of scan completions for the same library
// coalesces into a single queued fetch.
type RefetchQueue struct {
	mu     gosync.Mutex
	set    map[string]struct{}
	order  []string
	notify chan struct{} // signaled when items are added
}

// NewRefetchQueue creates an empty refetch queue.
func NewRefetchQueue() *RefetchQueue {
	return &RefetchQueue{
		set:    make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push queues a library for refetch. If the library is already queued,
// this is a no-op.
func (q *RefetchQueue) Push(libraryID string) {
	q.mu.Lock()
	if _, exists := q.set[libraryID]; exists {
		q.mu.Unlock()
		if logEnabled(slog.LevelDebug) {
			sub("refetch").Debug("push dedup", "library", libraryID)
		}
		return
	}
	q.set[libraryID] = struct{}{}
	q.order = append(q.order, libraryID)
	newLen := len(q.order)
	q.mu.Unlock()

	if logEnabled(slog.LevelDebug) {
		sub("refetch").Debug("push", "library", libraryID, "queueLen", newLen)
	}

	// Non-blocking signal
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the next library id. Blocks until one is
// available or the done channel is closed. Returns ("", false) when done.
func (q *RefetchQueue) Pop(done <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			libraryID := q.order[0]
			q.order = q.order[1:]
			delete(q.set, libraryID)
			q.mu.Unlock()
			return libraryID, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			sub("refetch").Debug("pop cancelled")
			return "", false
		case <-q.notify:
			// Loop back to check queue
		}
	}
}

// Has checks whether a library is currently queued.
func (q *RefetchQueue) Has(libraryID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.set[libraryID]
	return exists
}

// Len returns the current queue size.
func (q *RefetchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
