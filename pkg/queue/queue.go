// Package queue holds deliveries that failed and wait for a later retry.
package queue

import (
	"sort"
	"sync"
	"time"
)

// Item is a delayed delivery waiting in the retry queue.
type Item[T any] struct {
	ID         string
	Payload    T
	RetryAt    time.Time
	RetryCount int
	MaxRetries int
	LastError  string
}

// Exhausted reports whether the item used up its retries.
func (i *Item[T]) Exhausted() bool {
	return i.MaxRetries > 0 && i.RetryCount >= i.MaxRetries
}

// Queue keeps items ordered by RetryAt, oldest first. It is safe for
// concurrent use.
type Queue[T any] struct {
	mu    sync.Mutex
	items []*Item[T]
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Enqueue(item *Item[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].RetryAt.After(item.RetryAt)
	})
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = item
}

// DrainDue removes and returns every item due at now, oldest first.
func (q *Queue[T]) DrainDue(now time.Time) []*Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].RetryAt.After(now)
	})
	if n == 0 {
		return nil
	}
	due := make([]*Item[T], n)
	copy(due, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	return due
}

// NextRetryAt is the retry time of the earliest item.
func (q *Queue[T]) NextRetryAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].RetryAt, true
}

func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
