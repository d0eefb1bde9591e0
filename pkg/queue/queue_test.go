package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDrainDueReturnsOnlyDueItemsInOrder(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue(&Item[string]{ID: "later", Payload: "c", RetryAt: now.Add(time.Minute)})
	q.Enqueue(&Item[string]{ID: "due", Payload: "b", RetryAt: now})
	q.Enqueue(&Item[string]{ID: "overdue", Payload: "a", RetryAt: now.Add(-time.Minute)})
	assert.Equal(t, 3, q.Size())

	due := q.DrainDue(now)
	require.Len(t, due, 2)
	assert.Equal(t, "overdue", due[0].ID)
	assert.Equal(t, "due", due[1].ID)
	assert.Equal(t, 1, q.Size())

	assert.Nil(t, q.DrainDue(now))

	due = q.DrainDue(now.Add(2 * time.Minute))
	require.Len(t, due, 1)
	assert.Equal(t, "c", due[0].Payload)
	assert.Equal(t, 0, q.Size())
}

func TestNextRetryAt(t *testing.T) {
	q := NewQueue[int]()
	_, ok := q.NextRetryAt()
	assert.False(t, ok)

	q.Enqueue(&Item[int]{ID: "b", RetryAt: now.Add(time.Hour)})
	q.Enqueue(&Item[int]{ID: "a", RetryAt: now.Add(time.Minute)})

	next, ok := q.NextRetryAt()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), next)
}

func TestItemExhausted(t *testing.T) {
	item := &Item[int]{MaxRetries: 2}
	assert.False(t, item.Exhausted())
	item.RetryCount = 2
	assert.True(t, item.Exhausted())

	unlimited := &Item[int]{RetryCount: 100}
	assert.False(t, unlimited.Exhausted())
}
