package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healflow/console-engine/internal/models"
)

// Queue is a bounded, newest-first operator notification log. Events are
// deduplicated by source id so a signal observed on successive refresh
// cycles notifies at most once.
type Queue struct {
	mu     sync.Mutex
	events []models.NotificationEvent
	seen   map[string]struct{}
	max    int
}

// NewQueue creates a queue retaining at most max entries.
func NewQueue(max int) *Queue {
	if max <= 0 {
		max = 100
	}
	return &Queue{
		seen: make(map[string]struct{}),
		max:  max,
	}
}

// Push prepends an event. Returns false when an event with the same source
// id was already pushed. A missing id or timestamp is filled in.
func (q *Queue) Push(event models.NotificationEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if event.SourceID != "" {
		if _, dup := q.seen[event.SourceID]; dup {
			return false
		}
		q.seen[event.SourceID] = struct{}{}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	q.events = append([]models.NotificationEvent{event}, q.events...)
	if len(q.events) > q.max {
		q.events = q.events[:q.max]
	}
	return true
}

// List returns the retained events, newest first.
func (q *Queue) List() []models.NotificationEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.NotificationEvent(nil), q.events...)
}

// UnreadCount returns the number of retained unread events.
func (q *Queue) UnreadCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, ev := range q.events {
		if !ev.Read {
			count++
		}
	}
	return count
}

// MarkAllRead clears the queue. Read state is not tracked per item once
// cleared; dedup state is kept so cleared events do not reappear on the
// next refresh cycle.
func (q *Queue) MarkAllRead() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}
