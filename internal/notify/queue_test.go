package notify

import (
	"fmt"
	"testing"

	"github.com/healflow/console-engine/internal/models"
)

func TestPushNewestFirst(t *testing.T) {
	q := NewQueue(10)
	q.Push(models.NotificationEvent{Title: "first", SourceID: "a"})
	q.Push(models.NotificationEvent{Title: "second", SourceID: "b"})

	events := q.List()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "second" || events[1].Title != "first" {
		t.Fatalf("expected newest first, got %q then %q", events[0].Title, events[1].Title)
	}
	if events[0].ID == "" || events[0].CreatedAt.IsZero() {
		t.Fatal("expected id and timestamp to be filled in")
	}
}

func TestPushDeduplicatesBySourceID(t *testing.T) {
	q := NewQueue(10)
	if !q.Push(models.NotificationEvent{Title: "signal seen", SourceID: "signal:s1"}) {
		t.Fatal("first push rejected")
	}
	if q.Push(models.NotificationEvent{Title: "signal seen again", SourceID: "signal:s1"}) {
		t.Fatal("duplicate source id accepted")
	}
	if len(q.List()) != 1 {
		t.Fatalf("expected 1 event, got %d", len(q.List()))
	}
}

func TestQueueBounded(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 5; i++ {
		q.Push(models.NotificationEvent{Title: fmt.Sprintf("event-%d", i), SourceID: fmt.Sprintf("src-%d", i)})
	}

	events := q.List()
	if len(events) != 3 {
		t.Fatalf("expected queue capped at 3, got %d", len(events))
	}
	if events[0].Title != "event-4" {
		t.Fatalf("expected newest retained, got %q", events[0].Title)
	}
}

func TestMarkAllReadClearsButKeepsDedup(t *testing.T) {
	q := NewQueue(10)
	q.Push(models.NotificationEvent{Title: "critical", SourceID: "signal:s1"})
	if q.UnreadCount() != 1 {
		t.Fatalf("expected 1 unread, got %d", q.UnreadCount())
	}

	q.MarkAllRead()
	if q.UnreadCount() != 0 {
		t.Fatalf("expected 0 unread, got %d", q.UnreadCount())
	}
	if len(q.List()) != 0 {
		t.Fatal("expected cleared list")
	}

	if q.Push(models.NotificationEvent{Title: "critical", SourceID: "signal:s1"}) {
		t.Fatal("cleared event reappeared after refresh")
	}
}
