package broadcast

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/model"
)

func TestHub_DeliversInPublishOrder(t *testing.T) {
	h := NewHub(16, zerolog.Nop())
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	for i := 0; i < 10; i++ {
		h.Publish(model.Event{Type: model.EventNewMessage, IssueID: fmt.Sprintf("issue-%d", i)})
	}

	for i := 0; i < 10; i++ {
		select {
		case evt := <-sub.Events():
			if evt.IssueID != fmt.Sprintf("issue-%d", i) {
				t.Fatalf("event %d out of order: %s", i, evt.IssueID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestHub_NoReplayForLateSubscriber(t *testing.T) {
	h := NewHub(16, zerolog.Nop())
	h.Publish(model.Event{Type: model.EventNewMessage, IssueID: "before"})

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	select {
	case evt := <-sub.Events():
		t.Fatalf("late subscriber received pre-registration event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowViewerIsDroppedNotBlocking(t *testing.T) {
	h := NewHub(2, zerolog.Nop())
	slow := h.Subscribe()
	fast := h.Subscribe()
	defer h.Unsubscribe(fast)

	// Fill the slow viewer's queue and keep publishing; the hub must never
	// block and must tear the slow viewer down.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(model.Event{Type: model.EventNewMessage, IssueID: fmt.Sprintf("i%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow viewer")
	}

	// Slow viewer's channel ends closed after its buffered backlog.
	drained := 0
	for range slow.Events() {
		drained++
	}
	if drained != 2 {
		t.Fatalf("expected 2 buffered events before teardown, got %d", drained)
	}
	if h.Viewers() != 1 {
		t.Fatalf("expected 1 remaining viewer, got %d", h.Viewers())
	}

	// The fast viewer got everything.
	got := 0
	for i := 0; i < 5; i++ {
		select {
		case <-fast.Events():
			got++
		case <-time.After(time.Second):
			t.Fatalf("fast viewer missing event %d", i)
		}
	}
	if got != 5 {
		t.Fatalf("fast viewer received %d of 5 events", got)
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h := NewHub(4, zerolog.Nop())
	sub := h.Subscribe()
	h.Unsubscribe(sub)
	h.Unsubscribe(sub) // second call must be a no-op
	h.Unsubscribe(nil)

	if h.Viewers() != 0 {
		t.Fatalf("expected 0 viewers, got %d", h.Viewers())
	}
}

func TestHub_EveryViewerSeesEveryEvent(t *testing.T) {
	h := NewHub(16, zerolog.Nop())
	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = h.Subscribe()
	}

	h.Publish(model.Event{Type: model.EventIssueResolved, IssueID: "issue-1"})

	for i, sub := range subs {
		select {
		case evt := <-sub.Events():
			if evt.Type != model.EventIssueResolved || evt.IssueID != "issue-1" {
				t.Fatalf("viewer %d got wrong event: %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("viewer %d missing event", i)
		}
	}
}
