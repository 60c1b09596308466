package events

import (
	"context"
	"testing"
	"time"
)

func TestRegisterAndPollImmediate(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")
	if info.LastEventID != -1 {
		t.Fatalf("expected last_event_id -1, got %d", info.LastEventID)
	}

	r.SendToUser("user-a", NewPayload(TypeUserPersona, "add", map[string]string{"name": "Duke"}))

	got, err := r.Poll(context.Background(), info.QueueID, -1, time.Second)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(got) != 1 || got[0].Type != TypeUserPersona || got[0].ID != 0 {
		t.Fatalf("unexpected events: %#v", got)
	}
}

func TestPollParksUntilEventArrives(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")

	go func() {
		time.Sleep(50 * time.Millisecond)
		r.SendToUser("user-a", NewPayload(TypeBotPresence, "", nil))
	}()

	start := time.Now()
	got, err := r.Poll(context.Background(), info.QueueID, -1, 5*time.Second)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	if time.Since(start) >= 5*time.Second {
		t.Fatalf("poll did not wake on event arrival")
	}
}

func TestPollWakesEveryParkedPoller(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")

	const pollers = 3
	results := make(chan int, pollers)
	for range pollers {
		go func() {
			got, err := r.Poll(context.Background(), info.QueueID, -1, 5*time.Second)
			if err != nil {
				t.Errorf("poll failed: %v", err)
			}
			results <- len(got)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	r.SendToUser("user-a", NewPayload(TypeMessage, "", nil))

	for range pollers {
		select {
		case n := <-results:
			if n != 1 {
				t.Fatalf("poller saw %d events, want 1", n)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("a parked poller never woke")
		}
	}
	if time.Since(start) >= 2*time.Second {
		t.Fatal("pollers woke only after their timeout")
	}
}

func TestPollTimeoutReturnsEmpty(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")

	got, err := r.Poll(context.Background(), info.QueueID, -1, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events on timeout, got %#v", got)
	}
}

func TestUnacknowledgedEventsRedelivered(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")

	r.SendToUser("user-a", NewPayload(TypeMessage, "", nil))
	r.SendToUser("user-a", NewPayload(TypeMessage, "", nil))

	first, err := r.Poll(context.Background(), info.QueueID, -1, time.Second)
	if err != nil || len(first) != 2 {
		t.Fatalf("first poll: %v, events %d", err, len(first))
	}

	// Client drops the response: same last_event_id again.
	again, err := r.Poll(context.Background(), info.QueueID, -1, time.Second)
	if err != nil || len(again) != 2 {
		t.Fatalf("redelivery poll: %v, events %d", err, len(again))
	}
	if again[0].ID != first[0].ID || again[1].ID != first[1].ID {
		t.Fatalf("redelivery changed event ids: %#v vs %#v", again, first)
	}

	// Acknowledge both; nothing left.
	rest, err := r.Poll(context.Background(), info.QueueID, again[1].ID, 30*time.Millisecond)
	if err != nil || len(rest) != 0 {
		t.Fatalf("expected empty queue after ack, got %v %d", err, len(rest))
	}
}

func TestEventIDsIncreasePerQueue(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")
	for range 5 {
		r.SendToUser("user-a", NewPayload(TypeMessage, "", nil))
	}
	got, err := r.Poll(context.Background(), info.QueueID, -1, time.Second)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	for i, ev := range got {
		if ev.ID != int64(i) {
			t.Fatalf("event %d has id %d", i, ev.ID)
		}
	}
}

func TestRealmFanOutSkipsOtherRealms(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	a := r.Register("user-a", "realm-1")
	b := r.Register("user-b", "realm-2")

	r.SendToRealm("realm-1", NewPayload(TypeBotCommands, "add", nil))

	got, err := r.Poll(context.Background(), a.QueueID, -1, time.Second)
	if err != nil || len(got) != 1 {
		t.Fatalf("realm-1 queue: %v, events %d", err, len(got))
	}
	none, err := r.Poll(context.Background(), b.QueueID, -1, 30*time.Millisecond)
	if err != nil || len(none) != 0 {
		t.Fatalf("realm-2 queue should be empty, got %v %d", err, len(none))
	}
}

func TestSendToUsersDeduplicates(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")

	r.SendToUsers([]string{"user-a", "user-a"}, NewPayload(TypeMessage, "", nil))

	got, err := r.Poll(context.Background(), info.QueueID, -1, time.Second)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one event after dedup, got %d", len(got))
	}
}

func TestPollUnknownQueue(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	if _, err := r.Poll(context.Background(), "nope", -1, time.Second); err != ErrBadEventQueue {
		t.Fatalf("expected ErrBadEventQueue, got %v", err)
	}
}

func TestGCDropsIdleQueues(t *testing.T) {
	r := NewRegistry(nil, 10*time.Millisecond)
	info := r.Register("user-a", "realm-1")
	time.Sleep(30 * time.Millisecond)

	if dropped := r.GC(); dropped != 1 {
		t.Fatalf("expected 1 dropped queue, got %d", dropped)
	}
	if _, err := r.Poll(context.Background(), info.QueueID, -1, time.Second); err != ErrBadEventQueue {
		t.Fatalf("expected ErrBadEventQueue after GC, got %v", err)
	}
}

func TestDeleteQueue(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	info := r.Register("user-a", "realm-1")
	if !r.Delete(info.QueueID) {
		t.Fatalf("expected delete to report existing queue")
	}
	if r.Delete(info.QueueID) {
		t.Fatalf("expected second delete to report missing queue")
	}
}
