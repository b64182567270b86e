package feed

import (
	"testing"
	"time"

	"hexidle/internal/game"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(4, nil)
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()

	ev := game.Event{Type: game.EventMoved, Username: "alice", At: time.Unix(100, 0)}
	h.Publish(ev)

	for name, ch := range map[string]<-chan game.Event{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.Username != "alice" || got.Type != game.EventMoved {
				t.Fatalf("%s: unexpected event %+v", name, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: event not delivered", name)
		}
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if h.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Len())
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub(1, nil)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(game.Event{Type: game.EventMoved, Username: "a"})
	h.Publish(game.Event{Type: game.EventMoved, Username: "b"})
	if h.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", h.Dropped())
	}
	if got := <-ch; got.Username != "a" {
		t.Fatalf("expected oldest event kept, got %+v", got)
	}
}

func TestHubCountCallback(t *testing.T) {
	h := NewHub(1, nil)
	var last int
	h.OnCount(func(n int) { last = n })
	_, c1 := h.Subscribe()
	_, c2 := h.Subscribe()
	if last != 2 {
		t.Fatalf("expected count 2, got %d", last)
	}
	c1()
	c2()
	if last != 0 {
		t.Fatalf("expected count 0, got %d", last)
	}
}
