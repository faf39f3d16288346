package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.ChangeEvent{}
	}
}

func TestHubDeliversMatchingEvents(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(context.Background(), "bookings", domain.Filter{Column: "initiator_id", Value: "s1"})
	defer sub.Unsubscribe()

	hub.Publish("bookings", domain.ChangeEvent{Type: domain.EventInsert, New: models.Record{"id": "b1", "initiator_id": "s2"}})
	hub.Publish("bookings", domain.ChangeEvent{Type: domain.EventInsert, New: models.Record{"id": "b2", "initiator_id": "s1"}})
	hub.Publish("other", domain.ChangeEvent{Type: domain.EventInsert, New: models.Record{"id": "x", "initiator_id": "s1"}})

	ev := receive(t, sub)
	assert.Equal(t, "b2", ev.New.GetString("id"))
	assert.Equal(t, domain.EventInsert, ev.Type)
}

func TestHubPreservesOrder(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(context.Background(), "bookings", domain.Filter{})
	defer sub.Unsubscribe()

	// publish everything before reading: the publisher must not block
	for i := 0; i < 100; i++ {
		hub.Publish("bookings", domain.ChangeEvent{Type: domain.EventUpdate, New: models.Record{"id": fmt.Sprintf("b%d", i)}})
	}
	for i := 0; i < 100; i++ {
		assert.Equal(t, fmt.Sprintf("b%d", i), receive(t, sub).New.GetString("id"))
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(context.Background(), "bookings", domain.Filter{Column: "initiator_id", Value: "s1"})
	b := hub.Subscribe(context.Background(), "bookings", domain.Filter{Column: "recipient_id", Value: "o1"})
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	hub.Publish("bookings", domain.ChangeEvent{Type: domain.EventInsert, New: models.Record{"id": "b1", "initiator_id": "s1", "recipient_id": "o1"}})

	assert.Equal(t, "b1", receive(t, a).New.GetString("id"))
	assert.Equal(t, "b1", receive(t, b).New.GetString("id"))
	assert.Equal(t, 2, hub.Subscribers("bookings"))
}

func TestUnsubscribeClosesStream(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(context.Background(), "bookings", domain.Filter{})

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
	assert.Equal(t, 0, hub.Subscribers("bookings"))

	// Should not panic
	hub.Publish("bookings", domain.ChangeEvent{Type: domain.EventInsert, New: models.Record{"id": "b1"}})
}

func TestContextCancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	sub := hub.Subscribe(ctx, "bookings", domain.Filter{})
	cancel()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers("bookings") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubNoSubscribers(t *testing.T) {
	hub := NewHub()
	// Should not panic
	hub.Publish("bookings", domain.ChangeEvent{Type: domain.EventDelete})
}
