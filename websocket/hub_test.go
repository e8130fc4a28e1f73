package websocket

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settle gives the hub goroutine time to drain its control channels before a
// test publishes or asserts.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case event, ok := <-client.send:
		require.True(t, ok, "send channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, client *Client) {
	t.Helper()
	select {
	case event := <-client.send:
		t.Fatalf("unexpected event delivered: %s to %s", event.Type, event.Scope)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishReachesSubscribedScope(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	orgID := uuid.New()
	client := NewClient(nil, uuid.Nil)
	hub.Register(client)
	settle()
	hub.Subscribe(client.ID, OrgScope(orgID))
	settle()

	hub.Publish(Event{Type: EventAvailabilityUpdate, Scope: OrgScope(orgID)})

	event := receiveEvent(t, client)
	assert.Equal(t, EventAvailabilityUpdate, event.Type)
	assert.Equal(t, OrgScope(orgID), event.Scope)
	assert.False(t, event.Timestamp.IsZero())
}

func TestPublishSkipsOtherScopes(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(nil, uuid.Nil)
	hub.Register(client)
	settle()
	hub.Subscribe(client.ID, OrgScope(uuid.New()))
	settle()

	hub.Publish(Event{Type: EventAvailabilityUpdate, Scope: OrgScope(uuid.New())})
	assertNoEvent(t, client)
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	orgID := uuid.New()
	client := NewClient(nil, uuid.Nil)
	hub.Register(client)
	settle()
	hub.Subscribe(client.ID, OrgScope(orgID))
	settle()

	for i := 0; i < 10; i++ {
		hub.Publish(Event{
			Type:    EventAvailabilityUpdate,
			Scope:   OrgScope(orgID),
			Payload: fmt.Sprintf("seq-%d", i),
		})
	}

	for i := 0; i < 10; i++ {
		event := receiveEvent(t, client)
		assert.Equal(t, fmt.Sprintf("seq-%d", i), event.Payload)
	}
}

func TestClassScopeDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	classID := uuid.New()
	client := NewClient(nil, uuid.Nil)
	hub.Register(client)
	settle()
	hub.Subscribe(client.ID, ClassScope(classID))
	settle()

	hub.Publish(Event{Type: EventAvailabilityUpdate, Scope: ClassScope(classID)})
	event := receiveEvent(t, client)
	assert.Equal(t, ClassScope(classID), event.Scope)

	hub.Publish(Event{Type: EventAvailabilityUpdate, Scope: ClassScope(uuid.New())})
	assertNoEvent(t, client)
}

func TestAuthenticatedClientGetsUserScope(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	userID := uuid.New()
	client := NewClient(nil, userID)
	hub.Register(client)
	settle()

	hub.Publish(Event{Type: EventBookingNotification, Scope: UserScope(userID)})
	event := receiveEvent(t, client)
	assert.Equal(t, UserScope(userID), event.Scope)

	hub.Publish(Event{Type: EventBookingNotification, Scope: UserScope(uuid.New())})
	assertNoEvent(t, client)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	orgID := uuid.New()
	client := NewClient(nil, uuid.Nil)
	hub.Register(client)
	settle()
	hub.Subscribe(client.ID, OrgScope(orgID))
	settle()
	hub.Unsubscribe(client.ID, OrgScope(orgID))
	settle()

	hub.Publish(Event{Type: EventAvailabilityUpdate, Scope: OrgScope(orgID)})
	assertNoEvent(t, client)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(nil, uuid.Nil)
	hub.Register(client)
	settle()
	hub.Unregister(client)
	settle()

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "send channel should be closed after unregister")
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestSlowConsumerDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	orgID := uuid.New()
	slow := NewClient(nil, uuid.Nil)
	healthy := NewClient(nil, uuid.Nil)
	hub.Register(slow)
	hub.Register(healthy)
	settle()
	hub.Subscribe(slow.ID, OrgScope(orgID))
	hub.Subscribe(healthy.ID, OrgScope(orgID))
	settle()

	// Overflow the slow client's buffer; nobody drains it. Extra events are
	// dropped for the slow client while the healthy one keeps receiving.
	total := cap(slow.send) + 10
	for i := 0; i < total; i++ {
		hub.Publish(Event{Type: EventAvailabilityUpdate, Scope: OrgScope(orgID), Payload: i})
		event := receiveEvent(t, healthy)
		assert.Equal(t, i, event.Payload)
	}
	assert.Len(t, slow.send, cap(slow.send))
}
