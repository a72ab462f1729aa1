package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduspace/enrollment-api/internal/models"
)

func TestMemoryBrokerDeliversToMatchingEmail(t *testing.T) {
	broker := NewMemoryBroker(4)

	events, cancel, err := broker.Subscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	defer cancel()

	other, otherCancel, err := broker.Subscribe(context.Background(), "b@x.com")
	require.NoError(t, err)
	defer otherCancel()

	err = broker.Publish(context.Background(), InvitationEvent{
		Type:         EventInvitationCreated,
		RequestID:    "req-1",
		StudentEmail: "A@X.com",
		Status:       models.AccessRequestStatusPending,
	})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, "req-1", event.RequestID)
	case <-time.After(time.Second):
		t.Fatal("expected event for a@x.com")
	}

	select {
	case event := <-other:
		t.Fatalf("unexpected event for b@x.com: %+v", event)
	default:
	}
}

func TestMemoryBrokerCancelStopsDelivery(t *testing.T) {
	broker := NewMemoryBroker(4)

	events, cancel, err := broker.Subscribe(context.Background(), "a@x.com")
	require.NoError(t, err)
	cancel()
	cancel() // idempotent

	_, open := <-events
	assert.False(t, open)

	require.NoError(t, broker.Publish(context.Background(), InvitationEvent{
		Type:         EventInvitationCreated,
		RequestID:    "req-2",
		StudentEmail: "a@x.com",
	}))
}

func TestInvitationEventRemoves(t *testing.T) {
	assert.False(t, InvitationEvent{Type: EventInvitationCreated, Status: models.AccessRequestStatusPending}.Removes())
	assert.True(t, InvitationEvent{Type: EventInvitationDecided, Status: models.AccessRequestStatusAccepted}.Removes())
	assert.True(t, InvitationEvent{Type: EventInvitationDecided, Status: models.AccessRequestStatusRejected}.Removes())
	assert.True(t, InvitationEvent{Type: EventInvitationDeleted}.Removes())
}
