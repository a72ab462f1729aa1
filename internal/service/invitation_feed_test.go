package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/realtime"
)

func feedInvitation(id string, sentAt time.Time) models.PendingInvitation {
	return models.PendingInvitation{
		AccessRequest: models.AccessRequest{
			ID:           id,
			ClassID:      "class-1",
			StudentEmail: "s@uni.edu",
			Status:       models.AccessRequestStatusPending,
			SentAt:       sentAt,
		},
		ClassName: "Algebra",
	}
}

func TestFeedSeedAndPrompts(t *testing.T) {
	feed := NewInvitationFeed()
	now := time.Now().UTC()
	feed.Seed([]models.PendingInvitation{
		feedInvitation("req-2", now.Add(time.Minute)),
		feedInvitation("req-1", now),
	}, map[string]struct{}{"req-1": {}})

	prompts := feed.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "req-2", prompts[0].ID)

	// The authoritative view still has both.
	assert.Len(t, feed.All(), 2)
	assert.Equal(t, 2, feed.Len())
}

func TestFeedPromptsStableOrder(t *testing.T) {
	feed := NewInvitationFeed()
	now := time.Now().UTC()
	feed.Seed([]models.PendingInvitation{
		feedInvitation("req-c", now.Add(2*time.Minute)),
		feedInvitation("req-a", now),
		feedInvitation("req-b", now),
	}, nil)

	prompts := feed.Prompts()
	require.Len(t, prompts, 3)
	assert.Equal(t, "req-a", prompts[0].ID)
	assert.Equal(t, "req-b", prompts[1].ID)
	assert.Equal(t, "req-c", prompts[2].ID)
}

func TestFeedCreatedEventIsIdempotent(t *testing.T) {
	feed := NewInvitationFeed()
	inv := feedInvitation("req-1", time.Now().UTC())
	event := realtime.InvitationEvent{
		Type:       realtime.EventInvitationCreated,
		RequestID:  "req-1",
		Status:     models.AccessRequestStatusPending,
		Invitation: &inv,
	}

	feed.Apply(event)
	feed.Apply(event)
	assert.Equal(t, 1, feed.Len())
}

func TestFeedDecidedEventRemovesEvenWhenDismissed(t *testing.T) {
	// A decision made in another session must close the prompt here, even
	// when this session dismissed it.
	feed := NewInvitationFeed()
	feed.Seed([]models.PendingInvitation{feedInvitation("req-1", time.Now().UTC())}, nil)
	feed.Dismiss("req-1")
	assert.Empty(t, feed.Prompts())
	assert.Equal(t, 1, feed.Len())

	feed.Apply(realtime.InvitationEvent{
		Type:      realtime.EventInvitationDecided,
		RequestID: "req-1",
		Status:    models.AccessRequestStatusAccepted,
		OldStatus: models.AccessRequestStatusPending,
	})
	assert.Zero(t, feed.Len())
	assert.Empty(t, feed.All())
}

func TestFeedRemoveEventsAreIdempotent(t *testing.T) {
	feed := NewInvitationFeed()
	feed.Seed([]models.PendingInvitation{feedInvitation("req-1", time.Now().UTC())}, nil)

	deleted := realtime.InvitationEvent{
		Type:      realtime.EventInvitationDeleted,
		RequestID: "req-1",
	}
	feed.Apply(deleted)
	feed.Apply(deleted)
	assert.Zero(t, feed.Len())

	// A stale decided event for the already removed row is a no-op.
	feed.Apply(realtime.InvitationEvent{
		Type:      realtime.EventInvitationDecided,
		RequestID: "req-1",
		Status:    models.AccessRequestStatusRejected,
	})
	assert.Zero(t, feed.Len())
}

func TestFeedReopenRestoresPrompt(t *testing.T) {
	feed := NewInvitationFeed()
	feed.Seed([]models.PendingInvitation{feedInvitation("req-1", time.Now().UTC())}, nil)

	feed.Dismiss("req-1")
	assert.Empty(t, feed.Prompts())

	feed.Reopen("req-1")
	require.Len(t, feed.Prompts(), 1)
}

func TestFeedCreatedWithoutPayloadIgnored(t *testing.T) {
	feed := NewInvitationFeed()
	feed.Apply(realtime.InvitationEvent{
		Type:      realtime.EventInvitationCreated,
		RequestID: "req-1",
	})
	assert.Zero(t, feed.Len())
}
