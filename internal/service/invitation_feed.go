package service

import (
	"sort"
	"sync"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/realtime"
)

// InvitationFeed is an in-memory pending view for one student session. It is
// seeded from the authoritative store and then advanced by applying events
// as idempotent set operations, so replays and out-of-order duplicates leave
// the view unchanged. A decided or deleted event always evicts the row, even
// when the session has dismissed it.
type InvitationFeed struct {
	mu        sync.RWMutex
	pending   map[string]models.PendingInvitation
	dismissed map[string]struct{}
}

// NewInvitationFeed returns an empty feed.
func NewInvitationFeed() *InvitationFeed {
	return &InvitationFeed{
		pending:   make(map[string]models.PendingInvitation),
		dismissed: make(map[string]struct{}),
	}
}

// Seed replaces the view with the authoritative pending set and the
// session's dismissal set.
func (f *InvitationFeed) Seed(invitations []models.PendingInvitation, dismissed map[string]struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = make(map[string]models.PendingInvitation, len(invitations))
	for _, inv := range invitations {
		f.pending[inv.ID] = inv
	}
	f.dismissed = make(map[string]struct{}, len(dismissed))
	for id := range dismissed {
		f.dismissed[id] = struct{}{}
	}
}

// Apply folds one event into the view. Insert-if-absent for created events,
// remove-if-present for decided and deleted ones; applying the same event
// twice is a no-op.
func (f *InvitationFeed) Apply(event realtime.InvitationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.Removes() {
		delete(f.pending, event.RequestID)
		return
	}
	if event.Type != realtime.EventInvitationCreated || event.Invitation == nil {
		return
	}
	if _, ok := f.pending[event.RequestID]; ok {
		return
	}
	f.pending[event.RequestID] = *event.Invitation
}

// Dismiss hides the id from Prompts without touching the pending set.
func (f *InvitationFeed) Dismiss(requestID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed[requestID] = struct{}{}
}

// Reopen undoes a Dismiss.
func (f *InvitationFeed) Reopen(requestID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dismissed, requestID)
}

// Prompts returns the pending invitations minus the dismissed ones, ordered
// by send time then id for a stable display.
func (f *InvitationFeed) Prompts() []models.PendingInvitation {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.PendingInvitation, 0, len(f.pending))
	for id, inv := range f.pending {
		if _, hidden := f.dismissed[id]; hidden {
			continue
		}
		out = append(out, inv)
	}
	sortInvitations(out)
	return out
}

// All returns the full pending set, dismissed included.
func (f *InvitationFeed) All() []models.PendingInvitation {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.PendingInvitation, 0, len(f.pending))
	for _, inv := range f.pending {
		out = append(out, inv)
	}
	sortInvitations(out)
	return out
}

// Len reports the pending count, dismissed included.
func (f *InvitationFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pending)
}

func sortInvitations(invitations []models.PendingInvitation) {
	sort.Slice(invitations, func(i, j int) bool {
		if !invitations[i].SentAt.Equal(invitations[j].SentAt) {
			return invitations[i].SentAt.Before(invitations[j].SentAt)
		}
		return invitations[i].ID < invitations[j].ID
	})
}
