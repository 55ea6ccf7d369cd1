package sync

import (
	"context"
	"fmt"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/store"
)

// ThreadReconciler recomputes derived thread state after an email upsert:
// the participant set is the union over all current member emails, the last
// message date is the max sent-at, and the status flags come from the single
// newest member by sent-at. Recency wins regardless of arrival order.
type ThreadReconciler struct {
	store store.Store
}

func NewThreadReconciler(s store.Store) *ThreadReconciler {
	return &ThreadReconciler{store: s}
}

func (r *ThreadReconciler) Reconcile(ctx context.Context, threadID string) error {
	messages, err := r.store.ThreadMessages(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load thread messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	newest := messages[0]
	for _, m := range messages[1:] {
		if m.SentAt.After(newest.SentAt) {
			newest = m
		}
	}

	participants, err := r.store.ThreadParticipantIDs(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load thread participants: %w", err)
	}

	state := store.ThreadState{
		ThreadID:        threadID,
		ParticipantIDs:  participants,
		LastMessageDate: newest.SentAt,
		InboxStatus:     newest.Label == models.LabelInbox,
		DraftStatus:     newest.Label == models.LabelDraft,
		SentStatus:      newest.Label == models.LabelSent,
	}
	if err := r.store.UpdateThreadState(ctx, state); err != nil {
		return fmt.Errorf("update thread state: %w", err)
	}
	return nil
}
