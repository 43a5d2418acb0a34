package inbox

import (
	"github.com/tOgg1/inboxsync/internal/models"
)

// MergeUnread resolves the unread count of one conversation after a list
// poll. While the conversation is open the local read intent wins and the
// result is 0 whatever the server reports. Otherwise the server figure is
// trusted verbatim, clamped at zero.
func MergeUnread(local, server int, isActive bool) int {
	if isActive {
		return 0
	}
	if server < 0 {
		return 0
	}
	return server
}

// Reconciler applies optimistic read intents and merges them with server
// views. It also owns the notification baseline. It is not safe for
// concurrent use; the engine serializes every call.
type Reconciler struct {
	baseline    int
	hasBaseline bool
}

// NewReconciler creates a reconciler with no baseline.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// ApplyLocalIntent clears the unread count of id in store immediately and
// returns how many unread messages were cleared.
func (r *Reconciler) ApplyLocalIntent(store *ConversationStore, id string) int {
	cleared, ok := store.ClearUnread(id)
	if !ok || cleared == 0 {
		return 0
	}
	if summary, found := store.Get(id); found && summary.IsArchived {
		return cleared
	}
	// The cleared messages were observed, so they must not count as new on
	// the next poll.
	if r.hasBaseline {
		r.baseline -= cleared
		if r.baseline < 0 {
			r.baseline = 0
		}
	}
	return cleared
}

// MergeServerView returns server with every unread count reconciled against
// local and the active selection. Summaries are otherwise replaced wholesale.
func (r *Reconciler) MergeServerView(local, server []models.ConversationSummary, active string) []models.ConversationSummary {
	localUnread := make(map[string]int, len(local))
	for _, c := range local {
		localUnread[c.ID] = c.UnreadCount
	}

	merged := models.CloneConversations(server)
	for i := range merged {
		merged[i].UnreadCount = MergeUnread(localUnread[merged[i].ID], merged[i].UnreadCount, merged[i].ID == active)
	}
	return merged
}

// Observe records the aggregate of a successful list poll. It reports
// whether a new-message notification is due and the baseline it was
// compared against. Only silent polls notify, and never the first one.
func (r *Reconciler) Observe(aggregate int, silent bool) (notify bool, previous int) {
	previous = r.baseline
	notify = silent && r.hasBaseline && aggregate > r.baseline
	r.baseline = aggregate
	r.hasBaseline = true
	return notify, previous
}

// Baseline returns the last recorded aggregate and whether one exists.
func (r *Reconciler) Baseline() (int, bool) {
	return r.baseline, r.hasBaseline
}
