package inbox

import (
	"fmt"
	"strings"

	"github.com/tOgg1/inboxsync/internal/models"
)

// Aggregate is the total unread count over non-archived conversations.
func Aggregate(convs []models.ConversationSummary) int {
	total := 0
	for _, c := range convs {
		if c.IsArchived || c.UnreadCount <= 0 {
			continue
		}
		total += c.UnreadCount
	}
	return total
}

// Title renders the window title with the unread badge.
func Title(base string, unread int) string {
	base = strings.TrimSpace(base)
	if unread <= 0 {
		return base
	}
	if base == "" {
		return fmt.Sprintf("(%d)", unread)
	}
	return fmt.Sprintf("(%d) %s", unread, base)
}

// Projector tracks the last projected aggregate so listeners are only told
// about real changes.
type Projector struct {
	value       int
	initialized bool
}

// Update recomputes the aggregate from convs. changed is true on the first
// call and whenever the value moved.
func (p *Projector) Update(convs []models.ConversationSummary) (value, previous int, changed bool) {
	value = Aggregate(convs)
	previous = p.value
	changed = !p.initialized || value != p.value
	p.value = value
	p.initialized = true
	return value, previous, changed
}

// Value returns the last projected aggregate.
func (p *Projector) Value() int {
	return p.value
}
