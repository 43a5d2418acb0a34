// Package inbox is the conversation synchronization and read-state engine:
// the conversation and message stores, the poller that keeps them fresh,
// the unread reconciliation rules and the aggregate badge projection.
package inbox

import (
	"strings"
	"sync"

	"github.com/tOgg1/inboxsync/internal/models"
)

// ConversationStore holds the latest known conversation list. Reads return
// deep copies; writes swap the whole collection under the lock.
type ConversationStore struct {
	mu     sync.RWMutex
	items  []models.ConversationSummary
	loaded bool
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// Replace atomically swaps the entire collection.
func (s *ConversationStore) Replace(list []models.ConversationSummary) {
	next := models.CloneConversations(list)
	models.SortConversations(next)

	s.mu.Lock()
	s.items = next
	s.loaded = true
	s.mu.Unlock()
}

// Snapshot returns a copy of every conversation in display order.
func (s *ConversationStore) Snapshot() []models.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneConversations(s.items)
}

// Loaded reports whether at least one list was stored.
func (s *ConversationStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Get returns a copy of one conversation.
func (s *ConversationStore) Get(id string) (models.ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item.Clone(), true
		}
	}
	return models.ConversationSummary{}, false
}

// ClearUnread zeroes the unread count of id and returns the previous value.
func (s *ConversationStore) ClearUnread(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			prev := s.items[i].UnreadCount
			s.items[i].UnreadCount = 0
			return prev, true
		}
	}
	return 0, false
}

// List returns the conversations matching filter in display order.
func (s *ConversationStore) List(filter Filter) []models.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ConversationSummary, 0, len(s.items))
	for _, item := range s.items {
		if filter.Matches(item) {
			out = append(out, item.Clone())
		}
	}
	return out
}

// ArchivedMode selects how archived conversations are listed.
type ArchivedMode int

const (
	// ArchivedExclude hides archived conversations.
	ArchivedExclude ArchivedMode = iota
	// ArchivedInclude lists archived and active conversations together.
	ArchivedInclude
	// ArchivedOnly lists archived conversations only.
	ArchivedOnly
)

// Filter narrows the conversation list client-side.
type Filter struct {
	Archived   ArchivedMode
	UnreadOnly bool
	// Tag matches case-insensitively.
	Tag string
	// Query matches the ID, display name or preview, case-insensitively.
	Query string
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c models.ConversationSummary) bool {
	switch f.Archived {
	case ArchivedExclude:
		if c.IsArchived {
			return false
		}
	case ArchivedOnly:
		if !c.IsArchived {
			return false
		}
	}
	if f.UnreadOnly && c.UnreadCount == 0 {
		return false
	}
	if tag := strings.TrimSpace(f.Tag); tag != "" && !c.HasTag(tag) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		haystack := strings.ToLower(c.ID + "\n" + c.DisplayName + "\n" + c.LastMessagePreview)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

// MessageStore holds the messages of the single active conversation.
type MessageStore struct {
	mu       sync.RWMutex
	active   string
	messages []models.Message
}

// NewMessageStore creates an empty store with no active conversation.
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Activate makes id the active conversation. Changing the selection drops
// the previous conversation's messages. An empty id clears the selection.
func (s *MessageStore) Activate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == id {
		return false
	}
	s.active = id
	s.messages = nil
	return true
}

// Active returns the active conversation ID, or "" when none is selected.
func (s *MessageStore) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Replace swaps the message list. It is a no-op returning false unless
// conversationID is the active conversation.
func (s *MessageStore) Replace(conversationID string, list []models.Message) bool {
	next := models.CloneMessages(list)
	models.SortMessages(next)

	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID == "" || conversationID != s.active {
		return false
	}
	s.messages = next
	return true
}

// Snapshot returns the active conversation ID and a copy of its messages.
func (s *MessageStore) Snapshot() (string, []models.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, models.CloneMessages(s.messages)
}
