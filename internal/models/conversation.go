// Package models defines the inbox domain types shared by the gateway,
// the sync engine and its surfaces.
package models

import (
	"sort"
	"strings"
	"time"
)

// Direction says who sent a message relative to the operator.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// ConversationSummary is one row of the conversation list. ID is the
// customer's phone number and is stable for the life of the conversation.
type ConversationSummary struct {
	ID                   string    `json:"id"`
	DisplayName          string    `json:"display_name,omitempty"`
	LastMessagePreview   string    `json:"last_message_preview,omitempty"`
	LastMessageDirection Direction `json:"last_message_direction,omitempty"`
	LastMessageAt        time.Time `json:"last_message_at,omitempty"`
	UnreadCount          int       `json:"unread_count"`
	IsAutomated          bool      `json:"is_automated,omitempty"`
	IsArchived           bool      `json:"is_archived,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
}

// Name returns the display name, falling back to the conversation ID.
func (c ConversationSummary) Name() string {
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		return name
	}
	return c.ID
}

// HasTag reports whether the conversation carries tag (case-insensitive).
func (c ConversationSummary) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Validate checks the summary invariants.
func (c ConversationSummary) Validate() error {
	var v ValidationErrors
	if strings.TrimSpace(c.ID) == "" {
		v.Add("id", ErrMissingConversationID)
	}
	if c.UnreadCount < 0 {
		v.Add("unread_count", ErrNegativeUnread)
	}
	if c.LastMessageDirection != "" && !c.LastMessageDirection.Valid() {
		v.Add("last_message_direction", ErrInvalidDirection)
	}
	return v.Err()
}

// Clone returns a deep copy.
func (c ConversationSummary) Clone() ConversationSummary {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return out
}

// CloneConversations deep-copies a slice of summaries.
func CloneConversations(in []ConversationSummary) []ConversationSummary {
	if in == nil {
		return nil
	}
	out := make([]ConversationSummary, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// SortConversations orders by most recent activity first, ID as tiebreak.
func SortConversations(convs []ConversationSummary) {
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].LastMessageAt.Equal(convs[j].LastMessageAt) {
			return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
		}
		return convs[i].ID < convs[j].ID
	})
}
