package models

import (
	"sort"
	"strings"
	"time"
)

// MessageKind classifies message content.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindMedia    MessageKind = "media"
	KindTemplate MessageKind = "template"
)

// DeliveryStatus tracks an outbound message through the channel.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

// Message is a single entry in a conversation. Content is nil for media
// messages without a caption.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Direction      Direction      `json:"direction"`
	Kind           MessageKind    `json:"kind"`
	Content        *string        `json:"content,omitempty"`
	MediaType      string         `json:"media_type,omitempty"`
	MediaURL       string         `json:"media_url,omitempty"`
	MediaFilename  string         `json:"media_filename,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DeliveryStatus DeliveryStatus `json:"delivery_status,omitempty"`
	IsAutomated    bool           `json:"is_automated,omitempty"`
}

// Text returns the content or the empty string.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Preview is a one-line rendering used for list previews.
func (m Message) Preview() string {
	if text := strings.TrimSpace(m.Text()); text != "" {
		return strings.Join(strings.Fields(text), " ")
	}
	if m.Kind == KindMedia {
		if m.MediaFilename != "" {
			return "[" + m.MediaFilename + "]"
		}
		return "[media]"
	}
	return ""
}

// Validate checks the message invariants.
func (m Message) Validate() error {
	var v ValidationErrors
	if strings.TrimSpace(m.ID) == "" {
		v.Add("id", ErrMissingMessageID)
	}
	if !m.Direction.Valid() {
		v.Add("direction", ErrInvalidDirection)
	}
	switch m.Kind {
	case KindText, KindTemplate:
		if m.MediaURL != "" || m.MediaType != "" || m.MediaFilename != "" {
			v.AddMessage("media_url", "media fields are only allowed on media messages")
		}
	case KindMedia:
		if strings.TrimSpace(m.MediaURL) == "" {
			v.AddMessage("media_url", "media url is required for media messages")
		}
	default:
		v.Add("kind", ErrInvalidKind)
	}
	if m.DeliveryStatus != "" {
		switch m.DeliveryStatus {
		case DeliverySent, DeliveryDelivered, DeliveryRead:
		default:
			v.Add("delivery_status", ErrInvalidDeliveryStatus)
		}
	}
	return v.Err()
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		content := *m.Content
		out.Content = &content
	}
	return out
}

// CloneMessages deep-copies a slice of messages.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// SortMessages orders ascending by CreatedAt, ID as tiebreak.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// StringPtr is a convenience for building optional content.
func StringPtr(s string) *string {
	return &s
}
