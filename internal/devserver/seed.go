package devserver

import (
	"context"
	"time"

	"github.com/tOgg1/inboxsync/internal/models"
)

type seedMessage struct {
	direction models.Direction
	text      string
	ago       time.Duration
	automated bool
}

type seedConversation struct {
	conversation Conversation
	messages     []seedMessage
	read         bool
}

var demoConversations = []seedConversation{
	{
		conversation: Conversation{ID: "+15550100001", DisplayName: "Ada Lovelace", Tags: []string{"vip"}},
		messages: []seedMessage{
			{direction: models.DirectionInbound, text: "Hi, is my order on its way?", ago: 50 * time.Minute},
			{direction: models.DirectionOutbound, text: "It ships today.", ago: 45 * time.Minute},
			{direction: models.DirectionInbound, text: "Great, thanks!", ago: 10 * time.Minute},
			{direction: models.DirectionInbound, text: "Can I change the delivery address?", ago: 9 * time.Minute},
		},
	},
	{
		conversation: Conversation{ID: "+15550100002", DisplayName: "Grace Hopper"},
		messages: []seedMessage{
			{direction: models.DirectionOutbound, text: "Your appointment is confirmed for Monday.", ago: 3 * time.Hour, automated: true},
			{direction: models.DirectionInbound, text: "See you then.", ago: 2 * time.Hour},
		},
		read: true,
	},
	{
		conversation: Conversation{ID: "+15550100003", DisplayName: "Alan Turing", Tags: []string{"billing"}},
		messages: []seedMessage{
			{direction: models.DirectionInbound, text: "The invoice total looks wrong.", ago: 30 * time.Minute},
		},
	},
	{
		conversation: Conversation{ID: "+15550100004", DisplayName: "Old Lead", IsArchived: true},
		messages: []seedMessage{
			{direction: models.DirectionInbound, text: "Still interested?", ago: 48 * time.Hour},
		},
	},
}

// Seed loads demo conversations into an empty store. It is a no-op when
// any conversation exists.
func (s *Store) Seed(ctx context.Context) error {
	empty, err := s.Empty(ctx)
	if err != nil || !empty {
		return err
	}

	now := s.now()
	for _, seed := range demoConversations {
		if err := s.UpsertConversation(ctx, seed.conversation); err != nil {
			return err
		}
		for _, m := range seed.messages {
			msg := models.Message{
				ConversationID: seed.conversation.ID,
				Direction:      m.direction,
				Kind:           models.KindText,
				Content:        models.StringPtr(m.text),
				CreatedAt:      now.Add(-m.ago),
				IsAutomated:    m.automated,
			}
			if m.direction == models.DirectionOutbound {
				msg.DeliveryStatus = models.DeliveryDelivered
			}
			if _, err := s.AppendMessage(ctx, msg); err != nil {
				return err
			}
		}
		if seed.read {
			if err := s.MarkRead(ctx, seed.conversation.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
