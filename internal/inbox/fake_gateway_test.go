package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/gateway"
	"github.com/tOgg1/inboxsync/internal/models"
)

// fakeGateway is an in-memory Gateway with hooks for ordering tests.
type fakeGateway struct {
	mu        sync.Mutex
	convs     []models.ConversationSummary
	messages  map[string][]models.Message
	listErr   error
	msgErr    error
	sendErr   error
	markErr   error
	listCalls int
	msgCalls  map[string]int
	sent      []string
	marked    []string

	// listHook runs before ListConversations returns; call is 1-based.
	listHook func(call int)
	// msgHook runs before ListMessages returns; a non-nil error is returned.
	msgHook func(id string, call int) error
}

func newFakeGateway(convs ...models.ConversationSummary) *fakeGateway {
	return &fakeGateway{
		convs:    convs,
		messages: make(map[string][]models.Message),
		msgCalls: make(map[string]int),
	}
}

func (f *fakeGateway) setConversations(convs ...models.ConversationSummary) {
	f.mu.Lock()
	f.convs = convs
	f.mu.Unlock()
}

func (f *fakeGateway) setMessages(id string, msgs ...models.Message) {
	f.mu.Lock()
	f.messages[id] = msgs
	f.mu.Unlock()
}

func (f *fakeGateway) counts(id string) (list, msgs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.msgCalls[id]
}

func (f *fakeGateway) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	f.mu.Lock()
	f.listCalls++
	call := f.listCalls
	out := models.CloneConversations(f.convs)
	err := f.listErr
	hook := f.listHook
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

func (f *fakeGateway) ListMessages(ctx context.Context, id string) ([]models.Message, error) {
	f.mu.Lock()
	f.msgCalls[id]++
	call := f.msgCalls[id]
	out := models.CloneMessages(f.messages[id])
	err := f.msgErr
	hook := f.msgHook
	f.mu.Unlock()

	if hook != nil {
		if hookErr := hook(id, call); hookErr != nil {
			return nil, hookErr
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeGateway) Send(_ context.Context, id string, req gateway.SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, id+":"+req.Text)
	f.messages[id] = append(f.messages[id], models.Message{
		ID:             fmt.Sprintf("srv-%d", len(f.sent)),
		ConversationID: id,
		Direction:      models.DirectionOutbound,
		Kind:           models.KindText,
		Content:        models.StringPtr(req.Text),
		CreatedAt:      time.Now(),
		DeliveryStatus: models.DeliverySent,
	})
	return nil
}

func (f *fakeGateway) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markErr
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(event *events.Event) {
	r.mu.Lock()
	r.events = append(r.events, *event)
	r.mu.Unlock()
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func conv(id string, unread int) models.ConversationSummary {
	return models.ConversationSummary{ID: id, UnreadCount: unread, LastMessageDirection: models.DirectionInbound}
}

func textMessage(id, text string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		Direction: models.DirectionInbound,
		Kind:      models.KindText,
		Content:   models.StringPtr(text),
		CreatedAt: at,
	}
}
