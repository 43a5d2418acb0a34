package inboxtui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/models"
)

type fakeEngine struct {
	mu        sync.Mutex
	convs     []models.ConversationSummary
	msgs      map[string][]models.Message
	active    string
	sent      []string
	sendErr   error
	refreshes int
	clears    int
	handler   events.EventHandler
	subID     string
}

func newFakeEngine(convs ...models.ConversationSummary) *fakeEngine {
	return &fakeEngine{convs: convs, msgs: make(map[string][]models.Message)}
}

func (f *fakeEngine) Conversations(filter inbox.Filter) []models.ConversationSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ConversationSummary
	for _, c := range f.convs {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) Messages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[f.active]
}

func (f *fakeEngine) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeEngine) AggregateUnread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return inbox.Aggregate(f.convs)
}

func (f *fakeEngine) Loading() bool { return false }

func (f *fakeEngine) Refresh(context.Context) error {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SelectConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = id
	for i := range f.convs {
		if f.convs[i].ID == id {
			f.convs[i].UnreadCount = 0
		}
	}
	return nil
}

func (f *fakeEngine) ClearSelection() {
	f.mu.Lock()
	f.active = ""
	f.clears++
	f.mu.Unlock()
}

func (f *fakeEngine) SendMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeEngine) Subscribe(id string, _ events.Filter, handler events.EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subID = id
	f.handler = handler
	return nil
}

func (f *fakeEngine) Unsubscribe(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.subID {
		return errors.New("unknown subscription")
	}
	f.handler = nil
	return nil
}

func (f *fakeEngine) setUnread(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.convs {
		if f.convs[i].ID == id {
			f.convs[i].UnreadCount = n
		}
	}
}

func applyUpdate(t *testing.T, model *Model, msg tea.Msg) (*Model, tea.Cmd) {
	t.Helper()
	next, cmd := model.Update(msg)
	out, ok := next.(*Model)
	require.True(t, ok)
	return out, cmd
}

// runCmd executes cmd and feeds its result back, skipping commands that
// block (event waits) and window-title commands.
func runCmd(t *testing.T, model *Model, cmd tea.Cmd) *Model {
	t.Helper()
	if cmd == nil {
		return model
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		switch typed := msg.(type) {
		case nil:
			return model
		case tea.BatchMsg:
			for _, sub := range typed {
				model = runCmd(t, model, sub)
			}
			return model
		case actionResultMsg, engineEventMsg:
			next, nextCmd := applyUpdate(t, model, typed)
			return runCmd(t, next, nextCmd)
		default:
			return model
		}
	case <-time.After(50 * time.Millisecond):
		return model
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func conv(id, name string, unread int) models.ConversationSummary {
	return models.ConversationSummary{ID: id, DisplayName: name, UnreadCount: unread, LastMessagePreview: "hello from " + name}
}

func TestNewModelValidation(t *testing.T) {
	_, err := NewModel(nil, Config{})
	require.Error(t, err)

	_, err = NewModel(newFakeEngine(), Config{Theme: "matrix"})
	require.ErrorContains(t, err, "invalid theme")

	model, err := NewModel(newFakeEngine(), Config{})
	require.NoError(t, err)
	require.Equal(t, defaultTitle, model.cfg.Title)
	require.NoError(t, model.Close())
}

func TestInitRefreshesAndSetsTitle(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 2), conv("+2", "Grace", 1))
	model, err := NewModel(engine, Config{Title: "Support"})
	require.NoError(t, err)

	model = runCmd(t, model, model.Init())
	require.Equal(t, 1, engine.refreshes)
	require.Equal(t, "(3) Support", model.title)
	require.Len(t, model.list, 2)
}

func TestSelectClearsBadgeAndOpensThread(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 2), conv("+2", "Grace", 1))
	engine.msgs["+2"] = []models.Message{{ID: "m1", Direction: models.DirectionInbound, Kind: models.KindText, Content: models.StringPtr("hi"), CreatedAt: time.Now()}}
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)

	model, _ = applyUpdate(t, model, key("down"))
	require.Equal(t, 1, model.cursor)

	model, cmd := applyUpdate(t, model, key("enter"))
	model = runCmd(t, model, cmd)
	require.Equal(t, "+2", model.active)
	require.Len(t, model.msgs, 1)
	require.Equal(t, "(2) Inbox", model.title)
	require.Equal(t, 1, model.cursor, "cursor follows the conversation across resyncs")

	model, cmd = applyUpdate(t, model, key("esc"))
	require.NotNil(t, cmd)
	require.Zero(t, engine.clears, "esc only schedules the clear")
	require.Equal(t, "+2", model.active)

	model = runCmd(t, model, cmd)
	require.Equal(t, 1, engine.clears)
	require.Empty(t, model.active)
	require.Empty(t, model.msgs)
}

func TestEscWithoutSelectionIsNoop(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 2))
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)

	_, cmd := applyUpdate(t, model, key("esc"))
	require.Nil(t, cmd)
	require.Zero(t, engine.clears)
}

func TestEngineEventsResync(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 0))
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)
	require.Equal(t, "Inbox", model.title)

	engine.setUnread("+1", 4)
	engine.handler(&events.Event{Type: events.EventNotification, Unread: 4, Previous: 0})

	model = runCmd(t, model, model.waitForEventCmd())
	require.Equal(t, "(4) Inbox", model.title)
	require.Equal(t, "4 new", model.status)
}

func TestForwardNeverBlocks(t *testing.T) {
	engine := newFakeEngine()
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*2; i++ {
			engine.handler(&events.Event{Type: events.EventStoreChanged})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event forwarding blocked")
	}
	require.Len(t, model.events, eventBuffer)
}

func TestComposeAndSend(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 1))
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)
	model, _ = applyUpdate(t, model, tea.WindowSizeMsg{Width: 100, Height: 20})

	model, _ = applyUpdate(t, model, key("c"))
	require.Equal(t, focusList, model.focus, "compose needs an open conversation")
	require.NotEmpty(t, model.errText)

	model, cmd := applyUpdate(t, model, key("enter"))
	model = runCmd(t, model, cmd)
	model, _ = applyUpdate(t, model, key("c"))
	require.Equal(t, focusCompose, model.focus)

	for _, k := range []string{"h", "e", "y", "!", "backspace"} {
		model, _ = applyUpdate(t, model, key(k))
	}
	require.Equal(t, "hey", string(model.draft))
	require.Contains(t, model.View(), "> hey_")

	model, cmd = applyUpdate(t, model, key("enter"))
	require.True(t, model.sending)
	model = runCmd(t, model, cmd)
	require.False(t, model.sending)
	require.Empty(t, model.draft)
	require.Equal(t, []string{"hey"}, engine.sent)
}

func TestSendFailureKeepsDraft(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 0))
	engine.active = "+1"
	engine.sendErr = errors.New("gateway down")
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)

	model, _ = applyUpdate(t, model, key("c"))
	model, _ = applyUpdate(t, model, key("yo"))
	model, cmd := applyUpdate(t, model, key("enter"))
	model = runCmd(t, model, cmd)

	require.Equal(t, "yo", string(model.draft))
	require.Equal(t, "gateway down", model.errText)
}

func TestFilterToggles(t *testing.T) {
	archived := conv("+9", "Old", 0)
	archived.IsArchived = true
	engine := newFakeEngine(conv("+1", "Ada", 1), conv("+2", "Grace", 0), archived)
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)
	require.Len(t, model.list, 2)

	model, _ = applyUpdate(t, model, key("a"))
	require.Len(t, model.list, 3)

	model, _ = applyUpdate(t, model, key("u"))
	require.Len(t, model.list, 1)
	require.Equal(t, "+1", model.list[0].ID)
}

func TestViewRendersListAndThread(t *testing.T) {
	engine := newFakeEngine(conv("+1", "Ada", 2), conv("+2", "Grace", 0))
	engine.active = "+2"
	engine.msgs["+2"] = []models.Message{{
		ID:             "m1",
		Direction:      models.DirectionOutbound,
		Kind:           models.KindText,
		Content:        models.StringPtr("on its way"),
		CreatedAt:      time.Now(),
		DeliveryStatus: models.DeliveryDelivered,
	}}
	model, err := NewModel(engine, Config{})
	require.NoError(t, err)
	model, _ = applyUpdate(t, model, tea.WindowSizeMsg{Width: 100, Height: 20})

	view := model.View()
	require.Contains(t, view, "(2) Inbox")
	require.Contains(t, view, "Ada")
	require.Contains(t, view, "(2)")
	require.Contains(t, view, "on its way [delivered]")
	require.True(t, strings.Contains(view, "> Grace"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "", truncate("hello", 0))
	require.Equal(t, "hello", truncate("hello", 5))
	require.Equal(t, "he...", truncate("hello world", 5))
	require.Equal(t, "hel", truncate("hello", 3))
}
