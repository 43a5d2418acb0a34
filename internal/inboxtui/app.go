// Package inboxtui is the terminal inbox: a conversation list, the open
// conversation and a compose line, driven by the sync engine.
package inboxtui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/models"
)

const (
	defaultTitle  = "Inbox"
	actionTimeout = 15 * time.Second
	eventBuffer   = 64

	actionClear = "clear"
)

// Engine is the part of the sync engine the TUI drives.
type Engine interface {
	Conversations(filter inbox.Filter) []models.ConversationSummary
	Messages() []models.Message
	Active() string
	AggregateUnread() int
	Loading() bool
	Refresh(ctx context.Context) error
	SelectConversation(ctx context.Context, id string) error
	ClearSelection()
	SendMessage(ctx context.Context, text string) error
	Subscribe(id string, filter events.Filter, handler events.EventHandler) error
	Unsubscribe(id string) error
}

// Config configures the TUI.
type Config struct {
	Title        string
	Theme        string
	ShowArchived bool
}

func (c Config) normalize() (Config, error) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if strings.TrimSpace(c.Theme) == "" {
		c.Theme = "default"
	}
	if _, ok := Palettes[c.Theme]; !ok {
		return Config{}, fmt.Errorf("invalid theme %q", c.Theme)
	}
	return c, nil
}

type focus int

const (
	focusList focus = iota
	focusCompose
)

type engineEventMsg struct {
	event events.Event
}

type actionResultMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the inbox.
type Model struct {
	engine Engine
	cfg    Config
	styles styles

	subID  string
	events chan events.Event

	width  int
	height int

	filter inbox.Filter
	list   []models.ConversationSummary
	cursor int
	active string
	msgs   []models.Message

	unread  int
	title   string
	loading bool
	status  string
	errText string

	focus   focus
	draft   []rune
	sending bool
}

// NewModel creates a model and subscribes it to engine events.
func NewModel(engine Engine, cfg Config) (*Model, error) {
	if engine == nil {
		return nil, errors.New("inboxtui: engine must not be nil")
	}
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	m := &Model{
		engine: engine,
		cfg:    normalized,
		styles: newStyles(Palettes[normalized.Theme]),
		subID:  "tui-" + uuid.NewString(),
		events: make(chan events.Event, eventBuffer),
	}
	if normalized.ShowArchived {
		m.filter.Archived = inbox.ArchivedInclude
	}
	if err := engine.Subscribe(m.subID, events.Filter{}, m.forward); err != nil {
		return nil, fmt.Errorf("subscribe to engine: %w", err)
	}
	m.sync()
	return m, nil
}

// Run starts the program and blocks until the user quits.
func Run(engine Engine, cfg Config) error {
	model, err := NewModel(engine, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// Close detaches the model from the engine.
func (m *Model) Close() error {
	if m == nil || m.engine == nil {
		return nil
	}
	return m.engine.Unsubscribe(m.subID)
}

// forward never blocks the engine. A dropped event is covered by the resync
// of the next one.
func (m *Model) forward(event *events.Event) {
	select {
	case m.events <- *event:
	default:
	}
}

func (m *Model) waitForEventCmd() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return engineEventMsg{event: event}
	}
}

func (m *Model) actionCmd(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionResultMsg{action: action, err: fn(ctx)}
	}
}

func (m *Model) refreshCmd() tea.Cmd {
	return m.actionCmd(inbox.ActionRefresh, m.engine.Refresh)
}

func (m *Model) selectCmd(id string) tea.Cmd {
	return m.actionCmd(inbox.ActionSelect, func(ctx context.Context) error {
		return m.engine.SelectConversation(ctx, id)
	})
}

// clearCmd runs ClearSelection off the update loop; it waits for the
// message cadence to drain.
func (m *Model) clearCmd() tea.Cmd {
	return m.actionCmd(actionClear, func(context.Context) error {
		m.engine.ClearSelection()
		return nil
	})
}

func (m *Model) sendCmd(text string) tea.Cmd {
	return m.actionCmd(inbox.ActionSend, func(ctx context.Context) error {
		return m.engine.SendMessage(ctx, text)
	})
}

func (m *Model) Init() tea.Cmd {
	m.title = inbox.Title(m.cfg.Title, m.unread)
	return tea.Batch(
		tea.SetWindowTitle(m.title),
		m.refreshCmd(),
		m.waitForEventCmd(),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case engineEventMsg:
		if typed.event.Type == events.EventNotification {
			m.status = fmt.Sprintf("%d new", typed.event.Unread-typed.event.Previous)
		}
		return m, tea.Batch(m.sync(), m.waitForEventCmd())
	case actionResultMsg:
		return m, m.handleResult(typed)
	case tea.KeyMsg:
		if m.focus == focusCompose {
			return m, m.handleComposeKey(typed)
		}
		return m, m.handleListKey(typed)
	}
	return m, nil
}

// sync rebuilds view state from engine snapshots and returns a title
// command when the badge changed.
func (m *Model) sync() tea.Cmd {
	selectedID := ""
	if m.cursor >= 0 && m.cursor < len(m.list) {
		selectedID = m.list[m.cursor].ID
	}

	m.list = m.engine.Conversations(m.filter)
	m.active = m.engine.Active()
	m.msgs = m.engine.Messages()
	m.unread = m.engine.AggregateUnread()
	m.loading = m.engine.Loading()

	m.cursor = 0
	for i, c := range m.list {
		if c.ID == selectedID {
			m.cursor = i
			break
		}
	}

	title := inbox.Title(m.cfg.Title, m.unread)
	if title == m.title {
		return nil
	}
	m.title = title
	return tea.SetWindowTitle(title)
}

func (m *Model) handleResult(msg actionResultMsg) tea.Cmd {
	if msg.action == inbox.ActionSend {
		m.sending = false
	}
	if msg.err != nil {
		m.errText = msg.err.Error()
		return m.sync()
	}
	m.errText = ""
	if msg.action == inbox.ActionSend {
		m.draft = nil
		m.status = "sent"
	}
	return m.sync()
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "j", "down":
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(0, len(m.list)-1)
	case "enter":
		if m.cursor < len(m.list) {
			m.status = ""
			return m.selectCmd(m.list[m.cursor].ID)
		}
	case "esc":
		if m.active != "" {
			return m.clearCmd()
		}
	case "r":
		m.status = "refreshing"
		return m.refreshCmd()
	case "c", "i":
		if m.active == "" {
			m.errText = "select a conversation first"
			return nil
		}
		m.focus = focusCompose
	case "a":
		if m.filter.Archived == inbox.ArchivedExclude {
			m.filter.Archived = inbox.ArchivedInclude
		} else {
			m.filter.Archived = inbox.ArchivedExclude
		}
		return m.sync()
	case "u":
		m.filter.UnreadOnly = !m.filter.UnreadOnly
		return m.sync()
	}
	return nil
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyEsc:
		m.focus = focusList
		return nil
	case tea.KeyEnter:
		text := strings.TrimSpace(string(m.draft))
		if text == "" || m.sending {
			return nil
		}
		m.sending = true
		m.focus = focusList
		return m.sendCmd(text)
	case tea.KeyBackspace:
		if len(m.draft) > 0 {
			m.draft = m.draft[:len(m.draft)-1]
		}
		return nil
	case tea.KeySpace:
		m.draft = append(m.draft, ' ')
		return nil
	case tea.KeyRunes:
		m.draft = append(m.draft, msg.Runes...)
		return nil
	}
	return nil
}
