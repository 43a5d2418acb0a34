package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/gateway"
	"github.com/tOgg1/inboxsync/internal/logging"
	"github.com/tOgg1/inboxsync/internal/models"
)

// ErrNoActiveConversation is returned by SendMessage when nothing is selected.
var ErrNoActiveConversation = errors.New("no active conversation")

// Interactive actions reported in ActionError.
const (
	ActionRefresh = "refresh"
	ActionSelect  = "select"
	ActionSend    = "send"
)

// ActionError is a user-visible failure of an interactive action. The stores
// keep their last known good state and the action may be retried.
type ActionError struct {
	Action         string
	ConversationID string
	Err            error
}

func (e *ActionError) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Action, e.ConversationID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// EngineConfig contains engine settings.
type EngineConfig struct {
	Poller PollerConfig

	// MarkReadOnSelect calls the gateway's mark-read endpoint on selection.
	MarkReadOnSelect bool
}

// Engine is the entry point surfaces talk to. It owns the stores, the
// active selection and the poller.
//
// All store mutations go through writeMu. Events are published while it is
// held so subscribers observe them in mutation order; handlers must not call
// Engine mutators synchronously.
type Engine struct {
	config    EngineConfig
	gateway   gateway.Gateway
	publisher events.Publisher
	logger    zerolog.Logger

	conversations *ConversationStore
	messages      *MessageStore
	reconciler    *Reconciler
	projector     Projector
	poller        *Poller

	selectMu sync.Mutex
	writeMu  sync.Mutex

	listSeq     atomic.Uint64
	msgSeq      atomic.Uint64
	listApplied uint64
	msgApplied  uint64

	loadMu  sync.Mutex
	loading atomic.Int32
}

// NewEngine creates an Engine. A nil publisher gets an in-memory one.
func NewEngine(config EngineConfig, gw gateway.Gateway, publisher events.Publisher) (*Engine, error) {
	if gw == nil {
		return nil, errors.New("inbox: gateway must not be nil")
	}
	if publisher == nil {
		publisher = events.NewInMemoryPublisher()
	}
	e := &Engine{
		config:        config,
		gateway:       gw,
		publisher:     publisher,
		logger:        logging.Component("inbox-engine"),
		conversations: NewConversationStore(),
		messages:      NewMessageStore(),
		reconciler:    NewReconciler(),
	}
	e.poller = NewPoller(config.Poller, e.pollConversations, e.pollMessages)
	return e, nil
}

// Start begins background polling. Callers open the inbox with Refresh.
func (e *Engine) Start(ctx context.Context) error {
	return e.poller.Start(ctx)
}

// Stop halts background polling.
func (e *Engine) Stop() error {
	return e.poller.Stop()
}

// Stats returns the poller's fetch outcome counters.
func (e *Engine) Stats() PollerStats {
	return e.poller.Stats()
}

// Subscribe registers a handler for engine events.
func (e *Engine) Subscribe(id string, filter events.Filter, handler events.EventHandler) error {
	return e.publisher.Subscribe(id, filter, handler)
}

// Unsubscribe removes a handler.
func (e *Engine) Unsubscribe(id string) error {
	return e.publisher.Unsubscribe(id)
}

// Conversations returns the conversations matching filter.
func (e *Engine) Conversations(filter Filter) []models.ConversationSummary {
	return e.conversations.List(filter)
}

// Conversation returns one conversation by ID.
func (e *Engine) Conversation(id string) (models.ConversationSummary, bool) {
	return e.conversations.Get(id)
}

// Messages returns the active conversation's messages.
func (e *Engine) Messages() []models.Message {
	_, msgs := e.messages.Snapshot()
	return msgs
}

// Active returns the selected conversation ID, or "".
func (e *Engine) Active() string {
	return e.messages.Active()
}

// AggregateUnread recomputes the badge value from the current store.
func (e *Engine) AggregateUnread() int {
	return Aggregate(e.conversations.Snapshot())
}

// Loading reports whether an interactive fetch is in flight.
func (e *Engine) Loading() bool {
	return e.loading.Load() > 0
}

// Refresh interactively reloads the conversation list and, if a
// conversation is selected, its messages.
func (e *Engine) Refresh(ctx context.Context) error {
	done := e.beginLoading(ctx, events.ScopeConversations)
	defer done()

	var g errgroup.Group
	g.Go(func() error {
		return ignoreStale(e.fetchConversations(ctx, false))
	})
	if id := e.messages.Active(); id != "" {
		g.Go(func() error {
			return ignoreStale(e.fetchMessages(ctx, id))
		})
	}
	if err := g.Wait(); err != nil {
		return e.fail(ctx, ActionRefresh, "", err)
	}
	return nil
}

// SelectConversation makes id the active conversation. Its unread count is
// cleared before any network call, the message cadence moves to it and its
// messages are fetched interactively.
func (e *Engine) SelectConversation(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		var v models.ValidationErrors
		v.Add("conversation_id", models.ErrMissingConversationID)
		return e.fail(ctx, ActionSelect, "", v.Err())
	}

	e.selectMu.Lock()
	e.writeMu.Lock()
	changed := e.messages.Activate(id)
	cleared := e.reconciler.ApplyLocalIntent(e.conversations, id)
	if changed {
		e.publish(ctx, &events.Event{Type: events.EventSelectionChanged, ConversationID: id})
		e.publish(ctx, &events.Event{Type: events.EventStoreChanged, Scope: events.ScopeMessages, ConversationID: id})
	}
	if cleared > 0 {
		e.publish(ctx, &events.Event{Type: events.EventStoreChanged, Scope: events.ScopeConversations, ConversationID: id})
	}
	e.projectLocked(ctx)
	e.writeMu.Unlock()
	e.poller.SetActive(id)
	e.selectMu.Unlock()

	logger := logging.WithConversation(e.logger, id)
	logger.Debug().Int("cleared", cleared).Msg("conversation selected")

	done := e.beginLoading(ctx, events.ScopeMessages)
	defer done()

	var g errgroup.Group
	if e.config.MarkReadOnSelect {
		g.Go(func() error {
			if err := e.gateway.MarkRead(ctx, id); err != nil {
				logger.Warn().Err(err).Msg("mark read failed")
			}
			return nil
		})
	}
	g.Go(func() error {
		return ignoreStale(e.fetchMessages(ctx, id))
	})
	if err := g.Wait(); err != nil {
		return e.fail(ctx, ActionSelect, id, err)
	}
	return nil
}

// ClearSelection returns to the no-selection state and stops the message
// cadence.
func (e *Engine) ClearSelection() {
	e.selectMu.Lock()
	defer e.selectMu.Unlock()

	e.writeMu.Lock()
	if e.messages.Activate("") {
		e.publish(context.Background(), &events.Event{Type: events.EventSelectionChanged})
		e.publish(context.Background(), &events.Event{Type: events.EventStoreChanged, Scope: events.ScopeMessages})
	}
	e.writeMu.Unlock()
	e.poller.SetActive("")
}

// SendMessage sends text to the active conversation and then interactively
// refreshes both the message list and the conversation list. The sent
// message is never appended locally.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	id := e.messages.Active()
	if id == "" {
		var v models.ValidationErrors
		v.Add("conversation_id", ErrNoActiveConversation)
		return e.fail(ctx, ActionSend, "", v.Err())
	}
	req := gateway.SendRequest{Text: text}
	if err := req.Validate(); err != nil {
		return e.fail(ctx, ActionSend, id, err)
	}

	done := e.beginLoading(ctx, events.ScopeMessages)
	defer done()

	if err := e.gateway.Send(ctx, id, req); err != nil {
		return e.fail(ctx, ActionSend, id, err)
	}
	logger := logging.WithConversation(e.logger, id)
	logger.Info().Msg("message sent")

	var g errgroup.Group
	g.Go(func() error {
		return ignoreStale(e.fetchMessages(ctx, id))
	})
	g.Go(func() error {
		return ignoreStale(e.fetchConversations(ctx, false))
	})
	if err := g.Wait(); err != nil {
		return e.fail(ctx, ActionRefresh, id, err)
	}
	return nil
}

func (e *Engine) pollConversations(ctx context.Context) error {
	return e.fetchConversations(ctx, true)
}

func (e *Engine) pollMessages(ctx context.Context, id string) error {
	if e.messages.Active() != id {
		return ErrStaleResponse
	}
	return e.fetchMessages(ctx, id)
}

func (e *Engine) fetchConversations(ctx context.Context, silent bool) error {
	seq := e.listSeq.Add(1)
	list, err := e.gateway.ListConversations(ctx)
	if err != nil {
		return err
	}
	return e.applyConversations(ctx, seq, list, silent)
}

func (e *Engine) fetchMessages(ctx context.Context, id string) error {
	seq := e.msgSeq.Add(1)
	list, err := e.gateway.ListMessages(ctx, id)
	if err != nil {
		if e.messages.Active() != id {
			return ErrStaleResponse
		}
		return err
	}
	return e.applyMessages(ctx, seq, id, list)
}

func (e *Engine) applyConversations(ctx context.Context, seq uint64, list []models.ConversationSummary, silent bool) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if seq <= e.listApplied {
		e.logger.Debug().Uint64("seq", seq).Uint64("applied", e.listApplied).Msg("discarding stale conversation list")
		return ErrStaleResponse
	}
	e.listApplied = seq

	merged := e.reconciler.MergeServerView(e.conversations.Snapshot(), list, e.messages.Active())
	e.conversations.Replace(merged)
	notify, baseline := e.reconciler.Observe(Aggregate(merged), silent)

	e.publish(ctx, &events.Event{Type: events.EventStoreChanged, Scope: events.ScopeConversations})
	value := e.projectLocked(ctx)

	if notify {
		e.logger.Info().Int("unread", value).Int("baseline", baseline).Msg("new messages")
		e.publish(ctx, &events.Event{Type: events.EventNotification, Unread: value, Previous: baseline})
	}
	return nil
}

func (e *Engine) applyMessages(ctx context.Context, seq uint64, id string, list []models.Message) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if seq <= e.msgApplied {
		e.logger.Debug().Uint64("seq", seq).Uint64("applied", e.msgApplied).Msg("discarding stale message list")
		return ErrStaleResponse
	}
	if !e.messages.Replace(id, list) {
		logger := logging.WithConversation(e.logger, id)
		logger.Debug().Msg("discarding messages for inactive conversation")
		return ErrStaleResponse
	}
	e.msgApplied = seq
	e.publish(ctx, &events.Event{Type: events.EventStoreChanged, Scope: events.ScopeMessages, ConversationID: id})
	return nil
}

// projectLocked recomputes the aggregate and announces a change. Callers
// hold writeMu.
func (e *Engine) projectLocked(ctx context.Context) int {
	value, previous, changed := e.projector.Update(e.conversations.Snapshot())
	if changed {
		e.publish(ctx, &events.Event{Type: events.EventUnreadChanged, Unread: value, Previous: previous})
	}
	return value
}

func (e *Engine) beginLoading(ctx context.Context, scope events.Scope) func() {
	e.loadMu.Lock()
	if e.loading.Add(1) == 1 {
		e.publish(ctx, &events.Event{Type: events.EventLoadingChanged, Scope: scope, Loading: true})
	}
	e.loadMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.loadMu.Lock()
			if e.loading.Add(-1) == 0 {
				e.publish(ctx, &events.Event{Type: events.EventLoadingChanged, Scope: scope, Loading: false})
			}
			e.loadMu.Unlock()
		})
	}
}

func (e *Engine) fail(ctx context.Context, action, id string, err error) error {
	aerr := &ActionError{Action: action, ConversationID: id, Err: err}
	logger := logging.WithConversation(e.logger, id)
	logger.Warn().Err(err).Str("action", action).Msg("interactive action failed")
	e.publish(ctx, &events.Event{Type: events.EventError, Action: action, ConversationID: id, Err: aerr})
	return aerr
}

func (e *Engine) publish(ctx context.Context, event *events.Event) {
	e.publisher.Publish(context.WithoutCancel(ctx), event)
}

func ignoreStale(err error) error {
	if errors.Is(err, ErrStaleResponse) {
		return nil
	}
	return err
}
