package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/logging"
)

// Poller errors.
var (
	ErrPollerAlreadyRunning = errors.New("poller already running")
	ErrPollerNotRunning     = errors.New("poller not running")
)

// ErrStaleResponse marks a fetch whose result was discarded because a newer
// response for the same scope was already applied or the conversation is
// no longer active. It is not a failure.
var ErrStaleResponse = errors.New("stale response discarded")

// PollerConfig contains the refresh cadences.
type PollerConfig struct {
	// ListInterval drives the silent conversation-list fetch.
	// Default: 30s
	ListInterval time.Duration

	// MessageInterval drives the silent active-conversation fetch.
	// Default: 5s
	MessageInterval time.Duration

	// FetchTimeout bounds each silent fetch.
	// Default: 10s
	FetchTimeout time.Duration
}

// DefaultPollerConfig returns the standard cadences.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		ListInterval:    30 * time.Second,
		MessageInterval: 5 * time.Second,
		FetchTimeout:    10 * time.Second,
	}
}

// ListFetcher performs one silent conversation-list refresh.
type ListFetcher func(ctx context.Context) error

// MessageFetcher performs one silent refresh of a conversation's messages.
type MessageFetcher func(ctx context.Context, conversationID string) error

// ScopeStats counts fetch outcomes for one scope.
type ScopeStats struct {
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
	Stale     int       `json:"stale"`
	LastError string    `json:"last_error,omitempty"`
	LastAt    time.Time `json:"last_at,omitempty"`
}

// PollerStats is a snapshot of fetch outcomes per scope.
type PollerStats struct {
	Conversations ScopeStats `json:"conversations"`
	Messages      ScopeStats `json:"messages"`
}

// messageLoop is the fast-cadence timer of one selection.
type messageLoop struct {
	conversationID string
	cancel         context.CancelFunc
	wg             *conc.WaitGroup
	logger         zerolog.Logger
}

// Poller owns the two refresh timers. The list timer runs for the whole
// Start/Stop lifetime; the message timer exists only while a conversation
// is selected and is replaced on every selection change.
type Poller struct {
	config    PollerConfig
	listFn    ListFetcher
	messageFn MessageFetcher
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	active  string
	msgLoop *messageLoop

	statsMu sync.Mutex
	stats   PollerStats
}

// NewPoller creates a Poller. Zero config fields take their defaults.
func NewPoller(config PollerConfig, listFn ListFetcher, messageFn MessageFetcher) *Poller {
	defaults := DefaultPollerConfig()
	if config.ListInterval <= 0 {
		config.ListInterval = defaults.ListInterval
	}
	if config.MessageInterval <= 0 {
		config.MessageInterval = defaults.MessageInterval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}

	return &Poller{
		config:    config,
		listFn:    listFn,
		messageFn: messageFn,
		logger:    logging.Component("inbox-poller"),
	}
}

// Start begins the list cadence and, if a conversation is already selected,
// the message cadence.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPollerAlreadyRunning
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.wg = conc.NewWaitGroup()
	loopCtx := p.ctx

	p.logger.Info().
		Dur("list_interval", p.config.ListInterval).
		Dur("message_interval", p.config.MessageInterval).
		Msg("inbox poller starting")

	p.wg.Go(func() { p.runListLoop(loopCtx) })
	if p.active != "" {
		p.startMessageLoopLocked(p.active)
	}
	return nil
}

// Stop halts both cadences and waits for in-flight ticks to return.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerNotRunning
	}

	p.logger.Info().Msg("inbox poller stopping")
	loop := p.msgLoop
	p.msgLoop = nil
	p.cancel()
	p.running = false
	wg := p.wg
	p.mu.Unlock()

	if loop != nil {
		loop.cancel()
		loop.wg.Wait()
	}
	wg.Wait()
	p.logger.Info().Msg("inbox poller stopped")
	return nil
}

// IsRunning returns true if the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SetActive moves the message cadence to conversationID. The previous timer
// is cancelled and fully drained before the new one starts, so at most one
// message timer ever exists. An empty ID stops the message cadence.
func (p *Poller) SetActive(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == conversationID {
		return
	}
	p.active = conversationID

	if p.msgLoop != nil {
		loop := p.msgLoop
		p.msgLoop = nil
		loop.cancel()
		loop.wg.Wait()
		loop.logger.Debug().Msg("message cadence stopped")
	}

	if p.running && conversationID != "" {
		p.startMessageLoopLocked(conversationID)
	}
}

// Active returns the conversation the message cadence is bound to.
func (p *Poller) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// MessageLoopActive reports whether a message timer is currently running.
func (p *Poller) MessageLoopActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgLoop != nil
}

func (p *Poller) startMessageLoopLocked(conversationID string) {
	ctx, cancel := context.WithCancel(p.ctx)
	loop := &messageLoop{
		conversationID: conversationID,
		cancel:         cancel,
		wg:             conc.NewWaitGroup(),
		logger:         logging.WithConversation(p.logger, conversationID),
	}
	loop.wg.Go(func() { p.runMessageLoop(ctx, conversationID) })
	p.msgLoop = loop
	loop.logger.Debug().Msg("message cadence started")
}

func (p *Poller) runListLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.ListInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, events.ScopeConversations, p.listFn)
		}
	}
}

func (p *Poller) runMessageLoop(ctx context.Context, conversationID string) {
	if p.messageFn == nil {
		return
	}
	ticker := time.NewTicker(p.config.MessageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, events.ScopeMessages, func(ctx context.Context) error {
				return p.messageFn(ctx, conversationID)
			})
		}
	}
}

// tick runs one silent fetch. Failures and panics are logged and counted;
// they never escape the loop.
func (p *Poller) tick(parent context.Context, scope events.Scope, fetch ListFetcher) {
	if fetch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, p.config.FetchTimeout)
	defer cancel()

	var err error
	if recovered := panics.Try(func() { err = fetch(ctx) }); recovered != nil {
		p.logger.Error().Str("stack", string(recovered.Stack)).Msg("poll fetch panicked")
		err = fmt.Errorf("fetch panicked: %v", recovered.Value)
	}
	if parent.Err() != nil {
		return
	}
	p.record(scope, err)

	switch {
	case err == nil:
	case errors.Is(err, ErrStaleResponse):
		p.logger.Debug().Str("scope", string(scope)).Msg("discarded stale poll response")
	default:
		p.logger.Warn().Err(err).Str("scope", string(scope)).Msg("silent refresh failed")
	}
}

func (p *Poller) record(scope events.Scope, err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	s := &p.stats.Conversations
	if scope == events.ScopeMessages {
		s = &p.stats.Messages
	}
	s.LastAt = time.Now()
	switch {
	case err == nil:
		s.Successes++
	case errors.Is(err, ErrStaleResponse):
		s.Stale++
	default:
		s.Failures++
		s.LastError = err.Error()
	}
}

// Stats returns a snapshot of fetch outcomes.
func (p *Poller) Stats() PollerStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}
