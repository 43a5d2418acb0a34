// Package notify delivers new-message notifications raised by the inbox
// engine to user-facing sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/logging"
)

// Notification is one "new messages arrived" signal.
type Notification struct {
	Unread   int       `json:"unread"`
	Previous int       `json:"previous"`
	Title    string    `json:"title,omitempty"`
	At       time.Time `json:"at"`
}

// New returns how many unread messages arrived since the previous baseline.
func (n Notification) New() int {
	if n.Unread <= n.Previous {
		return 0
	}
	return n.Unread - n.Previous
}

// Sink receives notifications.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Source is the subscription surface of the engine.
type Source interface {
	Subscribe(id string, filter events.Filter, handler events.EventHandler) error
	Unsubscribe(id string) error
}

// Dispatcher fans engine notification events out to sinks. A failing sink
// is logged and never blocks the others.
type Dispatcher struct {
	sinks  []Sink
	title  func(unread int) string
	logger zerolog.Logger

	mu       sync.Mutex
	source   Source
	subID    string
	failures map[string]int
}

// NewDispatcher creates a dispatcher over sinks. title renders the window
// title for a given unread count and may be nil.
func NewDispatcher(title func(unread int) string, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		title:    title,
		logger:   logging.Component("notify"),
		failures: make(map[string]int),
	}
}

// Attach subscribes the dispatcher to notification events of source.
func (d *Dispatcher) Attach(source Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.source != nil {
		return errors.New("dispatcher already attached")
	}

	id := "notify-" + uuid.NewString()
	filter := events.Filter{EventTypes: []events.EventType{events.EventNotification}}
	if err := source.Subscribe(id, filter, d.handle); err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	d.source = source
	d.subID = id
	return nil
}

// Detach removes the subscription.
func (d *Dispatcher) Detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.source == nil {
		return nil
	}
	err := d.source.Unsubscribe(d.subID)
	d.source = nil
	d.subID = ""
	return err
}

// Failures returns per-sink delivery failure counts.
func (d *Dispatcher) Failures() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.failures))
	for k, v := range d.failures {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) handle(event *events.Event) {
	if event == nil || event.Type != events.EventNotification {
		return
	}
	n := Notification{Unread: event.Unread, Previous: event.Previous, At: event.Timestamp}
	if d.title != nil {
		n.Title = d.title(event.Unread)
	}
	d.Dispatch(context.Background(), n)
}

// Dispatch delivers n to every sink.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			d.mu.Lock()
			d.failures[sink.Name()]++
			d.mu.Unlock()
			d.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("notification delivery failed")
		}
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink on the notify component logger.
func NewLogSink() *LogSink {
	return &LogSink{logger: logging.Component("notify")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.Info().
		Int("unread", n.Unread).
		Int("new", n.New()).
		Str("title", n.Title).
		Msg("new messages")
	return nil
}

// BellSink rings the terminal bell.
type BellSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellSink creates a bell sink writing to w.
func NewBellSink(w io.Writer) *BellSink {
	return &BellSink{w: w}
}

func (s *BellSink) Name() string { return "bell" }

func (s *BellSink) Notify(_ context.Context, _ Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}
