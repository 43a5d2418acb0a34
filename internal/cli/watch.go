package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/inbox"
)

var (
	watchConversation  string
	watchStatsInterval time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "keep this conversation open (fast message polling, never unread)")
	watchCmd.Flags().DurationVar(&watchStatsInterval, "stats-interval", time.Minute, "emit poller stats this often (0 disables)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync headlessly and stream unread changes as JSONL",
	Long: `Run the sync engine without a terminal UI. Each unread change, new-message
notification and failed action is written to stdout as one JSON object per
line. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, GetConfig(), nil, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		w := NewEventWriter(cmd.OutOrStdout(), GetConfig().TUI.Title)
		return w.Watch(ctx, a.engine, WatchOptions{
			ConversationID: watchConversation,
			StatsInterval:  watchStatsInterval,
		})
	},
}

// WatchRecord is one JSONL line of watch output.
type WatchRecord struct {
	Time           time.Time          `json:"time"`
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Unread         int                `json:"unread"`
	Previous       int                `json:"previous,omitempty"`
	Title          string             `json:"title,omitempty"`
	Action         string             `json:"action,omitempty"`
	Error          string             `json:"error,omitempty"`
	Stats          *inbox.PollerStats `json:"stats,omitempty"`
}

// watchEngine is the part of the engine the watcher drives.
type watchEngine interface {
	Start(ctx context.Context) error
	Refresh(ctx context.Context) error
	SelectConversation(ctx context.Context, id string) error
	AggregateUnread() int
	Stats() inbox.PollerStats
	Subscribe(id string, filter events.Filter, handler events.EventHandler) error
	Unsubscribe(id string) error
}

// WatchOptions configures Watch.
type WatchOptions struct {
	// ConversationID is selected after the first refresh.
	ConversationID string

	// StatsInterval emits a stats record periodically. Zero disables it.
	StatsInterval time.Duration
}

// EventWriter writes engine events to an output writer in JSONL format.
type EventWriter struct {
	mu    sync.Mutex
	out   io.Writer
	title string
	err   error
	now   func() time.Time
}

// NewEventWriter creates an EventWriter. title is the base window title the
// badge is applied to.
func NewEventWriter(out io.Writer, title string) *EventWriter {
	return &EventWriter{out: out, title: title, now: time.Now}
}

// Watch subscribes to engine, opens the inbox and streams records until ctx
// is cancelled. Returns nil on cancellation.
func (w *EventWriter) Watch(ctx context.Context, engine watchEngine, opts WatchOptions) error {
	const subID = "cli-watch"
	filter := events.Filter{EventTypes: []events.EventType{
		events.EventUnreadChanged,
		events.EventNotification,
		events.EventError,
	}}
	if err := engine.Subscribe(subID, filter, w.Handle); err != nil {
		return err
	}
	defer func() { _ = engine.Unsubscribe(subID) }()

	// A failed first refresh is reported and retried by the poller.
	_ = engine.Refresh(ctx)
	if opts.ConversationID != "" {
		_ = engine.SelectConversation(ctx, opts.ConversationID)
	}
	if err := w.write(WatchRecord{Type: "ready", Unread: engine.AggregateUnread()}); err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}

	var tick <-chan time.Time
	if opts.StatsInterval > 0 {
		ticker := time.NewTicker(opts.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return w.Err()
		case <-tick:
			stats := engine.Stats()
			if err := w.write(WatchRecord{Type: "stats", Unread: engine.AggregateUnread(), Stats: &stats}); err != nil {
				return err
			}
		}
	}
}

// Handle converts an engine event into a record. It runs on the engine's
// publishing goroutine and only writes.
func (w *EventWriter) Handle(event *events.Event) {
	record := WatchRecord{
		Type:           string(event.Type),
		ConversationID: event.ConversationID,
		Unread:         event.Unread,
		Previous:       event.Previous,
		Action:         event.Action,
	}
	if !event.Timestamp.IsZero() {
		record.Time = event.Timestamp
	}
	switch event.Type {
	case events.EventUnreadChanged, events.EventNotification:
		record.Title = inbox.Title(w.title, event.Unread)
	case events.EventError:
		if event.Err != nil {
			record.Error = event.Err.Error()
		}
	}
	_ = w.write(record)
}

// Err returns the first write failure.
func (w *EventWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *EventWriter) write(record WatchRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if record.Time.IsZero() {
		record.Time = w.now().UTC()
	}
	data, err := json.Marshal(record)
	if err != nil {
		w.err = fmt.Errorf("failed to encode record: %w", err)
		return w.err
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		w.err = fmt.Errorf("failed to write record: %w", err)
	}
	return w.err
}
