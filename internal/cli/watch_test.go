package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/inboxsync/internal/auth"
	"github.com/tOgg1/inboxsync/internal/devserver"
	"github.com/tOgg1/inboxsync/internal/events"
	"github.com/tOgg1/inboxsync/internal/gateway"
	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/testutil"
)

const testToken = "cli-token"

// syncBuffer is a bytes.Buffer safe for the engine's publishing goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) records(t *testing.T) []WatchRecord {
	t.Helper()
	var out []WatchRecord
	scanner := bufio.NewScanner(strings.NewReader(b.String()))
	for scanner.Scan() {
		var record WatchRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record), scanner.Text())
		out = append(out, record)
	}
	return out
}

func hasRecord(records []WatchRecord, typ string) bool {
	for _, r := range records {
		if r.Type == typ {
			return true
		}
	}
	return false
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func newDevGateway(t *testing.T) (*devserver.Store, *httptest.Server) {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	store, err := devserver.Open(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(devserver.NewServer(store, testToken).Handler())
	t.Cleanup(srv.Close)
	return store, srv
}

func newDevClient(t *testing.T, url string) *gateway.Client {
	t.Helper()
	client, err := gateway.NewClient(url, auth.Static(testToken))
	require.NoError(t, err)
	return client
}

func fastEngine(t *testing.T, gw gateway.Gateway) *inbox.Engine {
	t.Helper()
	engine, err := inbox.NewEngine(inbox.EngineConfig{
		Poller: inbox.PollerConfig{
			ListInterval:    10 * time.Millisecond,
			MessageInterval: 5 * time.Millisecond,
			FetchTimeout:    time.Second,
		},
		MarkReadOnSelect: true,
	}, gw, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Stop() })
	return engine
}

func TestEventWriterHandle(t *testing.T) {
	var buf syncBuffer
	w := NewEventWriter(&buf, "Inbox")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w.Handle(&events.Event{Type: events.EventNotification, Timestamp: at, Unread: 3, Previous: 1})
	w.Handle(&events.Event{Type: events.EventError, Action: inbox.ActionSend, ConversationID: "+1", Err: errors.New("boom")})

	records := buf.records(t)
	require.Len(t, records, 2)
	require.Equal(t, "notification", records[0].Type)
	require.Equal(t, "(3) Inbox", records[0].Title)
	require.Equal(t, 1, records[0].Previous)
	require.True(t, records[0].Time.Equal(at))

	require.Equal(t, "error", records[1].Type)
	require.Equal(t, "send", records[1].Action)
	require.Equal(t, "boom", records[1].Error)
	require.False(t, records[1].Time.IsZero())
}

func TestEventWriterKeepsFirstWriteError(t *testing.T) {
	w := NewEventWriter(failingWriter{}, "Inbox")
	w.Handle(&events.Event{Type: events.EventUnreadChanged})
	require.ErrorContains(t, w.Err(), "disk full")
	require.ErrorContains(t, w.write(WatchRecord{Type: "stats"}), "disk full")
}

func TestWatchStreamsUnreadAndNotifications(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, srv := newDevGateway(t)
	_, err := store.Inbound(ctx, "+1", "Ada", "hello")
	require.NoError(t, err)

	engine := fastEngine(t, newDevClient(t, srv.URL))
	var buf syncBuffer
	w := NewEventWriter(&buf, "Inbox")

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, engine, WatchOptions{StatsInterval: 20 * time.Millisecond})
	}()

	require.Eventually(t, func() bool {
		return hasRecord(buf.records(t), "ready") && engine.Stats().Conversations.Successes > 0
	}, 2*time.Second, 5*time.Millisecond)

	_, err = store.Inbound(ctx, "+2", "Grace", "new lead")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hasRecord(buf.records(t), "notification") && hasRecord(buf.records(t), "stats")
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}

	records := buf.records(t)
	require.Equal(t, "unread.changed", records[0].Type, "the opening refresh reports the badge before ready")
	require.Equal(t, 1, records[0].Unread)
	for _, r := range records {
		if r.Type == "notification" {
			require.Equal(t, 2, r.Unread)
			require.Equal(t, "(2) Inbox", r.Title)
		}
	}
}

func TestWatchKeepsSelectedConversationRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, srv := newDevGateway(t)
	_, err := store.Inbound(ctx, "+1", "Ada", "hello")
	require.NoError(t, err)

	engine := fastEngine(t, newDevClient(t, srv.URL))
	var buf syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- NewEventWriter(&buf, "Inbox").Watch(ctx, engine, WatchOptions{ConversationID: "+1"})
	}()

	require.Eventually(t, func() bool {
		return hasRecord(buf.records(t), "ready")
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, engine.AggregateUnread())

	_, err = store.Inbound(ctx, "+1", "", "still here")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(engine.Messages()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, engine.AggregateUnread())

	cancel()
	require.NoError(t, <-done)
	require.False(t, hasRecord(buf.records(t), "notification"))
}
