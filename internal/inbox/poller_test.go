package inbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/inboxsync/internal/events"
)

func fastConfig() PollerConfig {
	return PollerConfig{
		ListInterval:    10 * time.Millisecond,
		MessageInterval: 5 * time.Millisecond,
		FetchTimeout:    time.Second,
	}
}

func TestDefaultPollerConfig(t *testing.T) {
	config := DefaultPollerConfig()
	require.Equal(t, 30*time.Second, config.ListInterval)
	require.Equal(t, 5*time.Second, config.MessageInterval)

	p := NewPoller(PollerConfig{}, nil, nil)
	require.Equal(t, config, p.config)
}

func TestPollerStartStop(t *testing.T) {
	p := NewPoller(fastConfig(), func(context.Context) error { return nil }, nil)

	require.ErrorIs(t, p.Stop(), ErrPollerNotRunning)
	require.NoError(t, p.Start(context.Background()))
	require.True(t, p.IsRunning())
	require.ErrorIs(t, p.Start(context.Background()), ErrPollerAlreadyRunning)
	require.NoError(t, p.Stop())
	require.False(t, p.IsRunning())

	// Restartable.
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
}

type runKey struct{}

func TestPollerRestartBindsListLoopToNewContext(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	p := NewPoller(fastConfig(), func(ctx context.Context) error {
		run, _ := ctx.Value(runKey{}).(string)
		mu.Lock()
		seen[run]++
		mu.Unlock()
		return nil
	}, nil)
	count := func(run string) int {
		mu.Lock()
		defer mu.Unlock()
		return seen[run]
	}

	require.NoError(t, p.Start(context.WithValue(context.Background(), runKey{}, "first")))
	require.Eventually(t, func() bool { return count("first") >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, p.Stop())
	stopped := count("first")

	second, cancel := context.WithCancel(context.WithValue(context.Background(), runKey{}, "second"))
	require.NoError(t, p.Start(second))
	require.Eventually(t, func() bool { return count("second") >= 2 }, time.Second, time.Millisecond)
	require.Equal(t, stopped, count("first"), "the stopped loop never ticks again")

	// Cancelling the parent ends the list loop even before Stop.
	cancel()
	time.Sleep(30 * time.Millisecond)
	after := count("second")
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, count("second"))
	require.NoError(t, p.Stop())
}

func TestPollerListCadence(t *testing.T) {
	var calls int32
	p := NewPoller(fastConfig(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Conversations.Successes >= 3 }, time.Second, time.Millisecond)
}

func TestPollerMessageCadenceFollowsSelection(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	p := NewPoller(fastConfig(), func(context.Context) error { return nil }, func(_ context.Context, id string) error {
		mu.Lock()
		seen[id]++
		mu.Unlock()
		return nil
	})
	count := func(id string) int {
		mu.Lock()
		defer mu.Unlock()
		return seen[id]
	}

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	time.Sleep(30 * time.Millisecond)
	require.Empty(t, seen, "no message polling without a selection")
	require.False(t, p.MessageLoopActive())

	p.SetActive("+1")
	require.True(t, p.MessageLoopActive())
	require.Eventually(t, func() bool { return count("+1") >= 2 }, time.Second, time.Millisecond)

	p.SetActive("+2")
	frozen := count("+1")
	require.Eventually(t, func() bool { return count("+2") >= 2 }, time.Second, time.Millisecond)
	require.Equal(t, frozen, count("+1"), "abandoned conversation keeps polling")

	p.SetActive("")
	require.False(t, p.MessageLoopActive())
	frozen = count("+2")
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, frozen, count("+2"))
}

func TestPollerNeverRunsTwoMessageTimers(t *testing.T) {
	var inflight, maxInflight int32
	p := NewPoller(fastConfig(), nil, func(context.Context, string) error {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return nil
	})

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	ids := []string{"+1", "+2", "+3"}
	for i := 0; i < 30; i++ {
		p.SetActive(ids[i%len(ids)])
		time.Sleep(time.Millisecond)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&maxInflight), int32(1))
}

func TestPollerSelectionBeforeStart(t *testing.T) {
	var calls int32
	p := NewPoller(fastConfig(), nil, func(context.Context, string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	p.SetActive("+1")
	require.False(t, p.MessageLoopActive())
	require.Equal(t, "+1", p.Active())

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()
	require.True(t, p.MessageLoopActive())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, time.Millisecond)
}

func TestPollerIsolatesPanicsAndFailures(t *testing.T) {
	var msgCalls int32
	p := NewPoller(fastConfig(),
		func(context.Context) error { panic("list exploded") },
		func(context.Context, string) error {
			atomic.AddInt32(&msgCalls, 1)
			return nil
		},
	)

	require.NoError(t, p.Start(context.Background()))
	p.SetActive("+1")

	require.Eventually(t, func() bool {
		return p.Stats().Conversations.Failures >= 2 && atomic.LoadInt32(&msgCalls) >= 3
	}, time.Second, time.Millisecond)
	require.NoError(t, p.Stop())
	require.Contains(t, p.Stats().Conversations.LastError, "list exploded")
}

func TestPollerCountsStaleResponses(t *testing.T) {
	p := NewPoller(fastConfig(), nil, nil)
	ctx := context.Background()

	p.tick(ctx, events.ScopeMessages, func(context.Context) error { return ErrStaleResponse })
	p.tick(ctx, events.ScopeMessages, func(context.Context) error { return errors.New("boom") })
	p.tick(ctx, events.ScopeMessages, func(context.Context) error { return nil })

	stats := p.Stats().Messages
	require.Equal(t, 1, stats.Stale)
	require.Equal(t, 1, stats.Failures)
	require.Equal(t, 1, stats.Successes)
	require.Equal(t, "boom", stats.LastError)
}

func TestPollerFetchTimeout(t *testing.T) {
	config := fastConfig()
	config.FetchTimeout = 5 * time.Millisecond
	p := NewPoller(config, nil, nil)

	p.tick(context.Background(), events.ScopeConversations, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Equal(t, 1, p.Stats().Conversations.Failures)
}
