package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tOgg1/inboxsync/internal/auth"
	"github.com/tOgg1/inboxsync/internal/config"
	"github.com/tOgg1/inboxsync/internal/gateway"
	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/notify"
)

// app is a wired engine with its notification sinks.
type app struct {
	engine     *inbox.Engine
	dispatcher *notify.Dispatcher
	closeSinks func()
}

func newGatewayClient(ctx context.Context, cfg *config.Config) (*gateway.Client, error) {
	tokens, err := auth.FromConfig(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}
	return gateway.NewClient(cfg.Gateway.BaseURL, tokens, gateway.WithTimeout(cfg.Gateway.Timeout))
}

func engineConfig(cfg *config.Config) inbox.EngineConfig {
	return inbox.EngineConfig{
		Poller: inbox.PollerConfig{
			ListInterval:    cfg.Poller.ListInterval,
			MessageInterval: cfg.Poller.MessageInterval,
			FetchTimeout:    cfg.Poller.FetchTimeout,
		},
		MarkReadOnSelect: cfg.Poller.MarkReadOnSelect,
	}
}

// newApp builds the engine and attaches notifications. bell receives the
// terminal bell when enabled; nil disables it.
func newApp(ctx context.Context, cfg *config.Config, gw gateway.Gateway, bell io.Writer) (*app, error) {
	if gw == nil {
		client, err := newGatewayClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create gateway client: %w", err)
		}
		gw = client
	}

	engine, err := inbox.NewEngine(engineConfig(cfg), gw, nil)
	if err != nil {
		return nil, err
	}

	sinks, closeSinks, err := notify.FromConfig(cfg.Notify, bell)
	if err != nil {
		return nil, fmt.Errorf("configure notifications: %w", err)
	}
	title := cfg.TUI.Title
	dispatcher := notify.NewDispatcher(func(unread int) string {
		return inbox.Title(title, unread)
	}, sinks...)
	if err := dispatcher.Attach(engine); err != nil {
		closeSinks()
		return nil, err
	}

	return &app{engine: engine, dispatcher: dispatcher, closeSinks: closeSinks}, nil
}

func (a *app) Close() error {
	var errs []error
	if err := a.engine.Stop(); err != nil && !errors.Is(err, inbox.ErrPollerNotRunning) {
		errs = append(errs, err)
	}
	if err := a.dispatcher.Detach(); err != nil {
		errs = append(errs, err)
	}
	a.closeSinks()
	return errors.Join(errs...)
}
