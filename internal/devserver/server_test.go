package devserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/inboxsync/internal/auth"
	"github.com/tOgg1/inboxsync/internal/gateway"
	"github.com/tOgg1/inboxsync/internal/inbox"
	"github.com/tOgg1/inboxsync/internal/testutil"
)

const testToken = "dev-token"

func newTestServer(t *testing.T) (*Store, *httptest.Server) {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	store, _ := newTestStore(t)
	store.now = time.Now
	srv := httptest.NewServer(NewServer(store, testToken).Handler())
	t.Cleanup(srv.Close)
	return store, srv
}

func newTestClient(t *testing.T, url, token string) *gateway.Client {
	t.Helper()
	client, err := gateway.NewClient(url, auth.Static(token))
	require.NoError(t, err)
	return client
}

func TestServerRejectsBadToken(t *testing.T) {
	_, srv := newTestServer(t)

	_, err := newTestClient(t, srv.URL, "wrong").ListConversations(context.Background())
	var statusErr *gateway.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.True(t, gateway.IsPrecondition(err))

	resp, err := http.Get(srv.URL + "/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestServer(t)
	client := newTestClient(t, srv.URL, testToken)

	convs, err := client.ListConversations(ctx)
	require.NoError(t, err)
	require.Empty(t, convs)

	_, err = store.Inbound(ctx, "+15550001", "Ada", "hi there")
	require.NoError(t, err)

	convs, err = client.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, 1, convs[0].UnreadCount)
	require.Equal(t, "hi there", convs[0].LastMessagePreview)

	require.NoError(t, client.Send(ctx, "+15550001", gateway.SendRequest{Text: "hello back"}))
	msgs, err := client.ListMessages(ctx, "+15550001")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hello back", msgs[1].Text())
	require.Equal(t, "+15550001", msgs[1].ConversationID)

	require.NoError(t, client.MarkRead(ctx, "+15550001"))
	convs, err = client.ListConversations(ctx)
	require.NoError(t, err)
	require.Zero(t, convs[0].UnreadCount)
}

func TestServerErrors(t *testing.T) {
	ctx := context.Background()
	_, srv := newTestServer(t)
	client := newTestClient(t, srv.URL, testToken)

	_, err := client.ListMessages(ctx, "+404")
	var statusErr *gateway.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.False(t, statusErr.Retryable())

	err = client.Send(ctx, "+404", gateway.SendRequest{Text: "x"})
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/conversations/+1/inbound", strings.NewReader(`{"text":"  "}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerInboundEndpoint(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/conversations/+15550002/inbound",
		strings.NewReader(`{"text":"new lead","display_name":"Grace"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	convs, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "Grace", convs[0].DisplayName)
}

func TestServeStopsOnCancel(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	store, _ := newTestStore(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(store, "").Serve(ctx, listener) }()

	client := newTestClient(t, "http://"+listener.Addr().String(), "any")
	require.Eventually(t, func() bool {
		_, err := client.ListConversations(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// The engine keeps the open conversation read even though the server,
// whose read boundary only moves on explicit mark-read, reports new
// inbound messages as unread.
func TestEngineAgainstDevServer(t *testing.T) {
	ctx := context.Background()
	store, srv := newTestServer(t)
	client := newTestClient(t, srv.URL, testToken)

	_, err := store.Inbound(ctx, "+1", "Ada", "first")
	require.NoError(t, err)
	_, err = store.Inbound(ctx, "+2", "Grace", "hello")
	require.NoError(t, err)

	engine, err := inbox.NewEngine(inbox.EngineConfig{MarkReadOnSelect: true}, client, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Refresh(ctx))
	require.Equal(t, 2, engine.AggregateUnread())

	require.NoError(t, engine.SelectConversation(ctx, "+1"))
	require.Equal(t, 1, engine.AggregateUnread())
	require.Len(t, engine.Messages(), 1)

	time.Sleep(2 * time.Millisecond)
	_, err = store.Inbound(ctx, "+1", "", "second")
	require.NoError(t, err)

	serverView, err := client.ListConversations(ctx)
	require.NoError(t, err)
	for _, c := range serverView {
		if c.ID == "+1" {
			require.Equal(t, 1, c.UnreadCount)
		}
	}

	require.NoError(t, engine.Refresh(ctx))
	conv, ok := engine.Conversation("+1")
	require.True(t, ok)
	require.Zero(t, conv.UnreadCount)
	require.Equal(t, "second", conv.LastMessagePreview)
	require.Len(t, engine.Messages(), 2)
	require.Equal(t, 1, engine.AggregateUnread())

	require.NoError(t, engine.SendMessage(ctx, "reply"))
	require.Len(t, engine.Messages(), 3)
}
