package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/inboxsync/internal/auth"
	"github.com/tOgg1/inboxsync/internal/logging"
	"github.com/tOgg1/inboxsync/internal/models"
)

const maxResponseBytes = 4 << 20

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.Source
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger overrides the client's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client rooted at baseURL.
func NewClient(baseURL string, tokens auth.Source, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base url must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if tokens == nil {
		return nil, errors.New("gateway: token source must not be nil")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		logger:     logging.Component("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListConversations implements Gateway.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	valid := out[:0]
	for i, conv := range out {
		if conv.UnreadCount < 0 {
			conv.UnreadCount = 0
		}
		if err := conv.Validate(); err != nil {
			c.logger.Warn().Err(err).Int("index", i).Msg("skipping invalid conversation")
			continue
		}
		valid = append(valid, conv)
	}
	models.SortConversations(valid)
	return valid, nil
}

// ListMessages implements Gateway.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, models.ErrMissingConversationID
	}
	var out []models.Message
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "messages"), nil, &out); err != nil {
		return nil, err
	}
	valid := out[:0]
	for i, msg := range out {
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		if err := msg.Validate(); err != nil {
			logger := logging.WithConversation(c.logger, conversationID)
			logger.Warn().Err(err).Int("index", i).Msg("skipping invalid message")
			continue
		}
		valid = append(valid, msg)
	}
	models.SortMessages(valid)
	return valid, nil
}

// Send implements Gateway.
func (c *Client) Send(ctx context.Context, conversationID string, req SendRequest) error {
	if strings.TrimSpace(conversationID) == "" {
		return models.ErrMissingConversationID
	}
	if err := req.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, conversationPath(conversationID, "send"), req, nil)
}

// MarkRead implements Gateway.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return models.ErrMissingConversationID
	}
	err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "read"), nil, nil)
	var status *HTTPStatusError
	if errors.As(err, &status) && (status.StatusCode == http.StatusNotFound || status.StatusCode == http.StatusMethodNotAllowed) {
		logger := logging.WithConversation(c.logger, conversationID)
		logger.Debug().Int("status", status.StatusCode).Msg("gateway has no read endpoint, treating mark read as done")
		return nil
	}
	return err
}

func conversationPath(conversationID, action string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/" + action
}

// do resolves the credential first so a missing one never reaches the network.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredential) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNoCredential, err)
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("gateway: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(started)).
		Interface("headers", logging.RedactHeader(req.Header)).
		Msg("gateway request")

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			Method:     method,
			URL:        target,
			Body:       logging.Redact(strings.TrimSpace(string(buf))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s response: %w", path, err)
	}
	return nil
}
