// Package gateway is the client side of the remote inbox API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tOgg1/inboxsync/internal/auth"
	"github.com/tOgg1/inboxsync/internal/models"
)

// Gateway is the remote inbox API. Implementations must be safe for
// concurrent use; list and message fetches may overlap.
type Gateway interface {
	// ListConversations returns every conversation summary.
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)

	// ListMessages returns the recent history of one conversation.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// Send triggers an outbound message. The response body is not trusted.
	Send(ctx context.Context, conversationID string, req SendRequest) error

	// MarkRead moves the server's read boundary to now. Servers without the
	// endpoint are treated as success.
	MarkRead(ctx context.Context, conversationID string) error
}

// SendRequest is the payload of a send call.
type SendRequest struct {
	Text string `json:"text"`
}

// Validate rejects an empty message before any network call.
func (r SendRequest) Validate() error {
	var v models.ValidationErrors
	if strings.TrimSpace(r.Text) == "" {
		v.Add("text", models.ErrEmptyMessage)
	}
	return v.Err()
}

// ErrNoCredential is returned, without touching the network, when no bearer
// credential is available.
var ErrNoCredential = auth.ErrNoCredential

// HTTPStatusError captures non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gateway: unexpected status %d from %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// HTTPStatusCode returns the response status.
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Retryable reports whether a later attempt may succeed.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsPrecondition reports whether err is a precondition failure that must not
// be retried.
func IsPrecondition(err error) bool {
	if errors.Is(err, ErrNoCredential) {
		return true
	}
	var v *models.ValidationErrors
	if errors.As(err, &v) {
		return true
	}
	var status *HTTPStatusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden
	}
	return false
}
