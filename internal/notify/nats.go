package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// natsConn is the subset of *nats.Conn the sink uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSSink publishes notifications as JSON on a NATS subject so other
// processes can react to new messages.
type NATSSink struct {
	conn    natsConn
	subject string
}

// DialNATS connects to url and returns a sink publishing on subject.
func DialNATS(url, subject string) (*NATSSink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}
	nc, err := nats.Connect(url, nats.Name("inboxsync"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sink, err := NewNATSSink(nc, subject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return sink, nil
}

// NewNATSSink wraps an existing connection.
func NewNATSSink(conn natsConn, subject string) (*NATSSink, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Notify(_ context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification to subject '%s': %w", s.subject, err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}
