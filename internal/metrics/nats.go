package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "codefix.metrics"

// NATSSink publishes records as JSON on a subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// DialNATS connects to url and returns a sink that owns the connection.
func DialNATS(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("codefixd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	s, err := NewNATSSink(nc, subject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNATSSink publishes on an existing connection, which the caller keeps
// ownership of.
func NewNATSSink(nc *nats.Conn, subject string) (*NATSSink, error) {
	if nc == nil {
		return nil, errors.New("metrics: nats connection is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Write publishes r. Delivery is fire-and-forget.
func (s *NATSSink) Write(_ context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling metrics record: %w", err)
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publishing metrics record: %w", err)
	}
	return nil
}

// Close drains the connection when the sink owns it.
func (s *NATSSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.nc.Drain()
}
