// Package notify fans settlement outcomes out to other processes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is prepended to every subject.
const DefaultSubjectPrefix = "propchain.settlement"

// Publisher delivers settlement notifications.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Subject returns the subject for a settlement status under prefix,
// e.g. "propchain.settlement.confirmed".
func Subject(prefix, status string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + status
}

// NoopPublisher logs notifications instead of delivering them.
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates a NoopPublisher backed by logger.
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish logs the notification and returns nil.
func (n *NoopPublisher) Publish(_ context.Context, subject string, payload any) error {
	n.logger.Debug("notification (noop, not sent)",
		zap.String("subject", subject),
		zap.Any("payload", payload),
	)
	return nil
}

// NATSPublisher publishes JSON-encoded notifications to a NATS server.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("propchain"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
		p.conn.Close()
	}
}
