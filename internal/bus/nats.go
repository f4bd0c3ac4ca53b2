package bus

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// natsBus implements Bus on a single NATS connection.
type natsBus struct {
	conn   *nats.Conn
	logger *slog.Logger
	closed chan struct{}
}

// Connect dials the bus at the given URL. The connection does not
// reconnect: once it drops, Closed fires and the bus is unusable.
func Connect(url string, logger *slog.Logger) (Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &natsBus{
		logger: logger,
		closed: make(chan struct{}),
	}

	conn, err := nats.Connect(url,
		nats.NoReconnect(),
		nats.ClosedHandler(func(c *nats.Conn) {
			if err := c.LastError(); err != nil {
				logger.Error("bus connection lost", "error", err)
			}
			close(b.closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				logger.Error("bus subscription error", "subject", sub.Subject, "error", err)
				return
			}
			logger.Error("bus error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect bus %s: %w", url, err)
	}

	b.conn = conn
	logger.Info("bus connected", "url", url)
	return b, nil
}

// Publish sends data on the given subject.
func (b *natsBus) Publish(subject string, data []byte) error {
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe binds a handler to every message matching the pattern.
func (b *natsBus) Subscribe(pattern string, h Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(pattern, func(msg *nats.Msg) {
		h(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	return sub, nil
}

// QueueSubscribe binds a handler as part of a queue group.
func (b *natsBus) QueueSubscribe(pattern, queue string, h Handler) (Subscription, error) {
	sub, err := b.conn.QueueSubscribe(pattern, queue, func(msg *nats.Msg) {
		h(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("queue subscribe %s (%s): %w", pattern, queue, err)
	}
	return sub, nil
}

// Closed fires when the connection is permanently lost.
func (b *natsBus) Closed() <-chan struct{} {
	return b.closed
}

// Close drains pending messages and tears the connection down.
func (b *natsBus) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("bus drain failed", "error", err)
		b.conn.Close()
	}
}
