// Package bus wires the worker to NATS, supporting either an external
// connection URL or an embedded in-process server as a fallback, and
// defines the subject constants and helpers shared by every bus-facing
// component.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Bus owns the NATS connection (and, if no external URL is configured, an
// embedded server) that every component publishes and subscribes through.
type Bus struct {
	embedded *server.Server
	conn     *nats.Conn
}

// Connect dials the NATS server at url. If url is empty, an embedded
// in-process server is started instead, so the worker runs standalone
// without an external broker.
func Connect(url string) (*Bus, error) {
	if url != "" {
		conn, err := nats.Connect(url, nats.Name("feedeater"))
		if err != nil {
			return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
		}
		return &Bus{conn: conn}, nil
	}

	opts := &server.Options{
		Port:      -1,
		JetStream: false,
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start")
	}

	conn, err := nats.Connect(ns.ClientURL(), nats.Name("feedeater"))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS: %w", err)
	}
	return &Bus{embedded: ns, conn: conn}, nil
}

// Conn exposes the underlying connection for components that need direct
// access (e.g. request/reply in future extensions).
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}

// Publish publishes raw bytes to subject.
func (b *Bus) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Subscribe registers a handler for subject (which may contain wildcards).
// The returned unsubscribe func is idempotent.
func (b *Bus) Subscribe(subject string, handler func(subject string, data []byte)) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Drain gracefully stops delivering to subscriptions and flushes any
// in-flight publishes, then closes the connection and (if embedded) shuts
// down the in-process server.
func (b *Bus) Drain(ctx context.Context) error {
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		} else {
			deadline := make(chan struct{})
			go func() {
				for b.conn.IsDraining() {
					time.Sleep(10 * time.Millisecond)
				}
				close(deadline)
			}()
			select {
			case <-deadline:
			case <-ctx.Done():
			}
			b.conn.Close()
		}
	}
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded.WaitForShutdown()
	}
	return nil
}
