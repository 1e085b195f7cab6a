package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher sends descriptor and record events to NATS, one JSON
// message per event on the event's topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("moist-publisher"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber feeds moist.* events back into a process: descriptor
// invalidations for the registry cache, the SSE stream, and the ingest
// queue.
type NATSSubscriber struct {
	conn *nats.Conn
	log  *slog.Logger
}

// NewNATSSubscriber connects with unlimited reconnects. opts are applied
// after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("moist-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc, log: slog.Default()}, nil
}

// WithLogger sets the logger used for handler failures.
func (s *NATSSubscriber) WithLogger(l *slog.Logger) *NATSSubscriber {
	s.log = l
	return s
}

// Subscribe streams payloads for topic, which may be a wildcard such as
// TopicTypeAll. Slow readers lose messages rather than stall the
// connection. cancel is idempotent and closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg.Data:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before events published by
	// other processes are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

// Handle runs fn for every message on subject, one at a time in delivery
// order. Subscribers sharing a non-empty queue split the messages between
// them; an empty queue sees them all. Handler errors are logged and the
// subscription carries on.
func (s *NATSSubscriber) Handle(subject, queue string, fn Handler) (func(), error) {
	cb := func(msg *nats.Msg) {
		if err := fn(msg.Data); err != nil {
			s.log.Warn("handler failed", "subject", msg.Subject, "queue", queue, "error", err)
		}
	}
	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = s.conn.Subscribe(subject, cb)
	} else {
		sub, err = s.conn.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return func() { _ = sub.Drain() }, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
