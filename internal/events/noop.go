package events

import "context"

var _ Publisher = (*NoopPublisher)(nil)

// NoopPublisher discards every event. A server without MOIST_NATS_URL uses
// it; other processes then only see descriptor changes by reading the store.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
