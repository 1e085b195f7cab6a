package events

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ImplementsInterfaces(t *testing.T) {
	var _ Subscriber = (*NATSSubscriber)(nil)
	var _ QueueSubscriber = (*NATSSubscriber)(nil)
}

func TestNATSSubscriber_WildcardTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicTypeAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	_ = pub.conn.Publish(TopicRecordCreated, []byte(`{"skip":true}`))
	_ = pub.conn.Publish(TopicTypeDeleted, []byte(`{"type_id":"t"}`))
	pub.conn.Flush()

	select {
	case msg := <-ch:
		if string(msg) != `{"type_id":"t"}` {
			t.Errorf("got %q, want the type event only", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("moist.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestNATSSubscriber_HandleDeliversAll(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	const n = 200
	var (
		mu  sync.Mutex
		got int
	)
	done := make(chan struct{})
	stop, err := sub.Handle("moist.ingest", "moist-ingest", func(data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got++
		if got == n {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer stop()

	for range n {
		_ = pub.conn.Publish("moist.ingest", []byte(`{}`))
	}
	pub.conn.Flush()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("handled %d of %d messages", got, n)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNATSSubscriber_HandleLogsFailures(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	var logs lockedBuffer
	sub.WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	calls := make(chan struct{}, 2)
	stop, err := sub.Handle(TopicRecordCreated, "", func(data []byte) error {
		calls <- struct{}{}
		if string(data) == `{"type_id":"bad"}` {
			return errors.New("unknown type bad")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	defer stop()

	_ = pub.conn.Publish(TopicRecordCreated, []byte(`{"type_id":"bad"}`))
	_ = pub.conn.Publish(TopicRecordCreated, []byte(`{"type_id":"notes"}`))
	pub.conn.Flush()

	for range 2 {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("handler stopped after a failure")
		}
	}

	out := logs.String()
	if !strings.Contains(out, "handler failed") || !strings.Contains(out, "subject="+TopicRecordCreated) {
		t.Errorf("log = %q, want a handler failure on %s", out, TopicRecordCreated)
	}
	if !strings.Contains(out, "unknown type bad") {
		t.Errorf("log = %q, want the handler error", out)
	}
	if strings.Count(out, "handler failed") != 1 {
		t.Errorf("log = %q, want exactly one failure", out)
	}
}
