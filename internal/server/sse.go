package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

const (
	// replaySize bounds how far back a reconnecting follower can resume.
	replaySize = 1000

	keepaliveEvery = 15 * time.Second
)

// streamEvent is one moist.* event as delivered to followers. IDs are
// assigned per process and restart at 1.
type streamEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// replayLog is a fixed ring of the most recent events.
type replayLog struct {
	mu   sync.RWMutex
	ring [replaySize]streamEvent
	next int
	n    int
}

func (l *replayLog) append(evt streamEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = evt
	l.next = (l.next + 1) % replaySize
	if l.n < replaySize {
		l.n++
	}
}

// after returns the retained events with an ID above id, oldest first.
func (l *replayLog) after(id uint64) []*streamEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*streamEvent
	first := (l.next - l.n + replaySize) % replaySize
	for i := range l.n {
		evt := l.ring[(first+i)%replaySize]
		if evt.ID > id {
			out = append(out, &evt)
		}
	}
	return out
}

// eventFeed fans descriptor, record, user and grant events out to the
// SSE and WebSocket followers of this process.
type eventFeed struct {
	seq    atomic.Uint64
	replay replayLog

	mu        sync.RWMutex
	followers map[*follower]struct{}
}

// follower is one open stream. An empty filter follows every topic.
type follower struct {
	filter []string
	ch     chan *streamEvent
}

func newEventFeed() *eventFeed {
	return &eventFeed{followers: make(map[*follower]struct{})}
}

// broadcast records the event for replay and offers it to every
// interested follower. A follower whose buffer is full misses it.
func (f *eventFeed) broadcast(topic string, payload []byte) {
	evt := streamEvent{ID: f.seq.Add(1), Topic: topic, Data: payload}
	f.replay.append(evt)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.followers {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
		}
	}
}

func (f *eventFeed) follow(filter []string) *follower {
	c := &follower{filter: filter, ch: make(chan *streamEvent, 64)}
	f.mu.Lock()
	f.followers[c] = struct{}{}
	f.mu.Unlock()
	return c
}

func (f *eventFeed) unfollow(c *follower) {
	f.mu.Lock()
	delete(f.followers, c)
	f.mu.Unlock()
}

// since returns the replayable events c wants with an ID above id.
func (f *eventFeed) since(c *follower, id uint64) []*streamEvent {
	var out []*streamEvent
	for _, evt := range f.replay.after(id) {
		if c.wants(evt.Topic) {
			out = append(out, evt)
		}
	}
	return out
}

func (c *follower) wants(topic string) bool {
	if len(c.filter) == 0 {
		return true
	}
	for _, pattern := range c.filter {
		if topicMatches(pattern, topic) {
			return true
		}
	}
	return false
}

// topicMatches applies NATS subject rules: "*" is one token, a trailing
// ">" is one or more.
func topicMatches(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	tok := strings.Split(topic, ".")
	for i, p := range pat {
		switch {
		case p == ">" && i == len(pat)-1:
			return len(tok) > i
		case i >= len(tok):
			return false
		case p != "*" && p != tok[i]:
			return false
		}
	}
	return len(pat) == len(tok)
}

// streamFilter reads the comma-separated ?topics= parameter.
func streamFilter(r *http.Request) []string {
	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// resumeFrom reads the last event id a follower saw, from the
// Last-Event-ID header or the ?since= parameter.
func resumeFrom(r *http.Request) (uint64, bool) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("since")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, err == nil
}

// requireStreamAccess restricts event streams to administrators; events
// carry records of every type.
func requireStreamAccess(r *http.Request) error {
	return requireAdmin(identity(r), "follow the event stream")
}

// handleEventStream serves GET /v1/events/stream as server-sent events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) error {
	if err := requireStreamAccess(r); err != nil {
		return err
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return model.NewError(model.ErrInternal, "", "streaming not supported")
	}

	c := s.feed.follow(streamFilter(r))
	defer s.feed.unfollow(c)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if id, ok := resumeFrom(r); ok {
		for _, evt := range s.feed.since(c, id) {
			writeSSEEvent(w, evt)
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case evt := <-c.ch:
			writeSSEEvent(w, evt)
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
		}
		flusher.Flush()
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
