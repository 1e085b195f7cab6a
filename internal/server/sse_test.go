package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

func typeEvent(t *testing.T, id string) []byte {
	t.Helper()
	d := model.NewTypeDescriptor(id)
	d.Properties.Add("title", model.FieldSpec{Kind: model.KindString})
	data, err := json.Marshal(events.TypeMigrated{Type: d, NewFields: []string{"title"}})
	require.NoError(t, err)
	return data
}

func recordEvent(t *testing.T, typeID, id string) []byte {
	t.Helper()
	rec := model.NewRecord()
	rec.Set(model.FieldID, model.StringValue(id))
	data, err := json.Marshal(events.RecordCreated{TypeID: typeID, Record: rec})
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, c *follower) *streamEvent {
	t.Helper()
	select {
	case evt := <-c.ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertQuiet(t *testing.T, c *follower) {
	t.Helper()
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected event on %s", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventFeed_DeliversInOrder(t *testing.T) {
	feed := newEventFeed()
	c := feed.follow(nil)
	defer feed.unfollow(c)

	feed.broadcast(events.TopicTypeMigrated, typeEvent(t, "notes"))
	feed.broadcast(events.TopicRecordCreated, recordEvent(t, "notes", "n1"))

	first := receive(t, c)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, events.TopicTypeMigrated, first.Topic)

	second := receive(t, c)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, events.TopicRecordCreated, second.Topic)
	assert.JSONEq(t, `{"type_id":"notes","record":{"id":"n1"}}`, string(second.Data))
}

func TestEventFeed_Filters(t *testing.T) {
	feed := newEventFeed()
	records := feed.follow([]string{"moist.record.*"})
	defer feed.unfollow(records)
	schema := feed.follow([]string{events.TopicTypeAll, events.TopicGrantSet})
	defer feed.unfollow(schema)

	feed.broadcast(events.TopicTypeCreated, typeEvent(t, "notes"))
	feed.broadcast(events.TopicRecordDeleted, []byte(`{"type_id":"notes","record_id":"n1"}`))
	feed.broadcast(events.TopicGrantSet, []byte(`{}`))
	feed.broadcast(events.TopicUserCreated, []byte(`{}`))

	assert.Equal(t, events.TopicRecordDeleted, receive(t, records).Topic)
	assertQuiet(t, records)

	assert.Equal(t, events.TopicTypeCreated, receive(t, schema).Topic)
	assert.Equal(t, events.TopicGrantSet, receive(t, schema).Topic)
	assertQuiet(t, schema)
}

func TestEventFeed_Unfollow(t *testing.T) {
	feed := newEventFeed()
	c := feed.follow(nil)
	feed.unfollow(c)

	feed.broadcast(events.TopicTypeDeleted, []byte(`{"type_id":"notes"}`))
	assertQuiet(t, c)
}

func TestEventFeed_SlowFollowerMissesEvents(t *testing.T) {
	feed := newEventFeed()
	c := feed.follow(nil)
	defer feed.unfollow(c)

	for i := range cap(c.ch) + 10 {
		feed.broadcast(events.TopicRecordCreated, recordEvent(t, "notes", fmt.Sprintf("n%d", i)))
	}
	assert.Len(t, c.ch, cap(c.ch))
	assert.Len(t, feed.since(c, 0), cap(c.ch)+10)
}

func TestEventFeed_Since(t *testing.T) {
	feed := newEventFeed()
	all := feed.follow(nil)
	defer feed.unfollow(all)
	types := feed.follow([]string{"moist.type.>"})
	defer feed.unfollow(types)

	assert.Empty(t, feed.since(all, 0))

	feed.broadcast(events.TopicTypeCreated, typeEvent(t, "notes"))
	for i := range 4 {
		feed.broadcast(events.TopicRecordCreated, recordEvent(t, "notes", fmt.Sprintf("n%d", i)))
	}

	got := feed.since(all, 2)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{got[0].ID, got[1].ID, got[2].ID})

	got = feed.since(types, 0)
	require.Len(t, got, 1)
	assert.Equal(t, events.TopicTypeCreated, got[0].Topic)
}

func TestReplayLog_Wraps(t *testing.T) {
	var l replayLog
	for id := range uint64(replaySize + 100) {
		l.append(streamEvent{ID: id + 1, Topic: events.TopicRecordUpdated})
	}
	got := l.after(0)
	require.Len(t, got, replaySize)
	assert.Equal(t, uint64(101), got[0].ID)
	assert.Equal(t, uint64(replaySize+100), got[len(got)-1].ID)
	assert.Len(t, l.after(replaySize+99), 1)
}

func TestTopicMatches(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		topic   string
		want    bool
	}{
		{events.TopicRecordCreated, events.TopicRecordCreated, true},
		{events.TopicRecordCreated, events.TopicRecordUpdated, false},
		{"moist.record.*", events.TopicRecordDeleted, true},
		{"moist.record.*", events.TopicTypeMigrated, false},
		{events.TopicTypeAll, events.TopicTypeDeleted, true},
		{events.TopicTypeAll, events.TopicIngestFailed, false},
		{"moist.>", events.TopicGrantDeleted, true},
		{"moist.>", "moist", false},
		{"*.*.*", events.TopicUserCreated, true},
		{"*.*.*", "moist.record", false},
		{"moist.*", events.TopicRecordCreated, false},
	} {
		t.Run(tc.pattern+"_"+tc.topic, func(t *testing.T) {
			assert.Equal(t, tc.want, topicMatches(tc.pattern, tc.topic))
		})
	}
}

// openStream runs GET path against h until the returned stop is called,
// and returns the response written so far.
func openStream(t *testing.T, h http.Handler, path string, header http.Header) func() *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := adminRequest("GET", path, nil).WithContext(ctx)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()
	// Let the handler register its follower.
	time.Sleep(50 * time.Millisecond)
	return func() *httptest.ResponseRecorder {
		time.Sleep(50 * time.Millisecond)
		cancel()
		<-done
		return rec
	}
}

type sseFrame struct {
	id, event, data string
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var (
		frames []sseFrame
		cur    sseFrame
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur != (sseFrame{}) {
				frames = append(frames, cur)
			}
			cur = sseFrame{}
		case strings.HasPrefix(line, "id:"):
			cur.id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimPrefix(line, "data:")
		}
	}
	return frames
}

func TestEventStream_Live(t *testing.T) {
	srv, _, h := newTestServer(t)
	stop := openStream(t, h, "/v1/events/stream", nil)

	srv.feed.broadcast(events.TopicRecordCreated, recordEvent(t, "notes", "n1"))

	rec := stop()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "1", frames[0].id)
	assert.Equal(t, events.TopicRecordCreated, frames[0].event)
	assert.JSONEq(t, `{"type_id":"notes","record":{"id":"n1"}}`, frames[0].data)
}

func TestEventStream_TopicFilter(t *testing.T) {
	srv, _, h := newTestServer(t)
	stop := openStream(t, h, "/v1/events/stream?topics=moist.type.>", nil)

	srv.feed.broadcast(events.TopicRecordCreated, recordEvent(t, "notes", "n1"))
	srv.feed.broadcast(events.TopicTypeMigrated, typeEvent(t, "notes"))

	frames := parseSSE(t, stop().Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, events.TopicTypeMigrated, frames[0].event)
}

func TestEventStream_Resume(t *testing.T) {
	for name, tc := range map[string]struct {
		path   string
		header http.Header
	}{
		"last-event-id": {"/v1/events/stream", http.Header{"Last-Event-Id": {"1"}}},
		"since":         {"/v1/events/stream?since=1", nil},
	} {
		t.Run(name, func(t *testing.T) {
			srv, _, h := newTestServer(t)
			srv.feed.broadcast(events.TopicRecordCreated, recordEvent(t, "notes", "n1"))
			srv.feed.broadcast(events.TopicRecordUpdated, recordEvent(t, "notes", "n1"))
			srv.feed.broadcast(events.TopicRecordDeleted, []byte(`{"type_id":"notes","record_id":"n1"}`))

			frames := parseSSE(t, openStream(t, h, tc.path, tc.header)().Body.String())
			require.Len(t, frames, 2)
			assert.Equal(t, events.TopicRecordUpdated, frames[0].event)
			assert.Equal(t, events.TopicRecordDeleted, frames[1].event)
		})
	}
}

func TestEventStream_ObjectWritesReachFollowers(t *testing.T) {
	_, _, h := newTestServer(t)
	stop := openStream(t, h, "/v1/events/stream?topics=moist.record.*", nil)

	serve(t, h, adminRequest("POST", "/v1/types/notes/objects", map[string]any{"id": "n1", "title": "hi"}), http.StatusCreated, nil)
	serve(t, h, adminRequest("DELETE", "/v1/types/notes/objects/n1", nil), http.StatusOK, nil)

	frames := parseSSE(t, stop().Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, events.TopicRecordCreated, frames[0].event)
	assert.Contains(t, frames[0].data, `"title":"hi"`)
	assert.Equal(t, events.TopicRecordDeleted, frames[1].event)
	assert.Contains(t, frames[1].data, `"record_id":"n1"`)
}

func TestEventStream_ManyFollowers(t *testing.T) {
	srv, _, h := newTestServer(t)
	stop1 := openStream(t, h, "/v1/events/stream", nil)
	stop2 := openStream(t, h, "/v1/events/stream", nil)

	srv.feed.broadcast(events.TopicTypeDeleted, []byte(`{"type_id":"notes"}`))

	for _, stop := range []func() *httptest.ResponseRecorder{stop1, stop2} {
		frames := parseSSE(t, stop().Body.String())
		require.Len(t, frames, 1)
		assert.Equal(t, events.TopicTypeDeleted, frames[0].event)
	}
}

func TestEventStream_AdminOnly(t *testing.T) {
	_, st, h := newTestServer(t)
	key := createUser(t, st, "alice")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, userRequest("GET", "/v1/events/stream", "alice", key, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
