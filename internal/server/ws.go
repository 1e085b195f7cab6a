package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// wsWriteTimeout bounds a single message write.
const wsWriteTimeout = 5 * time.Second

// wsMessage is one event as sent over the WebSocket stream.
type wsMessage struct {
	ID    uint64          `json:"id"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// handleEventSocket serves GET /v1/events/ws. Each event is one JSON text
// message; ?since= resumes like Last-Event-ID does for SSE.
func (s *Server) handleEventSocket(w http.ResponseWriter, r *http.Request) error {
	if err := requireStreamAccess(r); err != nil {
		return err
	}
	filter := streamFilter(r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.CloseNow()

	c := s.feed.follow(filter)
	defer s.feed.unfollow(c)

	// Client messages are ignored; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if id, ok := resumeFrom(r); ok {
		for _, evt := range s.feed.since(c, id) {
			if err := writeWSEvent(ctx, conn, evt); err != nil {
				return nil
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case evt := <-c.ch:
			if err := writeWSEvent(ctx, conn, evt); err != nil {
				slog.Debug("websocket client dropped", "error", err)
				return nil
			}
		}
	}
}

func writeWSEvent(ctx context.Context, conn *websocket.Conn, evt *streamEvent) error {
	data, err := json.Marshal(wsMessage{ID: evt.ID, Topic: evt.Topic, Data: evt.Data})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
