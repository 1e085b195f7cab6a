// Package server exposes the store over HTTP and gRPC.
//
// Both transports share one set of operations (ops.go) that run the
// permission checks, schema inference and record model calls. Events from
// every mutation go to the configured publisher and to the in-process event feed
// feeding the SSE and WebSocket streams.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/moisturizer/internal/auth"
	"github.com/alfredjeanlab/moisturizer/internal/batch"
	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/perm"
	"github.com/alfredjeanlab/moisturizer/internal/registry"
	"github.com/alfredjeanlab/moisturizer/internal/store"
)

// Config holds the server settings.
type Config struct {
	// AuthToken enables "Bearer" authentication as the administrator.
	AuthToken string
	// AdminID is the identity Bearer callers act as.
	AdminID string
	// MaxRedirects bounds redirect chains inside a batch.
	MaxRedirects int
	// MaxBodyBytes caps request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Schema holds the read-only, immutable and strict settings.
	Schema registry.Options
}

// Server implements the HTTP and gRPC APIs.
type Server struct {
	store     store.Store
	reg       *registry.Registry
	perms     *perm.Resolver
	auth      *auth.Authenticator
	publisher events.Publisher
	feed      *eventFeed
	batch     *batch.Dispatcher
	cfg       Config

	routes http.Handler
}

// New returns a server over st. Events go to pub, which may be nil.
func New(st store.Store, pub events.Publisher, cfg Config) *Server {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if cfg.AdminID == "" {
		cfg.AdminID = model.RoleAdmin
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	feed := newEventFeed()
	fan := &feedPublisher{next: pub, feed: feed}
	s := &Server{
		store:     st,
		reg:       registry.New(st, fan, cfg.Schema),
		perms:     perm.New(st, cfg.Schema.ReadOnly),
		auth:      auth.New(st, cfg.AuthToken, cfg.AdminID),
		publisher: fan,
		feed:      feed,
		cfg:       cfg,
	}
	s.routes = s.newMux()
	s.batch = batch.New(batch.ExecutorFunc(s.executeSubrequest), cfg.MaxRedirects)
	return s
}

// Registry returns the type registry the server writes through.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Publisher returns the publisher that reaches both the event bus and the
// live event streams.
func (s *Server) Publisher() events.Publisher { return s.publisher }

// Bootstrap registers the system types and creates the administrator
// user if it does not exist yet.
func (s *Server) Bootstrap(ctx context.Context, adminPassword string) error {
	if err := s.reg.Bootstrap(ctx); err != nil {
		return err
	}
	u, err := auth.EnsureAdmin(ctx, s.store, s.cfg.AdminID, adminPassword)
	if err != nil {
		return err
	}
	if u != nil {
		s.publish(ctx, events.TopicUserCreated, events.UserCreated{UserID: u.ID, Role: u.Role})
	}
	return nil
}

// publish emits an event. Failures are logged and never reach the caller.
func (s *Server) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// feedPublisher hands every event to the local stream feed before the
// next publisher.
type feedPublisher struct {
	next events.Publisher
	feed *eventFeed
}

func (p *feedPublisher) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for streaming", "topic", topic, "error", err)
	} else {
		p.feed.broadcast(topic, payload)
	}
	return p.next.Publish(ctx, topic, event)
}

func (p *feedPublisher) Close() error { return p.next.Close() }
